package rowbatch

import (
	"fmt"
	"testing"
)

func TestGetRowZeroed(t *testing.T) {
	r := GetRow(3)
	if len(r.V) != 3 {
		t.Fatalf("len: got %d, want 3", len(r.V))
	}
	for i, v := range r.V {
		if v != nil {
			t.Fatalf("element %d not zeroed: %v", i, v)
		}
	}

	r.V[0] = "dirty"
	r.Line = 42
	r.Free()

	r2 := GetRow(3)
	for i, v := range r2.V {
		if v != nil {
			t.Fatalf("reused row element %d not zeroed: %v", i, v)
		}
	}
	if r2.Line != 0 {
		t.Fatalf("reused row Line not reset: %d", r2.Line)
	}
}

func TestBatchFlushesAtSize(t *testing.T) {
	var flushes [][][]any
	b := New(2, func(rows [][]any) error {
		cp := make([][]any, len(rows))
		for i, r := range rows {
			cp[i] = append([]any(nil), r...)
		}
		flushes = append(flushes, cp)
		return nil
	})

	for i := 0; i < 5; i++ {
		r := GetRow(1)
		r.V[0] = i
		if err := b.Add(r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	if len(flushes) != 3 {
		t.Fatalf("flushes: got %d, want 3", len(flushes))
	}
	if len(flushes[0]) != 2 || len(flushes[1]) != 2 || len(flushes[2]) != 1 {
		t.Fatalf("flush sizes: %d %d %d", len(flushes[0]), len(flushes[1]), len(flushes[2]))
	}
	if flushes[2][0][0] != 4 {
		t.Fatalf("last row: %v", flushes[2][0])
	}
}

func TestBatchFlushEmptyIsNoop(t *testing.T) {
	calls := 0
	b := New(10, func(rows [][]any) error {
		calls++
		return nil
	})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if calls != 0 {
		t.Fatalf("empty flush invoked the callback")
	}
}

func TestBatchPropagatesFlushError(t *testing.T) {
	b := New(1, func(rows [][]any) error {
		return fmt.Errorf("db down")
	})

	r := GetRow(1)
	if err := b.Add(r); err == nil {
		t.Fatalf("flush error not propagated")
	}
	if b.Len() != 0 {
		t.Fatalf("pending rows not cleared after failed flush: %d", b.Len())
	}
}
