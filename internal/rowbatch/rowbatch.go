// Package rowbatch provides an allocation-conscious accumulator for
// positional rows headed to a batched INSERT.
package rowbatch

import "sync"

// Row is a pooled container holding a positional row.
//
// Ownership contract:
//   - Exactly one owner at a time.
//   - The final consumer must call Free() AFTER it is fully done with the Row
//     (and anything referencing r.V).
//   - Use Drop() on abort paths (no re-pooling; allow GC to reclaim).
type Row struct {
	V    []any
	Line int // 1-based source line number, if known
}

var rowPool sync.Pool

// GetRow returns a pooled Row with length colCount, all elements zeroed.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]any, colCount)
		}
		r.V = r.V[:colCount]
		for i := range r.V {
			r.V[i] = nil
		}
		r.Line = 0
		return r
	}
	return &Row{V: make([]any, colCount)}
}

// Free returns the Row to the pool.
// Call this ONLY when nothing can still observe r or r.V.
func (r *Row) Free() {
	rowPool.Put(r)
}

// Drop discards the Row without re-pooling.
func (r *Row) Drop() {
	r.V = nil
	r.Line = 0
}

// FlushFunc receives the accumulated rows. The slice and its rows are only
// valid for the duration of the call; Batch frees the rows afterwards.
type FlushFunc func(rows [][]any) error

// Batch accumulates pooled rows and flushes them through fn every size rows.
type Batch struct {
	size    int
	fn      FlushFunc
	pending []*Row
}

func New(size int, fn FlushFunc) *Batch {
	if size < 1 {
		size = 1
	}
	return &Batch{
		size:    size,
		fn:      fn,
		pending: make([]*Row, 0, size),
	}
}

// Add takes ownership of r and flushes when the batch is full.
func (b *Batch) Add(r *Row) error {
	b.pending = append(b.pending, r)
	if len(b.pending) >= b.size {
		return b.flush()
	}
	return nil
}

// Flush drains any remaining rows. Call once after the last Add.
func (b *Batch) Flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	return b.flush()
}

// Len returns the number of rows waiting for the next flush.
func (b *Batch) Len() int { return len(b.pending) }

func (b *Batch) flush() error {
	rows := make([][]any, len(b.pending))
	for i, r := range b.pending {
		rows[i] = r.V
	}

	err := b.fn(rows)

	// On the error path the caller aborts the run; Drop instead of Free so a
	// retried flush can never race with pool reuse.
	for _, r := range b.pending {
		if err != nil {
			r.Drop()
		} else {
			r.Free()
		}
	}
	b.pending = b.pending[:0]
	return err
}
