package storage

import (
	"context"
	"strings"
	"testing"
)

type nopRepo struct{}

func (nopRepo) Close()                                                 {}
func (nopRepo) EnsureTables(context.Context, []TableSpec) error        { return nil }
func (nopRepo) InsertRows(context.Context, string, []string, [][]any) (int64, error) {
	return 0, nil
}
func (nopRepo) UserByUsername(context.Context, string) (*UserProfile, error) {
	return nil, ErrNotFound
}
func (nopRepo) PostsByUsername(context.Context, string) ([]PostExport, error) {
	return nil, ErrNotFound
}
func (nopRepo) MetadataByID(context.Context, string) (*MediaPointer, error) {
	return nil, ErrNotFound
}

func TestNewUnknownKind(t *testing.T) {
	_, err := New(context.Background(), Config{Kind: "bogus"})
	if err == nil {
		t.Fatalf("New with unregistered kind: want error, got nil")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("error should name the kind, got: %v", err)
	}
}

func TestNewEmptyKind(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if err == nil {
		t.Fatalf("New with empty kind: want error, got nil")
	}
}

func TestRegisterAndNew(t *testing.T) {
	Register("test-fake", func(ctx context.Context, cfg Config) (Repository, error) {
		return nopRepo{}, nil
	})

	repo, err := New(context.Background(), Config{Kind: "test-fake"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if repo == nil {
		t.Fatalf("New returned nil repository")
	}

	found := false
	for _, k := range Kinds() {
		if k == "test-fake" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds() does not include registered kind, got %v", Kinds())
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate Register did not panic")
		}
	}()

	Register("test-dup", func(ctx context.Context, cfg Config) (Repository, error) {
		return nopRepo{}, nil
	})
	Register("test-dup", func(ctx context.Context, cfg Config) (Repository, error) {
		return nopRepo{}, nil
	})
}

func TestRegisterEmptyKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("Register with empty kind did not panic")
		}
	}()
	Register("", func(ctx context.Context, cfg Config) (Repository, error) {
		return nopRepo{}, nil
	})
}
