package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by the lookup methods when no row matches.
// Callers that treat a miss as skippable must test with errors.Is.
var ErrNotFound = errors.New("storage: not found")

// Config is the minimal configuration needed to create a repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific (for sqlite it is the database file path).
type Config struct {
	Kind string
	DSN  string
}

// UserProfile is the subset of a user row the exporter writes to bios.csv.
type UserProfile struct {
	ID        string
	Username  string
	Name      string
	Banned    bool
	Bio       string
	Followers int64
	Following int64
	Joined    *time.Time
	Verified  bool
}

// PostExport is one row of a per-user posts report.
type PostExport struct {
	ID          string
	Username    string
	CreatedAt   string
	Body        string
	Impressions int64
	Media       string
}

// MediaPointer identifies one uploaded media object by its metadata row.
type MediaPointer struct {
	ID        string
	CreatedAt *time.Time
}

// Repository is a backend-agnostic interface over the pipeline's three
// tables.
//
// IMPORTANT: the interface is intentionally minimal — idempotent DDL, batched
// inserts, and the three lookups the exporter needs. Each backend implements
// these semantics in its own idiomatic way (pgx pool vs database/sql,
// $n vs ? vs @p placeholders).
type Repository interface {
	// Close releases backend resources. Treat as "call once".
	Close()

	// EnsureTables creates the given tables if they do not exist.
	EnsureTables(ctx context.Context, tables []TableSpec) error

	// InsertRows performs one batched INSERT of rows into table. Rows must
	// align positionally with columns. Backends chunk internally to stay
	// under their parameter limits. Returns the number of rows inserted.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)

	// Exporter lookups. All return ErrNotFound on a miss.
	UserByUsername(ctx context.Context, username string) (*UserProfile, error)
	PostsByUsername(ctx context.Context, username string) ([]PostExport, error)
	MetadataByID(ctx context.Context, id string) (*MediaPointer, error)
}

/* ---------- factories ---------- */

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in a backend package. Registering the
// same kind twice panics; this is intentional to fail fast on ambiguous
// backend selection.
func Register(kind string, f factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
//
// Concurrency:
//   - Safe for concurrent use with Register. New takes a read lock while
//     selecting the factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage kind")
	}

	factoriesMu.RLock()
	f := factories[cfg.Kind]
	factoriesMu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds; used by CLI usage text.
func Kinds() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
