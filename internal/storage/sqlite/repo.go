package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"parleretl/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no native TIMESTAMPTZ type; timestamp columns get TEXT
//     affinity and values are stored as RFC3339Nano strings for reliable
//     round-trip behavior and easy debugging.
//   - The DSN is the database file path.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return New(ctx, cfg)
	})
}

func New(ctx context.Context, cfg storage.Config) (*Repo, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

// EnsureTables creates each table if it does not exist. Idempotent.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		ddl, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// SQLite's default parameter ceiling is 999; chunk row counts so each INSERT
// stays under it regardless of column width.
const maxParams = 999

// InsertRows performs a batched INSERT, chunked under the parameter limit.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert into %s: no columns", table)
	}

	chunk := maxParams / len(columns)
	if chunk < 1 {
		chunk = 1
	}

	var total int64
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}

		stmt, args := buildInsertSQL(table, columns, rows[start:end])
		res, err := r.db.ExecContext(ctx, stmt, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// buildInsertSQL constructs a single INSERT and its args using ? placeholders.
// Pure, so quoting and value flattening are unit-testable without a database.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(ident(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(ident(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, normalizeValue(row[j]))
		}
		b.WriteString(")")
	}

	b.WriteString(";")
	return b.String(), args
}

// normalizeValue converts values the driver has no native encoding for.
// Timestamps become RFC3339Nano UTC strings.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("buildCreateSQL: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("buildCreateSQL: table %s: no columns", t.Name)
	}

	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, err := sqliteType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s, column %s: %w", t.Name, c.Name, err)
		}

		var b strings.Builder
		b.WriteString(ident(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		} else if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		defs = append(defs, b.String())
	}

	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`,
		ident(t.Name), strings.Join(defs, ", ")), nil
}

func sqliteType(logical string) (string, error) {
	switch logical {
	case storage.TypeText, storage.TypeJSON, storage.TypeTimestamp:
		return "TEXT", nil
	case storage.TypeBigint, storage.TypeBool:
		return "INTEGER", nil
	case storage.TypeDouble:
		return "REAL", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", logical)
	}
}

// ident quotes an identifier, doubling embedded quotes.
func ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

/* ---------- exporter lookups ---------- */

func (r *Repo) UserByUsername(ctx context.Context, username string) (*storage.UserProfile, error) {
	const q = `SELECT "id", "username", COALESCE("name", ''), "banned", COALESCE("bio", ''),
		"followers", "following", COALESCE("joined", ''), "verified"
		FROM "users" WHERE "username" = ? LIMIT 1;`

	var (
		u      storage.UserProfile
		joined string
	)
	err := r.db.QueryRowContext(ctx, q, username).Scan(
		&u.ID, &u.Username, &u.Name, &u.Banned, &u.Bio,
		&u.Followers, &u.Following, &joined, &u.Verified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user %s: %w", username, err)
	}
	if joined != "" {
		if t, perr := time.Parse(time.RFC3339Nano, joined); perr == nil {
			u.Joined = &t
		}
	}
	return &u, nil
}

func (r *Repo) PostsByUsername(ctx context.Context, username string) ([]storage.PostExport, error) {
	const q = `SELECT "id", "author_username", COALESCE("created_at", ''),
		COALESCE("body", ''), "impression_count", COALESCE("media", '')
		FROM "posts" WHERE "author_username" = ?
		ORDER BY "approx_created_at", "id";`

	rows, err := r.db.QueryContext(ctx, q, username)
	if err != nil {
		return nil, fmt.Errorf("select posts for %s: %w", username, err)
	}
	defer rows.Close()

	var out []storage.PostExport
	for rows.Next() {
		var p storage.PostExport
		if err := rows.Scan(&p.ID, &p.Username, &p.CreatedAt, &p.Body, &p.Impressions, &p.Media); err != nil {
			return nil, fmt.Errorf("scan posts for %s: %w", username, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read posts for %s: %w", username, err)
	}
	if len(out) == 0 {
		return nil, storage.ErrNotFound
	}
	return out, nil
}

func (r *Repo) MetadataByID(ctx context.Context, id string) (*storage.MediaPointer, error) {
	const q = `SELECT "id", COALESCE("created_at", '') FROM "metadata" WHERE "id" = ? LIMIT 1;`

	var (
		m       storage.MediaPointer
		created string
	)
	err := r.db.QueryRowContext(ctx, q, id).Scan(&m.ID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select metadata %s: %w", id, err)
	}
	if created != "" {
		if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
			m.CreatedAt = &t
		}
	}
	return &m, nil
}
