package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"parleretl/internal/storage"
)

// Repo implements storage.Repository for Postgres over a pgx pool.
type Repo struct {
	pool *pgxpool.Pool
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return New(ctx, cfg)
	})
}

// New creates a Postgres-backed Repo and verifies the connection.
func New(ctx context.Context, cfg storage.Config) (*Repo, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

// EnsureTables creates each table if it does not exist. Idempotent.
func (r *Repo) EnsureTables(ctx context.Context, tables []storage.TableSpec) error {
	for _, t := range tables {
		sql, err := buildCreateSQL(t)
		if err != nil {
			return err
		}
		if _, err := r.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create table %s: %w", t.Name, err)
		}
	}
	return nil
}

// chunkRows keeps each INSERT well under Postgres's 65535-parameter limit
// while still batching aggressively.
const chunkRows = 2000

// InsertRows performs a batched INSERT, chunked by row count.
func (r *Repo) InsertRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var total int64
	for start := 0; start < len(rows); start += chunkRows {
		end := start + chunkRows
		if end > len(rows) {
			end = len(rows)
		}

		sql, args := buildInsertSQL(table, columns, rows[start:end])
		cmd, err := r.pool.Exec(ctx, sql, args...)
		if err != nil {
			return total, fmt.Errorf("insert into %s: %w", table, err)
		}
		total += cmd.RowsAffected()
	}
	return total, nil
}

// buildInsertSQL constructs a single INSERT statement and its args.
//
// Why this exists:
//   - It is pure and deterministic, so placeholder numbering and quoting are
//     unit-testable without a database.
//
// Constraints:
//   - columns must be non-empty; every row must have len(columns) values.
func buildInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgIdent(table))
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(fmt.Sprintf("$%d", p))
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(";")
	return b.String(), args
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS DDL for a spec.
// Logical column types pass through unchanged; they are all native here.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("buildCreateSQL: table name is empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("buildCreateSQL: table %s: no columns", t.Name)
	}

	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, err := pgType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s, column %s: %w", t.Name, c.Name, err)
		}

		var b strings.Builder
		b.WriteString(pgIdent(c.Name))
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
		pgIdent(t.Name), strings.Join(defs, ", ")), nil
}

func pgType(logical string) (string, error) {
	switch logical {
	case storage.TypeText:
		return "TEXT", nil
	case storage.TypeBigint:
		return "BIGINT", nil
	case storage.TypeBool:
		return "BOOLEAN", nil
	case storage.TypeDouble:
		return "DOUBLE PRECISION", nil
	case storage.TypeTimestamp:
		return "TIMESTAMPTZ", nil
	case storage.TypeJSON:
		return "JSONB", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", logical)
	}
}

// pgIdent quotes an identifier, doubling embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

/* ---------- exporter lookups ---------- */

func (r *Repo) UserByUsername(ctx context.Context, username string) (*storage.UserProfile, error) {
	const q = `SELECT "id", "username", COALESCE("name", ''), "banned", COALESCE("bio", ''),
		"followers", "following", "joined", "verified"
		FROM "users" WHERE "username" = $1 LIMIT 1;`

	var u storage.UserProfile
	err := r.pool.QueryRow(ctx, q, username).Scan(
		&u.ID, &u.Username, &u.Name, &u.Banned, &u.Bio,
		&u.Followers, &u.Following, &u.Joined, &u.Verified,
	)
	if err == pgx.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user %s: %w", username, err)
	}
	return &u, nil
}

func (r *Repo) PostsByUsername(ctx context.Context, username string) ([]storage.PostExport, error) {
	const q = `SELECT "id", "author_username", COALESCE("created_at", ''),
		COALESCE("body", ''), "impression_count", COALESCE("media"::text, '')
		FROM "posts" WHERE "author_username" = $1
		ORDER BY "approx_created_at" NULLS LAST, "id";`

	rows, err := r.pool.Query(ctx, q, username)
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
	const q = `SELECT "id", "created_at" FROM "metadata" WHERE "id" = $1 LIMIT 1;`

	var m storage.MediaPointer
	err := r.pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select metadata %s: %w", id, err)
	}
	return &m, nil
}
