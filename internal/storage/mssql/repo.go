package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"parleretl/internal/storage"
)

// Repo implements storage.Repository for SQL Server.
//
// Differences from the other backends:
//   - Placeholders are @pN.
//   - No CREATE TABLE IF NOT EXISTS; DDL is guarded with IF OBJECT_ID.
//   - Identifiers are bracket-quoted.
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return New(ctx, cfg)
	})
}

func New(ctx context.Context, cfg storage.Config) (*Repo, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
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

// SQL Server caps a statement at 2100 parameters; chunk row counts so each
// INSERT stays under it regardless of column width.
const maxParams = 2000

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

// buildInsertSQL constructs a single INSERT and its args using @pN
// placeholders. Pure, so numbering and quoting are unit-testable without a
// database.
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
			b.WriteString(fmt.Sprintf("@p%d", p))
			args = append(args, sql.Named(fmt.Sprintf("p%d", p), row[j]))
			p++
		}
		b.WriteString(")")
	}

	b.WriteString(";")
	return b.String(), args
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
		typ, err := mssqlType(c.Type)
		if err != nil {
			return "", fmt.Errorf("table %s, column %s: %w", t.Name, c.Name, err)
		}

		var b strings.Builder
		b.WriteString(ident(c.Name))
		b.WriteString(" ")
		b.WriteString(typ)
		if c.PrimaryKey {
			// NVARCHAR(MAX) cannot be a key column; cap PK text columns.
			if typ == "NVARCHAR(MAX)" {
				b.Reset()
				b.WriteString(ident(c.Name))
				b.WriteString(" NVARCHAR(450)")
			}
			b.WriteString(" PRIMARY KEY")
		} else if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		defs = append(defs, b.String())
	}

	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s);",
		t.Name, ident(t.Name), strings.Join(defs, ", "),
	), nil
}

func mssqlType(logical string) (string, error) {
	switch logical {
	case storage.TypeText, storage.TypeJSON:
		return "NVARCHAR(MAX)", nil
	case storage.TypeBigint:
		return "BIGINT", nil
	case storage.TypeBool:
		return "BIT", nil
	case storage.TypeDouble:
		return "FLOAT", nil
	case storage.TypeTimestamp:
		return "DATETIMEOFFSET", nil
	default:
		return "", fmt.Errorf("unsupported column type %q", logical)
	}
}

// ident bracket-quotes an identifier, doubling embedded closing brackets.
func ident(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

/* ---------- exporter lookups ---------- */

func (r *Repo) UserByUsername(ctx context.Context, username string) (*storage.UserProfile, error) {
	const q = `SELECT TOP 1 [id], [username], COALESCE([name], ''), [banned], COALESCE([bio], ''),
		[followers], [following], [joined], [verified]
		FROM [users] WHERE [username] = @p1;`

	var u storage.UserProfile
	err := r.db.QueryRowContext(ctx, q, sql.Named("p1", username)).Scan(
		&u.ID, &u.Username, &u.Name, &u.Banned, &u.Bio,
		&u.Followers, &u.Following, &u.Joined, &u.Verified,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user %s: %w", username, err)
	}
	return &u, nil
}

func (r *Repo) PostsByUsername(ctx context.Context, username string) ([]storage.PostExport, error) {
	const q = `SELECT [id], [author_username], COALESCE([created_at], ''),
		COALESCE([body], ''), [impression_count], COALESCE([media], '')
		FROM [posts] WHERE [author_username] = @p1
		ORDER BY [approx_created_at], [id];`

	rows, err := r.db.QueryContext(ctx, q, sql.Named("p1", username))
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
	const q = `SELECT TOP 1 [id], [created_at] FROM [metadata] WHERE [id] = @p1;`

	var m storage.MediaPointer
	err := r.db.QueryRowContext(ctx, q, sql.Named("p1", id)).Scan(&m.ID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select metadata %s: %w", id, err)
	}
	return &m, nil
}
