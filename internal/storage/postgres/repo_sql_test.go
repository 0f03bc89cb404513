package postgres

import (
	"strings"
	"testing"

	"parleretl/internal/storage"
)

func TestBuildInsertSQL(t *testing.T) {
	sql, args := buildInsertSQL(
		"posts",
		[]string{"id", "body"},
		[][]any{
			{"p1", "hello"},
			{"p2", nil},
		},
	)

	want := `INSERT INTO "posts" ("id", "body") VALUES ($1, $2), ($3, $4);`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if len(args) != 4 {
		t.Fatalf("args: got %d, want 4", len(args))
	}
	if args[0] != "p1" || args[1] != "hello" || args[2] != "p2" || args[3] != nil {
		t.Fatalf("args out of order: %v", args)
	}
}

func TestBuildInsertSQLQuotesIdents(t *testing.T) {
	sql, _ := buildInsertSQL(`odd"name`, []string{`col"umn`}, [][]any{{1}})
	if !strings.Contains(sql, `"odd""name"`) || !strings.Contains(sql, `"col""umn"`) {
		t.Fatalf("identifiers not quote-doubled: %s", sql)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	ddl, err := buildCreateSQL(storage.TableSpec{
		Name: "metadata",
		Columns: []storage.ColumnSpec{
			{Name: "id", Type: storage.TypeText, PrimaryKey: true},
			{Name: "created_at", Type: storage.TypeTimestamp, Nullable: true},
			{Name: "lat", Type: storage.TypeDouble, Nullable: true},
			{Name: "raw", Type: storage.TypeJSON},
		},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}

	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "metadata"`,
		`"id" TEXT PRIMARY KEY`,
		`"created_at" TIMESTAMPTZ`,
		`"lat" DOUBLE PRECISION`,
		`"raw" JSONB NOT NULL`,
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
	if strings.Contains(ddl, `"created_at" TIMESTAMPTZ NOT NULL`) {
		t.Errorf("nullable column rendered NOT NULL:\n%s", ddl)
	}
}

func TestBuildCreateSQLRejectsBadSpecs(t *testing.T) {
	cases := []struct {
		name string
		spec storage.TableSpec
	}{
		{"empty name", storage.TableSpec{Columns: []storage.ColumnSpec{{Name: "a", Type: storage.TypeText}}}},
		{"no columns", storage.TableSpec{Name: "t"}},
		{"bad type", storage.TableSpec{Name: "t", Columns: []storage.ColumnSpec{{Name: "a", Type: "uuid"}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := buildCreateSQL(tc.spec); err == nil {
				t.Fatalf("want error, got nil")
			}
		})
	}
}
