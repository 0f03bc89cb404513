package mssql

import (
	"strings"
	"testing"

	"parleretl/internal/storage"
)

func TestBuildInsertSQL(t *testing.T) {
	sql, args := buildInsertSQL(
		"users",
		[]string{"id", "username"},
		[][]any{
			{"u1", "alice"},
			{"u2", "bob"},
		},
	)

	want := `INSERT INTO [users] ([id], [username]) VALUES (@p1, @p2), (@p3, @p4);`
	if sql != want {
		t.Fatalf("sql mismatch:\n got: %s\nwant: %s", sql, want)
	}
	if len(args) != 4 {
		t.Fatalf("args: got %d, want 4", len(args))
	}
}

func TestBuildCreateSQL(t *testing.T) {
	ddl, err := buildCreateSQL(storage.TableSpec{
		Name: "users",
		Columns: []storage.ColumnSpec{
			{Name: "id", Type: storage.TypeText, PrimaryKey: true},
			{Name: "banned", Type: storage.TypeBool},
			{Name: "joined", Type: storage.TypeTimestamp, Nullable: true},
		},
	})
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}

	for _, want := range []string{
		`IF OBJECT_ID(N'users', N'U') IS NULL CREATE TABLE [users]`,
		// Text primary keys are capped: MAX types cannot be key columns.
		`[id] NVARCHAR(450) PRIMARY KEY`,
		`[banned] BIT NOT NULL`,
		`[joined] DATETIMEOFFSET`,
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

func TestIdentQuoting(t *testing.T) {
	if got := ident("odd]name"); got != "[odd]]name]" {
		t.Fatalf("ident: got %s", got)
	}
}
