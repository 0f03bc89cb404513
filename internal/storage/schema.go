// TableSpec lives in the storage root so record definitions and backend
// packages can both import it without circular deps.
package storage

// Logical column types. Each backend maps these to its own native types;
// record definitions never name a backend-specific type.
const (
	TypeText      = "text"
	TypeBigint    = "bigint"
	TypeBool      = "boolean"
	TypeDouble    = "double"
	TypeTimestamp = "timestamptz"
	TypeJSON      = "json"
)

type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

type ColumnSpec struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// ColumnNames returns the column names in declaration order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}
