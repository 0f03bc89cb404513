// Package all registers every storage backend. Commands blank-import it so a
// single import line wires the full backend set.
package all

import (
	_ "parleretl/internal/storage/mssql"
	_ "parleretl/internal/storage/postgres"
	_ "parleretl/internal/storage/sqlite"
)
