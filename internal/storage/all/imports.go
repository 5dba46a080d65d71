// Package all registers every built-in storage backend. Import it for side
// effects from the wiring layer:
//
//	import _ "graphetl/internal/storage/all"
//
// after which storage.New accepts the kinds postgres, mssql, sqlite and mysql.
package all

import (
	_ "graphetl/internal/storage/mssql"
	_ "graphetl/internal/storage/mysql"
	_ "graphetl/internal/storage/postgres"
	_ "graphetl/internal/storage/sqlite"
)
