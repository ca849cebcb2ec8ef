// Package database opens the GORM connection that backs the reconciliation
// state store.
//
// # Drivers
//
// Connect supports three dialects, selected by Config.Driver:
//
//   - sqlite: Name is a file path (WAL journal, busy timeout) or ":memory:"
//   - mysql: utf8mb4, UTC, connection and I/O timeouts in the DSN
//   - postgres: sslmode and connect_timeout from Config
//
// # Schema Inspection
//
// GetTableColumns reads the live column list of a table for each dialect.
// The integrity feature compares it against the columns the store's model
// expects.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    return fmt.Errorf("database connection failed: %w", err)
//	}
//
//	columns, err := database.GetTableColumns(db, "transactions")
package database
