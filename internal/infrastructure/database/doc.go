// Package database provides SQLite connectivity for signalhub's signal history.
//
// This package manages:
//   - Database connection with WAL mode for concurrent reads
//   - Schema migrations loaded from an fs.FS (see the migrations package)
//   - An in-memory mode (Path ":memory:") used by tests
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are named YYYYMMDD_HHMMSS_description.up.sql with an optional
// matching .down.sql, and are applied oldest first.
package database
