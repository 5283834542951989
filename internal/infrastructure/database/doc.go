// Package database provides SQLite connectivity for the collector.
//
// This package manages:
//   - The database connection, in WAL mode by default so API reads never
//     block on the polling loop's inserts
//   - Embedded schema migrations (see the top-level migrations package)
//   - Connection pool sizing and lifecycle
//
// All queries elsewhere in the module use parameterised statements and the
// database file is created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and every .up.sql has a matching .down.sql.
package database
