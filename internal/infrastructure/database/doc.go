// Package database provides the SQLite connection behind the delivery journal.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Schema migrations read from an fs.FS (see the migrations package)
//   - Transaction helper and health check
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(cfg.Journal)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql. A matching
// .down.sql is loaded alongside for manual rollback; the runner only applies
// up scripts.
package database
