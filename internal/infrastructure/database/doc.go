// Package database provides the SQLite database behind the evbridge
// command audit log.
//
// This package manages:
//   - Opening the database with WAL mode and a busy timeout
//   - Applying embedded schema migrations
//   - Health checks and lifecycle
//
// Security Considerations:
//   - All queries use parameterised statements
//   - The database file is restricted to 0600
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
// Migrations are additive only. Each is a single
// "YYYYMMDD_HHMMSS_description.up.sql" file.
package database
