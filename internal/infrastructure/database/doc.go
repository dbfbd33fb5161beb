// Package database provides SQLite connectivity for the gateway.
//
// It is used when discovery.store is "sqlite": learned device records are
// kept in the device_records table instead of being written back into the
// YAML configuration.
//
// This package manages:
//   - Database connection with WAL mode
//   - Schema migrations embedded in the binary (see the migrations package)
//   - Connection lifecycle
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive-only. Each file pair is named
// YYYYMMDD_HHMMSS_description.up.sql / .down.sql.
package database
