// Package database provides SQLite connectivity for the Gray Logic Tuya service.
//
// It stores the saved OAuth2 clients produced by pairing, the devices
// registered from discovery results and the pairing audit trail.
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600 (owner read/write only)
//   - The oauth_clients table holds refresh tokens; keep backups private
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT, and
// every .up.sql ships with a .down.sql.
package database
