package store

import (
	"database/sql"
	"fmt"
)

// bootstrapFromLegacy migrates a pre-goose schema_migrations tracking table
// into goose_db_version, so that a database created by an older prototype
// build of Conductor (before migrations were goose-managed) doesn't re-run
// migrations it already has.
func bootstrapFromLegacy(conn *sql.DB) error {
	var count int
	err := conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check legacy table: %w", err)
	}
	if count == 0 {
		return nil // fresh database, no bootstrap needed
	}

	err = conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='goose_db_version'`,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("check goose table: %w", err)
	}
	if count > 0 {
		return nil // already bootstrapped
	}

	var maxVersion int
	err = conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("read legacy version: %w", err)
	}
	if maxVersion == 0 {
		return nil // no migrations applied in legacy system
	}

	_, err = conn.Exec(`CREATE TABLE goose_db_version (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version_id INTEGER NOT NULL,
		is_applied INTEGER NOT NULL,
		tstamp TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create goose_db_version: %w", err)
	}

	for v := 1; v <= maxVersion; v++ {
		_, err = conn.Exec(
			`INSERT INTO goose_db_version (version_id, is_applied, tstamp) VALUES (?, 1, datetime('now'))`,
			v,
		)
		if err != nil {
			return fmt.Errorf("insert goose version %d: %w", v, err)
		}
	}

	return nil
}
