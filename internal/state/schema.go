package state

import (
	"database/sql"
)

const currentSchemaVersion = 2

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS player_session (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			uri TEXT NOT NULL,
			position_ms INTEGER NOT NULL DEFAULT 0,
			speed REAL NOT NULL DEFAULT 1.0,
			status TEXT NOT NULL DEFAULT 'stopped',
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return err
	}

	// Set initial version if not exists
	_, err = db.Exec(`
		INSERT OR IGNORE INTO schema_version (version) VALUES (?)
	`, currentSchemaVersion)
	if err != nil {
		return err
	}

	// Migration: add speed column if missing
	_, _ = db.Exec(`ALTER TABLE player_session ADD COLUMN speed REAL NOT NULL DEFAULT 1.0`)

	return nil
}
