package database

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	started_at DATETIME,
	ended_at DATETIME NOT NULL,
	duration_seconds REAL NOT NULL DEFAULT 0,
	file_count INTEGER NOT NULL DEFAULT 0,
	total_file_size_bytes INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_session_records_device
	ON session_records (device_id, ended_at);

CREATE INDEX IF NOT EXISTS idx_session_records_session
	ON session_records (session_id);
`

func bootstrapSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
