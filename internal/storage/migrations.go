package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migrate runs all database migrations
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		createPlaybackMarksTable,
		createIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

const createPlaybackMarksTable = `
CREATE TABLE IF NOT EXISTS playback_marks (
    network TEXT NOT NULL,
    channel TEXT NOT NULL,
    last_seen INTEGER NOT NULL,
    updated_at INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (network, channel)
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_playback_marks_updated ON playback_marks(updated_at);
`
