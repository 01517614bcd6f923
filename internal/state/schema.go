// Package state implements the persistence layer: the SQLite row store with
// date-partitioned feed tables, the run log, and embedded migrations for the
// tables this process owns.
package state

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// FeedPartitionDDL is the per-date feed table layout. Partitions are normally
// created by the upstream harvester; tests and tooling use this template.
const FeedPartitionDDL = `
CREATE TABLE IF NOT EXISTS %s (
	id             TEXT NOT NULL,
	flashpoint_id  TEXT NOT NULL,
	url            TEXT NOT NULL DEFAULT '',
	title          TEXT NOT NULL DEFAULT '',
	title_en       TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	content        TEXT NOT NULL DEFAULT '',
	language       TEXT NOT NULL DEFAULT '',
	source_country TEXT NOT NULL DEFAULT '',
	hostname       TEXT NOT NULL DEFAULT '',
	image          TEXT NOT NULL DEFAULT '',
	published_date TEXT NOT NULL DEFAULT '',
	images_json    TEXT NOT NULL DEFAULT '[]',
	entities_json  TEXT NOT NULL DEFAULT '{}',
	geo_entities_json TEXT NOT NULL DEFAULT '[]',
	updated_at_ns  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (id, flashpoint_id)
);
`

// OpenDB opens (or creates) a SQLite database at path with recommended pragmas:
// WAL journal mode, synchronous=NORMAL, foreign_keys=ON, busy_timeout=5000.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}

	// Single-writer: only one connection needed.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q on %s: %w", p, path, err)
		}
	}

	return db, nil
}
