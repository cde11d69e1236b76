// Package auditlog implements blizzard.Recorder on top of database/sql and
// github.com/mattn/go-sqlite3, persisting every dispatched message for
// post-hoc debugging.
package auditlog

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
	"github.com/peterje/blizzard"
)

// Log appends blizzard.RecordEntry values to a SQLite table. Record and
// Close on a nil *Log are no-ops.
type Log struct {
	db     *sql.DB
	logger *log.Logger
}

// Open opens (creating if absent) a SQLite database at path and ensures the
// audit table exists.
func Open(path string, logger *log.Logger) (*Log, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("auditlog: open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("auditlog: migrate: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Log{db: db, logger: logger}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS dispatch_log (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	method    TEXT NOT NULL,
	frame_id  INTEGER NOT NULL,
	direction TEXT NOT NULL,
	code      INTEGER NOT NULL,
	recorded_at DATETIME NOT NULL
)`

// Record implements blizzard.Recorder. Errors are logged, not returned —
// auditing must never influence dispatch outcomes.
func (l *Log) Record(entry blizzard.RecordEntry) {
	if l == nil {
		return
	}
	_, err := l.db.Exec(
		`INSERT INTO dispatch_log (method, frame_id, direction, code, recorded_at) VALUES (?, ?, ?, ?, ?)`,
		entry.Method, entry.ID, entry.Direction, entry.Code, entry.At,
	)
	if err != nil {
		l.logger.Printf("auditlog: insert: %v", err)
	}
}

// Close closes the underlying database handle.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
