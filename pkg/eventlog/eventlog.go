// Package eventlog records turn-processing events to SQLite for offline
// inspection. It is an observability sink only: nothing is ever read back at
// runtime, and session state is never rebuilt from it.
package eventlog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"sidekick/pkg/logx"
)

// Event types recorded by the orchestrator.
const (
	EventTurnStarted    = "turn_started"
	EventWorkerCalled   = "worker_called"
	EventToolsExecuted  = "tools_executed"
	EventEvaluatorRuled = "evaluator_ruled"
	EventTurnFinished   = "turn_finished"
	EventTurnFailed     = "turn_failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
`

// Log is a SQLite-backed append-only event log.
type Log struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the event log at path. The connection uses
// WAL mode with a single writer.
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping event log: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize event log schema: %w", err)
	}

	// SQLite supports only one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Log{
		db:     db,
		logger: logx.NewLogger("eventlog"),
	}, nil
}

// Record appends an event. Failures are logged and swallowed: the event log
// must never break turn processing.
func (l *Log) Record(sessionID, eventType, detail string) {
	if l == nil {
		return
	}
	_, err := l.db.Exec(
		`INSERT INTO events (session_id, event_type, detail, created_at) VALUES (?, ?, ?, ?)`,
		sessionID, eventType, detail, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		l.logger.Warn("failed to record %s event: %v", eventType, err)
	}
}

// Recordf appends an event with a formatted detail string.
func (l *Log) Recordf(sessionID, eventType, format string, args ...any) {
	if l == nil {
		return
	}
	l.Record(sessionID, eventType, fmt.Sprintf(format, args...))
}

// Count returns the number of recorded events for a session. Used by tests
// and diagnostic tooling.
func (l *Log) Count(sessionID string) (int, error) {
	if l == nil {
		return 0, nil
	}
	var n int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM events WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// CountType returns the number of recorded events of one type for a session.
func (l *Log) CountType(sessionID, eventType string) (int, error) {
	if l == nil {
		return 0, nil
	}
	var n int
	err := l.db.QueryRow(
		`SELECT COUNT(*) FROM events WHERE session_id = ? AND event_type = ?`,
		sessionID, eventType,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
