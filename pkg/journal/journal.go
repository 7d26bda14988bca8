// Package journal keeps an append-only SQLite log of every attempted slot
// action. The journal answers "what happened to my dumps and when" after the
// fact, which the transient CLI output cannot.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const schema = `
CREATE TABLE IF NOT EXISTS slot_actions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	model_id    TEXT NOT NULL,
	dump_name   TEXT NOT NULL,
	action      TEXT NOT NULL,
	status_code INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_slot_actions_model ON slot_actions (model_id, recorded_at);
`

// Entry is one journaled slot action.
type Entry struct {
	ID         int64
	ModelID    string
	DumpName   string
	Action     string
	StatusCode int
	Error      string
	RecordedAt time.Time
}

// Succeeded reports whether the journaled action completed.
func (e Entry) Succeeded() bool {
	return e.Error == ""
}

// Journal is a SQLite-backed slot.Recorder.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the journal database. The path can be a file path
// or ":memory:" for tests.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one slot action outcome. Recording is best-effort: a
// journal write failure is logged and swallowed so it can never fail the
// slot action it describes.
func (j *Journal) Record(ctx context.Context, modelID, dumpName, action string, statusCode int, opErr error) {
	errText := ""
	if opErr != nil {
		errText = opErr.Error()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO slot_actions (model_id, dump_name, action, status_code, error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		modelID, dumpName, action, statusCode, errText, time.Now().UnixMilli(),
	)
	if err != nil {
		j.logger.Warn("journal write failed", zap.Error(err))
	}
}

// Recent returns the newest entries, newest first, up to limit.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, model_id, dump_name, action, status_code, error, recorded_at
		 FROM slot_actions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// RecentForModel returns the newest entries for one model, newest first.
func (j *Journal) RecentForModel(ctx context.Context, modelID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, model_id, dump_name, action, status_code, error, recorded_at
		 FROM slot_actions WHERE model_id = ? ORDER BY id DESC LIMIT ?`, modelID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var entry Entry
		var recordedAt int64
		if err := rows.Scan(
			&entry.ID, &entry.ModelID, &entry.DumpName, &entry.Action,
			&entry.StatusCode, &entry.Error, &recordedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		entry.RecordedAt = time.UnixMilli(recordedAt)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal rows: %w", err)
	}
	return entries, nil
}
