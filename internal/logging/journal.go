package logging

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/colorsignal/session-controller/internal/orchestrator"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS prediction_cycles (
	id           TEXT PRIMARY KEY,
	retry        INTEGER NOT NULL,
	history_len  INTEGER NOT NULL,
	feedback_len INTEGER NOT NULL,
	outcome      TEXT NOT NULL,
	category     TEXT,
	label        TEXT,
	cause        TEXT,
	started_at   TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prediction_cycles_started ON prediction_cycles(started_at);
`

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// #endregion schema

// #region journal
// Journal is an append-only audit log of prediction cycles in SQLite.
// Session state is never restored from it.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens path (":memory:" allowed) and runs migrations.
func OpenJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// EnsureSchema creates the prediction_cycles table if missing.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordCycle stores one finished cycle under a fresh id.
func (j *Journal) RecordCycle(ctx context.Context, c orchestrator.Cycle) error {
	return LogCycle(ctx, j.db, CycleEntry{
		Retry:       c.Retry,
		HistoryLen:  c.HistoryLen,
		FeedbackLen: c.FeedbackLen,
		Outcome:     string(c.Outcome),
		Category:    string(c.Category),
		Label:       c.Label,
		Cause:       c.Cause,
		StartedAt:   c.StartedAt,
		DurationMS:  c.Duration.Milliseconds(),
	})
}

// Recent returns up to limit cycles, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]CycleEntry, error) {
	return ListCycles(ctx, j.db, limit)
}

// #endregion journal

// #region log-cycle
// LogCycle writes an entry to the prediction_cycles table.
func LogCycle(ctx context.Context, db *sql.DB, entry CycleEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO prediction_cycles (id, retry, history_len, feedback_len, outcome, category, label, cause, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Retry,
		entry.HistoryLen,
		entry.FeedbackLen,
		entry.Outcome,
		nullIfEmpty(entry.Category),
		nullIfEmpty(entry.Label),
		nullIfEmpty(entry.Cause),
		entry.StartedAt.UTC().Format(timeLayout),
		entry.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("log cycle: %w", err)
	}
	return nil
}

// #endregion log-cycle

// #region list-cycles
// ListCycles returns up to limit entries, newest first. limit <= 0 means all.
func ListCycles(ctx context.Context, db *sql.DB, limit int) ([]CycleEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, retry, history_len, feedback_len, outcome, category, label, cause, started_at, duration_ms
		 FROM prediction_cycles ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleEntry
	for rows.Next() {
		var (
			e                      CycleEntry
			category, label, cause sql.NullString
			startedAt              string
		)
		if err := rows.Scan(&e.ID, &e.Retry, &e.HistoryLen, &e.FeedbackLen, &e.Outcome,
			&category, &label, &cause, &startedAt, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		e.Category, e.Label, e.Cause = category.String, label.String, cause.String
		if e.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-cycles

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
