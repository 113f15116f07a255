// Package history records the terminal outcome of every alert attempt in
// the state database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mattjoyce/beacon/internal/alert"
	"github.com/mattjoyce/beacon/internal/dispatch"
	"github.com/mattjoyce/beacon/internal/log"
)

// timeLayout is fixed width so completed_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one finished attempt.
type Entry struct {
	AttemptID   string            `json:"attempt_id"`
	Succeeded   bool              `json:"succeeded"`
	Kind        alert.FailureKind `json:"kind,omitempty"`
	Capability  alert.Capability  `json:"capability,omitempty"`
	StatusCode  int               `json:"status_code,omitempty"`
	Message     string            `json:"message"`
	CompletedAt time.Time         `json:"completed_at"`
}

// Recorder is a dispatch.StatusSink that persists terminal events.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Report(ev dispatch.StatusEvent) {
	if !ev.Terminal() || ev.Outcome == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Record(ctx, *ev.Outcome, ev.At); err != nil {
		log.WithAttempt(ev.AttemptID).Error("failed to record attempt", "error", err)
	}
}

// Record stores out, completed at the given time.
func (r *Recorder) Record(ctx context.Context, out alert.Outcome, at time.Time) error {
	var (
		kind, capability sql.NullString
		status           sql.NullInt64
	)
	if out.Reason != nil {
		kind = sql.NullString{String: string(out.Reason.Kind), Valid: true}
		if out.Reason.Capability != "" {
			capability = sql.NullString{String: string(out.Reason.Capability), Valid: true}
		}
		if out.Reason.StatusCode != 0 {
			status = sql.NullInt64{Int64: int64(out.Reason.StatusCode), Valid: true}
		}
	}
	if at.IsZero() {
		at = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT OR REPLACE INTO attempt_log(id, succeeded, kind, capability, status_code, message, completed_at)
VALUES(?, ?, ?, ?, ?, ?, ?);`,
		out.AttemptID, out.Succeeded, kind, capability, status, out.Message, at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert attempt_log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, succeeded, kind, capability, status_code, message, completed_at
FROM attempt_log ORDER BY completed_at DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempt_log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                Entry
			kind, capability sql.NullString
			status           sql.NullInt64
			completedAt      string
		)
		if err := rows.Scan(&e.AttemptID, &e.Succeeded, &kind, &capability, &status, &e.Message, &completedAt); err != nil {
			return nil, fmt.Errorf("scan attempt_log: %w", err)
		}
		e.Kind = alert.FailureKind(kind.String)
		e.Capability = alert.Capability(capability.String)
		e.StatusCode = int(status.Int64)
		e.CompletedAt, _ = time.Parse(timeLayout, completedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
