package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// RunLog writes the events of one pipeline run. A RunLog without a database
// only assigns the run id. Logging failures are reported as warnings and
// never fail the caller.
type RunLog struct {
	RunID  string
	db     *sql.DB
	logger *slog.Logger
}

// NewRunLog starts a run with a fresh id.
func NewRunLog(db *sql.DB, logger *slog.Logger) *RunLog {
	id := uuid.NewString()
	return &RunLog{RunID: id, db: db, logger: logger.With(slog.String("run_id", id))}
}

// Log records one event for filename.
func (r *RunLog) Log(ctx context.Context, filename, stage, event, outputPath, message string, duration *time.Duration) {
	if r == nil || r.db == nil {
		return
	}
	if err := LogEvent(ctx, r.db, r.RunID, filename, stage, event, outputPath, message, duration); err != nil {
		r.logger.Warn("Failed to write run event.", "error", err, slog.String("event", event), slog.String("filename", filename))
	}
}

// RunSummary describes the end of a run.
type RunSummary struct {
	RunID    string
	Finished time.Time
	// Message is empty for a clean run, otherwise the run error.
	Message    string
	DurationMs int64
}

// Failed reports whether the run ended with an error.
func (s RunSummary) Failed() bool { return s.Message != "" }

// LastRun returns the most recent finished run. found is false when no run
// has finished yet.
func LastRun(ctx context.Context, db *sql.DB) (summary RunSummary, found bool, err error) {
	query := `
        SELECT run_id, event_timestamp, message, duration_ms
        FROM nomenclator_event_log
        WHERE event = ? AND stage = ?
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT 1;
    `
	var msg sql.NullString
	var dur sql.NullInt64
	row := db.QueryRowContext(ctx, query, EventRunEnd, StageRun)
	err = row.Scan(&summary.RunID, &summary.Finished, &msg, &dur)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RunSummary{}, false, nil
		}
		return RunSummary{}, false, fmt.Errorf("failed query last run: %w", err)
	}
	summary.Message = msg.String
	summary.DurationMs = dur.Int64
	return summary, true, nil
}

// FailedFiles lists the files that logged an error during runID.
func FailedFiles(ctx context.Context, db *sql.DB, runID string, logger *slog.Logger) (map[string]string, error) {
	query := `
		SELECT filename, message
		FROM nomenclator_event_log
		WHERE run_id = ? AND event = ?;
	`
	rows, err := db.QueryContext(ctx, query, runID, EventError)
	if err != nil {
		return nil, fmt.Errorf("query failed files: %w", err)
	}
	defer rows.Close()

	failed := make(map[string]string)
	var scanErrors error
	for rows.Next() {
		var filename string
		var msg sql.NullString
		if err := rows.Scan(&filename, &msg); err != nil {
			logger.Error("Failed to scan failed file row", "error", err)
			scanErrors = errors.Join(scanErrors, fmt.Errorf("scan failed file: %w", err))
			continue
		}
		failed[filename] = msg.String
	}
	if err := rows.Err(); err != nil {
		return failed, errors.Join(scanErrors, fmt.Errorf("iterate failed files: %w", err))
	}
	return failed, scanErrors
}

// DisplayLastRun prints the outcome of the most recent finished run and, when
// it failed, every file that logged an error in it. Nothing is printed before
// the first run has finished.
func DisplayLastRun(ctx context.Context, db *sql.DB, w io.Writer, logger *slog.Logger) error {
	last, found, err := LastRun(ctx, db)
	if err != nil || !found {
		return err
	}
	outcome := "ok"
	if last.Failed() {
		outcome = "failed: " + last.Message
	}
	fmt.Fprintf(w, "Last run %s finished %s (%s)\n", last.RunID, last.Finished.Format("2006-01-02 15:04:05"), outcome)
	if !last.Failed() {
		return nil
	}

	failed, err := FailedFiles(ctx, db, last.RunID, logger)
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(failed)) {
		fmt.Fprintf(w, "  %s: %s\n", name, failed[name])
	}
	return nil
}
