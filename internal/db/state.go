package db

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Constants for event types
const (
	EventRunStart   = "run_start"
	EventRunEnd     = "run_end"
	EventFetchStart = "fetch_start"
	EventFetchEnd   = "fetch_end"
	EventParseStart = "parse_start"
	EventParseEnd   = "parse_end"
	EventSkip       = "skip"
	EventError      = "error"
)

// Constants for pipeline stages
const (
	StageRun          = "run"
	StageFetch        = "fetch"
	StageCatalog      = "catalog"
	StagePrescription = "prescription"
	StageExport       = "export"
	StageLoad         = "load"
)

// Schema SQL
const schemaSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS nomenclator_event_log_id_seq;`
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS nomenclator_event_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('nomenclator_event_log_id_seq'),
    run_id          VARCHAR NOT NULL,
    filename        VARCHAR NOT NULL,      -- XML file, CSV file or dump URL
    stage           VARCHAR NOT NULL,
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    output_path     VARCHAR,
    message         VARCHAR,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_nomenclator_event_log_run ON nomenclator_event_log (run_id);
CREATE INDEX IF NOT EXISTS idx_nomenclator_event_log_event_time ON nomenclator_event_log (event, event_timestamp);
`

// InitializeSchema creates the sequence and tables in the correct order.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaSequenceSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute sequence setup: %w", err)
	}
	_, err = db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table/index setup: %w", err)
	}
	return nil
}

// LogEvent inserts a new event record into the log.
func LogEvent(ctx context.Context, db *sql.DB, runID, filename, stage, event, outputPath, message string, duration *time.Duration) error {
	query := `
        INSERT INTO nomenclator_event_log (run_id, filename, stage, event, event_timestamp, output_path, message, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?);
    `
	var durationMs sql.NullInt64
	if duration != nil {
		durationMs = sql.NullInt64{Int64: duration.Milliseconds(), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		runID,
		filename,
		stage,
		event,
		time.Now().UTC(),
		sql.NullString{String: outputPath, Valid: outputPath != ""},
		sql.NullString{String: message, Valid: message != ""},
		durationMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", event, filename, err)
	}
	return nil
}

// EventRecord is one row of the event log.
type EventRecord struct {
	RunID      string
	Filename   string
	Stage      string
	Event      string
	Timestamp  time.Time
	OutputPath string
	Message    string
	DurationMs sql.NullInt64
}

// EventFilter narrows QueryEvents. Empty fields match everything.
type EventFilter struct {
	RunID string
	Stage string
	Event string
	Limit int
}

// QueryEvents returns matching events, newest first.
func QueryEvents(ctx context.Context, db *sql.DB, f EventFilter) ([]EventRecord, error) {
	query := `
        SELECT run_id, filename, stage, event, event_timestamp, output_path, message, duration_ms
        FROM nomenclator_event_log
    `
	conditions := []string{}
	args := []any{}
	if f.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, f.RunID)
	}
	if f.Stage != "" {
		conditions = append(conditions, "stage = ?")
		args = append(args, f.Stage)
	}
	if f.Event != "" {
		conditions = append(conditions, "event = ?")
		args = append(args, f.Event)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY event_timestamp DESC, log_id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		var outputPath, message sql.NullString
		if err := rows.Scan(&rec.RunID, &rec.Filename, &rec.Stage, &rec.Event, &rec.Timestamp, &outputPath, &message, &rec.DurationMs); err != nil {
			return nil, fmt.Errorf("failed to scan event log row: %w", err)
		}
		rec.OutputPath = outputPath.String
		rec.Message = message.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event log rows: %w", err)
	}
	return out, nil
}

// DisplayRunHistory prints the event log as a table.
func DisplayRunHistory(ctx context.Context, db *sql.DB, w io.Writer, f EventFilter) error {
	events, err := QueryEvents(ctx, db, f)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "--- Event Log History (Limit %d) ---\n", f.Limit)
	fmt.Fprintf(w, "%-8s | %-45s | %-12s | %-11s | %-25s | %-10s | %s\n", "Run", "File", "Stage", "Event", "Timestamp (UTC)", "DurationMS", "Message/Details")
	fmt.Fprintln(w, strings.Repeat("-", 150))
	for _, e := range events {
		durationStr := ""
		if e.DurationMs.Valid {
			durationStr = fmt.Sprintf("%d", e.DurationMs.Int64)
		}
		details := e.Message
		if e.OutputPath != "" {
			details += fmt.Sprintf(" (Output: %s)", filepath.Base(e.OutputPath))
		}
		fmt.Fprintf(w, "%-8s | %-45s | %-12s | %-11s | %-25s | %-10s | %s\n",
			shortID(e.RunID), e.Filename, e.Stage, e.Event, e.Timestamp.Format(time.RFC3339), durationStr, strings.TrimSpace(details))
	}
	fmt.Fprintf(w, "Displayed %d records.\n", len(events))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
