package inspector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/brensch/nomenclator/internal/util"

	_ "github.com/marcboeker/go-duckdb"
)

// Column is one column as DuckDB sees it.
type Column struct {
	Name string
	Type string
}

// FileSummary describes one CSV in the output directory.
type FileSummary struct {
	Name     string
	Path     string
	Columns  []Column
	RowCount int64
	Err      error
}

// csvSource reads every column as text so the summary reflects the file and
// not DuckDB's type sniffing.
func csvSource(path string) string {
	return fmt.Sprintf("read_csv(%s, header=true, all_varchar=true)", util.SQLStringLiteral(path))
}

// InspectCSV summarizes every *.csv in dir. A file that DuckDB cannot read
// is reported in its summary and in the joined error; the others are still
// summarized.
func InspectCSV(ctx context.Context, db *sql.DB, dir string, logger *slog.Logger) ([]FileSummary, error) {
	logger.Info("--- Starting CSV Summary Inspection ---", slog.String("dir", dir))

	files, err := util.ListFiles(dir, ".csv")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Info("No *.csv files found.", "dir", dir)
		return nil, nil
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	defer conn.Close()

	summaries := make([]FileSummary, 0, len(files))
	var errs error
	for _, path := range files {
		l := logger.With(slog.String("file", filepath.Base(path)))
		s := FileSummary{Name: filepath.Base(path), Path: path}

		s.Columns, s.Err = describe(ctx, conn, path)
		if s.Err == nil {
			query := fmt.Sprintf("SELECT COUNT(*) FROM %s;", csvSource(path))
			if err := conn.QueryRowContext(ctx, query).Scan(&s.RowCount); err != nil {
				s.Err = fmt.Errorf("count rows in %s: %w", s.Name, err)
			}
		}
		if s.Err != nil {
			l.Error("Failed inspecting file.", "error", s.Err)
			errs = errors.Join(errs, s.Err)
		} else {
			l.Debug("Inspected file.", slog.Int("columns", len(s.Columns)), slog.Int64("rows", s.RowCount))
		}
		summaries = append(summaries, s)
	}

	logger.Info("--- CSV Summary Inspection Finished ---", slog.Int("files", len(summaries)))
	return summaries, errs
}

func describe(ctx context.Context, conn *sql.Conn, path string) ([]Column, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("DESCRIBE SELECT * FROM %s;", csvSource(path)))
	if err != nil {
		return nil, fmt.Errorf("query schema for %s: %w", filepath.Base(path), err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var name, typ, nullVal, keyVal, defaultVal, extraVal sql.NullString
		if err := rows.Scan(&name, &typ, &nullVal, &keyVal, &defaultVal, &extraVal); err != nil {
			return nil, fmt.Errorf("scan schema row for %s: %w", filepath.Base(path), err)
		}
		cols = append(cols, Column{Name: name.String, Type: typ.String})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema rows for %s: %w", filepath.Base(path), err)
	}
	return cols, nil
}

// Print writes the summaries as a table, with column lists when verbose.
func Print(w io.Writer, summaries []FileSummary, verbose bool) {
	fmt.Fprintln(w, "--- CSV File Summary ---")
	fmt.Fprintf(w, "%-45s | %-8s | %-12s | %s\n", "File", "Columns", "Rows", "Errors")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, s := range summaries {
		errorStr := ""
		if s.Err != nil {
			errorStr = s.Err.Error()
		}
		fmt.Fprintf(w, "%-45s | %-8d | %-12d | %s\n", s.Name, len(s.Columns), s.RowCount, errorStr)
		if verbose && s.Err == nil {
			names := make([]string, len(s.Columns))
			for i, c := range s.Columns {
				names[i] = c.Name
			}
			fmt.Fprintf(w, "    %s\n", strings.Join(names, ", "))
		}
	}
	fmt.Fprintln(w, strings.Repeat("-", 90))
}
