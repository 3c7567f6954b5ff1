package loader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/brensch/nomenclator/internal/util"
)

// Loader imports one CSV file into a table named table, replacing any
// previous contents, and returns the number of rows loaded.
type Loader interface {
	Load(ctx context.Context, table, csvPath string) (int64, error)
	Close() error
}

// Open picks a Loader for target:
//
//	""                       the state database (fallback)
//	duckdb://path/to/file    a separate DuckDB file
//	postgres://... or postgresql://...  a PostgreSQL database
//
// fallback is not closed by the returned Loader.
func Open(ctx context.Context, target string, fallback *sql.DB) (Loader, error) {
	switch {
	case target == "":
		if fallback == nil {
			return nil, errors.New("no load target and no state database")
		}
		return &DuckDBLoader{DB: fallback}, nil
	case strings.HasPrefix(target, "duckdb://"):
		l, err := OpenDuckDB(strings.TrimPrefix(target, "duckdb://"))
		if err != nil {
			return nil, err
		}
		return l, nil
	case strings.HasPrefix(target, "postgres://"), strings.HasPrefix(target, "postgresql://"):
		l, err := OpenPostgres(ctx, target)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported load target %q (want duckdb:// or postgres://)", target)
	}
}

// TableName is the table a CSV file loads into.
func TableName(csvPath string) string {
	return util.BaseName(csvPath)
}

// LoadDir loads every *.csv in dir. A failed file does not stop the others;
// the failures are joined in the returned error.
func LoadDir(ctx context.Context, l Loader, dir string, logger *slog.Logger) (map[string]int64, error) {
	files, err := util.ListFiles(dir, ".csv")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Info("No *.csv files found to load.", "dir", dir)
		return nil, nil
	}

	loaded := make(map[string]int64, len(files))
	var errs []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		table := TableName(path)
		fl := logger.With(slog.String("table", table), slog.String("csv_file", filepath.Base(path)))
		rows, err := l.Load(ctx, table, path)
		if err != nil {
			fl.Error("Failed to load CSV.", "error", err)
			errs = append(errs, fmt.Errorf("load %s: %w", filepath.Base(path), err))
			continue
		}
		loaded[table] = rows
		fl.Info("Loaded CSV.", slog.Int64("rows", rows))
	}
	return loaded, errors.Join(errs...)
}
