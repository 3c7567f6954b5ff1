package loader

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brensch/nomenclator/internal/util"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// DuckDBLoader replaces a DuckDB table with the contents of a CSV, every
// column typed VARCHAR.
type DuckDBLoader struct {
	DB    *sql.DB
	owned bool
}

// OpenDuckDB opens (or creates) the DuckDB file at path.
func OpenDuckDB(path string) (*DuckDBLoader, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb (%s): %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping duckdb (%s): %w", path, err)
	}
	return &DuckDBLoader{DB: db, owned: true}, nil
}

func (l *DuckDBLoader) Load(ctx context.Context, table, csvPath string) (int64, error) {
	quoted := util.QuoteIdentifier(table)
	createSQL := fmt.Sprintf(`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv(%s, header=true, all_varchar=true);`,
		quoted, util.SQLStringLiteral(csvPath))
	if _, err := l.DB.ExecContext(ctx, createSQL); err != nil {
		return 0, fmt.Errorf("create table %s: %w", table, err)
	}
	var rows int64
	if err := l.DB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s;", quoted)).Scan(&rows); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return rows, nil
}

// Close closes the database only if OpenDuckDB opened it.
func (l *DuckDBLoader) Close() error {
	if l.owned {
		return l.DB.Close()
	}
	return nil
}
