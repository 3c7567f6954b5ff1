package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brensch/nomenclator/internal/util"
)

// PostgresLoader replaces a PostgreSQL table with the contents of a CSV
// using COPY. Every column is TEXT.
type PostgresLoader struct {
	Pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and checks the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresLoader, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresLoader{Pool: pool}, nil
}

func (l *PostgresLoader) Load(ctx context.Context, table, csvPath string) (rows int64, err error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}

	tx, err := l.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback(ctx))
		}
	}()

	quoted := util.QuoteIdentifier(table)
	if _, err = tx.Exec(ctx, "DROP TABLE IF EXISTS "+quoted); err != nil {
		return 0, fmt.Errorf("drop table %s: %w", table, err)
	}
	if _, err = tx.Exec(ctx, createTableSQL(quoted, header)); err != nil {
		return 0, fmt.Errorf("create table %s: %w", table, err)
	}
	rows, err = tx.CopyFrom(ctx, pgx.Identifier{table}, header, &csvCopySource{r: r})
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	return rows, nil
}

func (l *PostgresLoader) Close() error {
	l.Pool.Close()
	return nil
}

func createTableSQL(quotedTable string, header []string) string {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = util.QuoteIdentifier(h) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quotedTable, strings.Join(cols, ", "))
}

// csvCopySource streams CSV records into pgx.CopyFrom.
type csvCopySource struct {
	r      *csv.Reader
	record []string
	err    error
}

func (s *csvCopySource) Next() bool {
	if s.err != nil {
		return false
	}
	s.record, s.err = s.r.Read()
	if errors.Is(s.err, io.EOF) {
		s.err = nil
		return false
	}
	return s.err == nil
}

func (s *csvCopySource) Values() ([]any, error) {
	values := make([]any, len(s.record))
	for i, v := range s.record {
		values[i] = v
	}
	return values, nil
}

func (s *csvCopySource) Err() error { return s.err }
