package saver

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"golang.org/x/sync/semaphore"

	"github.com/brensch/nomenclator/internal/util"
)

// writerGoroutines is the parallelism of each parquet-go writer.
const writerGoroutines = 4

// parquetSchema maps CSV headers to optional UTF8 columns. Names are cleaned
// of characters parquet-go treats as separators.
func parquetSchema(header []string) []string {
	meta := make([]string, len(header))
	for i, h := range header {
		clean := strings.NewReplacer(" ", "_", ".", "_", ";", "_", ",", "_", "=", "_").Replace(h)
		if clean == "" {
			clean = fmt.Sprintf("column_%d", i)
		}
		meta[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", clean)
	}
	return meta
}

// ExportCSVToParquet writes the CSV at csvPath as a SNAPPY-compressed
// Parquet file with every column stored as text. It returns the number of
// rows written. A failed export removes the partial Parquet file.
func ExportCSVToParquet(csvPath, parquetPath string) (rows int64, err error) {
	in, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open csv: %w", err)
	}
	defer in.Close()

	r := csv.NewReader(in)
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header %s: %w", filepath.Base(csvPath), err)
	}

	fw, err := local.NewLocalFileWriter(parquetPath)
	if err != nil {
		return 0, fmt.Errorf("create parquet file %s: %w", parquetPath, err)
	}
	defer func() {
		if err != nil {
			os.Remove(parquetPath)
		}
	}()

	pw, err := writer.NewCSVWriter(parquetSchema(header), fw, writerGoroutines)
	if err != nil {
		fw.Close()
		return 0, fmt.Errorf("init writer for %s: %w", parquetPath, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for {
		rec, readErr := r.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			err = fmt.Errorf("read csv %s: %w", filepath.Base(csvPath), readErr)
			break
		}
		values := make([]*string, len(rec))
		for j := range rec {
			v := rec[j]
			values[j] = &v
		}
		if writeErr := pw.WriteString(values); writeErr != nil {
			err = fmt.Errorf("write row %d to %s: %w", rows+1, parquetPath, writeErr)
			break
		}
		rows++
	}

	if stopErr := pw.WriteStop(); stopErr != nil {
		err = errors.Join(err, fmt.Errorf("stop writer %s: %w", parquetPath, stopErr))
	}
	if closeErr := fw.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close file %s: %w", parquetPath, closeErr))
	}
	if err != nil {
		return 0, err
	}
	return rows, nil
}

// ExportResult is the outcome of one file in ExportDir.
type ExportResult struct {
	CSVPath     string
	ParquetPath string
	Rows        int64
	Err         error
}

// ExportDir exports every *.csv in csvDir to a .parquet file of the same
// name in outDir, at most concurrency files at a time. Failures are joined
// in the returned error; the other files are still exported.
func ExportDir(ctx context.Context, csvDir, outDir string, concurrency int, logger *slog.Logger) ([]ExportResult, error) {
	logger.Info("--- Starting CSV to Parquet Export ---", slog.String("csv_dir", csvDir), slog.String("output_dir", outDir))

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory '%s': %w", outDir, err)
	}
	files, err := util.ListFiles(csvDir, ".csv")
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		logger.Info("No *.csv files found to export.", "dir", csvDir)
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]ExportResult, len(files))
	sem := semaphore.NewWeighted(int64(concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var exportErrors []error

	for i, csvPath := range files {
		results[i] = ExportResult{
			CSVPath:     csvPath,
			ParquetPath: filepath.Join(outDir, util.BaseName(csvPath)+".parquet"),
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			logger.Warn("Context cancelled before exporting all files.", "error", err)
			results[i].Err = err
			mu.Lock()
			exportErrors = append(exportErrors, err)
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(res *ExportResult) {
			defer wg.Done()
			defer sem.Release(1)
			l := logger.With(slog.String("csv_file", filepath.Base(res.CSVPath)))
			l.Debug("Exporting CSV to Parquet.")

			res.Rows, res.Err = ExportCSVToParquet(res.CSVPath, res.ParquetPath)
			if res.Err != nil {
				l.Error("Failed to export CSV.", "error", res.Err)
				mu.Lock()
				exportErrors = append(exportErrors, fmt.Errorf("export %s: %w", filepath.Base(res.CSVPath), res.Err))
				mu.Unlock()
				return
			}
			l.Info("Exported CSV to Parquet.", slog.String("parquet_file", res.ParquetPath), slog.Int64("rows", res.Rows))
		}(&results[i])
	}
	wg.Wait()

	finalErr := errors.Join(exportErrors...)
	if finalErr != nil {
		logger.Error("Export completed with errors.", "error", finalErr)
		return results, finalErr
	}
	logger.Info("--- CSV to Parquet Export Finished Successfully ---", slog.Int("files", len(files)))
	return results, nil
}
