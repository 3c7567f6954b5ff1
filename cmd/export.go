package cmd

import (
	"fmt"
	"log/slog"

	"github.com/brensch/nomenclator/internal/db"
	"github.com/brensch/nomenclator/internal/saver"

	"github.com/spf13/cobra"
)

var exportDir string

// exportCmd writes a Parquet copy of every generated CSV.
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the generated CSV files to Parquet",
	Long: `Writes a SNAPPY-compressed Parquet file for every *.csv in the output
directory. Columns are stored as text. Files go to --parquet-dir, which
defaults to the output directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger().With("component", "saver")
		cfg := getConfig()
		ctx := cmd.Context()
		dir := exportDir
		if dir == "" {
			dir = cfg.OutputDir
		}

		runLog := db.NewRunLog(getDB(), logger)
		results, err := saver.ExportDir(ctx, cfg.OutputDir, dir, cfg.Concurrency, logger)
		for _, r := range results {
			if r.Err != nil {
				runLog.Log(ctx, r.CSVPath, db.StageExport, db.EventError, "", r.Err.Error(), nil)
				continue
			}
			runLog.Log(ctx, r.CSVPath, db.StageExport, db.EventParseEnd, r.ParquetPath, "", nil)
			fmt.Fprintf(cmd.OutOrStdout(), "%-60s %d rows\n", r.ParquetPath, r.Rows)
		}
		if err != nil {
			logger.Error("Export process completed with errors", slog.Int("files", len(results)))
			return fmt.Errorf("export failed: %w", err)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDir, "parquet-dir", "", "Directory for Parquet files (defaults to the output directory)")
}
