package cmd

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/brensch/nomenclator/internal/db"
	"github.com/brensch/nomenclator/internal/loader"

	"github.com/spf13/cobra"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the generated CSV files into DuckDB or PostgreSQL tables",
	Long: `Creates one table per CSV file in the output directory, named after the
file and replacing any previous table. The target is --target (or load_target
in the config): empty for the event log database, duckdb://path for another
DuckDB file, or a postgres:// URL.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger().With("component", "loader")
		cfg := getConfig()
		ctx := cmd.Context()

		l, err := loader.Open(ctx, cfg.LoadTarget, getDB())
		if err != nil {
			return err
		}
		defer l.Close()

		runLog := db.NewRunLog(getDB(), logger)
		start := time.Now()
		loaded, err := loader.LoadDir(ctx, l, cfg.OutputDir, logger)
		d := time.Since(start)

		tables := make([]string, 0, len(loaded))
		for t := range loaded {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Fprintf(cmd.OutOrStdout(), "%-40s %d rows\n", t, loaded[t])
			runLog.Log(ctx, filepath.Join(cfg.OutputDir, t+".csv"), db.StageLoad, db.EventParseEnd, t, "", nil)
		}
		if err != nil {
			runLog.Log(ctx, cfg.OutputDir, db.StageLoad, db.EventError, "", err.Error(), &d)
			return fmt.Errorf("load failed: %w", err)
		}
		return nil
	},
}

func init() {
	loadCmd.Flags().String("target", "", "Load target: empty, duckdb://path or postgres://...")
	if err := v.BindPFlag("load_target", loadCmd.Flags().Lookup("target")); err != nil {
		panic(err)
	}
}
