package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brensch/nomenclator/internal/config"
	"github.com/brensch/nomenclator/internal/db"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	v       = viper.New()

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	logCloser  io.Closer
	dbConn     *sql.DB
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nomenclator",
	Short: "Download the AEMPS Nomenclator dump and convert its XML catalogs to CSV.",
	Long: `nomenclator fetches the Spanish medicines prescription dump (CIMA Nomenclator),
converts each catalog XML file to a CSV and splits Prescripcion.xml into
relational CSV tables keyed by national code. Every run is recorded in a
DuckDB event log.

The primary command is 'run', which downloads and converts in one go. Other
commands fetch or convert separately, inspect and load the CSVs, export them
to Parquet, show the event log or keep the output fresh on a schedule.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Resolve configuration ---
		var err error
		appConfig, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// --- 2. Initialize Logger ---
		rootLogger, logCloser, err = appConfig.NewLogger()
		if err != nil {
			return err
		}
		slog.SetDefault(rootLogger)
		rootLogger.Debug("Configuration loaded", slog.Any("config", appConfig))

		// --- 3. Initialize DuckDB Connection & Schema ---
		if appConfig.DbPath != ":memory:" && appConfig.DbPath != "" {
			dbDir := filepath.Dir(appConfig.DbPath)
			if err := os.MkdirAll(dbDir, 0o755); err != nil {
				return fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
		rootLogger.Debug("Initializing DuckDB connection", "path", appConfig.DbPath)
		dbConn, err = sql.Open("duckdb", duckDBPath(appConfig.DbPath))
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize database schema: %w", err)
		}
		rootLogger.Debug("Database schema initialized successfully.")
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		closeResources()
		return nil
	},
}

// duckDBPath maps ":memory:" to the driver's in-memory DSN.
func duckDBPath(p string) string {
	if p == ":memory:" {
		return ""
	}
	return p
}

// closeResources releases what PersistentPreRunE opened. PersistentPostRunE
// does not run when RunE fails, so Execute calls it too.
func closeResources() {
	if dbConn != nil {
		if err := dbConn.Close(); err != nil {
			getLogger().Error("Failed to close DuckDB connection cleanly", "error", err)
		}
		dbConn = nil
	}
	if logCloser != nil {
		logCloser.Close()
		logCloser = nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(analyseCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(scheduleCmd)

	err := rootCmd.ExecuteContext(context.Background())
	closeResources()
	if err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	d := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	pf.StringP("work-dir", "w", d.WorkDir, "Directory the dump is extracted into")
	pf.StringP("output-dir", "o", d.OutputDir, "Directory for generated CSV files")
	pf.IntP("concurrency", "c", d.Concurrency, "Maximum catalogs converted at once")
	pf.String("dump-url", d.DumpURL, "URL of the prescription dump ZIP")
	pf.StringP("db-path", "d", d.DbPath, "Path to DuckDB event log file (:memory: for in-memory)")
	pf.String("log-format", d.LogFormat, "Log output format (text or json)")
	pf.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	pf.String("log-output", d.LogOutput, "Log output destination (stderr, stdout, or file path)")

	// Flag names use dashes, config keys underscores.
	for _, name := range []string{"work-dir", "output-dir", "concurrency", "dump-url", "db-path", "log-format", "log-level", "log-output"} {
		if err := v.BindPFlag(flagKey(name), pf.Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.Version = "0.1.0"
}

func flagKey(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Helper to get logger (could use context propagation instead)
func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

func getDB() *sql.DB {
	return dbConn
}

func getConfig() config.Config {
	return appConfig
}
