package cmd

import (
	"fmt"
	"strings"

	"github.com/brensch/nomenclator/internal/db"

	"github.com/spf13/cobra"
)

var stateLimit int
var stateFilterEvent string
var stateRunID string

// stateCmd shows the event log.
var stateCmd = &cobra.Command{
	Use:   "state [stage]",
	Short: "View the run event log",
	Long: `Queries the DuckDB event log and displays recent events, newest first.
Pass a stage (run, fetch, catalog, prescription, export, load) to filter by
stage, and use flags to filter by event or run and to limit the output.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		filter := db.EventFilter{RunID: stateRunID, Event: stateFilterEvent, Limit: stateLimit}
		if len(args) > 0 {
			stage := strings.ToLower(args[0])
			switch stage {
			case db.StageRun, db.StageFetch, db.StageCatalog, db.StagePrescription, db.StageExport, db.StageLoad:
				filter.Stage = stage
			default:
				return fmt.Errorf("invalid stage filter: %s", args[0])
			}
		}

		logger.Debug("Querying database event log", "stage", filter.Stage, "event", filter.Event, "limit", filter.Limit)
		if err := db.DisplayRunHistory(cmd.Context(), getDB(), cmd.OutOrStdout(), filter); err != nil {
			logger.Error("Failed to display state history", "error", err)
			return err
		}

		if err := db.DisplayLastRun(cmd.Context(), getDB(), cmd.OutOrStdout(), logger); err != nil {
			logger.Error("Failed to display last run", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event type (e.g., parse_end, error, skip)")
	stateCmd.Flags().StringVar(&stateRunID, "run", "", "Only show events of this run id")
}
