package cmd

import (
	"fmt"

	"github.com/brensch/nomenclator/internal/inspector"

	"github.com/spf13/cobra"
)

var inspectVerbose bool

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect columns and row counts of the generated CSV files using DuckDB",
	Long:  `Reads every *.csv in the output directory through DuckDB and shows its column and row counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger().With("component", "inspector")
		cfg := getConfig()

		summaries, err := inspector.InspectCSV(cmd.Context(), getDB(), cfg.OutputDir, logger)
		inspector.Print(cmd.OutOrStdout(), summaries, inspectVerbose)
		if err != nil {
			return fmt.Errorf("inspection failed: %w", err)
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().BoolVarP(&inspectVerbose, "verbose", "v", false, "List column names")
}
