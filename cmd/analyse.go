package cmd

import (
	"fmt"

	"github.com/brensch/nomenclator/internal/analyser"

	"github.com/spf13/cobra"
)

// analyseCmd checks the generated tables against each other.
var analyseCmd = &cobra.Command{
	Use:   "analyse",
	Short: "Check that prescription codes resolve against the catalog CSVs",
	Long: `Uses DuckDB to join the prescription tables in the output directory with
the catalogs they reference and reports codes that no catalog defines.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger().With("component", "analyser")
		results, err := analyser.Analyse(cmd.Context(), getDB(), getConfig().OutputDir, analyser.References, logger)
		analyser.Print(cmd.OutOrStdout(), results)
		if err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}
		return nil
	},
}
