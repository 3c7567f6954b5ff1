package cmd

import (
	"fmt"

	"github.com/brensch/nomenclator/internal/orchestrator"

	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert an already extracted dump in the work directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := orchestrator.RunWorkflow(cmd.Context(), getConfig(), getDB(), nil, getLogger(),
			orchestrator.WorkflowOptions{SkipFetch: true})
		if report != nil {
			fmt.Fprint(cmd.OutOrStdout(), report.Render())
		}
		if err != nil {
			return fmt.Errorf("convert failed: %w", err)
		}
		return nil
	},
}
