package cmd

import (
	"context"
	"fmt"

	"github.com/brensch/nomenclator/internal/app"
	"github.com/brensch/nomenclator/internal/nomenclator"
	"github.com/brensch/nomenclator/internal/orchestrator"
	"github.com/brensch/nomenclator/internal/util"

	"github.com/spf13/cobra"
)

var refreshRun bool
var progressRun bool

// runCmd represents the combined download and convert command
var runCmd = &cobra.Command{
	Use:     "run",
	Aliases: []string{"csv"},
	Short:   "Download the dump and convert every catalog to CSV",
	Long: `Performs the complete pipeline:
1. Downloads and extracts the dump into the work directory, unless it is
   already populated.
2. Converts every catalog XML to CSV in parallel; missing files are skipped.
3. Splits Prescripcion.xml into the prescription CSV tables.
4. Prints a summary. The command fails if any catalog failed.
Use --refresh to discard the work directory and download again, and
--progress for a live view of the jobs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		client := util.DefaultHTTPClient(cfg.HTTPTimeout)
		opts := orchestrator.WorkflowOptions{Refresh: refreshRun}

		var report *orchestrator.Report
		var err error
		if progressRun {
			report, err = app.Run(cmd.Context(), cmd.OutOrStdout(), jobNames(),
				func(ctx context.Context, obs orchestrator.Observer) (*orchestrator.Report, error) {
					opts.Observer = obs
					return orchestrator.RunWorkflow(ctx, cfg, getDB(), client, logger, opts)
				})
		} else {
			report, err = orchestrator.RunWorkflow(cmd.Context(), cfg, getDB(), client, logger, opts)
			if report != nil {
				fmt.Fprint(cmd.OutOrStdout(), report.Render())
			}
		}
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		return nil
	},
}

// jobNames lists every job of a run in display order.
func jobNames() []string {
	var names []string
	for _, p := range nomenclator.Catalogs() {
		names = append(names, p.Name())
	}
	return append(names, orchestrator.PrescriptionJobName)
}

func init() {
	runCmd.Flags().BoolVar(&refreshRun, "refresh", false, "Remove the work directory and download the dump again")
	runCmd.Flags().BoolVar(&progressRun, "progress", false, "Show a live view of the jobs (needs a terminal)")
}
