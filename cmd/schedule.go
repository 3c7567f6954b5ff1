package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/brensch/nomenclator/internal/config"
	"github.com/brensch/nomenclator/internal/orchestrator"
	"github.com/brensch/nomenclator/internal/scheduler"
	"github.com/brensch/nomenclator/internal/server"
	"github.com/brensch/nomenclator/internal/util"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline now and then every day at the configured times",
	Long: `Runs the full pipeline immediately and then at each time of day in
--times (HH:MM, separated by ';'). Every scheduled run downloads a fresh dump.
Unless --metrics-addr is empty, Prometheus metrics are served on /metrics and
the scheduler state on /healthz. Stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()
		client := util.DefaultHTTPClient(cfg.HTTPTimeout)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		pipeline := func(ctx context.Context) error {
			_, err := orchestrator.RunWorkflow(ctx, cfg, getDB(), client, logger,
				orchestrator.WorkflowOptions{Refresh: true})
			return err
		}
		sched := scheduler.New(pipeline, cfg.Schedule, logger)

		var srv *server.Server
		if cfg.MetricsAddr != "" {
			srv = server.New(cfg.MetricsAddr, sched.Status, logger)
			srv.Start()
		}

		if err := sched.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		logger.Info("Shutting down scheduler...")
		sched.Stop()

		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	d := config.Default()
	scheduleCmd.Flags().String("times", d.Schedule, "Times of day to run, separated by ';'")
	scheduleCmd.Flags().String("metrics-addr", d.MetricsAddr, "Address for /metrics and /healthz (empty disables)")
	if err := v.BindPFlag("schedule", scheduleCmd.Flags().Lookup("times")); err != nil {
		panic(err)
	}
	if err := v.BindPFlag("metrics_addr", scheduleCmd.Flags().Lookup("metrics-addr")); err != nil {
		panic(err)
	}
}
