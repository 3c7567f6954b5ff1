package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/brensch/nomenclator/internal/config"
	"github.com/brensch/nomenclator/internal/db"
	"github.com/brensch/nomenclator/internal/downloader"
)

// WorkflowOptions tunes RunWorkflow.
type WorkflowOptions struct {
	// Refresh wipes the work directory so the dump is downloaded again.
	Refresh bool
	// SkipFetch converts whatever is already in the work directory.
	SkipFetch bool
	// Observer, if set, sees every job next to the event log.
	Observer Observer
}

// RunWorkflow fetches the dump, converts it and records every step in the
// event log under a new run id. dbConn may be nil, in which case nothing is
// recorded. The report is returned even when the run fails so the caller can
// print it; the error is the fetch error or Report.Err.
func RunWorkflow(ctx context.Context, cfg config.Config, dbConn *sql.DB, client *http.Client, logger *slog.Logger, opts WorkflowOptions) (*Report, error) {
	runLog := db.NewRunLog(dbConn, logger)
	logger = logger.With(slog.String("run_id", runLog.RunID))
	start := time.Now()
	runLog.Log(ctx, "run", db.StageRun, db.EventRunStart, cfg.OutputDir, "", nil)

	report, err := runWorkflow(ctx, cfg, runLog, client, logger, opts)

	d := time.Since(start)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	// The run end is recorded even when ctx was cancelled.
	runLog.Log(context.WithoutCancel(ctx), "run", db.StageRun, db.EventRunEnd, cfg.OutputDir, msg, &d)
	return report, err
}

func runWorkflow(ctx context.Context, cfg config.Config, runLog *db.RunLog, client *http.Client, logger *slog.Logger, opts WorkflowOptions) (*Report, error) {
	if opts.Refresh {
		logger.Info("Refresh requested, removing work directory.", slog.String("dir", cfg.WorkDir))
		if err := downloader.Clean(cfg.WorkDir); err != nil {
			return nil, err
		}
	}

	if !opts.SkipFetch {
		runLog.Log(ctx, cfg.DumpURL, db.StageFetch, db.EventFetchStart, cfg.WorkDir, "", nil)
		res, err := downloader.Fetch(ctx, client, cfg, logger.With("component", "downloader"))
		if err != nil {
			runLog.Log(ctx, cfg.DumpURL, db.StageFetch, db.EventError, cfg.WorkDir, err.Error(), nil)
			return nil, fmt.Errorf("fetch dump: %w", err)
		}
		msg := fmt.Sprintf("%d entries, %d bytes", res.Entries, res.Bytes)
		if res.Reused {
			msg = "reused existing work directory"
		}
		runLog.Log(ctx, cfg.DumpURL, db.StageFetch, db.EventFetchEnd, res.Dir, msg, &res.Duration)
	}

	o := New(cfg, logger)
	o.Observer = &runLogObserver{ctx: ctx, log: runLog}
	if opts.Observer != nil {
		o.Observer = Observers{o.Observer, opts.Observer}
	}
	report, err := o.Run(ctx, cfg.WorkDir, cfg.OutputDir)
	if err != nil {
		return nil, err
	}
	return report, report.Err()
}

// runLogObserver records job transitions in the event log.
type runLogObserver struct {
	ctx context.Context
	log *db.RunLog
}

func stageOf(name string) string {
	if name == PrescriptionJobName {
		return db.StagePrescription
	}
	return db.StageCatalog
}

func (r *runLogObserver) JobStarted(name, sourcePath string) {
	r.log.Log(r.ctx, filepath.Base(sourcePath), stageOf(name), db.EventParseStart, "", "", nil)
}

func (r *runLogObserver) JobFinished(res JobResult) {
	file := filepath.Base(res.SourcePath)
	switch res.Status {
	case Succeeded:
		r.log.Log(r.ctx, file, stageOf(res.Name), db.EventParseEnd, res.TargetPath, "", &res.Duration)
	case Skipped:
		r.log.Log(r.ctx, file, stageOf(res.Name), db.EventSkip, "", "source file missing", nil)
	case Failed:
		r.log.Log(r.ctx, file, stageOf(res.Name), db.EventError, "", res.Err.Error(), &res.Duration)
	}
}

// Observers fans job transitions out to several observers in order.
type Observers []Observer

func (obs Observers) JobStarted(name, sourcePath string) {
	for _, o := range obs {
		o.JobStarted(name, sourcePath)
	}
}

func (obs Observers) JobFinished(res JobResult) {
	for _, o := range obs {
		o.JobFinished(res)
	}
}
