// Package orchestrator runs every catalog parser over an extracted dump with
// bounded parallelism, then decomposes Prescripcion.xml. Failures are collected
// and reported at the end; one failing catalog never stops the others.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/brensch/nomenclator/internal/config"
	"github.com/brensch/nomenclator/internal/metrics"
	"github.com/brensch/nomenclator/internal/nomenclator"
)

// PrescriptionJobName labels the prescription step in reports and logs.
const PrescriptionJobName = "Prescription"

// JobStatus is the lifecycle of one job: Pending, Running, then one of the
// three final states.
type JobStatus int

const (
	Pending JobStatus = iota
	Running
	Skipped
	Succeeded
	Failed
)

func (s JobStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// Final reports whether s is a terminal state.
func (s JobStatus) Final() bool { return s >= Skipped }

// JobResult is the outcome of one catalog or of the prescription step.
type JobResult struct {
	Name       string
	SourcePath string
	TargetPath string
	Status     JobStatus
	Err        error
	Duration   time.Duration
}

// Observer is told when jobs start and finish. Calls may come from several
// goroutines at once.
type Observer interface {
	JobStarted(name, sourcePath string)
	JobFinished(res JobResult)
}

// DecomposeFunc writes the prescription tables for xmlPath into outDir.
type DecomposeFunc func(xmlPath, outDir string) (nomenclator.DecomposeStats, error)

// Orchestrator converts a work directory into an output directory.
type Orchestrator struct {
	Parsers []nomenclator.Parser
	// Concurrency bounds the catalog jobs running at once; zero means runtime.NumCPU().
	Concurrency int
	Decompose   DecomposeFunc
	Observer    Observer
	Logger      *slog.Logger
}

// New returns an orchestrator for the 13 catalogs and the prescription file.
func New(cfg config.Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		Parsers:     nomenclator.Catalogs(),
		Concurrency: cfg.Concurrency,
		Decompose:   nomenclator.DecomposePrescriptions,
		Logger:      logger.With("component", "orchestrator"),
	}
}

func (o *Orchestrator) workers() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return runtime.NumCPU()
}

// Run converts workDir into outputDir. The returned error covers only
// problems that prevent the run from starting; job failures are in the
// report, see Report.Err.
//
// ctx is consulted when admitting jobs. Jobs already running are not
// interrupted; jobs not yet admitted when ctx ends are reported as failed.
func (o *Orchestrator) Run(ctx context.Context, workDir, outputDir string) (*Report, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %s: %w", outputDir, err)
	}

	start := time.Now()
	report := &Report{Jobs: make([]JobResult, len(o.Parsers))}
	n := o.workers()
	logger.Info("Starting catalog conversion.", slog.Int("catalogs", len(o.Parsers)), slog.Int("workers", n))

	sem := semaphore.NewWeighted(int64(n))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for i, p := range o.Parsers {
		xmlPath := filepath.Join(workDir, p.SourceFile())
		csvPath := filepath.Join(outputDir, p.TargetFile())

		if err := sem.Acquire(ctx, 1); err != nil {
			res := JobResult{Name: p.Name(), SourcePath: xmlPath, TargetPath: csvPath, Status: Failed,
				Err: fmt.Errorf("%s: not started: %w", p.Name(), err)}
			mu.Lock()
			report.Jobs[i] = res
			mu.Unlock()
			o.finished(logger.With(slog.String("catalog", p.Name())), res)
			continue
		}

		wg.Add(1)
		go func(i int, p nomenclator.Parser) {
			defer wg.Done()
			defer sem.Release(1)
			res := o.runJob(logger, p.Name(), xmlPath, csvPath, func() error {
				return p.Parse(xmlPath, csvPath)
			})
			mu.Lock()
			report.Jobs[i] = res
			mu.Unlock()
		}(i, p)
	}
	wg.Wait()

	report.Prescription = o.runPrescription(ctx, logger, workDir, outputDir)
	report.Duration = time.Since(start)

	succeeded, failed, skipped := report.Counts()
	logger.Info("Conversion finished.",
		slog.Int("succeeded", succeeded), slog.Int("failed", failed), slog.Int("skipped", skipped),
		slog.String("prescription", report.Prescription.Status.String()),
		slog.Duration("duration", report.Duration.Round(time.Millisecond)))
	if report.Err() == nil {
		metrics.LastSuccessTimestamp.SetToCurrentTime()
	}
	return report, nil
}

func (o *Orchestrator) runPrescription(ctx context.Context, logger *slog.Logger, workDir, outputDir string) PrescriptionResult {
	xmlPath := filepath.Join(workDir, nomenclator.PrescriptionXMLFile)
	if err := ctx.Err(); err != nil {
		res := JobResult{Name: PrescriptionJobName, SourcePath: xmlPath, TargetPath: outputDir, Status: Failed,
			Err: fmt.Errorf("%s: not started: %w", PrescriptionJobName, err)}
		o.finished(logger.With(slog.String("catalog", PrescriptionJobName)), res)
		return PrescriptionResult{JobResult: res}
	}

	decompose := o.Decompose
	if decompose == nil {
		decompose = nomenclator.DecomposePrescriptions
	}
	var stats nomenclator.DecomposeStats
	res := o.runJob(logger, PrescriptionJobName, xmlPath, outputDir, func() error {
		var err error
		stats, err = decompose(xmlPath, outputDir)
		return err
	})
	return PrescriptionResult{JobResult: res, Stats: stats}
}

// runJob moves one job from Running to a final state. A missing source file
// means Skipped; a panic in work means Failed.
func (o *Orchestrator) runJob(logger *slog.Logger, name, xmlPath, target string, work func() error) (res JobResult) {
	l := logger.With(slog.String("catalog", name), slog.String("xml_file", xmlPath), slog.String("target", target))
	res = JobResult{Name: name, SourcePath: xmlPath, TargetPath: target, Status: Running}
	start := time.Now()

	if _, err := os.Stat(xmlPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			res.Status = Skipped
		} else {
			res.Status = Failed
			res.Err = fmt.Errorf("%s: %w", name, err)
		}
		res.Duration = time.Since(start)
		o.finished(l, res)
		return res
	}

	if o.Observer != nil {
		o.Observer.JobStarted(name, xmlPath)
	}
	metrics.JobsInFlight.Inc()
	l.Debug("Job started.")

	defer func() {
		if r := recover(); r != nil {
			res.Status = Failed
			res.Err = fmt.Errorf("%s: panic: %v", name, r)
		}
		metrics.JobsInFlight.Dec()
		res.Duration = time.Since(start)
		metrics.JobDuration.WithLabelValues(name).Observe(res.Duration.Seconds())
		o.finished(l, res)
	}()

	if err := work(); err != nil {
		res.Status = Failed
		res.Err = fmt.Errorf("%s: %w", name, err)
		return res
	}
	res.Status = Succeeded
	return res
}

func (o *Orchestrator) finished(l *slog.Logger, res JobResult) {
	metrics.JobsTotal.WithLabelValues(res.Name, res.Status.String()).Inc()
	switch res.Status {
	case Skipped:
		l.Warn("Source file missing, skipping.")
	case Failed:
		l.Error("Job failed.", "error", res.Err)
	default:
		l.Info("Job finished.", slog.Duration("duration", res.Duration.Round(time.Millisecond)))
	}
	if o.Observer != nil {
		o.Observer.JobFinished(res)
	}
}
