package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"time"

	"github.com/matchops/fixturecast/config"
	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewRunLogger builds the shared scheduler logger. File output rotates via
// lumberjack; "both" writes to stdout and the rotated file.
func NewRunLogger(cfg config.LoggingConfig) *log.Logger {
	var writers []io.Writer
	switch cfg.Output {
	case "stdout":
		writers = append(writers, os.Stdout)
	case "file":
		writers = append(writers, newRotatingWriter(cfg))
	default:
		writers = append(writers, os.Stdout, newRotatingWriter(cfg))
	}
	return log.New(io.MultiWriter(writers...), "[scheduler] ", log.LstdFlags|log.LUTC)
}

func newRotatingWriter(cfg config.LoggingConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

type runFunc func(ctx context.Context) (*RunSummary, error)

// Runner owns the cron schedule for all four units. Every unit guards itself
// with a lock row, so overlapping triggers degrade to skips rather than races.
type Runner struct {
	cron   *cron.Cron
	cfg    config.SchedulerConfig
	logger *log.Logger

	convergence *ConvergenceScheduler
	reconciler  *Reconciler
	verifier    *Verifier
	gapDetector *GapDetector
}

func NewRunner(
	cfg config.SchedulerConfig,
	convergence *ConvergenceScheduler,
	reconciler *Reconciler,
	verifier *Verifier,
	gapDetector *GapDetector,
	logger *log.Logger,
) *Runner {
	return &Runner{
		cron:        cron.New(cron.WithLocation(time.UTC)),
		cfg:         cfg,
		logger:      logger,
		convergence: convergence,
		reconciler:  reconciler,
		verifier:    verifier,
		gapDetector: gapDetector,
	}
}

// Start registers all units and starts the cron loop
func (r *Runner) Start() error {
	units := []struct {
		name     string
		schedule string
		run      runFunc
	}{
		{"convergence", r.cfg.ConvergenceSchedule, r.convergence.RunOnce},
		{"reconciler", r.cfg.ReconcilerSchedule, r.reconciler.RunOnce},
		{"verifier", r.cfg.VerifierSchedule, r.verifier.RunOnce},
		{"gap_detector", r.cfg.GapDetectorSchedule, r.gapDetector.RunOnce},
	}

	for _, unit := range units {
		unit := unit
		if _, err := r.cron.AddFunc(unit.schedule, func() {
			r.runUnit(unit.name, unit.run)
		}); err != nil {
			return err
		}
	}

	r.cron.Start()
	r.logger.Printf("runner: started convergence=%q reconciler=%q verifier=%q gap_detector=%q",
		r.cfg.ConvergenceSchedule, r.cfg.ReconcilerSchedule, r.cfg.VerifierSchedule, r.cfg.GapDetectorSchedule)
	return nil
}

// Stop halts the cron loop; the returned context is done once in-flight jobs
// finish
func (r *Runner) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Runner) runUnit(name string, run runFunc) {
	// A run never outlives its lock TTL
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.LockTTL)
	defer cancel()

	summary, err := run(ctx)
	if err != nil {
		r.logger.Printf("runner: %s run failed: %v", name, err)
		return
	}
	r.logger.Printf("runner: %s done created=%d updated=%d skipped=%d cancelled=%d errors=%d alerts=%d duration=%s",
		name, summary.Created, summary.Updated, summary.Skipped, summary.Cancelled,
		summary.Errors, summary.Alerts, summary.FinishedAt.Sub(summary.StartedAt))
}
