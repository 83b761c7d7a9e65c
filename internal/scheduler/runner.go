package scheduler

import (
	"context"
	"fmt"
	"time"

	"binance-signal-trader/internal/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger sends cron's own logging through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Runner schedules the scan and the sweep. Overlapping runs of the same job
// are skipped; a run still going when the next tick fires finishes first.
type Runner struct {
	logger  *zap.Logger
	cfg     config.Scheduler
	scanner *Scanner
	sweeper *Sweeper
	cron    *cron.Cron
}

// NewRunner creates a runner. A nil scanner disables the scan job.
func NewRunner(logger *zap.Logger, cfg config.Scheduler, scanner *Scanner, sweeper *Sweeper) *Runner {
	l := cronLogger{logger: logger.Named("cron").Sugar()}
	return &Runner{
		logger:  logger.Named("runner"),
		cfg:     cfg,
		scanner: scanner,
		sweeper: sweeper,
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
	}
}

// Start registers the jobs and starts the cron scheduler.
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.cfg.SweepCron, r.job(ctx, "sweep", func(ctx context.Context) error {
		_, err := r.sweeper.SweepLifecycle(ctx)
		return err
	})); err != nil {
		return fmt.Errorf("failed to schedule sweep %q: %w", r.cfg.SweepCron, err)
	}

	if r.scanner != nil && r.cfg.ScanCron != "" {
		if _, err := r.cron.AddFunc(r.cfg.ScanCron, r.job(ctx, "scan", func(ctx context.Context) error {
			_, err := r.scanner.EvaluateCandidates(ctx)
			return err
		})); err != nil {
			return fmt.Errorf("failed to schedule scan %q: %w", r.cfg.ScanCron, err)
		}
	}

	r.cron.Start()
	r.logger.Info("Scheduler started",
		zap.String("sweep_cron", r.cfg.SweepCron),
		zap.String("scan_cron", r.cfg.ScanCron),
		zap.Int("workers", r.cfg.Workers),
	)
	return nil
}

// Stop stops scheduling and waits for running jobs to return.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("Scheduler stopped")
}

func (r *Runner) job(parent context.Context, name string, fn func(context.Context) error) func() {
	return func() {
		if parent.Err() != nil {
			return
		}
		ctx := parent
		if r.cfg.RunTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(parent, r.cfg.RunTimeout)
			defer cancel()
		}

		start := time.Now()
		if err := fn(ctx); err != nil {
			r.logger.Error("Scheduled run failed", zap.String("job", name), zap.Error(err))
			return
		}
		r.logger.Debug("Scheduled run done", zap.String("job", name), zap.Duration("took", time.Since(start)))
	}
}
