package workflow

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Runner is satisfied by Workflow.
type Runner interface {
	Run(ctx context.Context) (RunResult, error)
}

// SchedulerConfig controls when runs start and how failed runs are retried.
type SchedulerConfig struct {
	Spec       string
	Retries    int
	RetryDelay time.Duration
}

// Scheduler starts a run on every tick of a cron schedule. A tick arriving
// while a run is still going is skipped. Missed ticks are never replayed.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	cfg    SchedulerConfig
	logger *zap.Logger

	baseCtx context.Context //nolint:containedctx // set by Start for the cron jobs
	cancel  context.CancelFunc
}

func NewScheduler(runner Runner, cfg SchedulerConfig, logger *zap.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(cfg.Spec)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q", cfg.Spec)
	}
	if cfg.Retries < 0 {
		return nil, errors.Errorf("negative retries %d", cfg.Retries)
	}

	cl := cronLogger{sugar: logger.Sugar()}
	s := &Scheduler{
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		runner: runner,
		cfg:    cfg,
		logger: logger,
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() {
		if err := s.RunOnce(s.baseCtx); err != nil {
			s.logger.Error("scheduled run failed", zap.Error(err))
		}
	}))

	return s, nil
}

// Start runs the scheduler in the background until ctx is done or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info("scheduler started", zap.String("schedule", s.cfg.Spec), zap.Time("next", s.Next()))
}

// Stop stops scheduling and cancels the run in progress. The returned
// context is done once that run has returned.
func (s *Scheduler) Stop() context.Context {
	if s.cancel != nil {
		s.cancel()
	}
	done := s.cron.Stop()
	s.logger.Info("scheduler stopped")

	return done
}

// Next returns the time of the next tick, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}

	return entries[0].Next
}

// RunOnce starts a run and retries it from scratch up to Retries times. A run
// refused because another one holds the lock is not retried.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var err error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying run", zap.Int("attempt", attempt), zap.Duration("delay", s.cfg.RetryDelay))
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry cancelled")
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		var res RunResult
		res, err = s.runner.Run(ctx)
		if err == nil {
			s.logger.Info("scheduled run succeeded", zap.String("run_id", res.RunID), zap.Int("attempt", attempt))

			return nil
		}
		if errors.Is(err, ErrRunInProgress) || ctx.Err() != nil {
			return err
		}
	}

	return errors.WithMessagef(err, "run failed after %d attempts", s.cfg.Retries+1)
}

// cronLogger adapts zap to cron.Logger. Cron's routine messages go to debug.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
