package retention

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Runner is what the scheduler triggers.
type Runner interface {
	Run(ctx context.Context) Report
}

// Scheduler runs sweeps on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *slog.Logger
	ctx    context.Context
}

// NewScheduler registers runner on spec (standard five-field cron or a
// descriptor such as "@daily"). Overlapping runs are skipped.
func NewScheduler(ctx context.Context, spec string, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	s := &Scheduler{cron: c, runner: runner, logger: logger, ctx: ctx}
	if _, err := c.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("schedule retention sweep %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	s.logger.InfoContext(s.ctx, "starting scheduled retention sweep")
	report := s.runner.Run(s.ctx)
	if len(report.Errors) > 0 {
		s.logger.ErrorContext(s.ctx, "scheduled retention sweep had failures",
			"errors", report.Errors,
		)
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and returns a context done when a running sweep
// has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
