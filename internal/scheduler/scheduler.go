// Package scheduler triggers periodic reloads of the event collection.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "usercal/internal/log"
)

// Job is run on every tick with the scheduler's context.
type Job func(ctx context.Context)

// Scheduler runs a Job on a cron schedule. A tick that fires while the
// previous run is still going is skipped.
type Scheduler struct {
	spec string
	cron *cron.Cron
}

// New parses spec (standard 5-field cron or a descriptor such as
// "@every 5m") and registers job.
func New(ctx context.Context, spec string, job Job) (*Scheduler, error) {
	c := cron.New(
		cron.WithLogger(cronLogger{}),
		cron.WithChain(
			cron.Recover(cronLogger{}),
			cron.SkipIfStillRunning(cronLogger{}),
		),
	)
	_, err := c.AddFunc(spec, func() {
		appLog.Debug("scheduled refresh", "spec", spec)
		job(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", spec, err)
	}
	return &Scheduler{spec: spec, cron: c}, nil
}

// Start begins ticking in the background.
func (s *Scheduler) Start() {
	appLog.Info("scheduler started", "spec", s.spec)
	s.cron.Start()
}

// Stop prevents further ticks and waits for a running job to finish or ctx
// to end, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	appLog.Info("scheduler stopped")
}

// cronLogger routes cron's own messages into the application log. Cron's
// Info chatter (wake-ups, skipped ticks) goes to debug.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...interface{}) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...interface{}) {
	appLog.Error("cron: "+msg, err, kv...)
}
