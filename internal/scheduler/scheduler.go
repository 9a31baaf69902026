// Package scheduler runs the agent's periodic maintenance tasks, such as
// purging expired slot holds, on a cron schedule.
//
// Appointment reminders are not scheduled here; they are durable jobs in the
// store so they survive restarts.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based task scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates a scheduler using the standard 5-field cron syntax plus
// descriptors such as "@every 5m". Panicking tasks are recovered and logged,
// and a task still running at its next tick is skipped.
func NewScheduler() *Scheduler {
	logger := slogLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	return &Scheduler{cron: c}
}

// AddJob schedules task under expr. name only labels log lines.
func (s *Scheduler) AddJob(expr, name string, task func()) error {
	id, err := s.cron.AddFunc(expr, func() {
		start := time.Now()
		task()
		slog.Debug("Scheduler: task finished", "task", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", expr, name, err)
	}
	slog.Info("Scheduler.AddJob: task scheduled", "task", name, "schedule", expr, "entry_id", id)
	return nil
}

// Every schedules task at a fixed interval.
func (s *Scheduler) Every(interval time.Duration, name string, task func()) error {
	if interval <= 0 {
		return fmt.Errorf("invalid interval %v for %s", interval, name)
	}
	return s.AddJob("@every "+interval.String(), name, task)
}

// Len reports the number of scheduled tasks.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Run starts the scheduler and blocks until ctx is cancelled, then waits for
// running tasks to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()
	slog.Info("Scheduler.Run: stopping")
	<-s.cron.Stop().Done()
}

// slogLogger routes cron's internal logging through slog.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
