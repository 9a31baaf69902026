package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// JobHandler does the work for one job kind. It gets the job's payload JSON;
// a returned error requeues the job with backoff.
type JobHandler func(ctx context.Context, payload string) error

const (
	// DefaultPollInterval is how often the runner claims due jobs.
	DefaultPollInterval = 10 * time.Second
	// DefaultJobTimeout bounds a single handler call.
	DefaultJobTimeout = 30 * time.Second

	baseBackoff = 30 * time.Second
	maxBackoff  = time.Hour
)

// RunnerOption configures a JobRunner.
type RunnerOption func(*JobRunner)

// WithJobTimeout bounds each handler call.
func WithJobTimeout(d time.Duration) RunnerOption {
	return func(r *JobRunner) { r.jobTimeout = d }
}

// WithClaimLimit caps how many jobs one poll claims.
func WithClaimLimit(n int) RunnerOption {
	return func(r *JobRunner) { r.claimLimit = n }
}

// JobRunner claims due jobs from a JobRepo and hands them to the handler
// registered for their kind. Reminders are its only kind today.
type JobRunner struct {
	repo JobRepo

	mu       sync.RWMutex
	handlers map[string]JobHandler

	pollInterval   time.Duration
	jobTimeout     time.Duration
	staleThreshold time.Duration
	claimLimit     int
	now            func() time.Time
}

// NewJobRunner creates a JobRunner. A non-positive pollInterval uses DefaultPollInterval.
func NewJobRunner(repo JobRepo, pollInterval time.Duration, opts ...RunnerOption) *JobRunner {
	r := &JobRunner{
		repo:           repo,
		handlers:       make(map[string]JobHandler),
		pollInterval:   pollInterval,
		jobTimeout:     DefaultJobTimeout,
		staleThreshold: 5 * time.Minute,
		claimLimit:     10,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.pollInterval <= 0 {
		r.pollInterval = DefaultPollInterval
	}
	if r.jobTimeout <= 0 {
		r.jobTimeout = DefaultJobTimeout
	}
	if r.claimLimit <= 0 {
		r.claimLimit = 10
	}
	return r
}

func (r *JobRunner) RegisterHandler(kind string, handler JobHandler) {
	r.mu.Lock()
	r.handlers[kind] = handler
	r.mu.Unlock()
	slog.Debug("JobRunner.RegisterHandler", "kind", kind)
}

func (r *JobRunner) handler(kind string) (JobHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// RecoverStaleJobs requeues jobs left running by a crashed process. Call it
// once before Run.
func (r *JobRunner) RecoverStaleJobs(ctx context.Context) error {
	n, err := r.repo.RequeueStaleRunningJobs(ctx, r.now().Add(-r.staleThreshold))
	if err != nil {
		return fmt.Errorf("failed to requeue stale jobs: %w", err)
	}
	if n > 0 {
		slog.Info("JobRunner.RecoverStaleJobs: requeued stale jobs", "count", n)
	}
	return nil
}

// Run polls immediately, so reminders that fell due while the process was
// down go out at startup, and then on every tick until ctx is cancelled.
func (r *JobRunner) Run(ctx context.Context) {
	slog.Info("JobRunner.Run: starting job runner", "pollInterval", r.pollInterval, "jobTimeout", r.jobTimeout)
	r.poll(ctx)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("JobRunner.Run: stopping")
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *JobRunner) poll(ctx context.Context) {
	jobs, err := r.repo.ClaimDueJobs(ctx, r.now(), r.claimLimit)
	if err != nil {
		slog.Error("JobRunner.poll: claim failed", "error", err)
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			// Claimed jobs left running are picked up by RecoverStaleJobs.
			return
		}
		r.execute(ctx, job)
	}
}

func (r *JobRunner) execute(ctx context.Context, job Job) {
	handler, ok := r.handler(job.Kind)
	if !ok {
		slog.Warn("JobRunner.execute: no handler for job kind", "kind", job.Kind, "id", job.ID)
		r.fail(ctx, job, fmt.Sprintf("no handler registered for kind: %s", job.Kind))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, r.jobTimeout)
	defer cancel()

	slog.Debug("JobRunner.execute: running job", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
	if err := handler(jobCtx, job.PayloadJSON); err != nil {
		slog.Error("JobRunner.execute: job failed", "id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", err)
		r.fail(ctx, job, err.Error())
		return
	}
	if err := r.repo.CompleteJob(ctx, job.ID); err != nil {
		slog.Error("JobRunner.execute: complete job error", "id", job.ID, "error", err)
		return
	}
	slog.Debug("JobRunner.execute: job completed", "id", job.ID, "kind", job.Kind)
}

func (r *JobRunner) fail(ctx context.Context, job Job, msg string) {
	next := r.now().Add(retryBackoff(job.Attempt))
	if err := r.repo.FailJob(ctx, job.ID, msg, next); err != nil {
		slog.Error("JobRunner.fail: fail job error", "id", job.ID, "error", err)
	}
}

// retryBackoff doubles from 30s per prior attempt, capped at an hour.
func retryBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := baseBackoff
	for i := 0; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
