package queue

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/ignite/gads-reporter/internal/pkg/distlock"
	"github.com/ignite/gads-reporter/internal/pkg/logger"
	"github.com/ignite/gads-reporter/internal/reporter"
)

// staleProcessingAge is how long a job may sit in processing before we
// assume the worker holding it crashed.
const staleProcessingAge = 10 * time.Minute

// Scheduler drives due jobs through their provider's Process callback.
// One scheduler drains at a time (distributed lock), and each job is
// processed by exactly one worker per tick, matching the at-most-once-
// concurrent-per-job contract providers assume.
type Scheduler struct {
	store        *Store
	registry     *reporter.Registry
	trigger      *RedisTrigger
	lock         distlock.DistLock
	pollInterval time.Duration
	batchSize    int

	processed int64
	failed    int64
}

// SchedulerConfig holds scheduler tuning.
type SchedulerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// NewScheduler creates a scheduler. trigger and lock may be nil (tests,
// single-process deployments); a nil trigger falls back to plain sleeps.
func NewScheduler(store *Store, registry *reporter.Registry, trigger *RedisTrigger, lock distlock.DistLock, cfg SchedulerConfig) *Scheduler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	return &Scheduler{
		store:        store,
		registry:     registry,
		trigger:      trigger,
		lock:         lock,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
	}
}

// Run blocks until ctx is cancelled, draining due jobs once per poll
// interval or sooner when kicked.
func (s *Scheduler) Run(ctx context.Context) {
	logger.Info("queue: scheduler started",
		"poll_interval", s.pollInterval.String(), "batch_size", s.batchSize)

	for {
		if ctx.Err() != nil {
			logger.Info("queue: scheduler stopped",
				"processed", atomic.LoadInt64(&s.processed),
				"failed", atomic.LoadInt64(&s.failed))
			return
		}

		s.RunOnce(ctx)

		if s.trigger != nil {
			if _, err := s.trigger.Wait(ctx, s.pollInterval); err != nil {
				logger.Warn("queue: wake wait failed, falling back to sleep", "error", err)
				sleepCtx(ctx, s.pollInterval)
			}
		} else {
			sleepCtx(ctx, s.pollInterval)
		}
	}
}

// RunOnce drains everything currently due, claiming batches until the queue
// comes up empty.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx)
		if err != nil {
			logger.Warn("queue: lock acquire failed", "error", err)
			return
		}
		if !acquired {
			return // another worker is draining
		}
		defer s.lock.Release(ctx)
	}

	if n, err := s.store.ReleaseStuck(ctx, staleProcessingAge); err != nil {
		logger.Warn("queue: stuck release failed", "error", err)
	} else if n > 0 {
		logger.Warn("queue: requeued stuck jobs", "count", n)
	}

	for {
		jobs, err := s.store.ClaimDue(ctx, s.batchSize)
		if err != nil {
			logger.Error("queue: claim failed", "error", err)
			return
		}
		if len(jobs) == 0 {
			return
		}

		for _, job := range jobs {
			s.processJob(ctx, job)
		}
	}
}

func (s *Scheduler) processJob(ctx context.Context, job Job) {
	provider, ok := s.registry.Get(job.Provider)
	if !ok {
		// Unknown provider: likely a job from a since-removed integration.
		// Keep it failed rather than deleting data.
		logger.Error("queue: no provider registered", "provider", job.Provider, "job_id", job.ID)
		if err := s.store.MarkFailed(ctx, job, "no provider registered: "+job.Provider); err != nil {
			logger.Error("queue: mark failed errored", "job_id", job.ID, "error", err)
		}
		return
	}

	var payload reporter.Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		logger.Error("queue: payload unmarshal failed", "job_id", job.ID, "error", err)
		if err := s.store.MarkFailed(ctx, job, "malformed payload: "+err.Error()); err != nil {
			logger.Error("queue: mark failed errored", "job_id", job.ID, "error", err)
		}
		return
	}

	if provider.Process(ctx, payload) {
		atomic.AddInt64(&s.processed, 1)
		if err := s.store.MarkCompleted(ctx, job.ID); err != nil {
			logger.Error("queue: mark completed errored", "job_id", job.ID, "error", err)
		}
		return
	}

	atomic.AddInt64(&s.failed, 1)
	if err := s.store.MarkFailed(ctx, job, "delivery failed"); err != nil {
		logger.Error("queue: mark failed errored", "job_id", job.ID, "error", err)
	}
}

// Stats returns lifetime processing counters.
func (s *Scheduler) Stats() map[string]int64 {
	return map[string]int64{
		"processed": atomic.LoadInt64(&s.processed),
		"failed":    atomic.LoadInt64(&s.failed),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
