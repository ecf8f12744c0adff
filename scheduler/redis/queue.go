// Package redis implements a durable scheduler.JobScheduler as a Redis
// delayed queue.
//
// Jobs are members of a sorted set scored by their due time in Unix
// milliseconds; payloads live in a hash keyed by job id. Any number of
// processes may poll the same queue: a job is claimed by the process whose
// ZREM removes it, so each job is delivered at most once. A process that
// dies between the claim and the end of its handler loses the job; the
// coordinator's overdue sweep registers a fresh trigger for such schedules.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/getpup/migration-orchestrator/scheduler"
	"github.com/getpup/pupsourcing/es"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// Config configures the Redis delayed queue.
type Config struct {
	// KeyPrefix namespaces the queue keys (default: "migration-jobs").
	KeyPrefix string

	// PollInterval is how often Run looks for due jobs (default: 1s).
	PollInterval time.Duration

	// BatchSize bounds the number of jobs claimed per poll (default: 100).
	BatchSize int64

	// Concurrency bounds the number of handlers running at once (default: 10).
	Concurrency int

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Queue is a Redis-backed JobScheduler.
type Queue struct {
	rdb    goredis.UniversalClient
	config Config
}

var (
	_ scheduler.JobScheduler = (*Queue)(nil)
	_ scheduler.Runner       = (*Queue)(nil)
)

// New creates a new Queue with the given configuration.
func New(rdb goredis.UniversalClient, cfg Config) *Queue {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "migration-jobs"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Queue{
		rdb:    rdb,
		config: cfg,
	}
}

func (q *Queue) queueKey() string   { return q.config.KeyPrefix + ":due" }
func (q *Queue) payloadKey() string { return q.config.KeyPrefix + ":payloads" }

// ScheduleAt implements scheduler.JobScheduler.
func (q *Queue) ScheduleAt(ctx context.Context, at time.Time, payload string) (string, error) {
	jobID := uuid.New().String()

	_, err := q.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, q.payloadKey(), jobID, payload)
		pipe.ZAdd(ctx, q.queueKey(), goredis.Z{Score: float64(at.UnixMilli()), Member: jobID})
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to schedule job: %w", err)
	}

	if q.config.Logger != nil {
		q.config.Logger.Debug(ctx, "job scheduled", "jobID", jobID, "at", at)
	}
	return jobID, nil
}

// Cancel implements scheduler.JobScheduler.
func (q *Queue) Cancel(ctx context.Context, jobID string) (bool, error) {
	removed, err := q.rdb.ZRem(ctx, q.queueKey(), jobID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}
	if removed == 0 {
		return false, nil
	}

	if err := q.rdb.HDel(ctx, q.payloadKey(), jobID).Err(); err != nil {
		return true, fmt.Errorf("failed to delete job payload: %w", err)
	}
	return true, nil
}

// Run polls for due jobs and delivers them to handler until ctx is cancelled.
// Up to Concurrency handlers run at once. Run returns once the handlers it
// started have finished.
func (q *Queue) Run(ctx context.Context, handler scheduler.Handler) error {
	var jobs errgroup.Group
	jobs.SetLimit(q.config.Concurrency)
	defer func() { _ = jobs.Wait() }()

	var delivered atomic.Int64
	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		if err := q.dispatch(ctx, &jobs, handler, &delivered); err != nil && ctx.Err() == nil && q.config.Logger != nil {
			q.config.Logger.Error(ctx, "job poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll claims every due job, delivers them to handler concurrently and waits
// for the handlers to return. Returns the number of jobs delivered. A handler
// error is logged and does not stop the poll; the job is not redelivered.
func (q *Queue) Poll(ctx context.Context, handler scheduler.Handler) (int, error) {
	var jobs errgroup.Group
	jobs.SetLimit(q.config.Concurrency)

	var delivered atomic.Int64
	err := q.dispatch(ctx, &jobs, handler, &delivered)
	if waitErr := jobs.Wait(); err == nil {
		err = waitErr
	}
	return int(delivered.Load()), err
}

func (q *Queue) dispatch(ctx context.Context, jobs *errgroup.Group, handler scheduler.Handler, delivered *atomic.Int64) error {
	due, err := q.rdb.ZRangeByScore(ctx, q.queueKey(), &goredis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.config.Now().UnixMilli(), 10),
		Count: q.config.BatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read due jobs: %w", err)
	}

	for _, jobID := range due {
		// Jobs are claimed inside their slot; those still waiting for one stay visible to other pollers.
		jobs.Go(func() error {
			payload, claimed, err := q.claim(ctx, jobID)
			if err != nil {
				if q.config.Logger != nil {
					q.config.Logger.Error(ctx, "job claim failed", "jobID", jobID, "error", err)
				}
				return err
			}
			if !claimed {
				return nil
			}

			delivered.Add(1)
			if err := handler(ctx, payload); err != nil && q.config.Logger != nil {
				q.config.Logger.Error(ctx, "job handler failed", "jobID", jobID, "error", err)
			}
			return nil
		})
	}

	return nil
}

// Len returns the number of jobs waiting in the queue.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.queueKey()).Result()
}

func (q *Queue) claim(ctx context.Context, jobID string) (string, bool, error) {
	removed, err := q.rdb.ZRem(ctx, q.queueKey(), jobID).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to claim job: %w", err)
	}
	if removed == 0 {
		return "", false, nil
	}

	payload, err := q.rdb.HGet(ctx, q.payloadKey(), jobID).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read job payload: %w", err)
	}

	if err := q.rdb.HDel(ctx, q.payloadKey(), jobID).Err(); err != nil {
		return "", false, fmt.Errorf("failed to delete job payload: %w", err)
	}
	return payload, true, nil
}
