// Package scheduler registers deferred jobs that fire at a point in time.
//
// The orchestrator only needs two calls: ScheduleAt and Cancel. Firing is
// delivered to a Handler with the payload given at registration time.
package scheduler

import (
	"context"
	"time"
)

// JobScheduler registers and cancels deferred jobs.
type JobScheduler interface {
	// ScheduleAt registers a job that delivers payload at the given time and
	// returns the job's handle. A time in the past fires as soon as possible.
	ScheduleAt(ctx context.Context, at time.Time, payload string) (string, error)

	// Cancel removes a job that has not fired yet.
	// Returns false if the job is unknown or has already fired.
	Cancel(ctx context.Context, jobID string) (bool, error)
}

// Handler receives the payload of a fired job.
type Handler func(ctx context.Context, payload string) error

// Runner delivers fired jobs to a Handler until the context is cancelled.
type Runner interface {
	Run(ctx context.Context, handler Handler) error
}
