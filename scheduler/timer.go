package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/getpup/pupsourcing/es"
	"github.com/google/uuid"
)

// TimerConfig configures a Timer scheduler.
type TimerConfig struct {
	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger is an optional logger for observability.
	Logger es.Logger
}

// Timer is an in-process JobScheduler backed by time.AfterFunc.
// Jobs do not survive a restart.
type Timer struct {
	config TimerConfig

	mu     sync.Mutex
	timers map[string]*time.Timer
	jobs   map[string]string
	ready  []string
	notify chan struct{}
}

var (
	_ JobScheduler = (*Timer)(nil)
	_ Runner       = (*Timer)(nil)
)

// NewTimer creates a new Timer scheduler with the given configuration.
func NewTimer(cfg TimerConfig) *Timer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Timer{
		config: cfg,
		timers: make(map[string]*time.Timer),
		jobs:   make(map[string]string),
		notify: make(chan struct{}, 1),
	}
}

// ScheduleAt implements JobScheduler.
func (s *Timer) ScheduleAt(ctx context.Context, at time.Time, payload string) (string, error) {
	jobID := uuid.New().String()
	delay := at.Sub(s.config.Now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[jobID] = payload
	s.timers[jobID] = time.AfterFunc(delay, func() { s.fire(jobID) })

	if s.config.Logger != nil {
		s.config.Logger.Debug(ctx, "job scheduled", "jobID", jobID, "at", at, "delay", delay)
	}
	return jobID, nil
}

// Cancel implements JobScheduler.
func (s *Timer) Cancel(ctx context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[jobID]; ok {
		// A fire racing with this call sees the timer gone and skips the job.
		t.Stop()
		delete(s.timers, jobID)
		delete(s.jobs, jobID)
		return true, nil
	}

	for i, id := range s.ready {
		if id == jobID {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			delete(s.jobs, jobID)
			return true, nil
		}
	}
	return false, nil
}

// Pending returns the number of jobs that have not been delivered yet.
func (s *Timer) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Run delivers fired jobs to handler until ctx is cancelled. Jobs that fire
// before Run starts are delivered once it does. Run waits for in-flight
// handlers before returning.
func (s *Timer) Run(ctx context.Context, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		for _, payload := range s.drain() {
			wg.Add(1)
			go func(payload string) {
				defer wg.Done()
				if err := handler(ctx, payload); err != nil && s.config.Logger != nil {
					s.config.Logger.Error(ctx, "job handler failed", "payload", payload, "error", err)
				}
			}(payload)
		}

		select {
		case <-ctx.Done():
			s.stopAll()
			return nil
		case <-s.notify:
		}
	}
}

func (s *Timer) fire(jobID string) {
	s.mu.Lock()
	if _, ok := s.timers[jobID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.timers, jobID)
	s.ready = append(s.ready, jobID)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Timer) drain() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloads := make([]string, 0, len(s.ready))
	for _, id := range s.ready {
		payloads = append(payloads, s.jobs[id])
		delete(s.jobs, id)
	}
	s.ready = nil
	return payloads
}

func (s *Timer) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.timers {
		t.Stop()
	}
}
