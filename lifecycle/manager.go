package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/lock"
	"github.com/getpup/pupsourcing/es"
)

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Locker provides the per-tenant leases (required).
	Locker lock.Locker

	// LeaseTTL is how long a lease survives without a heartbeat (default: 30s).
	LeaseTTL time.Duration

	// HeartbeatInterval is the interval between lease refreshes (default: LeaseTTL/3).
	HeartbeatInterval time.Duration

	// ReleaseTimeout bounds the release call on exit (default: 5s).
	ReleaseTimeout time.Duration

	// Logger is for observability (optional).
	Logger es.Logger
}

// Manager scopes work to a held tenant lease, keeping the lease alive with a
// heartbeat while the work runs.
type Manager struct {
	config Config
}

// New creates a new lifecycle Manager with the given configuration.
// Applies default values for LeaseTTL, HeartbeatInterval and ReleaseTimeout if not set.
func New(cfg Config) *Manager {
	if cfg.LeaseTTL == 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = cfg.LeaseTTL / 3
	}
	if cfg.ReleaseTimeout == 0 {
		cfg.ReleaseTimeout = 5 * time.Second
	}

	return &Manager{
		config: cfg,
	}
}

// Guard runs fn while holding the lease for tenantID.
//
// Acquisition never waits: if another process holds the lease Guard returns
// an error wrapping orchestrator.ErrAlreadyRunning without calling fn. The
// lease is released on every exit path, including panics in fn. If the lease
// is lost while fn runs, the context passed to fn is cancelled with
// lock.ErrLeaseLost as its cause.
func (m *Manager) Guard(ctx context.Context, tenantID orchestrator.TenantID, fn func(ctx context.Context) error) (err error) {
	key := lock.TenantKey(string(tenantID))

	lease, err := m.config.Locker.Acquire(ctx, key, m.config.LeaseTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		if m.config.Logger != nil {
			m.config.Logger.Info(ctx, "tenant lease held elsewhere", "tenantID", tenantID)
		}
		return fmt.Errorf("tenant %s: %w", tenantID, orchestrator.ErrAlreadyRunning)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire tenant lease: %w", err)
	}

	if m.config.Logger != nil {
		m.config.Logger.Debug(ctx, "tenant lease acquired", "tenantID", tenantID, "owner", lease.Owner())
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	heartbeatDone := make(chan struct{})

	go func() {
		defer close(heartbeatDone)
		if hbErr := m.StartHeartbeat(runCtx, lease); hbErr != nil {
			cancel(hbErr)
		}
	}()

	defer func() {
		cancel(nil)
		<-heartbeatDone
		m.release(ctx, tenantID, lease)

		if err == nil && errors.Is(context.Cause(runCtx), lock.ErrLeaseLost) {
			err = fmt.Errorf("tenant %s: %w", tenantID, lock.ErrLeaseLost)
		}
	}()

	return fn(runCtx)
}

// StartHeartbeat refreshes the lease at the configured interval until the
// context is cancelled. Returns an error when a refresh fails.
func (m *Manager) StartHeartbeat(ctx context.Context, lease lock.Lease) error {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := lease.Refresh(ctx, m.config.LeaseTTL); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				if m.config.Logger != nil {
					m.config.Logger.Error(ctx, "lease refresh failed", "key", lease.Key(), "error", err)
				}
				if errors.Is(err, lock.ErrLeaseLost) {
					return err
				}
				return fmt.Errorf("%w: %v", lock.ErrLeaseLost, err)
			}

			if m.config.Logger != nil {
				m.config.Logger.Debug(ctx, "lease refreshed", "key", lease.Key())
			}
		}
	}
}

func (m *Manager) release(ctx context.Context, tenantID orchestrator.TenantID, lease lock.Lease) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.config.ReleaseTimeout)
	defer cancel()

	if err := lease.Release(releaseCtx); err != nil {
		if m.config.Logger != nil {
			m.config.Logger.Error(ctx, "tenant lease release failed", "tenantID", tenantID, "error", err)
		}
		return
	}

	if m.config.Logger != nil {
		m.config.Logger.Debug(ctx, "tenant lease released", "tenantID", tenantID)
	}
}
