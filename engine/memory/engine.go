// Package memory provides an in-memory engine.Engine that keeps per-database,
// per-module versions. It is used by tests and local dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/getpup/migration-orchestrator"
	"github.com/getpup/migration-orchestrator/engine"
)

// Hook is called before every Apply and Revert. Returning an error fails the
// call before any migration runs.
type Hook func(ctx context.Context, target orchestrator.ConnectionTarget, module string) error

type migration struct {
	name   string
	script string
}

// Engine is an in-memory engine.Engine. Databases are keyed by
// ConnectionTarget.Database.
type Engine struct {
	mu       sync.Mutex
	catalog  map[string][]migration
	versions map[string]map[string]int
	inFlight map[string]int
	peak     map[string]int

	// Hook is optional; see Hook.
	Hook Hook
}

var _ engine.Engine = (*Engine)(nil)

// New creates an empty Engine.
func New() *Engine {
	return &Engine{
		catalog:  make(map[string][]migration),
		versions: make(map[string]map[string]int),
		inFlight: make(map[string]int),
		peak:     make(map[string]int),
	}
}

// Add appends a migration to a module's catalog.
func (e *Engine) Add(module, name, script string) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalog[module] = append(e.catalog[module], migration{name: name, script: script})
	return e
}

// Applied returns the migrations applied to a database's module, in order.
func (e *Engine) Applied(database, module string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0)
	for _, m := range e.catalog[module][:e.versions[database][module]] {
		names = append(names, m.name)
	}
	return names
}

// PeakConcurrency returns the highest number of Apply or Revert calls that
// ran at the same time against a database.
func (e *Engine) PeakConcurrency(database string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peak[database]
}

// Apply implements engine.Engine.
func (e *Engine) Apply(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
	if err := e.enter(ctx, target, module); err != nil {
		return nil, err
	}
	defer e.leave(target)

	e.mu.Lock()
	defer e.mu.Unlock()

	cat := e.catalog[module]
	current := e.version(target.Database, module)
	applied := make([]string, 0, len(cat)-current)
	for _, m := range cat[current:] {
		applied = append(applied, m.name)
	}
	e.versions[target.Database][module] = len(cat)
	return applied, nil
}

// Revert implements engine.Engine.
func (e *Engine) Revert(ctx context.Context, target orchestrator.ConnectionTarget, module, name string) (string, error) {
	if err := e.enter(ctx, target, module); err != nil {
		return "", err
	}
	defer e.leave(target)

	e.mu.Lock()
	defer e.mu.Unlock()

	index, err := e.find(module, name)
	if err != nil {
		return "", err
	}

	current := e.version(target.Database, module)
	switch {
	case index >= current:
		return "", fmt.Errorf("%w: %s/%s", engine.ErrNotApplied, module, name)
	case index < current-1:
		return "", fmt.Errorf("%w: %s/%s", engine.ErrHasDependents, module, name)
	}

	e.versions[target.Database][module] = index
	if index == 0 {
		return "", nil
	}
	return e.catalog[module][index-1].name, nil
}

// Preview implements engine.Engine.
func (e *Engine) Preview(ctx context.Context, target orchestrator.ConnectionTarget, module, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	index, err := e.find(module, name)
	if err != nil {
		return "", err
	}
	return e.catalog[module][index].script, nil
}

// PendingFor implements engine.Engine.
func (e *Engine) PendingFor(ctx context.Context, target orchestrator.ConnectionTarget, module string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.catalog[module]; !ok {
		return nil, fmt.Errorf("%w: %s", engine.ErrModuleNotFound, module)
	}

	pending := make([]string, 0)
	for _, m := range e.catalog[module][e.version(target.Database, module):] {
		pending = append(pending, m.name)
	}
	return pending, nil
}

func (e *Engine) enter(ctx context.Context, target orchestrator.ConnectionTarget, module string) error {
	e.mu.Lock()
	_, known := e.catalog[module]
	if known {
		e.inFlight[target.Database]++
		if e.inFlight[target.Database] > e.peak[target.Database] {
			e.peak[target.Database] = e.inFlight[target.Database]
		}
	}
	hook := e.Hook
	e.mu.Unlock()

	if !known {
		return fmt.Errorf("%w: %s", engine.ErrModuleNotFound, module)
	}

	if hook != nil {
		if err := hook(ctx, target, module); err != nil {
			e.leave(target)
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		e.leave(target)
		return err
	}
	return nil
}

func (e *Engine) leave(target orchestrator.ConnectionTarget) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight[target.Database]--
}

// version returns the applied count, creating the database entry if needed.
// Callers hold e.mu.
func (e *Engine) version(database, module string) int {
	if e.versions[database] == nil {
		e.versions[database] = make(map[string]int)
	}
	return e.versions[database][module]
}

// find returns a migration's catalog index. Callers hold e.mu.
func (e *Engine) find(module, name string) (int, error) {
	cat, ok := e.catalog[module]
	if !ok {
		return -1, fmt.Errorf("%w: %s", engine.ErrModuleNotFound, module)
	}
	for i, m := range cat {
		if m.name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s/%s", engine.ErrMigrationNotFound, module, name)
}
