// Package resource provides the per-run resource manager. It lazily
// initializes expensive external handles (browser sessions, API clients,
// media pipelines) exactly once per kind, shares them across all tool calls
// of a run, and tears them down when the run ends.
package resource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/hupe1980/agencykit/core"
	"github.com/hupe1980/agencykit/logging"
)

// Factory creates a live handle for a resource kind. It is invoked at most
// once per acquisition attempt and must honor ctx cancellation.
type Factory func(ctx context.Context) (core.Handle, error)

// DefaultRetryInterval bounds how often a failed factory is re-attempted.
// Inside the window Acquire returns the cached initialization error without
// touching the factory again.
const DefaultRetryInterval = 5 // seconds

type entry struct {
	mu      sync.Mutex
	factory Factory
	handle  core.Handle
	initErr *core.ResourceInitError
	retry   *rate.Limiter
}

// Manager implements core.ResourceManager. Handles are keyed by kind and
// created on first Acquire. Concurrent acquisitions of the same kind block
// on a per-kind mutex so the factory runs at most once.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  logging.Logger
	retry   rate.Limit
}

// ManagerOptions configures optional Manager behavior.
type ManagerOptions struct {
	// Logger receives lifecycle events. Defaults to NoOpLogger.
	Logger logging.Logger

	// RetryInterval is the minimum number of seconds between factory
	// re-attempts after a failed initialization. Defaults to
	// DefaultRetryInterval.
	RetryInterval float64
}

// NewManager returns an empty Manager. Register factories before handing it
// to a run.
func NewManager(optFns ...func(o *ManagerOptions)) *Manager {
	opts := ManagerOptions{
		Logger:        logging.NoOpLogger{},
		RetryInterval: DefaultRetryInterval,
	}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	return &Manager{
		entries: make(map[string]*entry),
		logger:  opts.Logger,
		retry:   rate.Limit(1 / opts.RetryInterval),
	}
}

// Register associates a factory with a resource kind. Registering the same
// kind twice returns a ConfigError; factories are part of the agency wiring
// and must not be swapped mid-run.
func (m *Manager) Register(kind string, factory Factory) error {
	if kind == "" {
		return core.NewConfigError("resource kind must not be empty")
	}

	if factory == nil {
		return core.NewConfigError("resource %q: factory must not be nil", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[kind]; exists {
		return core.NewConfigError("resource %q already registered", kind)
	}

	m.entries[kind] = &entry{
		factory: factory,
		// First attempt is always allowed; the limiter only gates retries
		// after a failure.
		retry: rate.NewLimiter(m.retry, 1),
	}

	return nil
}

// Kinds returns the registered resource kinds in sorted order.
func (m *Manager) Kinds() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kinds := make([]string, 0, len(m.entries))
	for kind := range m.entries {
		kinds = append(kinds, kind)
	}

	sort.Strings(kinds)

	return kinds
}

// Acquire returns the live handle for kind, initializing it on first use.
// When initialization fails the error is cached and returned to every caller
// until the retry window elapses, at which point the factory runs again.
func (m *Manager) Acquire(ctx context.Context, kind string) (core.Handle, error) {
	m.mu.RLock()
	e, exists := m.entries[kind]
	m.mu.RUnlock()

	if !exists {
		return nil, &core.ResourceInitError{Kind: kind, Err: fmt.Errorf("unknown resource kind")}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle != nil {
		return e.handle, nil
	}

	// After a failed initialization the error is served from cache until the
	// retry window refills a token.
	if e.initErr != nil && !e.retry.Allow() {
		return nil, e.initErr
	}

	handle, err := e.factory(ctx)
	if err != nil {
		e.initErr = &core.ResourceInitError{Kind: kind, Err: err}
		// Burn the token so callers inside the window see the cached error
		// instead of hammering the factory.
		e.retry.Allow()
		m.logger.Warn("resource.init.failed", "kind", kind, "error", err)

		return nil, e.initErr
	}

	e.handle = handle
	e.initErr = nil
	m.logger.Info("resource.init", "kind", kind)

	return handle, nil
}

// Release closes the handle for kind if one is live. Releasing an
// uninitialized or already released kind is a no-op.
func (m *Manager) Release(kind string) error {
	m.mu.RLock()
	e, exists := m.entries[kind]
	m.mu.RUnlock()

	if !exists {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.handle == nil {
		return nil
	}

	err := e.handle.Close()
	e.handle = nil
	e.initErr = nil

	if err != nil {
		m.logger.Warn("resource.release.failed", "kind", kind, "error", err)
		return fmt.Errorf("release resource %q: %w", kind, err)
	}

	m.logger.Info("resource.release", "kind", kind)

	return nil
}

// ReleaseAll closes every live handle. All handles are closed even when some
// fail; the first error is returned.
func (m *Manager) ReleaseAll() error {
	var firstErr error

	for _, kind := range m.Kinds() {
		if err := m.Release(kind); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

var _ core.ResourceManager = (*Manager)(nil)
