// Package coordinator owns the session's active state backend. A Context
// starts on the in-process local backend and promotes itself to the
// RPC-bridged backend when an external worker becomes necessary, without any
// consumer code change: callers keep using the same operations and the swap
// is the single visible transition.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/varstate/bridge"
	"github.com/tailored-agentic-units/varstate/checkpoint"
	"github.com/tailored-agentic-units/varstate/observability"
	"github.com/tailored-agentic-units/varstate/remote"
	"github.com/tailored-agentic-units/varstate/state"
	"github.com/tailored-agentic-units/varstate/variables"
)

// BackendState names the migration state machine's states. The transition
// order is local → migrating → bridged; bridged is terminal for the
// context's lifetime.
type BackendState string

const (
	BackendLocal     BackendState = "local"
	BackendMigrating BackendState = "migrating"
	BackendBridged   BackendState = "bridged"
)

// SlowThresholds holds the latency budgets above which operations are
// reported as slow. Single covers one-variable operations, Batch covers
// list/batch/export/import operations.
type SlowThresholds struct {
	Single time.Duration
	Batch  time.Duration
}

// Context exposes the Provider contract to callers and routes every call to
// the currently active backend. All operations are safe for concurrent use;
// operations that arrive during a migration block until the backend swap
// completes, never observing a half-migrated backend.
type Context struct {
	registry    *variables.Registry
	observer    observability.Observer
	retry       bridge.RetryPolicy
	checkpoints checkpoint.Store
	slow        SlowThresholds

	mu        sync.RWMutex
	provider  state.Provider
	backend   BackendState
	migrating atomic.Bool

	// ownedStore is closed on Cleanup when the checkpoint store was opened
	// by NewFromConfig rather than supplied by the caller.
	ownedStore interface{ Close() error }
}

// Option configures a Context after default initialization.
type Option func(*Context)

// WithObserver sets the telemetry observer for all instrumented operations.
func WithObserver(obs observability.Observer) Option {
	return func(c *Context) { c.observer = obs }
}

// WithRetryPolicy sets the retry policy handed to the bridged backend.
func WithRetryPolicy(p bridge.RetryPolicy) Option {
	return func(c *Context) { c.retry = p }
}

// WithCheckpointStore enables snapshot checkpointing. When set, the
// coordinator saves the exported snapshot before every migration swap and
// exposes Checkpoint/Restore.
func WithCheckpointStore(store checkpoint.Store) Option {
	return func(c *Context) { c.checkpoints = store }
}

// WithSlowThresholds overrides the default slow-operation budgets.
func WithSlowThresholds(t SlowThresholds) Option {
	return func(c *Context) { c.slow = t }
}

// WithProvider replaces the default local backend; intended for tests.
func WithProvider(p state.Provider) Option {
	return func(c *Context) {
		c.provider = p
		if p.RequiresBridge() {
			c.backend = BackendBridged
		}
	}
}

// New creates a Context on a fresh local backend.
func New(registry *variables.Registry, opts ...Option) (*Context, error) {
	if registry == nil {
		registry = variables.NewRegistry()
	}

	c := &Context{
		registry: registry,
		observer: observability.NoOpObserver{},
		retry:    bridge.DefaultRetryPolicy(),
		backend:  BackendLocal,
		slow: SlowThresholds{
			Single: observability.DefaultSlowSingle,
			Batch:  observability.DefaultSlowBatch,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.provider == nil {
		local, err := state.NewLocalState(registry, nil)
		if err != nil {
			return nil, err
		}
		c.provider = local
	}
	return c, nil
}

// SessionID returns the active backend's session id.
func (c *Context) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider.SessionID()
}

// Backend returns the migration state machine's current state.
func (c *Context) Backend() BackendState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend
}

// Capabilities reports the active backend's capability map.
func (c *Context) Capabilities() state.Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.provider.Capabilities()
}

// RegisterVariable creates a variable on the active backend.
func (c *Context) RegisterVariable(ctx context.Context, name string, t variables.Type, initial any, opts state.RegisterOptions) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var id string
	err := observability.Instrument(ctx, c.observer, c.operation("register_variable", c.slow.Single), func(ctx context.Context) error {
		var err error
		id, err = c.provider.RegisterVariable(ctx, name, t, initial, opts)
		return err
	})
	return id, err
}

// GetVariable returns a variable by id or name.
func (c *Context) GetVariable(ctx context.Context, identifier string) (*variables.Variable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var v *variables.Variable
	err := observability.Instrument(ctx, c.observer, c.operation("get_variable", c.slow.Single), func(ctx context.Context) error {
		var err error
		v, err = c.provider.GetVariable(ctx, identifier)
		return err
	})
	return v, err
}

// SetVariable updates a variable's value, bumping its version.
func (c *Context) SetVariable(ctx context.Context, identifier string, value any, metadata map[string]string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return observability.Instrument(ctx, c.observer, c.operation("set_variable", c.slow.Single), func(ctx context.Context) error {
		return c.provider.SetVariable(ctx, identifier, value, metadata)
	})
}

// DeleteVariable removes a variable and its name-index entry.
func (c *Context) DeleteVariable(ctx context.Context, identifier string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return observability.Instrument(ctx, c.observer, c.operation("delete_variable", c.slow.Single), func(ctx context.Context) error {
		return c.provider.DeleteVariable(ctx, identifier)
	})
}

// ListVariables returns all variables in creation order.
func (c *Context) ListVariables(ctx context.Context) ([]*variables.Variable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var listed []*variables.Variable
	err := observability.Instrument(ctx, c.observer, c.operation("list_variables", c.slow.Batch), func(ctx context.Context) error {
		var err error
		listed, err = c.provider.ListVariables(ctx)
		return err
	})
	return listed, err
}

// GetVariables returns the variables that resolve, keyed by the passed
// identifiers; missing identifiers are silently omitted.
func (c *Context) GetVariables(ctx context.Context, identifiers []string) (map[string]*variables.Variable, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var found map[string]*variables.Variable
	err := observability.Instrument(ctx, c.observer, c.operation("get_variables", c.slow.Batch), func(ctx context.Context) error {
		var err error
		found, err = c.provider.GetVariables(ctx, identifiers)
		return err
	})
	return found, err
}

// UpdateVariables applies a non-atomic batch update.
func (c *Context) UpdateVariables(ctx context.Context, updates map[string]any, metadata map[string]string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return observability.Instrument(ctx, c.observer, c.operation("update_variables", c.slow.Batch), func(ctx context.Context) error {
		return c.provider.UpdateVariables(ctx, updates, metadata)
	})
}

// ExportState snapshots the active backend.
func (c *Context) ExportState(ctx context.Context) (*state.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var snap *state.Snapshot
	err := observability.Instrument(ctx, c.observer, c.operation("export_state", c.slow.Batch), func(ctx context.Context) error {
		var err error
		snap, err = c.provider.ExportState(ctx)
		return err
	})
	return snap, err
}

// ImportState imports a snapshot into the active backend.
func (c *Context) ImportState(ctx context.Context, snap *state.Snapshot) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return observability.Instrument(ctx, c.observer, c.operation("import_state", c.slow.Batch), func(ctx context.Context) error {
		return c.provider.ImportState(ctx, snap)
	})
}

// WatchVariables registers a change callback on the active backend.
// Returns state.ErrWatchUnsupported when the backend cannot stream changes.
// Watches do not survive migration; re-register after promoting.
func (c *Context) WatchVariables(identifiers []string, fn func(state.WatchEvent)) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.provider.(state.Watcher)
	if !ok {
		return "", state.ErrWatchUnsupported
	}
	return w.WatchVariables(identifiers, fn)
}

// UnwatchVariables removes a watch registered by WatchVariables.
func (c *Context) UnwatchVariables(handle string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.provider.(state.Watcher)
	if !ok {
		return state.ErrWatchUnsupported
	}
	return w.UnwatchVariables(handle)
}

// EnsureBridged promotes to the bridged backend if the context has not been
// promoted yet. It is the entry point for "an external worker is now
// required": a no-op when the active backend already requires the bridge.
func (c *Context) EnsureBridged(ctx context.Context, service remote.Service) error {
	c.mu.RLock()
	bridged := c.provider.RequiresBridge()
	c.mu.RUnlock()

	if bridged {
		return nil
	}
	err := c.MigrateToBridged(ctx, service)
	if errors.Is(err, ErrAlreadyBridged) {
		return nil
	}
	return err
}

// MigrateToBridged runs the one-way promotion protocol: export the local
// state, create a fresh remote session, import the snapshot (re-validating
// every variable), then atomically swap the active backend and clean up the
// local one. Variables keep their id, name, value, and version. On failure
// the partially-created remote session is torn down and the context stays on
// its local backend; the caller may retry.
//
// Concurrent variable operations block until the swap completes. A second
// migration attempt fails with ErrMigrationInProgress while one is running,
// and with ErrAlreadyBridged afterwards.
func (c *Context) MigrateToBridged(ctx context.Context, service remote.Service) error {
	if !c.migrating.CompareAndSwap(false, true) {
		return ErrMigrationInProgress
	}
	defer c.migrating.Store(false)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backend == BackendBridged {
		return ErrAlreadyBridged
	}
	c.backend = BackendMigrating

	start := time.Now()
	c.emit(ctx, observability.EventMigrationStart, observability.LevelInfo, map[string]any{
		"session_id": c.provider.SessionID(),
		"backend":    "local",
	})

	snap, err := c.provider.ExportState(ctx)
	if err != nil {
		c.failMigration(ctx, start, err)
		return fmt.Errorf("export local state: %w", err)
	}

	if c.checkpoints != nil {
		// Safety copy of the pre-migration state; failure to persist it is
		// reported but does not abort the migration.
		if err := c.checkpoints.Save(snap); err != nil {
			c.emit(ctx, observability.EventCheckpointFailed, observability.LevelWarning, map[string]any{
				"session_id": snap.SessionID,
				"error":      err.Error(),
			})
		}
	}

	bridged, err := bridge.New(ctx, c.registry, service, snap,
		bridge.WithRetryPolicy(c.retry),
		bridge.WithObserver(c.observer),
		bridge.WithSessionMetadata(snap.Metadata),
	)
	if err != nil {
		c.failMigration(ctx, start, err)
		return fmt.Errorf("initialize bridged backend: %w", err)
	}

	old := c.provider
	c.provider = bridged
	c.backend = BackendBridged

	// The swap has happened; cleanup failure of the old backend must not
	// fail the migration.
	data := map[string]any{
		"session_id":  bridged.SessionID(),
		"source":      snap.SessionID,
		"variables":   len(snap.Variables),
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err := old.Cleanup(ctx); err != nil {
		data["cleanup_error"] = err.Error()
	}

	c.emit(ctx, observability.EventMigrationComplete, observability.LevelInfo, data)
	return nil
}

// Checkpoint exports the active backend and persists the snapshot.
func (c *Context) Checkpoint(ctx context.Context) error {
	if c.checkpoints == nil {
		return fmt.Errorf("no checkpoint store configured")
	}
	snap, err := c.ExportState(ctx)
	if err != nil {
		return err
	}
	return c.checkpoints.Save(snap)
}

// Restore imports a persisted snapshot into the active backend.
func (c *Context) Restore(ctx context.Context, sessionID string) error {
	if c.checkpoints == nil {
		return fmt.Errorf("no checkpoint store configured")
	}
	snap, err := c.checkpoints.Load(sessionID)
	if err != nil {
		return err
	}
	return c.ImportState(ctx, snap)
}

// Cleanup releases the active backend. The context is unusable afterwards.
func (c *Context) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.provider.Cleanup(ctx)
	if c.ownedStore != nil {
		if closeErr := c.ownedStore.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		c.ownedStore = nil
	}
	return err
}

func (c *Context) failMigration(ctx context.Context, start time.Time, err error) {
	c.backend = BackendLocal
	c.emit(ctx, observability.EventMigrationFailed, observability.LevelError, map[string]any{
		"session_id":  c.provider.SessionID(),
		"error":       err.Error(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (c *Context) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	c.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "coordinator",
		Data:      data,
	})
}

// operation builds the instrumentation tags for the active backend. Callers
// hold at least the read lock.
func (c *Context) operation(name string, threshold time.Duration) observability.Operation {
	backend := "local"
	if c.provider.RequiresBridge() {
		backend = "bridged"
	}
	return observability.Operation{
		Name:          name,
		Backend:       backend,
		SessionID:     c.provider.SessionID(),
		SlowThreshold: threshold,
	}
}
