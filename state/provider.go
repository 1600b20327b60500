// Package state defines the provider contract shared by the local and
// bridged variable-state backends, the error taxonomy they return, the
// snapshot interchange format, and the in-process LocalState backend.
package state

import (
	"context"

	"github.com/tailored-agentic-units/varstate/variables"
)

// Capabilities describes what a backend can do. The map is static per
// backend type; callers use it to decide whether to layer stronger
// guarantees (such as all-or-nothing batches) above the provider.
type Capabilities struct {
	AtomicUpdates bool `json:"atomic_updates"`
	Streaming     bool `json:"streaming"`
	Persistent    bool `json:"persistent"`
	Distributed   bool `json:"distributed"`
}

// RegisterOptions carries the optional parts of variable registration.
type RegisterOptions struct {
	Constraints variables.Constraints
	Metadata    map[string]string
}

// Provider is the contract both backends implement. Identifier arguments
// accept either a variable id or its registered name. All errors are values
// from the package taxonomy (ErrNotFound, ErrAlreadyExists,
// variables.ErrValidation, ErrSessionExpired, ...), so callers can
// pattern-match with errors.Is / errors.As.
type Provider interface {
	// SessionID returns the session this provider owns.
	SessionID() string

	// RegisterVariable creates a variable at version 0 and returns its id.
	// Fails with ErrAlreadyExists if the name is taken, or a validation
	// error if the initial value or constraints are rejected.
	RegisterVariable(ctx context.Context, name string, t variables.Type, initial any, opts RegisterOptions) (string, error)

	// GetVariable returns a copy of the variable for an id or name.
	GetVariable(ctx context.Context, identifier string) (*variables.Variable, error)

	// SetVariable re-validates the value, bumps the version by exactly 1,
	// and merges metadata. Failed sets leave the version untouched.
	SetVariable(ctx context.Context, identifier string, value any, metadata map[string]string) error

	// DeleteVariable removes the variable and its name-index entry.
	DeleteVariable(ctx context.Context, identifier string) error

	// ListVariables returns copies of all variables in creation order.
	ListVariables(ctx context.Context) ([]*variables.Variable, error)

	// GetVariables returns copies keyed by the identifiers the caller
	// passed. Identifiers that resolve to nothing are silently omitted:
	// a partial result is intentional, not an error.
	GetVariables(ctx context.Context, identifiers []string) (map[string]*variables.Variable, error)

	// UpdateVariables applies each update independently; it is not atomic.
	// Entries that validate are committed even when others fail. Returns
	// nil only when every entry succeeded, otherwise a *PartialFailureError
	// with the per-identifier error map.
	UpdateVariables(ctx context.Context, updates map[string]any, metadata map[string]string) error

	// ExportState returns the session snapshot in the interchange format.
	ExportState(ctx context.Context) (*Snapshot, error)

	// ImportState re-registers every exported variable through the normal
	// validation path, preserving id, name, version, and creation time and
	// stamping migration provenance metadata. On failure it returns an
	// *ImportError listing the failed entries; entries imported before the
	// failure are not rolled back.
	ImportState(ctx context.Context, snap *Snapshot) error

	// Capabilities reports the backend's static capability map.
	Capabilities() Capabilities

	// RequiresBridge reports whether this backend depends on a remote
	// session service. The coordinator uses it to decide when to migrate.
	RequiresBridge() bool

	// Cleanup releases backend resources. Idempotent; operations after
	// Cleanup fail with ErrSessionExpired.
	Cleanup(ctx context.Context) error
}

// WatchEvent describes one observed variable change.
type WatchEvent struct {
	ID       string
	Name     string
	Old      any
	New      any
	Deleted  bool
	Metadata map[string]string
}

// Watcher is the optional push-notification extension. Backends that cannot
// stream changes simply do not implement it; the coordinator reports
// ErrWatchUnsupported for those.
type Watcher interface {
	// WatchVariables registers fn for changes to the given identifiers
	// (all variables when empty) and returns a handle for UnwatchVariables.
	// Callbacks run outside the backend's internal lock and must not be
	// assumed to be ordered across variables.
	WatchVariables(identifiers []string, fn func(WatchEvent)) (string, error)

	// UnwatchVariables removes a watch by handle. Unknown handles are a no-op.
	UnwatchVariables(handle string) error
}
