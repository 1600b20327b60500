// Package checkpoint persists exported session snapshots so a session's
// variables can be recovered after a failed migration or a process restart.
package checkpoint

import (
	"errors"

	"github.com/tailored-agentic-units/varstate/state"
)

// ErrNotFound is returned when no checkpoint exists for a session.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists snapshots keyed by session id.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save persists a snapshot, overwriting any checkpoint for the same
	// session.
	Save(snap *state.Snapshot) error

	// Load retrieves the snapshot for a session id.
	// Returns ErrNotFound when none exists.
	Load(sessionID string) (*state.Snapshot, error)

	// Delete removes a session's checkpoint. Missing checkpoints are a no-op.
	Delete(sessionID string) error

	// List returns the session ids with stored checkpoints.
	List() ([]string, error)
}
