package coordinator

import "errors"

// Sentinel errors for the migration state machine.
var (
	// ErrMigrationInProgress is returned when a migration is requested
	// while another one is already running.
	ErrMigrationInProgress = errors.New("migration in progress")

	// ErrAlreadyBridged is returned when a migration is requested after the
	// context has already promoted to the bridged backend; the transition
	// is one-way.
	ErrAlreadyBridged = errors.New("context already bridged")
)
