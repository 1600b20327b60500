// Package bridge implements the RPC-backed state backend: a Provider that
// delegates every operation to a RemoteSessionService, with failures
// classified into permanent/temporary/unknown and transient ones retried
// with exponential backoff.
package bridge

import (
	"context"
	"errors"
	"net"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/varstate/state"
	"github.com/tailored-agentic-units/varstate/variables"
)

// Class is the retry classification of a failure.
type Class int

const (
	// ClassPermanent failures are deterministic; retry cannot help and the
	// error is returned to the caller immediately.
	ClassPermanent Class = iota
	// ClassTemporary failures (timeouts, remote unavailability) get the
	// full retry budget.
	ClassTemporary
	// ClassUnknown failures get half the retry budget as a conservative
	// middle ground.
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassTemporary:
		return "temporary"
	default:
		return "unknown"
	}
}

// Classify buckets an error from a backend call. Taxonomy errors and their
// connect-code equivalents are permanent; deadline and availability failures
// are temporary; a cancelled caller context is permanent because retrying on
// behalf of a caller that has gone away is never useful.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassPermanent
	case errors.Is(err, state.ErrNotFound),
		errors.Is(err, state.ErrAlreadyExists),
		errors.Is(err, state.ErrSessionExpired),
		errors.Is(err, state.ErrInvalidExportFormat),
		errors.Is(err, variables.ErrValidation),
		errors.Is(err, variables.ErrUnknownType),
		errors.Is(err, context.Canceled):
		return ClassPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTemporary
	}

	var pf *state.PartialFailureError
	if errors.As(err, &pf) {
		return ClassPermanent
	}
	var ie *state.ImportError
	if errors.As(err, &ie) {
		return ClassPermanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTemporary
	}

	var ce *connect.Error
	if errors.As(err, &ce) {
		switch ce.Code() {
		case connect.CodeNotFound, connect.CodeAlreadyExists,
			connect.CodeInvalidArgument, connect.CodeFailedPrecondition,
			connect.CodePermissionDenied, connect.CodeUnauthenticated:
			return ClassPermanent
		case connect.CodeUnavailable, connect.CodeDeadlineExceeded,
			connect.CodeResourceExhausted, connect.CodeAborted:
			return ClassTemporary
		}
	}

	return ClassUnknown
}
