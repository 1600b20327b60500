package remote

import (
	"errors"
	"fmt"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/varstate/state"
	"github.com/tailored-agentic-units/varstate/variables"
)

// Wire error codes for per-identifier results in batch responses.
const (
	CodeNotFound         = "not_found"
	CodeAlreadyExists    = "already_exists"
	CodeValidationFailed = "validation_failed"
	CodeSessionExpired   = "session_expired"
	CodeUnknownType      = "unknown_type"
	CodeInternal         = "internal"
)

// WireError is the serializable form of a taxonomy error, used where a
// response carries errors per identifier rather than failing the whole RPC.
type WireError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// NewWireError classifies err into a wire code.
func NewWireError(err error) *WireError {
	return &WireError{Code: wireCode(err), Message: err.Error()}
}

// Err converts the wire error back into the matching taxonomy error so
// callers can pattern-match with errors.Is regardless of which side of the
// RPC produced the failure.
func (e *WireError) Err() error {
	switch e.Code {
	case CodeNotFound:
		return fmt.Errorf("%w: %s", state.ErrNotFound, e.Message)
	case CodeAlreadyExists:
		return fmt.Errorf("%w: %s", state.ErrAlreadyExists, e.Message)
	case CodeValidationFailed:
		return fmt.Errorf("%w: %s", variables.ErrValidation, e.Message)
	case CodeSessionExpired:
		return fmt.Errorf("%w: %s", state.ErrSessionExpired, e.Message)
	case CodeUnknownType:
		return fmt.Errorf("%w: %s", variables.ErrUnknownType, e.Message)
	default:
		return errors.New(e.Message)
	}
}

func wireCode(err error) string {
	switch {
	case errors.Is(err, state.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, state.ErrAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, variables.ErrUnknownType):
		return CodeUnknownType
	case errors.Is(err, variables.ErrValidation):
		return CodeValidationFailed
	case errors.Is(err, state.ErrSessionExpired):
		return CodeSessionExpired
	default:
		return CodeInternal
	}
}

// toConnectError maps taxonomy errors onto connect codes for whole-RPC
// failures. Unmapped errors pass through and surface as CodeUnknown.
func toConnectError(err error) error {
	switch {
	case errors.Is(err, state.ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, state.ErrAlreadyExists):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, variables.ErrValidation), errors.Is(err, variables.ErrUnknownType):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, state.ErrSessionExpired):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, state.ErrInvalidExportFormat):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return err
	}
}

// fromConnectError maps permanent connect codes back to taxonomy errors on
// the client side. Transient codes (Unavailable, DeadlineExceeded, ...) are
// left as *connect.Error for the retry classifier.
func fromConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return err
	}
	switch ce.Code() {
	case connect.CodeNotFound:
		return fmt.Errorf("%w: %s", state.ErrNotFound, ce.Message())
	case connect.CodeAlreadyExists:
		return fmt.Errorf("%w: %s", state.ErrAlreadyExists, ce.Message())
	case connect.CodeInvalidArgument:
		return fmt.Errorf("%w: %s", variables.ErrValidation, ce.Message())
	case connect.CodeFailedPrecondition:
		return fmt.Errorf("%w: %s", state.ErrSessionExpired, ce.Message())
	default:
		return err
	}
}
