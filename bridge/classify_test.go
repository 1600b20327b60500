package bridge_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/varstate/bridge"
	"github.com/tailored-agentic-units/varstate/state"
	"github.com/tailored-agentic-units/varstate/variables"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bridge.Class
	}{
		{name: "not found", err: state.ErrNotFound, want: bridge.ClassPermanent},
		{name: "wrapped not found", err: fmt.Errorf("%w: temperature", state.ErrNotFound), want: bridge.ClassPermanent},
		{name: "already exists", err: state.ErrAlreadyExists, want: bridge.ClassPermanent},
		{name: "session expired", err: state.ErrSessionExpired, want: bridge.ClassPermanent},
		{name: "invalid export", err: state.ErrInvalidExportFormat, want: bridge.ClassPermanent},
		{name: "validation", err: variables.ErrValidation, want: bridge.ClassPermanent},
		{name: "unknown type", err: variables.ErrUnknownType, want: bridge.ClassPermanent},
		{name: "caller cancelled", err: context.Canceled, want: bridge.ClassPermanent},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: bridge.ClassTemporary},
		{name: "partial failure", err: &state.PartialFailureError{Errors: map[string]error{"a": state.ErrNotFound}}, want: bridge.ClassPermanent},
		{name: "import failure", err: &state.ImportError{Failed: map[string]error{"a": variables.ErrValidation}}, want: bridge.ClassPermanent},
		{name: "net timeout", err: timeoutError{}, want: bridge.ClassTemporary},
		{name: "wrapped net timeout", err: fmt.Errorf("dial: %w", timeoutError{}), want: bridge.ClassTemporary},
		{name: "connect unavailable", err: connect.NewError(connect.CodeUnavailable, errors.New("down")), want: bridge.ClassTemporary},
		{name: "connect deadline", err: connect.NewError(connect.CodeDeadlineExceeded, errors.New("slow")), want: bridge.ClassTemporary},
		{name: "connect exhausted", err: connect.NewError(connect.CodeResourceExhausted, errors.New("busy")), want: bridge.ClassTemporary},
		{name: "connect aborted", err: connect.NewError(connect.CodeAborted, errors.New("conflict")), want: bridge.ClassTemporary},
		{name: "connect not found", err: connect.NewError(connect.CodeNotFound, errors.New("missing")), want: bridge.ClassPermanent},
		{name: "connect invalid argument", err: connect.NewError(connect.CodeInvalidArgument, errors.New("bad")), want: bridge.ClassPermanent},
		{name: "connect internal", err: connect.NewError(connect.CodeInternal, errors.New("boom")), want: bridge.ClassUnknown},
		{name: "opaque", err: errors.New("something odd"), want: bridge.ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bridge.Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClass_String(t *testing.T) {
	if got := bridge.ClassPermanent.String(); got != "permanent" {
		t.Errorf("ClassPermanent.String() = %q", got)
	}
	if got := bridge.ClassTemporary.String(); got != "temporary" {
		t.Errorf("ClassTemporary.String() = %q", got)
	}
	if got := bridge.ClassUnknown.String(); got != "unknown" {
		t.Errorf("ClassUnknown.String() = %q", got)
	}
}
