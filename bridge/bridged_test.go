package bridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/tailored-agentic-units/varstate/bridge"
	"github.com/tailored-agentic-units/varstate/remote"
	"github.com/tailored-agentic-units/varstate/state"
	"github.com/tailored-agentic-units/varstate/variables"
)

// flakyService fails the first failures calls of every operation with a
// retryable connect error, then delegates to the wrapped service.
type flakyService struct {
	remote.Service
	failures int
	calls    int
}

func (f *flakyService) trip() error {
	f.calls++
	if f.calls <= f.failures {
		return connect.NewError(connect.CodeUnavailable, errors.New("remote flapping"))
	}
	return nil
}

func (f *flakyService) CreateSession(ctx context.Context, req *remote.CreateSessionRequest) (*remote.CreateSessionResponse, error) {
	if err := f.trip(); err != nil {
		return nil, err
	}
	return f.Service.CreateSession(ctx, req)
}

func (f *flakyService) SetVariable(ctx context.Context, req *remote.SetVariableRequest) (*remote.SetVariableResponse, error) {
	if err := f.trip(); err != nil {
		return nil, err
	}
	return f.Service.SetVariable(ctx, req)
}

func newBridged(t *testing.T, reg *variables.Registry, svc remote.Service, existing *state.Snapshot) *bridge.BridgedState {
	t.Helper()
	b, err := bridge.New(context.Background(), reg, svc, existing, bridge.WithRetryPolicy(bridge.RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Microsecond,
		MaxDelay:   time.Millisecond,
	}))
	if err != nil {
		t.Fatalf("bridge.New failed: %v", err)
	}
	return b
}

func TestBridgedState_RegisterGetSet(t *testing.T) {
	ctx := context.Background()
	reg := variables.NewRegistry()
	b := newBridged(t, reg, remote.NewMemoryService(reg), nil)

	id, err := b.RegisterVariable(ctx, "temperature", variables.TypeFloat, 0.7, state.RegisterOptions{
		Constraints: variables.Constraints{"min": 0.0, "max": 2.0},
	})
	if err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}

	v, err := b.GetVariable(ctx, id)
	if err != nil {
		t.Fatalf("GetVariable failed: %v", err)
	}
	if v.Value != 0.7 || v.Version != 0 {
		t.Errorf("got value %v version %d, want 0.7 version 0", v.Value, v.Version)
	}

	if err := b.SetVariable(ctx, "temperature", 3.0, nil); !errors.Is(err, variables.ErrValidation) {
		t.Errorf("out-of-range set error = %v, want ErrValidation", err)
	}
	if err := b.SetVariable(ctx, "temperature", 0.9, nil); err != nil {
		t.Fatalf("SetVariable failed: %v", err)
	}

	v, err = b.GetVariable(ctx, "temperature")
	if err != nil {
		t.Fatalf("GetVariable failed: %v", err)
	}
	if v.Value != 0.9 || v.Version != 1 {
		t.Errorf("got value %v version %d, want 0.9 version 1", v.Value, v.Version)
	}
}

// Integer values survive the protobuf Value round trip as int64, not float64.
func TestBridgedState_IntegerNormalization(t *testing.T) {
	ctx := context.Background()
	reg := variables.NewRegistry()
	b := newBridged(t, reg, remote.NewMemoryService(reg), nil)

	if _, err := b.RegisterVariable(ctx, "retries", variables.TypeInteger, 5, state.RegisterOptions{}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}

	v, err := b.GetVariable(ctx, "retries")
	if err != nil {
		t.Fatalf("GetVariable failed: %v", err)
	}
	if got, ok := v.Value.(int64); !ok || got != 5 {
		t.Errorf("Value = %v (%T), want int64(5)", v.Value, v.Value)
	}

	found, err := b.GetVariables(ctx, []string{"retries"})
	if err != nil {
		t.Fatalf("GetVariables failed: %v", err)
	}
	if got, ok := found["retries"].Value.(int64); !ok || got != 5 {
		t.Errorf("batch Value = %v (%T), want int64(5)", found["retries"].Value, found["retries"].Value)
	}
}

func TestBridgedState_PermanentErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	reg := variables.NewRegistry()
	b := newBridged(t, reg, remote.NewMemoryService(reg), nil)

	if _, err := b.GetVariable(ctx, "ghost"); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("missing variable error = %v, want ErrNotFound", err)
	}

	if _, err := b.RegisterVariable(ctx, "mode", variables.TypeString, "fast", state.RegisterOptions{}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}
	if _, err := b.RegisterVariable(ctx, "mode", variables.TypeString, "slow", state.RegisterOptions{}); !errors.Is(err, state.ErrAlreadyExists) {
		t.Errorf("duplicate register error = %v, want ErrAlreadyExists", err)
	}

	if _, err := b.RegisterVariable(ctx, "bad", "tensor", 1.0, state.RegisterOptions{}); !errors.Is(err, variables.ErrUnknownType) {
		t.Errorf("unknown type error = %v, want ErrUnknownType", err)
	}
}

func TestBridgedState_RetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	reg := variables.NewRegistry()
	flaky := &flakyService{Service: remote.NewMemoryService(reg), failures: 2}

	// CreateSession itself is retried through the two trips.
	b := newBridged(t, reg, flaky, nil)

	if _, err := b.RegisterVariable(ctx, "mode", variables.TypeString, "fast", state.RegisterOptions{}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}

	// The budget is exhausted before a service that keeps failing recovers.
	flaky.failures = flaky.calls + 10
	err := b.SetVariable(ctx, "mode", "slow", nil)
	if bridge.Classify(err) != bridge.ClassTemporary {
		t.Errorf("exhausted retry error = %v, want a temporary classification", err)
	}
}

func TestBridgedState_UpdateVariablesPartialFailure(t *testing.T) {
	ctx := context.Background()
	reg := variables.NewRegistry()
	b := newBridged(t, reg, remote.NewMemoryService(reg), nil)

	if _, err := b.RegisterVariable(ctx, "a", variables.TypeInteger, 1, state.RegisterOptions{}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}
	if _, err := b.RegisterVariable(ctx, "b", variables.TypeInteger, 2, state.RegisterOptions{
		Constraints: variables.Constraints{"max": 10},
	}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}

	err := b.UpdateVariables(ctx, map[string]any{"a": 100, "b": 99, "ghost": 1}, nil)

	var pf *state.PartialFailureError
	if !errors.As(err, &pf) {
		t.Fatalf("UpdateVariables error = %v, want *PartialFailureError", err)
	}
	if len(pf.Errors) != 2 {
		t.Fatalf("PartialFailureError has %d entries, want 2: %v", len(pf.Errors), pf.Errors)
	}
	if !errors.Is(pf.Errors["b"], variables.ErrValidation) {
		t.Errorf("Errors[b] = %v, want ErrValidation", pf.Errors["b"])
	}
	if !errors.Is(pf.Errors["ghost"], state.ErrNotFound) {
		t.Errorf("Errors[ghost] = %v, want ErrNotFound", pf.Errors["ghost"])
	}

	a, err := b.GetVariable(ctx, "a")
	if err != nil {
		t.Fatalf("GetVariable failed: %v", err)
	}
	if a.Value != int64(100) {
		t.Errorf("a = %v, want 100", a.Value)
	}
}

func TestBridgedState_ImportPreservesIdentity(t *testing.T) {
	ctx := context.Background()
	reg := variables.NewRegistry()

	local, err := state.NewLocalState(reg, nil)
	if err != nil {
		t.Fatalf("NewLocalState failed: %v", err)
	}
	if _, err := local.RegisterVariable(ctx, "temperature", variables.TypeFloat, 0.7, state.RegisterOptions{
		Constraints: variables.Constraints{"min": 0.0, "max": 2.0},
	}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}
	if err := local.SetVariable(ctx, "temperature", 0.9, nil); err != nil {
		t.Fatalf("SetVariable failed: %v", err)
	}
	snap, err := local.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState failed: %v", err)
	}

	b := newBridged(t, reg, remote.NewMemoryService(reg), snap)

	orig := snap.Variables[snap.Index["temperature"]]
	got, err := b.GetVariable(ctx, "temperature")
	if err != nil {
		t.Fatalf("GetVariable after import failed: %v", err)
	}
	if got.ID != orig.ID {
		t.Errorf("imported ID = %q, want %q", got.ID, orig.ID)
	}
	if got.Version != orig.Version {
		t.Errorf("imported Version = %d, want %d", got.Version, orig.Version)
	}
	if got.Value != 0.9 {
		t.Errorf("imported Value = %v, want 0.9", got.Value)
	}
	if got.Metadata[state.MetadataMigratedFrom] != local.SessionID() {
		t.Errorf("Metadata[%s] = %q, want source session id", state.MetadataMigratedFrom, got.Metadata[state.MetadataMigratedFrom])
	}

	// Constraints still apply after migration.
	if err := b.SetVariable(ctx, "temperature", 3.0, nil); !errors.Is(err, variables.ErrValidation) {
		t.Errorf("out-of-range set after import error = %v, want ErrValidation", err)
	}
}

func TestBridgedState_ExportState(t *testing.T) {
	ctx := context.Background()
	reg := variables.NewRegistry()
	b := newBridged(t, reg, remote.NewMemoryService(reg), nil)

	if _, err := b.RegisterVariable(ctx, "a", variables.TypeInteger, 1, state.RegisterOptions{}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}
	if _, err := b.RegisterVariable(ctx, "b", variables.TypeString, "x", state.RegisterOptions{}); err != nil {
		t.Fatalf("RegisterVariable failed: %v", err)
	}

	snap, err := b.ExportState(ctx)
	if err != nil {
		t.Fatalf("ExportState failed: %v", err)
	}
	if err := snap.Validate(); err != nil {
		t.Errorf("exported snapshot invalid: %v", err)
	}
	if snap.SessionID != b.SessionID() {
		t.Errorf("snapshot SessionID = %q, want %q", snap.SessionID, b.SessionID())
	}
	if len(snap.Variables) != 2 || len(snap.Index) != 2 {
		t.Errorf("snapshot has %d variables and %d index entries, want 2 and 2", len(snap.Variables), len(snap.Index))
	}
}

func TestBridgedState_Cleanup(t *testing.T) {
	ctx := context.Background()
	reg := variables.NewRegistry()
	svc := remote.NewMemoryService(reg)
	b := newBridged(t, reg, svc, nil)

	if err := b.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if err := b.Cleanup(ctx); err != nil {
		t.Errorf("second Cleanup should be a no-op, got %v", err)
	}
	if _, err := b.GetVariable(ctx, "anything"); !errors.Is(err, state.ErrSessionExpired) {
		t.Errorf("get after cleanup error = %v, want ErrSessionExpired", err)
	}

	// The remote session is gone too.
	if _, err := svc.ListVariables(ctx, &remote.ListVariablesRequest{SessionID: b.SessionID()}); !errors.Is(err, state.ErrSessionExpired) {
		t.Errorf("remote list after cleanup error = %v, want ErrSessionExpired", err)
	}
}

func TestBridgedState_Capabilities(t *testing.T) {
	reg := variables.NewRegistry()
	b := newBridged(t, reg, remote.NewMemoryService(reg), nil)

	caps := b.Capabilities()
	if !caps.Persistent || !caps.Distributed {
		t.Errorf("capabilities = %+v, want Persistent and Distributed", caps)
	}
	if !b.RequiresBridge() {
		t.Error("BridgedState should require a bridge")
	}
}
