package bridge

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/varstate/observability"
	"github.com/tailored-agentic-units/varstate/remote"
	"github.com/tailored-agentic-units/varstate/state"
	"github.com/tailored-agentic-units/varstate/variables"
)

// BridgedState is the RPC-backed Provider. The remote session service is the
// source of truth; this backend holds only the session id, the shared type
// registry, and session-local metadata. Every call goes through the retry
// policy, so transient remote failures are absorbed up to the configured
// budget and permanent failures return immediately.
type BridgedState struct {
	sessionID string
	registry  *variables.Registry
	service   remote.Service
	retry     RetryPolicy
	observer  observability.Observer

	mu       sync.Mutex
	metadata map[string]string
	closed   bool
}

// Option configures a BridgedState at construction.
type Option func(*BridgedState)

// WithSessionID overrides the generated remote session identifier.
func WithSessionID(id string) Option {
	return func(b *BridgedState) { b.sessionID = id }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(b *BridgedState) { b.retry = p }
}

// WithObserver sets the observer receiving retry events.
func WithObserver(obs observability.Observer) Option {
	return func(b *BridgedState) { b.observer = obs }
}

// WithSessionMetadata seeds the session-level metadata map.
func WithSessionMetadata(metadata map[string]string) Option {
	return func(b *BridgedState) { b.metadata = maps.Clone(metadata) }
}

// New creates a BridgedState and allocates its remote session. When existing
// is non-nil the snapshot is imported into the fresh session; if that import
// fails the partially-created remote session is torn down and the error is
// returned, leaving the caller free to retry against its previous backend.
func New(ctx context.Context, registry *variables.Registry, service remote.Service, existing *state.Snapshot, opts ...Option) (*BridgedState, error) {
	if registry == nil {
		registry = variables.NewRegistry()
	}

	b := &BridgedState{
		sessionID: uuid.Must(uuid.NewV7()).String(),
		registry:  registry,
		service:   service,
		retry:     DefaultRetryPolicy(),
		observer:  observability.NoOpObserver{},
		metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.metadata == nil {
		b.metadata = make(map[string]string)
	}

	userOnRetry := b.retry.OnRetry
	b.retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		b.observer.OnEvent(ctx, observability.Event{
			Type:      observability.EventRetryAttempt,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "state.bridged",
			Data: map[string]any{
				"session_id": b.sessionID,
				"backend":    "bridged",
				"attempt":    attempt + 1,
				"delay_ms":   delay.Milliseconds(),
				"error":      err.Error(),
			},
		})
		if userOnRetry != nil {
			userOnRetry(attempt, delay, err)
		}
	}

	err := b.retry.Do(ctx, func(ctx context.Context) error {
		_, err := service.CreateSession(ctx, &remote.CreateSessionRequest{
			SessionID: b.sessionID,
			Metadata:  b.metadata,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create remote session: %w", err)
	}

	if existing != nil {
		if err := b.ImportState(ctx, existing); err != nil {
			// Release the half-allocated session; best effort.
			_, _ = service.DeleteSession(ctx, &remote.DeleteSessionRequest{SessionID: b.sessionID})
			return nil, err
		}
	}

	return b, nil
}

func (b *BridgedState) SessionID() string {
	return b.sessionID
}

func (b *BridgedState) RegisterVariable(ctx context.Context, name string, t variables.Type, initial any, opts state.RegisterOptions) (string, error) {
	if err := b.checkOpen(); err != nil {
		return "", err
	}

	// Validate through the shared registry before paying for the round
	// trip; both backends must accept and reject identically.
	value, err := b.registry.Validate(t, initial)
	if err != nil {
		return "", err
	}
	if err := b.registry.ValidateConstraints(t, value, opts.Constraints); err != nil {
		return "", err
	}

	wireValue, err := structpb.NewValue(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", variables.ErrValidation, err)
	}
	var wireConstraints *structpb.Struct
	if len(opts.Constraints) > 0 {
		wireConstraints, err = structpb.NewStruct(map[string]any(opts.Constraints))
		if err != nil {
			return "", fmt.Errorf("%w: %v", variables.ErrValidation, err)
		}
	}

	var id string
	err = b.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := b.service.RegisterVariable(ctx, &remote.RegisterVariableRequest{
			SessionID:   b.sessionID,
			Name:        name,
			Type:        string(t),
			Value:       wireValue,
			Constraints: wireConstraints,
			Metadata:    opts.Metadata,
		})
		if err != nil {
			return err
		}
		id = resp.ID
		return nil
	})
	return id, err
}

func (b *BridgedState) GetVariable(ctx context.Context, identifier string) (*variables.Variable, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var v *variables.Variable
	err := b.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := b.service.GetVariable(ctx, &remote.GetVariableRequest{
			SessionID:  b.sessionID,
			Identifier: identifier,
		})
		if err != nil {
			return err
		}
		v = b.normalize(remote.FromWire(resp.Variable))
		return nil
	})
	return v, err
}

func (b *BridgedState) SetVariable(ctx context.Context, identifier string, value any, metadata map[string]string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	wireValue, err := structpb.NewValue(value)
	if err != nil {
		return fmt.Errorf("%w: %v", variables.ErrValidation, err)
	}

	// A retried set re-applies the same value; remote writes are idempotent
	// by overwrite semantics.
	return b.retry.Do(ctx, func(ctx context.Context) error {
		_, err := b.service.SetVariable(ctx, &remote.SetVariableRequest{
			SessionID:  b.sessionID,
			Identifier: identifier,
			Value:      wireValue,
			Metadata:   metadata,
		})
		return err
	})
}

func (b *BridgedState) DeleteVariable(ctx context.Context, identifier string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	return b.retry.Do(ctx, func(ctx context.Context) error {
		_, err := b.service.DeleteVariable(ctx, &remote.DeleteVariableRequest{
			SessionID:  b.sessionID,
			Identifier: identifier,
		})
		return err
	})
}

func (b *BridgedState) ListVariables(ctx context.Context) ([]*variables.Variable, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var listed []*variables.Variable
	err := b.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := b.service.ListVariables(ctx, &remote.ListVariablesRequest{SessionID: b.sessionID})
		if err != nil {
			return err
		}
		listed = make([]*variables.Variable, 0, len(resp.Variables))
		for _, w := range resp.Variables {
			listed = append(listed, b.normalize(remote.FromWire(w)))
		}
		return nil
	})
	return listed, err
}

func (b *BridgedState) GetVariables(ctx context.Context, identifiers []string) (map[string]*variables.Variable, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	// One RPC for the whole batch; the remote contract has a true get-many.
	var found map[string]*variables.Variable
	err := b.retry.Do(ctx, func(ctx context.Context) error {
		resp, err := b.service.GetVariables(ctx, &remote.GetVariablesRequest{
			SessionID:   b.sessionID,
			Identifiers: identifiers,
		})
		if err != nil {
			return err
		}
		found = make(map[string]*variables.Variable, len(resp.Variables))
		for identifier, w := range resp.Variables {
			found[identifier] = b.normalize(remote.FromWire(w))
		}
		return nil
	})
	return found, err
}

func (b *BridgedState) UpdateVariables(ctx context.Context, updates map[string]any, metadata map[string]string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	failures := make(map[string]error)
	wireUpdates := make(map[string]*structpb.Value, len(updates))
	for identifier, value := range updates {
		wireValue, err := structpb.NewValue(value)
		if err != nil {
			failures[identifier] = fmt.Errorf("%w: %v", variables.ErrValidation, err)
			continue
		}
		wireUpdates[identifier] = wireValue
	}

	if len(wireUpdates) > 0 {
		err := b.retry.Do(ctx, func(ctx context.Context) error {
			resp, err := b.service.UpdateVariables(ctx, &remote.UpdateVariablesRequest{
				SessionID: b.sessionID,
				Updates:   wireUpdates,
				Metadata:  metadata,
			})
			if err != nil {
				return err
			}
			for identifier, wireErr := range resp.Errors {
				failures[identifier] = wireErr.Err()
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	if len(failures) > 0 {
		return &state.PartialFailureError{Errors: failures}
	}
	return nil
}

func (b *BridgedState) ExportState(ctx context.Context) (*state.Snapshot, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	listed, err := b.ListVariables(ctx)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	metadata := maps.Clone(b.metadata)
	b.mu.Unlock()

	snap := &state.Snapshot{
		SessionID: b.sessionID,
		Variables: make(map[string]*variables.Variable, len(listed)),
		Index:     make(map[string]string, len(listed)),
		Metadata:  metadata,
	}
	for _, v := range listed {
		snap.Variables[v.ID] = v
		snap.Index[v.Name] = v.ID
	}
	return snap, nil
}

func (b *BridgedState) ImportState(ctx context.Context, snap *state.Snapshot) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}

	imported := make([]*variables.Variable, 0, len(snap.Variables))
	for _, v := range snap.Variables {
		imported = append(imported, v)
	}
	sort.Slice(imported, func(i, j int) bool {
		if imported[i].CreatedAt.Equal(imported[j].CreatedAt) {
			return imported[i].Name < imported[j].Name
		}
		return imported[i].CreatedAt.Before(imported[j].CreatedAt)
	})

	failed := make(map[string]error)
	for _, v := range imported {
		if err := b.importVariable(ctx, snap.SessionID, v); err != nil {
			failed[v.Name] = err
		}
	}

	b.mu.Lock()
	maps.Copy(b.metadata, snap.Metadata)
	b.mu.Unlock()

	if len(failed) > 0 {
		return &state.ImportError{Failed: failed}
	}
	return nil
}

// importVariable registers one exported variable remotely, carrying the
// preservation fields so id and version survive the migration.
func (b *BridgedState) importVariable(ctx context.Context, sourceSession string, v *variables.Variable) error {
	value, err := b.registry.Validate(v.Type, v.Value)
	if err != nil {
		return err
	}
	if err := b.registry.ValidateConstraints(v.Type, value, v.Constraints); err != nil {
		return err
	}

	wireValue, err := structpb.NewValue(value)
	if err != nil {
		return fmt.Errorf("%w: %v", variables.ErrValidation, err)
	}
	var wireConstraints *structpb.Struct
	if len(v.Constraints) > 0 {
		wireConstraints, err = structpb.NewStruct(map[string]any(v.Constraints))
		if err != nil {
			return fmt.Errorf("%w: %v", variables.ErrValidation, err)
		}
	}

	return b.retry.Do(ctx, func(ctx context.Context) error {
		_, err := b.service.RegisterVariable(ctx, &remote.RegisterVariableRequest{
			SessionID:    b.sessionID,
			Name:         v.Name,
			Type:         string(v.Type),
			Value:        wireValue,
			Constraints:  wireConstraints,
			Metadata:     v.Metadata,
			ID:           v.ID,
			Version:      v.Version,
			CreatedAt:    v.CreatedAt,
			MigratedFrom: sourceSession,
		})
		return err
	})
}

func (b *BridgedState) Capabilities() state.Capabilities {
	return state.Capabilities{
		Persistent:  true,
		Distributed: true,
	}
}

func (b *BridgedState) RequiresBridge() bool {
	return true
}

func (b *BridgedState) Cleanup(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	return b.retry.Do(ctx, func(ctx context.Context) error {
		_, err := b.service.DeleteSession(ctx, &remote.DeleteSessionRequest{SessionID: b.sessionID})
		return err
	})
}

func (b *BridgedState) checkOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return state.ErrSessionExpired
	}
	return nil
}

// normalize re-validates a wire value so callers see the type's native Go
// representation (protobuf Values deliver every number as float64).
func (b *BridgedState) normalize(v *variables.Variable) *variables.Variable {
	if value, err := b.registry.Validate(v.Type, v.Value); err == nil {
		v.Value = value
	}
	return v
}
