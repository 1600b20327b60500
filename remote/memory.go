package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/varstate/state"
	"github.com/tailored-agentic-units/varstate/variables"
)

// MemoryService is the in-process reference implementation of Service: one
// LocalState per session, all sharing a single type registry so validation
// semantics match the local backend exactly. It backs the varstated daemon
// and the bridged backend's tests.
type MemoryService struct {
	mu       sync.RWMutex
	registry *variables.Registry
	sessions map[string]*state.LocalState
}

// NewMemoryService creates a MemoryService validating against registry
// (a fresh default registry when nil).
func NewMemoryService(registry *variables.Registry) *MemoryService {
	if registry == nil {
		registry = variables.NewRegistry()
	}
	return &MemoryService{
		registry: registry,
		sessions: make(map[string]*state.LocalState),
	}
}

func (s *MemoryService) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[req.SessionID]; exists {
		return nil, fmt.Errorf("%w: session %s", state.ErrAlreadyExists, req.SessionID)
	}

	local, err := state.NewLocalState(s.registry, nil,
		state.WithSessionID(req.SessionID),
		state.WithSessionMetadata(req.Metadata),
	)
	if err != nil {
		return nil, err
	}

	s.sessions[req.SessionID] = local
	return &CreateSessionResponse{SessionID: req.SessionID}, nil
}

func (s *MemoryService) RegisterVariable(ctx context.Context, req *RegisterVariableRequest) (*RegisterVariableResponse, error) {
	session, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	var constraints variables.Constraints
	if req.Constraints != nil {
		constraints = variables.Constraints(req.Constraints.AsMap())
	}

	// Migration path: the importing side supplies the id, version, and
	// creation time to preserve; registration goes through import so the
	// normal validation path still applies.
	if req.ID != "" {
		source := req.MigratedFrom
		if source == "" {
			source = req.SessionID
		}
		v := &variables.Variable{
			ID:            req.ID,
			Name:          req.Name,
			Type:          variables.Type(req.Type),
			Value:         req.Value.AsInterface(),
			Constraints:   constraints,
			Metadata:      req.Metadata,
			Version:       req.Version,
			CreatedAt:     req.CreatedAt,
			LastUpdatedAt: req.CreatedAt,
		}
		snap := &state.Snapshot{
			SessionID: source,
			Variables: map[string]*variables.Variable{v.ID: v},
			Index:     map[string]string{v.Name: v.ID},
		}
		if err := session.ImportState(ctx, snap); err != nil {
			var ie *state.ImportError
			if errors.As(err, &ie) {
				if entryErr, ok := ie.Failed[req.Name]; ok {
					return nil, entryErr
				}
			}
			return nil, err
		}
		return &RegisterVariableResponse{ID: req.ID}, nil
	}

	id, err := session.RegisterVariable(ctx, req.Name, variables.Type(req.Type), req.Value.AsInterface(), state.RegisterOptions{
		Constraints: constraints,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return &RegisterVariableResponse{ID: id}, nil
}

func (s *MemoryService) GetVariable(ctx context.Context, req *GetVariableRequest) (*GetVariableResponse, error) {
	session, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	v, err := session.GetVariable(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	w, err := ToWire(v)
	if err != nil {
		return nil, err
	}
	return &GetVariableResponse{Variable: w}, nil
}

func (s *MemoryService) SetVariable(ctx context.Context, req *SetVariableRequest) (*SetVariableResponse, error) {
	session, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	if err := session.SetVariable(ctx, req.Identifier, req.Value.AsInterface(), req.Metadata); err != nil {
		return nil, err
	}
	v, err := session.GetVariable(ctx, req.Identifier)
	if err != nil {
		return nil, err
	}
	return &SetVariableResponse{Version: v.Version}, nil
}

func (s *MemoryService) DeleteVariable(ctx context.Context, req *DeleteVariableRequest) (*DeleteVariableResponse, error) {
	session, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	if err := session.DeleteVariable(ctx, req.Identifier); err != nil {
		return nil, err
	}
	return &DeleteVariableResponse{}, nil
}

func (s *MemoryService) ListVariables(ctx context.Context, req *ListVariablesRequest) (*ListVariablesResponse, error) {
	session, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	listed, err := session.ListVariables(ctx)
	if err != nil {
		return nil, err
	}

	resp := &ListVariablesResponse{Variables: make([]*Variable, 0, len(listed))}
	for _, v := range listed {
		w, err := ToWire(v)
		if err != nil {
			return nil, err
		}
		resp.Variables = append(resp.Variables, w)
	}
	return resp, nil
}

func (s *MemoryService) GetVariables(ctx context.Context, req *GetVariablesRequest) (*GetVariablesResponse, error) {
	session, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	found, err := session.GetVariables(ctx, req.Identifiers)
	if err != nil {
		return nil, err
	}

	resp := &GetVariablesResponse{Variables: make(map[string]*Variable, len(found))}
	for identifier, v := range found {
		w, err := ToWire(v)
		if err != nil {
			return nil, err
		}
		resp.Variables[identifier] = w
	}
	return resp, nil
}

func (s *MemoryService) UpdateVariables(ctx context.Context, req *UpdateVariablesRequest) (*UpdateVariablesResponse, error) {
	session, err := s.session(req.SessionID)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any, len(req.Updates))
	for identifier, value := range req.Updates {
		updates[identifier] = value.AsInterface()
	}

	err = session.UpdateVariables(ctx, updates, req.Metadata)
	if err == nil {
		return &UpdateVariablesResponse{}, nil
	}

	var pf *state.PartialFailureError
	if !errors.As(err, &pf) {
		return nil, err
	}

	resp := &UpdateVariablesResponse{Errors: make(map[string]*WireError, len(pf.Errors))}
	for identifier, entryErr := range pf.Errors {
		resp.Errors[identifier] = NewWireError(entryErr)
	}
	return resp, nil
}

func (s *MemoryService) DeleteSession(ctx context.Context, req *DeleteSessionRequest) (*DeleteSessionResponse, error) {
	s.mu.Lock()
	session, exists := s.sessions[req.SessionID]
	delete(s.sessions, req.SessionID)
	s.mu.Unlock()

	// Deleting an unknown session is a no-op so cleanup stays idempotent.
	if exists {
		if err := session.Cleanup(ctx); err != nil {
			return nil, err
		}
	}
	return &DeleteSessionResponse{}, nil
}

func (s *MemoryService) session(id string) (*state.LocalState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[id]
	if !exists {
		return nil, fmt.Errorf("%w: session %s", state.ErrSessionExpired, id)
	}
	return session, nil
}
