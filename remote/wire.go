// Package remote defines the RemoteSessionService contract consumed by the
// bridged backend: the wire types, the connect RPC client and handler, and an
// in-process reference implementation. Variable values cross the wire as
// protobuf Values so any language on the far side can produce and consume
// them without sharing Go types.
package remote

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/varstate/variables"
)

// Procedure paths for the session service. One unary RPC per operation.
const (
	ProcedureCreateSession    = "/varstate.v1.SessionService/CreateSession"
	ProcedureRegisterVariable = "/varstate.v1.SessionService/RegisterVariable"
	ProcedureGetVariable      = "/varstate.v1.SessionService/GetVariable"
	ProcedureSetVariable      = "/varstate.v1.SessionService/SetVariable"
	ProcedureDeleteVariable   = "/varstate.v1.SessionService/DeleteVariable"
	ProcedureListVariables    = "/varstate.v1.SessionService/ListVariables"
	ProcedureGetVariables     = "/varstate.v1.SessionService/GetVariables"
	ProcedureUpdateVariables  = "/varstate.v1.SessionService/UpdateVariables"
	ProcedureDeleteSession    = "/varstate.v1.SessionService/DeleteSession"
)

// Variable is the wire form of a variable.
type Variable struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          string            `json:"type"`
	Value         *structpb.Value   `json:"value"`
	Constraints   *structpb.Struct  `json:"constraints,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
}

type CreateSessionRequest struct {
	SessionID string            `json:"session_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
}

// RegisterVariableRequest creates a variable in a remote session. The
// preservation fields (ID, Version, CreatedAt, MigratedFrom) are set only by
// state import during backend migration; ordinary registration leaves them
// zero and the service assigns a fresh id at version 0.
type RegisterVariableRequest struct {
	SessionID   string            `json:"session_id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Value       *structpb.Value   `json:"value"`
	Constraints *structpb.Struct  `json:"constraints,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	ID           string    `json:"id,omitempty"`
	Version      int       `json:"version,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	MigratedFrom string    `json:"migrated_from,omitempty"`
}

type RegisterVariableResponse struct {
	ID string `json:"id"`
}

type GetVariableRequest struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier"`
}

type GetVariableResponse struct {
	Variable *Variable `json:"variable"`
}

type SetVariableRequest struct {
	SessionID  string            `json:"session_id"`
	Identifier string            `json:"identifier"`
	Value      *structpb.Value   `json:"value"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type SetVariableResponse struct {
	Version int `json:"version"`
}

type DeleteVariableRequest struct {
	SessionID  string `json:"session_id"`
	Identifier string `json:"identifier"`
}

type DeleteVariableResponse struct{}

type ListVariablesRequest struct {
	SessionID string `json:"session_id"`
}

type ListVariablesResponse struct {
	Variables []*Variable `json:"variables"`
}

type GetVariablesRequest struct {
	SessionID   string   `json:"session_id"`
	Identifiers []string `json:"identifiers"`
}

// GetVariablesResponse carries only the identifiers that resolved; missing
// identifiers are omitted rather than reported as errors.
type GetVariablesResponse struct {
	Variables map[string]*Variable `json:"variables"`
}

type UpdateVariablesRequest struct {
	SessionID string                     `json:"session_id"`
	Updates   map[string]*structpb.Value `json:"updates"`
	Metadata  map[string]string          `json:"metadata,omitempty"`
}

// UpdateVariablesResponse reports per-identifier failures. An empty Errors
// map means every update committed.
type UpdateVariablesResponse struct {
	Errors map[string]*WireError `json:"errors,omitempty"`
}

type DeleteSessionRequest struct {
	SessionID string `json:"session_id"`
}

type DeleteSessionResponse struct{}

// ToWire converts a variable to its wire form.
func ToWire(v *variables.Variable) (*Variable, error) {
	value, err := structpb.NewValue(v.Value)
	if err != nil {
		return nil, fmt.Errorf("encode value for %s: %w", v.Name, err)
	}

	var constraints *structpb.Struct
	if len(v.Constraints) > 0 {
		constraints, err = structpb.NewStruct(map[string]any(v.Constraints))
		if err != nil {
			return nil, fmt.Errorf("encode constraints for %s: %w", v.Name, err)
		}
	}

	return &Variable{
		ID:            v.ID,
		Name:          v.Name,
		Type:          string(v.Type),
		Value:         value,
		Constraints:   constraints,
		Metadata:      v.Metadata,
		Version:       v.Version,
		CreatedAt:     v.CreatedAt,
		LastUpdatedAt: v.LastUpdatedAt,
	}, nil
}

// FromWire converts a wire variable back to the model. Values arrive as the
// protobuf Value scalar set (all numbers are float64); callers that need the
// model's native representation re-validate through the type registry.
func FromWire(w *Variable) *variables.Variable {
	var constraints variables.Constraints
	if w.Constraints != nil {
		constraints = variables.Constraints(w.Constraints.AsMap())
	}

	return &variables.Variable{
		ID:            w.ID,
		Name:          w.Name,
		Type:          variables.Type(w.Type),
		Value:         w.Value.AsInterface(),
		Constraints:   constraints,
		Metadata:      w.Metadata,
		Version:       w.Version,
		CreatedAt:     w.CreatedAt,
		LastUpdatedAt: w.LastUpdatedAt,
	}
}
