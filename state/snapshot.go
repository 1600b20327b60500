package state

import (
	"fmt"
	"maps"

	"github.com/tailored-agentic-units/varstate/variables"
)

// Snapshot is the backend-agnostic export of a session's state. It is the
// sole interchange format between backends: the output of any provider's
// ExportState is valid input to any provider's ImportState, and the JSON
// encoding is stable for persistence.
type Snapshot struct {
	SessionID string                         `json:"session_id"`
	Variables map[string]*variables.Variable `json:"variables"`
	Index     map[string]string              `json:"variable_index"`
	Metadata  map[string]string              `json:"metadata,omitempty"`
}

// Validate checks that the snapshot carries the keys every backend needs.
// Returns ErrInvalidExportFormat on missing session id, nil variable map,
// or an index entry pointing at a variable the snapshot does not contain.
func (s *Snapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil snapshot", ErrInvalidExportFormat)
	}
	if s.SessionID == "" {
		return fmt.Errorf("%w: missing session_id", ErrInvalidExportFormat)
	}
	if s.Variables == nil {
		return fmt.Errorf("%w: missing variables", ErrInvalidExportFormat)
	}
	if s.Index == nil {
		return fmt.Errorf("%w: missing variable_index", ErrInvalidExportFormat)
	}
	for name, id := range s.Index {
		if _, ok := s.Variables[id]; !ok {
			return fmt.Errorf("%w: index entry %q references unknown variable %q", ErrInvalidExportFormat, name, id)
		}
	}
	return nil
}

// Clone returns an independent copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := &Snapshot{
		SessionID: s.SessionID,
		Variables: make(map[string]*variables.Variable, len(s.Variables)),
		Index:     maps.Clone(s.Index),
		Metadata:  maps.Clone(s.Metadata),
	}
	for id, v := range s.Variables {
		c.Variables[id] = v.Clone()
	}
	return c
}
