// Package variables defines the typed, versioned variable model and the
// type registry shared by every state backend. A Variable's value is always
// the result of successful validation against its type and constraints;
// backends never persist a value that failed validation.
package variables

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Type tags a variable with its validator in the registry.
type Type string

// Built-in variable types registered by NewRegistry.
const (
	TypeFloat   Type = "float"
	TypeInteger Type = "integer"
	TypeString  Type = "string"
	TypeBoolean Type = "boolean"
)

// Constraints holds type-specific validation rules. Recognized keys depend
// on the variable type: "min"/"max" for numerics, "min_length"/"max_length"/
// "pattern" for strings, and "enum" for strings and integers. Unrecognized
// keys are ignored so constraint maps can round-trip through storage that
// adds its own annotations.
type Constraints map[string]any

// Variable is a typed, versioned, constrained named value.
//
// ID is assigned at registration and immutable for the variable's lifetime.
// Version starts at 0 and increases by exactly 1 per successful set; it is
// never reset, including across backend migration.
type Variable struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	Type          Type              `json:"type"`
	Value         any               `json:"value"`
	Constraints   Constraints       `json:"constraints,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Version       int               `json:"version"`
	CreatedAt     time.Time         `json:"created_at"`
	LastUpdatedAt time.Time         `json:"last_updated_at"`
}

// Clone returns an independent copy of the variable. Constraint values are
// shared (constraints are treated as immutable after registration).
func (v *Variable) Clone() *Variable {
	if v == nil {
		return nil
	}
	c := *v
	c.Constraints = maps.Clone(v.Constraints)
	c.Metadata = maps.Clone(v.Metadata)
	return &c
}

// MergeMetadata merges entries into the variable's metadata map, creating it
// on first use. Existing keys are overwritten; metadata is never replaced
// wholesale.
func (v *Variable) MergeMetadata(metadata map[string]string) {
	if len(metadata) == 0 {
		return
	}
	if v.Metadata == nil {
		v.Metadata = make(map[string]string, len(metadata))
	}
	maps.Copy(v.Metadata, metadata)
}

// NewID generates a unique variable identifier. The name is embedded for
// log readability; uniqueness comes from the UUIDv7 suffix.
func NewID(name string) string {
	return fmt.Sprintf("var_%s_%s", name, uuid.Must(uuid.NewV7()).String())
}
