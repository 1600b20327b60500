package variables

import (
	"fmt"
	"sort"
	"sync"
)

// Validator checks values for one variable type.
//
// Validate coerces raw input where safe (an integer literal is widened for a
// float variable, an integral float is narrowed for an integer variable) and
// rejects everything else. ValidateConstraints checks the already-validated
// value against type-specific rules and reports the first violated rule.
type Validator interface {
	Validate(raw any) (any, error)
	ValidateConstraints(value any, constraints Constraints) error
}

// Registry maps type tags to validators. It is an explicit value injected
// into every backend at construction time rather than a package global, so
// both backends of one session share identical validation semantics and
// tests can install isolated registries.
// Thread-safe for concurrent access.
type Registry struct {
	mu         sync.RWMutex
	validators map[Type]Validator
}

// NewRegistry creates a Registry with the built-in float, integer, string,
// and boolean validators installed.
func NewRegistry() *Registry {
	return &Registry{
		validators: map[Type]Validator{
			TypeFloat:   floatValidator{},
			TypeInteger: integerValidator{},
			TypeString:  stringValidator{},
			TypeBoolean: booleanValidator{},
		},
	}
}

// Register installs a validator for a new type tag. Registering over an
// existing tag fails so built-in semantics cannot be silently changed.
func (r *Registry) Register(t Type, v Validator) error {
	if t == "" {
		return fmt.Errorf("%w: empty type tag", ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.validators[t]; exists {
		return fmt.Errorf("validator already registered: %s", t)
	}
	r.validators[t] = v
	return nil
}

// Validate coerces and checks raw against the validator for t.
// Returns ErrUnknownType for unregistered tags.
func (r *Registry) Validate(t Type, raw any) (any, error) {
	v, err := r.lookup(t)
	if err != nil {
		return nil, err
	}
	return v.Validate(raw)
}

// ValidateConstraints checks a validated value against constraints for t.
func (r *Registry) ValidateConstraints(t Type, value any, constraints Constraints) error {
	v, err := r.lookup(t)
	if err != nil {
		return err
	}
	return v.ValidateConstraints(value, constraints)
}

// Types returns all registered type tags, sorted.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]Type, 0, len(r.validators))
	for t := range r.validators {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (r *Registry) lookup(t Type) (Validator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, exists := r.validators[t]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return v, nil
}
