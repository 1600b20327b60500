package variables

import (
	"fmt"
	"math"
	"regexp"
)

// floatValidator accepts floating-point values and widens integer literals.
type floatValidator struct{}

func (floatValidator) Validate(raw any) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return nil, fmt.Errorf("%w: expected float, got %T", ErrValidation, raw)
	}
}

func (floatValidator) ValidateConstraints(value any, constraints Constraints) error {
	f := value.(float64)
	return checkNumericConstraints(f, constraints)
}

// integerValidator accepts integer values. Floats with an integral value are
// narrowed, which keeps integers stable across JSON and protobuf Value
// round trips where all numbers arrive as float64.
type integerValidator struct{}

func (integerValidator) Validate(raw any) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("%w: expected integer, got non-integral float %v", ErrValidation, v)
		}
		return int64(v), nil
	case float32:
		f := float64(v)
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("%w: expected integer, got non-integral float %v", ErrValidation, f)
		}
		return int64(f), nil
	default:
		return nil, fmt.Errorf("%w: expected integer, got %T", ErrValidation, raw)
	}
}

func (integerValidator) ValidateConstraints(value any, constraints Constraints) error {
	i := value.(int64)
	if err := checkNumericConstraints(float64(i), constraints); err != nil {
		return err
	}
	return checkEnumConstraint(value, constraints)
}

// stringValidator accepts strings only; no coercion from other types.
type stringValidator struct{}

func (stringValidator) Validate(raw any) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("%w: expected string, got %T", ErrValidation, raw)
	}
	return s, nil
}

func (stringValidator) ValidateConstraints(value any, constraints Constraints) error {
	s := value.(string)

	if min, ok, err := intConstraint(constraints, "min_length"); err != nil {
		return err
	} else if ok && len(s) < min {
		return fmt.Errorf("%w: length %d below min_length %d", ErrValidation, len(s), min)
	}
	if max, ok, err := intConstraint(constraints, "max_length"); err != nil {
		return err
	} else if ok && len(s) > max {
		return fmt.Errorf("%w: length %d above max_length %d", ErrValidation, len(s), max)
	}
	if raw, ok := constraints["pattern"]; ok {
		pattern, isStr := raw.(string)
		if !isStr {
			return fmt.Errorf("%w: pattern constraint must be a string, got %T", ErrValidation, raw)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: invalid pattern %q: %v", ErrValidation, pattern, err)
		}
		if !re.MatchString(s) {
			return fmt.Errorf("%w: value %q does not match pattern %q", ErrValidation, s, pattern)
		}
	}
	return checkEnumConstraint(value, constraints)
}

// booleanValidator accepts booleans only.
type booleanValidator struct{}

func (booleanValidator) Validate(raw any) (any, error) {
	b, ok := raw.(bool)
	if !ok {
		return nil, fmt.Errorf("%w: expected boolean, got %T", ErrValidation, raw)
	}
	return b, nil
}

func (booleanValidator) ValidateConstraints(any, Constraints) error {
	return nil
}

func checkNumericConstraints(f float64, constraints Constraints) error {
	if min, ok, err := numberConstraint(constraints, "min"); err != nil {
		return err
	} else if ok && f < min {
		return fmt.Errorf("%w: value %v below min %v", ErrValidation, f, min)
	}
	if max, ok, err := numberConstraint(constraints, "max"); err != nil {
		return err
	} else if ok && f > max {
		return fmt.Errorf("%w: value %v above max %v", ErrValidation, f, max)
	}
	return nil
}

// checkEnumConstraint verifies membership in an "enum" list. Numeric enum
// entries are compared by value so 2 and 2.0 are the same member.
func checkEnumConstraint(value any, constraints Constraints) error {
	raw, ok := constraints["enum"]
	if !ok {
		return nil
	}
	members, isList := raw.([]any)
	if !isList {
		return fmt.Errorf("%w: enum constraint must be a list, got %T", ErrValidation, raw)
	}
	for _, m := range members {
		if constraintEqual(value, m) {
			return nil
		}
	}
	return fmt.Errorf("%w: value %v not in enum %v", ErrValidation, value, members)
}

func constraintEqual(value, member any) bool {
	if vf, vok := asFloat(value); vok {
		if mf, mok := asFloat(member); mok {
			return vf == mf
		}
		return false
	}
	return value == member
}

func numberConstraint(constraints Constraints, key string) (float64, bool, error) {
	raw, ok := constraints[key]
	if !ok {
		return 0, false, nil
	}
	f, isNum := asFloat(raw)
	if !isNum {
		return 0, false, fmt.Errorf("%w: %s constraint must be numeric, got %T", ErrValidation, key, raw)
	}
	return f, true, nil
}

func intConstraint(constraints Constraints, key string) (int, bool, error) {
	f, ok, err := numberConstraint(constraints, key)
	return int(f), ok, err
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
