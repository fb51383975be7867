package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
)

var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Validate reports whether args satisfy params. It never panics.
func Validate(args map[string]any, params []Parameter) bool {
	return CheckArgs(args, params) == nil
}

// CheckArgs returns a description of the first way args violate params, or
// nil. Required parameters must be present and non-nil; present values must
// match the declared type. Undeclared keys are ignored.
func CheckArgs(args map[string]any, params []Parameter) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("malformed arguments: %v", p)
		}
	}()

	for _, p := range params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				return fmt.Errorf("missing required parameter %q", p.Name)
			}
			continue
		}
		if err := checkType(v, p.Type, p.Items); err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
	}
	return nil
}

func checkType(v any, typ, items string) error {
	switch typ {
	case TypeString:
		if _, ok := v.(string); ok {
			return nil
		}
	case TypeNumber:
		if isNumber(v) {
			return nil
		}
	case TypeInteger:
		if isInteger(v) {
			return nil
		}
	case TypeBoolean:
		if _, ok := v.(bool); ok {
			return nil
		}
	case TypeObject:
		if _, ok := v.(map[string]any); ok {
			return nil
		}
	case TypeArray:
		return checkArray(v, items)
	default:
		return fmt.Errorf("unsupported type %q", typ)
	}
	return fmt.Errorf("expected %s but got %T", typ, v)
}

func checkArray(v any, items string) error {
	var elems []any
	switch a := v.(type) {
	case []any:
		elems = a
	case []string:
		if items == "" || items == TypeString {
			return nil
		}
		return fmt.Errorf("expected array of %s but got []string", items)
	default:
		return fmt.Errorf("expected array but got %T", v)
	}
	for i, e := range elems {
		if items == "" {
			if !isPrimitive(e) {
				return fmt.Errorf("element %d: expected primitive but got %T", i, e)
			}
			continue
		}
		if err := checkType(e, items, ""); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	return isNumber(v)
}

func isNumber(value any) bool {
	switch v := value.(type) {
	case float32:
		return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
	case float64:
		return !math.IsNaN(v) && !math.IsInf(v, 0)
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case json.Number:
		_, err := v.Float64()
		return err == nil
	}
	return false
}

func isInteger(value any) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64:
		return true
	case uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return isNumber(v) && math.Trunc(float64(v)) == float64(v)
	case float64:
		return isNumber(v) && math.Trunc(v) == v
	case json.Number:
		_, err := v.Int64()
		return err == nil
	}
	return false
}

// checkContract verifies a tool's declaration before it is registered.
func checkContract(t Tool) error {
	name := t.Name()
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("invalid tool name %q", name)
	}
	seen := map[string]bool{}
	optionalSeen := false
	for i, p := range t.Parameters() {
		if p.Name == "" {
			return fmt.Errorf("tool %s: parameter %d has no name", name, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("tool %s: duplicate parameter %q", name, p.Name)
		}
		seen[p.Name] = true

		switch p.Type {
		case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeObject:
		case TypeArray:
			switch p.Items {
			case "", TypeString, TypeNumber, TypeInteger, TypeBoolean:
			default:
				return fmt.Errorf("tool %s: parameter %q has non-primitive items %q", name, p.Name, p.Items)
			}
		default:
			return fmt.Errorf("tool %s: parameter %q has unsupported type %q", name, p.Name, p.Type)
		}

		if p.Required && optionalSeen {
			return fmt.Errorf("tool %s: required parameter %q follows an optional one", name, p.Name)
		}
		if !p.Required {
			optionalSeen = true
		}
	}
	return nil
}
