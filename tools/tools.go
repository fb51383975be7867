package tools

import (
	"context"
	"encoding/json"
	"strconv"
)

// Parameter types understood by the validator and exported to providers.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Tool defines the interface for any action the agent can take.
//
// Execute receives its arguments positionally, in the order of Parameters.
// Format turns the raw result into the value serialized into the session and
// an optional one-line progress note for the terminal.
type Tool interface {
	Name() string
	Description() string
	Parameters() []Parameter
	Execute(ctx context.Context, args Args) (any, error)
	Format(result any) (value any, progress string)
}

// Parameter declares one argument of a tool.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool

	// Items is the element type of an array parameter.
	Items string
}

// Call is a provider-selected tool invocation.
type Call struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Definition is what providers are told about a tool.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// JSONSchema renders the parameter list as a JSON Schema object.
func (d Definition) JSONSchema() map[string]any {
	props := make(map[string]any, len(d.Parameters))
	required := []string{}
	for _, p := range d.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Type == TypeArray {
			items := p.Items
			if items == "" {
				items = TypeString
			}
			prop["items"] = map[string]any{"type": items}
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// Result is the outcome of one tool execution: either a formatted value
// (with its progress note) or an error.
type Result struct {
	Value    any
	Progress string
	Err      error
}

// Args holds tool arguments in declared parameter order. Absent optional
// arguments are nil.
type Args []any

// Value returns the i-th argument or nil.
func (a Args) Value(i int) any {
	if i < 0 || i >= len(a) {
		return nil
	}
	return a[i]
}

// String returns the i-th argument as a string, or "".
func (a Args) String(i int) string {
	s, _ := a.Value(i).(string)
	return s
}

// Bool returns the i-th argument as a bool, or false.
func (a Args) Bool(i int) bool {
	b, _ := a.Value(i).(bool)
	return b
}

// Int returns the i-th argument as an int, or def when absent or not numeric.
func (a Args) Int(i int, def int) int {
	switch v := a.Value(i).(type) {
	case float64:
		return int(v)
	case float32:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := strconv.Atoi(string(v)); err == nil {
			return n
		}
	}
	return def
}

// bindArgs extracts the named arguments in parameter order.
func bindArgs(args map[string]any, params []Parameter) Args {
	out := make(Args, len(params))
	for i, p := range params {
		out[i] = args[p.Name]
	}
	return out
}
