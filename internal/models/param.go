package models

import (
	"encoding/json"
	"fmt"
)

// ParamKind discriminates the two forms an action parameter can take.
type ParamKind string

const (
	// ParamLiteral is a plain value passed to the handler unchanged.
	ParamLiteral ParamKind = "literal"
	// ParamReference is replaced by (a field of) another action's result before execution.
	ParamReference ParamKind = "reference"
)

// Reference points at the result of another action in the same plan.
// Field is an optional path into that result, e.g. "stdout" or "items[0].name".
type Reference struct {
	ActionID string `json:"action_id"`
	Field    string `json:"field,omitempty"`
}

// Param is a tagged union: either a Literal value or a Reference.
type Param struct {
	Kind  ParamKind  `json:"kind"`
	Value any        `json:"value,omitempty"`
	Ref   *Reference `json:"ref,omitempty"`
}

// Literal wraps a plain value.
func Literal(v any) Param {
	return Param{Kind: ParamLiteral, Value: v}
}

// Ref builds a reference to actionID's result, optionally narrowed to field.
func Ref(actionID, field string) Param {
	return Param{Kind: ParamReference, Ref: &Reference{ActionID: actionID, Field: field}}
}

// IsReference reports whether the param must be resolved before execution.
func (p Param) IsReference() bool {
	return p.Kind == ParamReference && p.Ref != nil
}

// String renders the param for logs.
func (p Param) String() string {
	if p.IsReference() {
		if p.Ref.Field == "" {
			return fmt.Sprintf("ref(%s)", p.Ref.ActionID)
		}
		return fmt.Sprintf("ref(%s.%s)", p.Ref.ActionID, p.Ref.Field)
	}
	return fmt.Sprintf("%v", p.Value)
}

// UnmarshalJSON accepts the tagged form and fills in Kind for older snapshots
// that omitted it.
func (p *Param) UnmarshalJSON(data []byte) error {
	type rawParam Param
	var raw rawParam
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode param: %w", err)
	}
	switch raw.Kind {
	case ParamReference:
		if raw.Ref == nil || raw.Ref.ActionID == "" {
			return fmt.Errorf("reference param requires an action_id")
		}
	case ParamLiteral:
	case "":
		if raw.Ref != nil {
			raw.Kind = ParamReference
		} else {
			raw.Kind = ParamLiteral
		}
	default:
		return fmt.Errorf("unknown param kind %q", raw.Kind)
	}
	*p = Param(raw)
	return nil
}

// LiteralParams converts a plain map into literal params.
func LiteralParams(in map[string]any) map[string]Param {
	if in == nil {
		return nil
	}
	out := make(map[string]Param, len(in))
	for k, v := range in {
		out[k] = Literal(v)
	}
	return out
}

func cloneParams(in map[string]Param) map[string]Param {
	if in == nil {
		return nil
	}
	out := make(map[string]Param, len(in))
	for k, v := range in {
		if v.Ref != nil {
			ref := *v.Ref
			v.Ref = &ref
		}
		out[k] = v
	}
	return out
}
