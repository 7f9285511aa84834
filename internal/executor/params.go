package executor

import (
	"encoding/json"
	"strings"

	"github.com/PaesslerAG/jsonpath"

	"github.com/harrison/pursuit/internal/models"
)

// ResolveParams returns the literal value of every param of action. Reference
// params are replaced by (a field of) the referenced action's result. A
// reference to an action that has not completed successfully always fails;
// no partial or stale value is ever returned.
func ResolveParams(plan *models.Plan, action *models.Action) (map[string]any, error) {
	resolved := make(map[string]any, len(action.Params))
	for _, name := range sortedParamNames(action.Params) {
		p := action.Params[name]
		if !p.IsReference() {
			resolved[name] = p.Value
			continue
		}
		value, err := resolveReference(plan, action.ID, name, *p.Ref)
		if err != nil {
			return nil, err
		}
		resolved[name] = value
	}
	return resolved, nil
}

func resolveReference(plan *models.Plan, actionID, param string, ref models.Reference) (any, error) {
	fail := func(reason string, err error) error {
		return &ResolutionError{ActionID: actionID, Param: param, Reference: ref, Reason: reason, Err: err}
	}

	source := plan.Action(ref.ActionID)
	if source == nil {
		return nil, fail("referenced action does not exist", nil)
	}
	if source.Status != models.ActionCompletedSuccess {
		return nil, fail("referenced action has status "+string(source.Status), nil)
	}
	result, ok := plan.Results[ref.ActionID]
	if !ok {
		result = source.Result
	}
	if ref.Field == "" {
		return result, nil
	}

	doc, err := normalizeResult(result)
	if err != nil {
		return nil, fail("result is not addressable", err)
	}
	value, err := jsonpath.Get(fieldExpression(ref.Field), doc)
	if err != nil {
		return nil, fail("field lookup failed", err)
	}
	return value, nil
}

// fieldExpression turns a field path such as "stdout" or "items[0].name"
// into a JSONPath expression rooted at the result.
func fieldExpression(field string) string {
	switch {
	case strings.HasPrefix(field, "$"):
		return field
	case strings.HasPrefix(field, "["):
		return "$" + field
	default:
		return "$." + field
	}
}

// normalizeResult converts structs and typed maps into the generic
// map[string]any / []any form JSONPath walks, using their JSON encoding.
func normalizeResult(result any) (any, error) {
	switch result.(type) {
	case map[string]any, []any, nil, string, bool, float64:
		return result, nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// boundAction returns the copy of action handed to the handler: every param
// is a literal holding its resolved value.
func boundAction(action *models.Action, values map[string]any) models.Action {
	bound := *action.Clone()
	bound.Params = models.LiteralParams(values)
	return bound
}
