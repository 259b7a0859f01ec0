package triage

import (
	"encoding/json"
	"strings"

	"github.com/daviddao/mailtriage/internal/types"
)

// ParseDecision extracts the JSON object embedded in raw model output and
// validates it into a Decision. It returns a *ParseError when no object can be
// decoded and a *ValidationError when the object breaks the decision contract.
func ParseDecision(raw string) (types.Decision, error) {
	obj, err := extractObject(raw)
	if err != nil {
		return types.Decision{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &fields); err != nil {
		return types.Decision{}, &ParseError{Msg: "malformed JSON object", Err: err}
	}

	var d types.Decision

	category, err := requiredString(fields, "category")
	if err != nil {
		return types.Decision{}, err
	}
	d.Category = types.Category(category)
	if !d.Category.Valid() {
		return types.Decision{}, &ValidationError{Field: "category", Value: category, Reason: "not an allowed category"}
	}

	priority, err := requiredString(fields, "priority")
	if err != nil {
		return types.Decision{}, err
	}
	d.Priority = types.Priority(priority)
	if !d.Priority.Valid() {
		return types.Decision{}, &ValidationError{Field: "priority", Value: priority, Reason: "not an allowed priority"}
	}

	action, err := requiredString(fields, "action")
	if err != nil {
		return types.Decision{}, err
	}
	d.Action = types.Action(action)
	if !d.Action.Valid() {
		return types.Decision{}, &ValidationError{Field: "action", Value: action, Reason: "not an allowed action"}
	}

	if d.Reason, err = requiredString(fields, "reason"); err != nil {
		return types.Decision{}, err
	}
	if d.Label, err = optionalString(fields, "label"); err != nil {
		return types.Decision{}, err
	}
	if d.Star, err = flag(fields, "star"); err != nil {
		return types.Decision{}, err
	}
	if d.Archive, err = flag(fields, "archive"); err != nil {
		return types.Decision{}, err
	}
	return d, nil
}

// extractObject returns the span from the first '{' to the last '}' inclusive.
func extractObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end <= start {
		return "", &ParseError{Msg: "no JSON object found in model response"}
	}
	return raw[start : end+1], nil
}

func isNull(v json.RawMessage) bool {
	return strings.TrimSpace(string(v)) == "null"
}

func requiredString(fields map[string]json.RawMessage, key string) (string, error) {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return "", &ValidationError{Field: key, Reason: "required"}
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &ValidationError{Field: key, Value: string(v), Reason: "must be a string"}
	}
	return s, nil
}

func optionalString(fields map[string]json.RawMessage, key string) (string, error) {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", &ValidationError{Field: key, Value: string(v), Reason: "must be a string or null"}
	}
	return s, nil
}

// flag reads a boolean that models sometimes emit as "true"/"false" strings.
func flag(fields map[string]json.RawMessage, key string) (bool, error) {
	v, ok := fields[key]
	if !ok || isNull(v) {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return strings.EqualFold(s, "true"), nil
	}
	return false, &ValidationError{Field: key, Value: string(v), Reason: "must be a boolean"}
}
