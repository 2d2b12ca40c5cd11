package event

import (
	"fmt"
	"strings"
)

// Code tags a validation failure with the rule it violates. Structural
// failures (missing fields, unknown enum members) carry CodeStructural.
type Code string

const (
	// CodeStructural marks a missing or malformed field.
	CodeStructural Code = "STRUCTURAL"
	// CodeRule1: epistemicType must be a member of the closed set.
	CodeRule1 Code = "RULE_1"
	// CodeRule2: a given event must not ground itself in interpretation
	// (no semantic references, no external references to meant events).
	CodeRule2 Code = "RULE_2"
	// CodeRule3: events are never deleted; tombstones and supersessions
	// reference the target instead.
	CodeRule3 Code = "RULE_3"
	// CodeRule7: meant/derived events must ground, acyclically, in at
	// least one given event.
	CodeRule7 Code = "RULE_7"
	// CodeRule8: derived values need a computational reference and a
	// derivation descriptor.
	CodeRule8 Code = "RULE_8"
	// CodeRule9: given events cannot be superseded.
	CodeRule9 Code = "RULE_9"
)

// ValidationError is one structural or rule violation.
type ValidationError struct {
	Code    Code   `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationErrors is the full list of violations for one event. Append
// returns it as a value the caller can inspect; it is never panicked.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return "event validation failed: " + strings.Join(msgs, "; ")
}

// Has reports whether any violation carries code.
func (es ValidationErrors) Has(code Code) bool {
	for _, e := range es {
		if e.Code == code {
			return true
		}
	}
	return false
}
