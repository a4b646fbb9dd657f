package flow

import "fmt"

// State is a step of a single run.
type State string

const (
	StateIdle             State = "Idle"
	StateValidating       State = "Validating"
	StateRendering        State = "Rendering"
	StateGenerating       State = "Generating"
	StateValidatingOutput State = "ValidatingOutput"
	StateSucceeded        State = "Succeeded"
	StateFailed           State = "Failed"
)

// ErrorKind tags why a run failed.
type ErrorKind string

const (
	SchemaViolation       ErrorKind = "SchemaViolation"
	TemplateBindingError  ErrorKind = "TemplateBindingError"
	ModelUnavailable      ErrorKind = "ModelUnavailable"
	OutputSchemaViolation ErrorKind = "OutputSchemaViolation"
	ToolArgumentError     ErrorKind = "ToolArgumentError"
	UnsupportedMediaError ErrorKind = "UnsupportedMediaError"
)

// Error is the failure of a run. It records the state the run was in when
// it failed and wraps the cause.
type Error struct {
	Kind  ErrorKind
	Flow  string
	RunID string
	State State

	// Transitions is the path the run took, ending in StateFailed.
	Transitions []State

	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("flow %s: %s during %s: %v", e.Flow, e.Kind, e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, &flow.Error{Kind: k})
// tests the failure kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Flow == "" && t.Err == nil
}
