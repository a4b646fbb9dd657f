// Package tool declares callable tools and runs the model's tool-call
// requests against them.
package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/schema"
)

// Func is a tool implementation. args has already been validated against
// the tool's input schema.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Definition is a stateless callable tool.
type Definition struct {
	Name        string
	Description string
	Input       *schema.Schema

	// Output validates the implementation's result. Nil means a plain string.
	Output *schema.Schema

	Fn Func
}

// ArgumentError reports tool-call arguments that do not match the tool's
// input schema.
type ArgumentError struct {
	Tool string
	Err  error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.Tool, e.Err)
}

func (e *ArgumentError) Unwrap() error { return e.Err }

// Check verifies the definition is complete and its schemas well formed.
func (d *Definition) Check() error {
	if d.Name == "" {
		return errors.New("tool without a name")
	}
	if d.Fn == nil {
		return fmt.Errorf("tool %q: no implementation", d.Name)
	}
	if d.Input == nil || d.Input.Kind != schema.KindObject {
		return fmt.Errorf("tool %q: input schema must be an object", d.Name)
	}
	if err := d.Input.Check(); err != nil {
		return fmt.Errorf("tool %q: %w", d.Name, err)
	}
	if d.Output != nil {
		if err := d.Output.Check(); err != nil {
			return fmt.Errorf("tool %q: %w", d.Name, err)
		}
	}

	return nil
}

// Spec is the tool as advertised to the model.
func (d *Definition) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Input.JSONSchema(),
	}
}

// Arguments decodes and validates raw tool-call arguments.
func (d *Definition) Arguments(raw json.RawMessage) (map[string]any, error) {
	var payload any = map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&payload); err != nil {
			return nil, &ArgumentError{Tool: d.Name, Err: fmt.Errorf("arguments are not JSON: %w", err)}
		}
	}

	args, err := schema.ValidateObject(d.Input, payload)
	if err != nil {
		return nil, &ArgumentError{Tool: d.Name, Err: err}
	}

	return args, nil
}

// Invoke runs the tool once for call. Every failure becomes an error
// observation for the model rather than a Go error.
func (d *Definition) Invoke(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	res, _ := d.Call(ctx, call)
	return res
}

// Call is Invoke that also returns the failure cause. The result is always
// usable; err is non-nil exactly when res.IsError is set.
func (d *Definition) Call(ctx context.Context, call llm.ToolCall) (llm.ToolResult, error) {
	res := llm.ToolResult{CallID: call.ID, Name: d.Name}

	args, err := d.Arguments(call.Arguments)
	if err != nil {
		return failed(res, err)
	}

	out, err := d.Fn(ctx, args)
	if err != nil {
		return failed(res, fmt.Errorf("tool %q failed: %w", d.Name, err))
	}

	output := d.Output
	if output == nil {
		output = schema.String()
	}
	if _, err := schema.Validate(output, out); err != nil {
		return failed(res, fmt.Errorf("tool %q returned invalid output: %w", d.Name, err))
	}

	res.Content = out
	return res, nil
}

func failed(res llm.ToolResult, err error) (llm.ToolResult, error) {
	res.Content = err.Error()
	res.IsError = true
	return res, err
}
