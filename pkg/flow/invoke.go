package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Invoke runs def with a typed input and decodes the validated output into
// Out. Media fields map to media.Reference values on both sides.
func Invoke[Out any](ctx context.Context, exec *Executor, def *Definition, in any) (Out, error) {
	var out Out

	raw, err := toMap(in)
	if err != nil {
		return out, &Error{
			Kind:        SchemaViolation,
			Flow:        def.name,
			State:       StateValidating,
			Transitions: []State{StateIdle, StateValidating, StateFailed},
			Err:         err,
		}
	}

	res, err := exec.Run(ctx, def, raw)
	if err != nil {
		return out, err
	}

	if err := fromMap(res.Output, &out); err != nil {
		return out, &Error{
			Kind:        OutputSchemaViolation,
			Flow:        def.name,
			RunID:       res.RunID,
			State:       StateValidatingOutput,
			Transitions: append(res.Transitions, StateFailed),
			Err:         err,
		}
	}

	return out, nil
}

func toMap(in any) (map[string]any, error) {
	if m, ok := in.(map[string]any); ok {
		return m, nil
	}

	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encoding input: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("input is not an object: %w", err)
	}

	return m, nil
}

func fromMap(m map[string]any, out any) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding output: %w", err)
	}

	return nil
}
