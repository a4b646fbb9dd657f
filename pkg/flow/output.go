package flow

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/papercomputeco/studyflow/pkg/llm"
)

// decodeOutput turns the model's final response into a payload for output
// validation.
//
// The text is read as a JSON object, optionally inside a Markdown code
// fence, and prose after the closing fence is ignored. When the text is not
// JSON-shaped at all and the output has a single string field, the trimmed
// text becomes that field. JSON-shaped text that fails to decode is an error. A media output field takes the first
// media part of the response.
func (d *Definition) decodeOutput(resp *llm.Response) (map[string]any, error) {
	text := strings.TrimSpace(resp.Text())

	obj, objErr := decodeObject(text)

	if d.mediaOutput != "" {
		refs := resp.Media()
		if len(refs) == 0 {
			return nil, errors.New("response carries no media")
		}
		if obj == nil {
			obj = map[string]any{}
		}
		obj[d.mediaOutput] = refs[0]
		return obj, nil
	}

	if objErr == nil {
		return obj, nil
	}

	if field, ok := d.output.SoleStringField(); ok && text != "" && !jsonShaped(text) {
		return map[string]any{field: text}, nil
	}
	if text == "" {
		return nil, errors.New("response is empty")
	}

	return nil, fmt.Errorf("response is not a JSON object: %w", objErr)
}

func decodeObject(text string) (map[string]any, error) {
	body := stripFence(text)

	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("got JSON %T, want an object", v)
	}

	return obj, nil
}

// jsonShaped reports whether text opens like a JSON value or a code fence.
func jsonShaped(text string) bool {
	return strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "```")
}

// stripFence returns the body of a leading ``` or ```json fence. Anything
// after the closing fence is dropped.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}

	body := strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// drop the info string, e.g. "json"
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}

	return strings.TrimSpace(body)
}
