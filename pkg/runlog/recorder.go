package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
)

// Entry kinds.
const (
	KindInput       = "input"
	KindPrompt      = "prompt"
	KindResponse    = "response"
	KindToolResults = "tool_results"
	KindOutput      = "output"
	KindError       = "error"
)

// Recorder stores flow run traces as node chains. It implements
// flow.Recorder.
type Recorder struct {
	storer Storer
	logger *zap.Logger
}

func NewRecorder(storer Storer, logger *zap.Logger) *Recorder {
	return &Recorder{storer: storer, logger: logger}
}

// Record stores the chain for t.
func (r *Recorder) Record(ctx context.Context, t *flow.Trace) error {
	_, err := r.Append(ctx, t)
	return err
}

// Append stores the chain for t and returns its leaf: the output node of a
// successful run, or the error node of a failed one.
func (r *Recorder) Append(ctx context.Context, t *flow.Trace) (*Node, error) {
	var parent *Node
	put := func(kind string, data any) error {
		node := NewNode(entry(kind, t.Flow, data), parent)
		if err := r.storer.Put(ctx, node); err != nil {
			return fmt.Errorf("storing %s node: %w", kind, err)
		}
		parent = node
		return nil
	}

	if err := put(KindInput, redact(t.Input)); err != nil {
		return nil, err
	}
	if t.Prompt != nil {
		if err := put(KindPrompt, promptData(t)); err != nil {
			return nil, err
		}
	}

	// tool results sit between the response that asked for them and the
	// response that used them
	for i, resp := range t.Responses {
		if err := put(KindResponse, responseData(resp)); err != nil {
			return nil, err
		}
		if i == 0 && len(t.ToolResults) > 0 {
			if err := put(KindToolResults, redact(t.ToolResults)); err != nil {
				return nil, err
			}
		}
	}

	if t.Err != nil {
		data := map[string]any{
			"kind":    string(t.Err.Kind),
			"state":   string(t.Err.State),
			"message": t.Err.Error(),
		}
		if err := put(KindError, data); err != nil {
			return nil, err
		}
	} else {
		if err := put(KindOutput, redact(t.Output)); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("run recorded",
		zap.String("flow", t.Flow),
		zap.String("run_id", t.RunID),
		zap.String("leaf", parent.Hash),
	)

	return parent, nil
}

func entry(kind, flowName string, data any) map[string]any {
	e := map[string]any{"kind": kind, "flow": flowName}
	if data != nil {
		e["data"] = data
	}

	return e
}

func promptData(t *flow.Trace) []any {
	segs := make([]any, 0, len(t.Prompt))
	for _, seg := range t.Prompt {
		if seg.IsMedia() {
			segs = append(segs, map[string]any{"media": digest(seg.Media)})
			continue
		}
		segs = append(segs, map[string]any{"text": seg.Text})
	}

	return segs
}

func responseData(resp *llm.Response) map[string]any {
	data := map[string]any{
		"model":         resp.Model,
		"finish_reason": resp.FinishReason,
		"usage": map[string]any{
			"input_tokens":  float64(resp.Usage.InputTokens),
			"output_tokens": float64(resp.Usage.OutputTokens),
		},
	}
	if text := resp.Text(); text != "" {
		data["text"] = text
	}
	if calls := resp.ToolCalls(); len(calls) > 0 {
		data["tool_calls"] = redact(calls)
	}
	if refs := resp.Media(); len(refs) > 0 {
		ms := make([]any, len(refs))
		for i, ref := range refs {
			ms[i] = digest(ref)
		}
		data["media"] = ms
	}

	return data
}

func digest(ref media.Reference) map[string]any {
	return map[string]any{
		"mime_type": ref.MIMEType(),
		"sha256":    ref.Digest(),
		"size":      float64(ref.Size()),
	}
}

// redact normalizes v to plain JSON values, the shape SQLiteStorer reads
// back, and replaces every media payload with its digest.
func redact(v any) any {
	if v == nil {
		return nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("unencodable %T: %v", v, err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return fmt.Sprintf("unencodable %T: %v", v, err)
	}

	return redactValue(plain)
}

func redactValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = redactValue(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = redactValue(val)
		}
		return t
	case string:
		if strings.HasPrefix(t, "data:") {
			if ref, err := media.Parse(t); err == nil {
				return digest(ref)
			}
		}
		return t
	default:
		return v
	}
}
