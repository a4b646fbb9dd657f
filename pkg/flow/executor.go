package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/pkg/prompt"
	"github.com/papercomputeco/studyflow/pkg/schema"
	"github.com/papercomputeco/studyflow/pkg/tool"
)

// Result is a successful run.
type Result struct {
	RunID       string
	Flow        string
	Output      map[string]any
	Transitions []State
	ToolResults []llm.ToolResult
	Usage       llm.Usage
	Duration    time.Duration
}

// Trace is everything a run saw, handed to the Recorder whether the run
// succeeded or not.
type Trace struct {
	RunID       string
	Flow        string
	Started     time.Time
	Duration    time.Duration
	Input       map[string]any
	Prompt      prompt.Rendered
	Responses   []*llm.Response
	ToolResults []llm.ToolResult
	Output      map[string]any
	Transitions []State

	// Err is set when the run failed.
	Err *Error
}

// Recorder receives the trace of every finished run. A Recorder error is
// logged and never fails the run.
type Recorder interface {
	Record(ctx context.Context, t *Trace) error
}

// Executor runs flow definitions against a model backend. It holds no
// per-run state and is safe for concurrent use.
type Executor struct {
	gen      llm.Generator
	logger   *zap.Logger
	recorder Recorder
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder sends every run's trace to r.
func WithRecorder(r Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

func NewExecutor(gen llm.Generator, logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{gen: gen, logger: logger}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

type run struct {
	def    *Definition
	trace  *Trace
	logger *zap.Logger
}

func (r *run) to(s State) {
	r.trace.Transitions = append(r.trace.Transitions, s)
	r.logger.Debug("flow state", zap.String("state", string(s)))
}

func (r *run) current() State {
	return r.trace.Transitions[len(r.trace.Transitions)-1]
}

func (r *run) fail(kind ErrorKind, err error) *Error {
	state := r.current()
	r.to(StateFailed)

	fe := &Error{
		Kind:        kind,
		Flow:        r.def.name,
		RunID:       r.trace.RunID,
		State:       state,
		Transitions: append([]State(nil), r.trace.Transitions...),
		Err:         err,
	}
	r.trace.Err = fe
	r.logger.Error("flow failed", zap.String("kind", string(kind)), zap.String("state", string(state)), zap.Error(err))

	return fe
}

// Run executes def once for raw input. It never retries: a failure is
// returned as a *Error tagged with its kind.
func (e *Executor) Run(ctx context.Context, def *Definition, raw map[string]any) (*Result, error) {
	r := &run{
		def: def,
		trace: &Trace{
			RunID:   uuid.NewString(),
			Flow:    def.name,
			Started: time.Now(),
		},
	}
	r.logger = e.logger.With(zap.String("flow", def.name), zap.String("run_id", r.trace.RunID))
	r.to(StateIdle)

	out, err := e.execute(ctx, r, raw)
	r.trace.Duration = time.Since(r.trace.Started)
	e.record(ctx, r)
	if err != nil {
		return nil, err
	}

	r.logger.Info("flow succeeded", zap.Duration("duration", r.trace.Duration))

	var usage llm.Usage
	for _, resp := range r.trace.Responses {
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
	}

	return &Result{
		RunID:       r.trace.RunID,
		Flow:        def.name,
		Output:      out,
		Transitions: append([]State(nil), r.trace.Transitions...),
		ToolResults: r.trace.ToolResults,
		Usage:       usage,
		Duration:    r.trace.Duration,
	}, nil
}

func (e *Executor) execute(ctx context.Context, r *run, raw map[string]any) (map[string]any, *Error) {
	def := r.def

	r.to(StateValidating)
	if raw == nil {
		raw = map[string]any{}
	}
	input, err := schema.ValidateObject(def.input, raw)
	if err != nil {
		var unsupported *media.UnsupportedError
		if errors.As(err, &unsupported) {
			return nil, r.fail(UnsupportedMediaError, err)
		}
		return nil, r.fail(SchemaViolation, err)
	}
	r.trace.Input = input

	r.to(StateRendering)
	rendered, err := def.template.Render(input)
	if err != nil {
		return nil, r.fail(TemplateBindingError, err)
	}
	r.trace.Prompt = rendered

	r.to(StateGenerating)
	req := def.request(rendered)
	resp, ferr := e.generate(ctx, r, req)
	if ferr != nil {
		return nil, ferr
	}

	if calls := resp.ToolCalls(); len(calls) > 0 {
		results := e.invokeTools(ctx, r, calls)

		resultParts := make([]llm.Part, len(results))
		for i, res := range results {
			resultParts[i] = llm.ToolResultPart(res)
		}
		req.Messages = append(req.Messages,
			resp.Message,
			llm.Message{Role: llm.RoleTool, Parts: resultParts},
		)

		resp, ferr = e.generate(ctx, r, req)
		if ferr != nil {
			return nil, ferr
		}
		if len(resp.ToolCalls()) > 0 {
			r.to(StateValidatingOutput)
			return nil, r.fail(OutputSchemaViolation, errors.New("model requested another tool call after the tool round trip"))
		}
	}

	r.to(StateValidatingOutput)
	payload, err := def.decodeOutput(resp)
	if err != nil {
		return nil, r.fail(OutputSchemaViolation, err)
	}
	out, err := schema.ValidateObject(def.output, payload)
	if err != nil {
		return nil, r.fail(OutputSchemaViolation, err)
	}
	if def.verify != nil {
		if err := def.verify(input, out); err != nil {
			return nil, r.fail(OutputSchemaViolation, err)
		}
	}
	r.trace.Output = out

	r.to(StateSucceeded)
	return out, nil
}

func (e *Executor) generate(ctx context.Context, r *run, req *llm.Request) (*llm.Response, *Error) {
	if err := ctx.Err(); err != nil {
		return nil, r.fail(ModelUnavailable, err)
	}

	start := time.Now()
	resp, err := e.gen.Generate(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrUnsupportedMedia) {
			return nil, r.fail(UnsupportedMediaError, err)
		}
		return nil, r.fail(ModelUnavailable, fmt.Errorf("generating: %w", err))
	}
	if resp == nil {
		return nil, r.fail(ModelUnavailable, errors.New("backend returned no response"))
	}

	r.trace.Responses = append(r.trace.Responses, resp)
	r.logger.Debug("model responded",
		zap.String("model", resp.Model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("tool_calls", len(resp.ToolCalls())),
		zap.Int("media", len(resp.Media())),
	)

	return resp, nil
}

// invokeTools runs every requested tool exactly once. Failures become error
// observations for the model.
func (e *Executor) invokeTools(ctx context.Context, r *run, calls []llm.ToolCall) []llm.ToolResult {
	results := make([]llm.ToolResult, len(calls))
	for i, call := range calls {
		res, err := r.def.tools.Call(ctx, call)
		results[i] = res
		if err == nil {
			r.logger.Debug("tool call", zap.String("tool", call.Name))
			continue
		}

		var ae *tool.ArgumentError
		if errors.As(err, &ae) {
			r.logger.Warn("tool call rejected", zap.String("kind", string(ToolArgumentError)), zap.String("tool", call.Name), zap.Error(err))
		} else {
			r.logger.Warn("tool call failed", zap.String("tool", call.Name), zap.Error(err))
		}
	}

	r.trace.ToolResults = append(r.trace.ToolResults, results...)
	return results
}

func (e *Executor) record(ctx context.Context, r *run) {
	if e.recorder == nil {
		return
	}

	// the trace is recorded even when the caller's context is already done
	if err := e.recorder.Record(context.WithoutCancel(ctx), r.trace); err != nil {
		r.logger.Warn("recording run trace", zap.Error(err))
	}
}
