// Package flow runs typed generative flows: validate the input, render the
// prompt, call the model (with at most one tool round trip), then validate
// the output.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/prompt"
	"github.com/papercomputeco/studyflow/pkg/schema"
	"github.com/papercomputeco/studyflow/pkg/tool"
)

// Config declares a flow. It is turned into an immutable Definition by
// Define.
type Config struct {
	Name        string
	Description string

	Input  *schema.Schema
	Output *schema.Schema

	Prompt string
	System string

	Tools      []*tool.Definition
	Modalities []llm.Modality

	// MediaOutput names the output field filled from the first media part
	// of the model's response.
	MediaOutput string

	Options *llm.Options

	// Verify runs after output validation with the validated input and
	// output; an error fails the run with OutputSchemaViolation.
	Verify func(in, out map[string]any) error
}

// Definition is a compiled flow. It is never mutated after Define and may
// be shared by any number of concurrent runs.
type Definition struct {
	name        string
	description string
	input       *schema.Schema
	output      *schema.Schema
	template    *prompt.Template
	system      string
	tools       *tool.Set
	modalities  []llm.Modality
	mediaOutput string
	options     *llm.Options
	verify      func(in, out map[string]any) error
	formatHint  string
}

// Define checks c and compiles it.
func Define(c Config) (*Definition, error) {
	if c.Name == "" {
		return nil, errors.New("flow without a name")
	}
	for what, s := range map[string]*schema.Schema{"input": c.Input, "output": c.Output} {
		if s == nil || s.Kind != schema.KindObject {
			return nil, fmt.Errorf("flow %s: %s schema must be an object", c.Name, what)
		}
		if err := s.Check(); err != nil {
			return nil, fmt.Errorf("flow %s: %s: %w", c.Name, what, err)
		}
	}

	tmpl, err := prompt.Parse(c.Prompt)
	if err != nil {
		return nil, fmt.Errorf("flow %s: prompt: %w", c.Name, err)
	}
	for _, field := range tmpl.Fields() {
		if _, ok := c.Input.Field(field); !ok {
			return nil, fmt.Errorf("flow %s: prompt: %w", c.Name, &prompt.BindingError{Placeholder: field, Reason: "not an input field"})
		}
	}

	tools, err := tool.NewSet(c.Tools...)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", c.Name, err)
	}

	d := &Definition{
		name:        c.Name,
		description: c.Description,
		input:       c.Input,
		output:      c.Output,
		template:    tmpl,
		system:      c.System,
		tools:       tools,
		modalities:  slices.Clone(c.Modalities),
		mediaOutput: c.MediaOutput,
		options:     c.Options,
		verify:      c.Verify,
	}

	if c.MediaOutput != "" {
		f, ok := c.Output.Field(c.MediaOutput)
		if !ok || f.Schema.Format != schema.FormatMedia {
			return nil, fmt.Errorf("flow %s: media output %q is not a media field of the output", c.Name, c.MediaOutput)
		}
		if !slices.Contains(d.modalities, llm.ModalityImage) {
			d.modalities = []llm.Modality{llm.ModalityText, llm.ModalityImage}
		}
		return d, nil
	}

	hint, err := json.MarshalIndent(c.Output.JSONSchema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("flow %s: output schema: %w", c.Name, err)
	}
	d.formatHint = "\n\nOutput should be in JSON format and conform to the following schema:\n\n```\n" + string(hint) + "\n```\n"

	return d, nil
}

// MustDefine is Define for flows declared at package init.
func MustDefine(c Config) *Definition {
	d, err := Define(c)
	if err != nil {
		panic(err)
	}

	return d
}

func (d *Definition) Name() string                 { return d.name }
func (d *Definition) Description() string          { return d.description }
func (d *Definition) InputSchema() *schema.Schema  { return d.input }
func (d *Definition) OutputSchema() *schema.Schema { return d.output }
func (d *Definition) Template() *prompt.Template   { return d.template }
func (d *Definition) Tools() []string              { return d.tools.Names() }
func (d *Definition) MediaOutput() string          { return d.mediaOutput }

func (d *Definition) Modalities() []llm.Modality { return slices.Clone(d.modalities) }

// request builds the first model request from the rendered prompt.
func (d *Definition) request(rendered prompt.Rendered) *llm.Request {
	parts := make([]llm.Part, 0, len(rendered)+1)
	for _, seg := range rendered {
		if seg.IsMedia() {
			parts = append(parts, llm.MediaPart(seg.Media))
		} else {
			parts = append(parts, llm.TextPart(seg.Text))
		}
	}
	if d.formatHint != "" {
		parts = append(parts, llm.TextPart(d.formatHint))
	}

	return &llm.Request{
		System:     d.system,
		Messages:   []llm.Message{{Role: llm.RoleUser, Parts: parts}},
		Tools:      d.tools.Specs(),
		Modalities: d.Modalities(),
		JSONOutput: d.mediaOutput == "",
		Options:    d.options,
	}
}
