package llm

import "context"

// Modality is a kind of content a model may produce.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// Request is a single generation request.
type Request struct {
	// Model overrides the backend's configured model when set.
	Model string `json:"model,omitempty"`

	System   string     `json:"system,omitempty"`
	Messages []Message  `json:"messages"`
	Tools    []ToolSpec `json:"tools,omitempty"`

	// Modalities lists the requested output kinds. Empty means text only.
	Modalities []Modality `json:"modalities,omitempty"`

	// JSONOutput asks the backend for a JSON object response where it
	// supports one.
	JSONOutput bool `json:"json_output,omitempty"`

	Options *Options `json:"options,omitempty"`
}

// Wants reports whether m is among the requested output modalities.
func (r *Request) Wants(m Modality) bool {
	if len(r.Modalities) == 0 {
		return m == ModalityText
	}
	for _, have := range r.Modalities {
		if have == m {
			return true
		}
	}

	return false
}

// Generator is a generative model backend. Implementations must be safe for
// concurrent use and must honour ctx.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req *Request) (*Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
