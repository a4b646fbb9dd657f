package llm

import "github.com/papercomputeco/studyflow/pkg/media"

// Response is the model's answer to a Request.
type Response struct {
	Model        string  `json:"model"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
	Usage        Usage   `json:"usage"`
}

// Usage holds token accounting when the backend reports it.
type Usage struct {
	InputTokens  int `json:"input_tokens,omitempty"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

func (r *Response) Text() string             { return r.Message.Text() }
func (r *Response) Media() []media.Reference { return r.Message.Media() }
func (r *Response) ToolCalls() []ToolCall    { return r.Message.ToolCalls() }
