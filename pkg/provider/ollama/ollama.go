// Package ollama is a model backend for a local or remote Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/llm"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2-vision"
)

// Config configures the Ollama backend.
type Config struct {
	BaseURL string
	Model   string

	// Timeout bounds a single request. LLM requests can be slow, so the
	// default is generous.
	Timeout time.Duration
}

// Client calls the Ollama chat API without streaming.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req.Wants(llm.ModalityImage) {
		return nil, fmt.Errorf("ollama cannot produce images: %w", llm.ErrUnsupportedMedia)
	}

	body, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.forward(ctx, body)
	if err != nil {
		return nil, err
	}

	return toResponse(resp), nil
}

func (c *Client) buildRequest(req *llm.Request) (*chatRequest, error) {
	streaming := false
	out := &chatRequest{
		Model:  c.model,
		Stream: &streaming,
	}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.JSONOutput && len(req.Tools) == 0 {
		out.Format = "json"
	}
	if o := req.Options; o != nil {
		out.Options = &options{
			Temperature: o.Temperature,
			TopP:        o.TopP,
			TopK:        o.TopK,
			Seed:        o.Seed,
			NumPredict:  o.MaxTokens,
			Stop:        o.Stop,
		}
	}

	if req.System != "" {
		out.Messages = append(out.Messages, message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		msgs, err := toMessages(m)
		if err != nil {
			return nil, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range req.Tools {
		var spec toolSpec
		spec.Type = "function"
		spec.Function.Name = t.Name
		spec.Function.Description = t.Description
		spec.Function.Parameters = t.Parameters
		out.Tools = append(out.Tools, spec)
	}

	return out, nil
}

// toMessages maps one message to Ollama messages. Tool results become one
// "tool" message each.
func toMessages(m llm.Message) ([]message, error) {
	if m.Role == llm.RoleTool {
		var out []message
		for _, p := range m.Parts {
			if p.ToolResult != nil {
				out = append(out, message{Role: "tool", Content: p.ToolResult.Content, ToolName: p.ToolResult.Name})
			}
		}
		return out, nil
	}

	msg := message{Role: string(m.Role)}
	var text strings.Builder
	for _, p := range m.Parts {
		switch {
		case p.IsMedia():
			if !p.Media.IsImage() {
				return nil, fmt.Errorf("ollama: %s: %w", p.Media.MediaType(), llm.ErrUnsupportedMedia)
			}
			msg.Images = append(msg.Images, p.Media.Base64())
		case p.ToolCall != nil:
			var tc toolCall
			tc.Function.Name = p.ToolCall.Name
			tc.Function.Arguments = p.ToolCall.Arguments
			if len(tc.Function.Arguments) == 0 {
				tc.Function.Arguments = json.RawMessage("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, tc)
		default:
			text.WriteString(p.Text)
		}
	}
	msg.Content = text.String()

	return []message{msg}, nil
}

func toResponse(resp *chatResponse) *llm.Response {
	out := &llm.Response{
		Model:        resp.Model,
		FinishReason: resp.DoneReason,
		Usage: llm.Usage{
			InputTokens:  resp.PromptEvalCount,
			OutputTokens: resp.EvalCount,
		},
		Message: llm.Message{Role: llm.RoleAssistant},
	}

	if resp.Message.Content != "" {
		out.Message.Parts = append(out.Message.Parts, llm.TextPart(resp.Message.Content))
	}
	for i, tc := range resp.Message.ToolCalls {
		out.Message.Parts = append(out.Message.Parts, llm.ToolCallPart(llm.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		}))
	}

	return out
}

// forward posts a non-streaming request to the Ollama server.
func (c *Client) forward(ctx context.Context, req *chatRequest) (*chatResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/api/chat"
	c.logger.Debug("forwarding request to ollama",
		zap.String("url", url),
		zap.String("model", req.Model),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &llm.StatusError{Backend: "ollama", StatusCode: httpResp.StatusCode, Body: string(body)}
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}
