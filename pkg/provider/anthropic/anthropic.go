// Package anthropic is a model backend for the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/llm"
)

const (
	DefaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
)

// Config configures the Anthropic backend. An empty BaseURL uses the public API.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	opts := []anthropic.ClientOption{anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout})}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	return &Client{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
		logger: logger,
	}
}

func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req.Wants(llm.ModalityImage) {
		return nil, fmt.Errorf("anthropic cannot produce images: %w", llm.ErrUnsupportedMedia)
	}

	mreq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending messages request",
		zap.String("model", string(mreq.Model)),
		zap.Int("messages", len(mreq.Messages)),
		zap.Int("tools", len(mreq.Tools)),
	)

	resp, err := c.client.CreateMessages(ctx, mreq)
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("anthropic %s: %s", apiErr.Type, apiErr.Message)
		}
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	return toResponse(resp), nil
}

func (c *Client) buildRequest(req *llm.Request) (anthropic.MessagesRequest, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	out := anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		System:    req.System,
		MaxTokens: req.Options.MaxTokensOr(defaultMaxTokens),
	}
	if o := req.Options; o != nil {
		if o.Temperature != nil {
			out.SetTemperature(float32(*o.Temperature))
		}
		if o.TopP != nil {
			out.SetTopP(float32(*o.TopP))
		}
		if o.TopK != nil {
			out.SetTopK(*o.TopK)
		}
		out.StopSequences = o.Stop
	}

	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			out.System += m.Text()
			continue
		}
		msg, err := toMessage(m)
		if err != nil {
			return out, err
		}
		out.Messages = append(out.Messages, msg)
	}

	for _, t := range req.Tools {
		var schema any = map[string]any{"type": "object"}
		if t.Parameters != nil {
			schema = t.Parameters
		}
		out.Tools = append(out.Tools, anthropic.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}

	return out, nil
}

// toMessage maps a message to content blocks. Tool results travel as a user
// message.
func toMessage(m llm.Message) (anthropic.Message, error) {
	msg := anthropic.Message{Role: anthropic.RoleUser}
	if m.Role == llm.RoleAssistant {
		msg.Role = anthropic.RoleAssistant
	}

	for _, p := range m.Parts {
		switch {
		case p.ToolResult != nil:
			content := p.ToolResult.Content
			if content == "" {
				content = "(empty)"
			}
			msg.Content = append(msg.Content, anthropic.NewToolResultMessageContent(p.ToolResult.CallID, content, p.ToolResult.IsError))

		case p.ToolCall != nil:
			input := p.ToolCall.Arguments
			if len(input) == 0 {
				input = []byte("{}")
			}
			msg.Content = append(msg.Content, anthropic.MessageContent{
				Type: anthropic.MessagesContentTypeToolUse,
				MessageContentToolUse: &anthropic.MessageContentToolUse{
					ID:    p.ToolCall.ID,
					Name:  p.ToolCall.Name,
					Input: input,
				},
			})

		case p.IsMedia():
			block, err := mediaContent(p)
			if err != nil {
				return msg, err
			}
			msg.Content = append(msg.Content, block)

		case p.Text != "":
			msg.Content = append(msg.Content, anthropic.NewTextMessageContent(p.Text))
		}
	}

	return msg, nil
}

func mediaContent(p llm.Part) (anthropic.MessageContent, error) {
	src := anthropic.MessageContentSource{
		Type:      anthropic.MessagesContentSourceTypeBase64,
		MediaType: p.Media.MediaType(),
		Data:      p.Media.Base64(),
	}

	switch {
	case p.Media.IsImage():
		return anthropic.NewImageMessageContent(src), nil
	case p.Media.IsPDF():
		// a document block has the same source shape as an image block
		block := anthropic.NewImageMessageContent(src)
		block.Type = anthropic.MessagesContentType("document")
		return block, nil
	}

	return anthropic.MessageContent{}, fmt.Errorf("anthropic: %s: %w", p.Media.MediaType(), llm.ErrUnsupportedMedia)
}

func toResponse(resp anthropic.MessagesResponse) *llm.Response {
	out := &llm.Response{
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		Usage: llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
		Message: llm.Message{Role: llm.RoleAssistant},
	}

	for _, c := range resp.Content {
		switch c.Type {
		case anthropic.MessagesContentTypeText:
			if text := c.GetText(); text != "" {
				out.Message.Parts = append(out.Message.Parts, llm.TextPart(text))
			}
		case anthropic.MessagesContentTypeToolUse:
			if c.MessageContentToolUse == nil {
				continue
			}
			out.Message.Parts = append(out.Message.Parts, llm.ToolCallPart(llm.ToolCall{
				ID:        c.MessageContentToolUse.ID,
				Name:      c.MessageContentToolUse.Name,
				Arguments: c.MessageContentToolUse.Input,
			}))
		}
	}

	return out
}
