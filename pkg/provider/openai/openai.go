// Package openai is a model backend for the OpenAI chat completions API and
// compatible servers.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/llm"
)

const DefaultModel = "gpt-4o-mini"

// Config configures the OpenAI backend. An empty BaseURL uses the public API.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	client *openai.Client
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

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		logger: logger,
	}
}

func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if req.Wants(llm.ModalityImage) {
		return nil, fmt.Errorf("openai chat completions cannot produce images: %w", llm.ErrUnsupportedMedia)
	}

	creq, err := c.buildRequest(req)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("sending chat completion",
		zap.String("model", creq.Model),
		zap.Int("messages", len(creq.Messages)),
		zap.Int("tools", len(creq.Tools)),
	)

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}

	return toResponse(resp), nil
}

func (c *Client) buildRequest(req *llm.Request) (openai.ChatCompletionRequest, error) {
	out := openai.ChatCompletionRequest{Model: c.model}
	if req.Model != "" {
		out.Model = req.Model
	}
	if req.JSONOutput && len(req.Tools) == 0 {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	if o := req.Options; o != nil {
		if o.Temperature != nil {
			out.Temperature = float32(*o.Temperature)
		}
		if o.TopP != nil {
			out.TopP = float32(*o.TopP)
		}
		out.MaxTokens = o.MaxTokensOr(0)
		out.Seed = o.Seed
		out.Stop = o.Stop
	}

	if req.System != "" {
		out.Messages = append(out.Messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs, err := toMessages(m)
		if err != nil {
			return out, err
		}
		out.Messages = append(out.Messages, msgs...)
	}

	for _, t := range req.Tools {
		var params any = map[string]any{"type": "object"}
		if t.Parameters != nil {
			params = t.Parameters
		}
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}

	return out, nil
}

func toMessages(m llm.Message) ([]openai.ChatCompletionMessage, error) {
	switch m.Role {
	case llm.RoleTool:
		var out []openai.ChatCompletionMessage
		for _, p := range m.Parts {
			if p.ToolResult == nil {
				continue
			}
			content := p.ToolResult.Content
			if content == "" {
				content = "(empty)"
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: p.ToolResult.CallID,
			})
		}
		return out, nil

	case llm.RoleAssistant:
		msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Text()}
		for _, tc := range m.ToolCalls() {
			args := string(tc.Arguments)
			if args == "" {
				args = "{}"
			}
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: args,
				},
			})
		}
		return []openai.ChatCompletionMessage{msg}, nil
	}

	role := openai.ChatMessageRoleUser
	if m.Role == llm.RoleSystem {
		role = openai.ChatMessageRoleSystem
	}
	if len(m.Media()) == 0 {
		return []openai.ChatCompletionMessage{{Role: role, Content: m.Text()}}, nil
	}

	// multimodal content goes in MultiContent; Content must stay empty
	msg := openai.ChatCompletionMessage{Role: role}
	for _, p := range m.Parts {
		if !p.IsMedia() {
			if p.Text != "" {
				msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
			}
			continue
		}
		if !p.Media.IsImage() {
			return nil, fmt.Errorf("openai: %s: %w", p.Media.MediaType(), llm.ErrUnsupportedMedia)
		}
		msg.MultiContent = append(msg.MultiContent, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: p.Media.String(), Detail: openai.ImageURLDetailAuto},
		})
	}

	return []openai.ChatCompletionMessage{msg}, nil
}

func toResponse(resp openai.ChatCompletionResponse) *llm.Response {
	choice := resp.Choices[0]
	out := &llm.Response{
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		Message: llm.Message{Role: llm.RoleAssistant},
	}

	if choice.Message.Content != "" {
		out.Message.Parts = append(out.Message.Parts, llm.TextPart(choice.Message.Content))
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Message.Parts = append(out.Message.Parts, llm.ToolCallPart(llm.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}))
	}

	return out
}

func wrapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &llm.StatusError{Backend: "openai", StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &llm.StatusError{Backend: "openai", StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
	}

	return fmt.Errorf("openai: %w", err)
}
