// Package gemini is a model backend for the Gemini generateContent API. It is
// the only backend that can return generated images.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type Client struct {
	apiKey     string
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
		cfg.Timeout = 2 * time.Minute
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	model := c.model
	if req.Model != "" {
		model = req.Model
	}

	resp, err := c.forward(ctx, model, buildRequest(req))
	if err != nil {
		return nil, err
	}

	return toResponse(model, resp)
}

func buildRequest(req *llm.Request) *generateRequest {
	out := &generateRequest{}
	if req.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}

	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			if out.SystemInstruction == nil {
				out.SystemInstruction = &content{}
			}
			out.SystemInstruction.Parts = append(out.SystemInstruction.Parts, part{Text: m.Text()})
			continue
		}
		out.Contents = append(out.Contents, toContent(m))
	}

	if len(req.Tools) > 0 {
		var decls []functionDeclaration
		for _, t := range req.Tools {
			decl := functionDeclaration{Name: t.Name, Description: t.Description}
			if t.Parameters != nil {
				decl.Parameters = t.Parameters
			}
			decls = append(decls, decl)
		}
		out.Tools = []tool{{FunctionDeclarations: decls}}
	}

	cfg := &generationConfig{}
	if req.Wants(llm.ModalityImage) {
		cfg.ResponseModalities = []string{"TEXT", "IMAGE"}
	} else if req.JSONOutput && len(req.Tools) == 0 {
		cfg.ResponseMIMEType = "application/json"
	}
	if o := req.Options; o != nil {
		cfg.Temperature = o.Temperature
		cfg.TopP = o.TopP
		cfg.TopK = o.TopK
		cfg.Seed = o.Seed
		cfg.MaxOutputTokens = o.MaxTokens
		cfg.StopSequences = o.Stop
	}
	out.GenerationConfig = cfg

	return out
}

func toContent(m llm.Message) content {
	out := content{Role: "user"}
	if m.Role == llm.RoleAssistant {
		out.Role = "model"
	}

	for _, p := range m.Parts {
		switch {
		case p.ToolResult != nil:
			// matched to the call by name
			out.Parts = append(out.Parts, part{FunctionResponse: &functionResponse{
				Name:     p.ToolResult.Name,
				Response: map[string]any{"content": p.ToolResult.Content},
			}})
		case p.ToolCall != nil:
			out.Parts = append(out.Parts, part{FunctionCall: &functionCall{
				Name: p.ToolCall.Name,
				Args: p.ToolCall.Arguments,
			}})
		case p.IsMedia():
			out.Parts = append(out.Parts, part{InlineData: &blob{
				MIMEType: p.Media.MediaType(),
				Data:     p.Media.Base64(),
			}})
		case p.Text != "":
			out.Parts = append(out.Parts, part{Text: p.Text})
		}
	}

	return out
}

func toResponse(model string, resp *generateResponse) (*llm.Response, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini: response has no candidates")
	}
	cand := resp.Candidates[0]

	out := &llm.Response{
		Model:        model,
		FinishReason: cand.FinishReason,
		Message:      llm.Message{Role: llm.RoleAssistant},
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{InputTokens: u.PromptTokenCount, OutputTokens: u.CandidatesTokenCount}
	}

	calls := 0
	for _, p := range cand.Content.Parts {
		switch {
		case p.Thought:
		case p.InlineData != nil:
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini: decode inline data: %w", err)
			}
			ref, err := media.Encode(data, p.InlineData.MIMEType)
			if err != nil {
				return nil, fmt.Errorf("gemini: %w", err)
			}
			out.Message.Parts = append(out.Message.Parts, llm.MediaPart(ref))
		case p.FunctionCall != nil:
			id := p.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", calls)
			}
			calls++
			out.Message.Parts = append(out.Message.Parts, llm.ToolCallPart(llm.ToolCall{
				ID:        id,
				Name:      p.FunctionCall.Name,
				Arguments: p.FunctionCall.Args,
			}))
		case p.Text != "":
			out.Message.Parts = append(out.Message.Parts, llm.TextPart(p.Text))
		}
	}

	return out, nil
}

func (c *Client) forward(ctx context.Context, model string, req *generateRequest) (*generateResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	c.logger.Debug("forwarding request to gemini",
		zap.String("url", endpoint),
		zap.String("model", model),
		zap.Int("body_size", len(reqBody)),
	)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

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
		return nil, &llm.StatusError{Backend: "gemini", StatusCode: httpResp.StatusCode, Body: string(body)}
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}
