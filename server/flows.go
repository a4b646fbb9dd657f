package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/conversation"
	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
)

// FlowInfo describes a flow to clients.
type FlowInfo struct {
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	InputSchema  *jsonschema.Schema `json:"input_schema"`
	OutputSchema *jsonschema.Schema `json:"output_schema"`
	Tools        []string           `json:"tools,omitempty"`
	MediaOutput  string             `json:"media_output,omitempty"`
}

// Describe exports a flow definition with JSON Schema input and output.
func Describe(def *flow.Definition) FlowInfo {
	return FlowInfo{
		Name:         def.Name(),
		Description:  def.Description(),
		InputSchema:  def.InputSchema().JSONSchema(),
		OutputSchema: def.OutputSchema().JSONSchema(),
		Tools:        def.Tools(),
		MediaOutput:  def.MediaOutput(),
	}
}

// RunResponse is the result of a single flow run.
type RunResponse struct {
	RunID      string         `json:"run_id"`
	Flow       string         `json:"flow"`
	Output     map[string]any `json:"output"`
	Usage      llm.Usage      `json:"usage"`
	DurationMS int64          `json:"duration_ms"`
}

// BatchRequest runs one flow over several inputs.
type BatchRequest struct {
	Inputs []map[string]any `json:"inputs"`
}

// BatchLine is one NDJSON line of a batch response. Exactly one of Output
// and Error is set.
type BatchLine struct {
	Index  int            `json:"index"`
	RunID  string         `json:"run_id,omitempty"`
	Output map[string]any `json:"output,omitempty"`
	Error  string         `json:"error,omitempty"`
	Kind   string         `json:"kind,omitempty"`
}

// ChatRequest carries the client-held history. The newest turn is the
// question being asked.
type ChatRequest struct {
	History  conversation.History `json:"history"`
	Document *media.Reference     `json:"documentMediaRef,omitempty"`
}

// ChatResponse returns the answer and the history extended with it.
type ChatResponse struct {
	Answer  string               `json:"answer"`
	History conversation.History `json:"history"`
}

// UploadResponse describes an uploaded file as a media reference.
type UploadResponse struct {
	MediaRef string `json:"mediaRef"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
	SHA256   string `json:"sha256"`
}

func (s *Server) handleListFlows(c *fiber.Ctx) error {
	defs := s.service.Catalog().All()

	infos := make([]FlowInfo, 0, len(defs))
	for _, def := range defs {
		infos = append(infos, Describe(def))
	}

	return c.JSON(map[string]any{
		"count": len(infos),
		"flows": infos,
	})
}

func (s *Server) handleDescribeFlow(c *fiber.Ctx) error {
	def, ok := s.service.Catalog().Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "flow not found"})
	}

	return c.JSON(Describe(def))
}

// handleRunFlow runs a flow once. The request body is the flow input.
func (s *Server) handleRunFlow(c *fiber.Ctx) error {
	def, ok := s.service.Catalog().Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "flow not found"})
	}

	raw := map[string]any{}
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			s.logger.Debug("failed to parse flow input", zap.Error(err))
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
		}
	}

	res, err := s.service.Executor().Run(c.UserContext(), def, raw)
	if err != nil {
		return s.fail(c, err)
	}

	return c.JSON(RunResponse{
		RunID:      res.RunID,
		Flow:       res.Flow,
		Output:     res.Output,
		Usage:      res.Usage,
		DurationMS: res.Duration.Milliseconds(),
	})
}

// handleBatch runs a flow over each input in turn and streams one NDJSON
// line per run as it finishes. A failed run does not stop the batch.
func (s *Server) handleBatch(c *fiber.Ctx) error {
	def, ok := s.service.Catalog().Get(c.Params("name"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "flow not found"})
	}

	var req BatchRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if len(req.Inputs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "inputs must not be empty"})
	}

	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		// the request context is gone once the handler returns, so runs hang
		// off the server's stream context instead
		ctx, cancel := context.WithCancel(s.streams)
		defer cancel()

		s.streamBatch(ctx, cancel, def, req.Inputs, w)
	}))

	return nil
}

// streamBatch runs def over inputs in order and writes one BatchLine per
// run. It stops, cancelling ctx, as soon as a line cannot be delivered, and
// starts no further run once ctx is done.
func (s *Server) streamBatch(ctx context.Context, cancel context.CancelFunc, def *flow.Definition, inputs []map[string]any, w *bufio.Writer) {
	exec := s.service.Executor()
	enc := json.NewEncoder(w)
	startTime := time.Now()

	failed, done := 0, 0
	for i, in := range inputs {
		if ctx.Err() != nil {
			s.logger.Warn("batch cancelled", zap.String("flow", def.Name()), zap.Int("index", i))
			return
		}

		line := BatchLine{Index: i}

		res, err := exec.Run(ctx, def, in)
		if err != nil {
			failed++
			_, body := statusFor(err)
			line.Error, line.Kind = body.Error, body.Kind
		} else {
			line.RunID, line.Output = res.RunID, res.Output
		}

		if err := enc.Encode(line); err != nil {
			cancel()
			s.logger.Warn("batch client went away", zap.Int("index", i), zap.Error(err))
			return
		}
		if err := w.Flush(); err != nil {
			cancel()
			s.logger.Warn("batch client went away", zap.Int("index", i), zap.Error(err))
			return
		}
		done++
	}

	s.logger.Info("batch complete",
		zap.String("flow", def.Name()),
		zap.Int("runs", done),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(startTime)),
	)
}

// handleChat answers the newest turn of the posted history. With a
// document attached the question is answered from the document alone.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Debug("failed to parse chat request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	s.logger.Debug("received chat request",
		zap.Int("turns", len(req.History)),
		zap.Bool("document", req.Document != nil),
	)

	ans, history, err := s.service.Reply(c.UserContext(), req.History, req.Document)
	if err != nil {
		return s.fail(c, err)
	}

	s.logger.Debug("answered chat request", zap.String("answer_preview", truncate(ans.Answer, 80)))

	return c.JSON(ChatResponse{Answer: ans.Answer, History: history})
}

// handleUpload turns a multipart "file" into a media reference that can be
// passed as a flow input.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "multipart field \"file\" required"})
	}

	mimeType := c.FormValue("mime_type")
	if mimeType == "" {
		mimeType = fh.Header.Get("Content-Type")
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename))); byExt != "" {
			mimeType = byExt
		}
	}

	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "could not read upload"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "could not read upload"})
	}

	ref, err := media.Encode(data, mimeType)
	if err != nil {
		var unsupported *media.UnsupportedError
		if errors.As(err, &unsupported) {
			return c.Status(fiber.StatusUnsupportedMediaType).JSON(llm.ErrorResponse{Error: err.Error()})
		}
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	s.logger.Debug("encoded upload",
		zap.String("filename", fh.Filename),
		zap.String("mime_type", ref.MIMEType()),
		zap.Int("size", ref.Size()),
	)

	return c.JSON(UploadResponse{
		MediaRef: ref.String(),
		MIMEType: ref.MIMEType(),
		Size:     ref.Size(),
		SHA256:   ref.Digest(),
	})
}
