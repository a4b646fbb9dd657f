package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/conversation"
	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/llm"
)

// statusFor maps a failed run to an HTTP status and the message shown to
// the caller. Caller mistakes are echoed back; model failures get a
// generic message and the detail stays in the log.
func statusFor(err error) (int, llm.ErrorResponse) {
	var fe *flow.Error
	if !errors.As(err, &fe) {
		if errors.Is(err, conversation.ErrNoPendingQuery) || errors.Is(err, conversation.ErrInvalidHistory) {
			return fiber.StatusBadRequest, llm.ErrorResponse{Error: err.Error()}
		}
		return fiber.StatusInternalServerError, llm.ErrorResponse{Error: "internal error"}
	}

	resp := llm.ErrorResponse{Kind: string(fe.Kind)}
	switch fe.Kind {
	case flow.SchemaViolation, flow.TemplateBindingError:
		resp.Error = fe.Err.Error()
		return fiber.StatusBadRequest, resp
	case flow.UnsupportedMediaError:
		resp.Error = fe.Err.Error()
		return fiber.StatusUnsupportedMediaType, resp
	case flow.OutputSchemaViolation:
		resp.Error = "the model returned an unusable answer"
		return fiber.StatusBadGateway, resp
	case flow.ModelUnavailable:
		resp.Error = "the model is unavailable"
		return fiber.StatusServiceUnavailable, resp
	default:
		resp.Error = "internal error"
		return fiber.StatusInternalServerError, resp
	}
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status, body := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.Path()), zap.String("kind", body.Kind), zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.String("path", c.Path()), zap.String("kind", body.Kind), zap.Error(err))
	}

	return c.Status(status).JSON(body)
}
