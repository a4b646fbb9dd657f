package llm

import (
	"strings"

	"github.com/papercomputeco/studyflow/pkg/media"
)

// Role is the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part is one piece of message content. Exactly one of its fields is set.
type Part struct {
	Text       string          `json:"text,omitempty"`
	Media      media.Reference `json:"media,omitzero"`
	ToolCall   *ToolCall       `json:"tool_call,omitempty"`
	ToolResult *ToolResult     `json:"tool_result,omitempty"`
}

func TextPart(text string) Part          { return Part{Text: text} }
func MediaPart(ref media.Reference) Part { return Part{Media: ref} }
func ToolCallPart(call ToolCall) Part    { return Part{ToolCall: &call} }
func ToolResultPart(res ToolResult) Part { return Part{ToolResult: &res} }

// IsMedia reports whether the part carries media.
func (p Part) IsMedia() bool { return !p.Media.IsZero() }

// Message represents a single message in a conversation.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates the text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		b.WriteString(p.Text)
	}

	return b.String()
}

// Media returns the media parts of the message, in order.
func (m Message) Media() []media.Reference {
	var refs []media.Reference
	for _, p := range m.Parts {
		if p.IsMedia() {
			refs = append(refs, p.Media)
		}
	}

	return refs
}

// ToolCalls returns the tool-call requests in the message, in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}

	return calls
}
