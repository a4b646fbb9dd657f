// Package conversation rebuilds chat context from client-held history. The
// server keeps no session state: every request carries its own history.
package conversation

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role    Role   `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// History is an ordered, oldest-first list of turns.
type History []Turn

// ErrNoPendingQuery is returned by ChatInput when the newest turn is not a
// user turn.
var ErrNoPendingQuery = errors.New("history does not end with a user turn")

// ErrInvalidHistory wraps Validate failures.
var ErrInvalidHistory = errors.New("invalid history")

// Validate rejects turns with unknown roles.
func (h History) Validate() error {
	for i, t := range h {
		switch t.Role {
		case RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: turn %d: unknown role %q", ErrInvalidHistory, i, t.Role)
		}
	}

	return nil
}

// Append returns a new history with the turn added. h is not modified.
func (h History) Append(role Role, content string) History {
	out := make(History, len(h), len(h)+1)
	copy(out, h)
	return append(out, Turn{Role: role, Content: content})
}

// Last returns the newest turn.
func (h History) Last() (Turn, bool) {
	if len(h) == 0 {
		return Turn{}, false
	}

	return h[len(h)-1], true
}

// BuildContext renders every turn except the newest as "role: content"
// lines, oldest first. The newest turn is the query being asked and is sent
// separately.
func BuildContext(h History) string {
	if len(h) < 2 {
		return ""
	}

	lines := make([]string, 0, len(h)-1)
	for _, t := range h[:len(h)-1] {
		lines = append(lines, string(t.Role)+": "+t.Content)
	}

	return strings.Join(lines, "\n")
}

// ChatInput builds the chatbot flow input from a history whose newest turn
// is the pending user query.
func ChatInput(h History) (map[string]any, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	last, ok := h.Last()
	if !ok || last.Role != RoleUser {
		return nil, ErrNoPendingQuery
	}

	return map[string]any{
		"query":   last.Content,
		"context": BuildContext(h),
	}, nil
}
