// Package llm provides the internal representation of generative model
// requests and responses shared by every flow and provider backend.
package llm

import (
	"errors"
	"fmt"
)

// ErrorResponse is the JSON error body returned to HTTP callers.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// ErrUnsupportedMedia is returned by a backend that cannot accept a media
// part of the given type.
var ErrUnsupportedMedia = errors.New("media type not supported by backend")

// StatusError is returned by HTTP backends when the upstream answers with a
// non-2xx status.
type StatusError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Backend, e.StatusCode, e.Body)
}
