package chatcmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/studyflow/pkg/conversation"
	"github.com/papercomputeco/studyflow/pkg/flows"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/media"
	"github.com/papercomputeco/studyflow/server"
)

// remoteReplier sends each turn to a studyflow server's /chat endpoint.
type remoteReplier struct {
	baseURL string
	client  *http.Client
}

func newRemoteReplier(baseURL string) *remoteReplier {
	return &remoteReplier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

func (r *remoteReplier) Reply(ctx context.Context, h conversation.History, document *media.Reference) (flows.Answer, conversation.History, error) {
	body, err := json.Marshal(server.ChatRequest{History: h, Document: document})
	if err != nil {
		return flows.Answer{}, h, fmt.Errorf("could not encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return flows.Answer{}, h, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return flows.Answer{}, h, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)

		var failure llm.ErrorResponse
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			return flows.Answer{}, h, errors.New(failure.Error)
		}
		return flows.Answer{}, h, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(raw))
	}

	var result server.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return flows.Answer{}, h, fmt.Errorf("could not decode chat response: %w", err)
	}

	return flows.Answer{Answer: result.Answer}, result.History, nil
}
