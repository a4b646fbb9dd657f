package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/papercomputeco/studyflow/pkg/llm"
)

const defaultTavilyURL = "https://api.tavily.com"

// Tavily queries the Tavily search API.
type Tavily struct {
	apiKey     string
	baseURL    string
	maxResults int
	client     *http.Client
}

func NewTavily(apiKey, baseURL string, maxResults int) *Tavily {
	if baseURL == "" {
		baseURL = defaultTavilyURL
	}
	if maxResults <= 0 {
		maxResults = maxTopics
	}

	return &Tavily{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		client:     &http.Client{Timeout: searchTimeout},
	}
}

func (t *Tavily) Search(ctx context.Context, query string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"api_key":        t.apiKey,
		"query":          query,
		"search_depth":   "basic",
		"include_answer": true,
		"max_results":    t.maxResults,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &llm.StatusError{Backend: "tavily", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var apiResponse struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &apiResponse); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	var parts []string
	if apiResponse.Answer != "" {
		parts = append(parts, "Answer: "+apiResponse.Answer)
	}
	for _, r := range apiResponse.Results {
		parts = append(parts, fmt.Sprintf("## %s\n%s\nSource: %s", r.Title, r.Content, r.URL))
	}
	if len(parts) == 0 {
		return DefaultFallback, nil
	}

	return strings.Join(parts, "\n\n"), nil
}
