package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/studyflow/pkg/llm"
)

const (
	defaultDuckDuckGoURL = "https://api.duckduckgo.com/"
	searchTimeout        = 15 * time.Second
	userAgent            = "studyflow/0.1"
	maxTopics            = 5
)

// DuckDuckGo queries the DuckDuckGo Instant Answer API. It needs no key.
type DuckDuckGo struct {
	baseURL string
	client  *http.Client
}

// NewDuckDuckGo targets baseURL, or the public API when empty.
func NewDuckDuckGo(baseURL string) *DuckDuckGo {
	if baseURL == "" {
		baseURL = defaultDuckDuckGoURL
	}

	return &DuckDuckGo{
		baseURL: baseURL,
		client:  &http.Client{Timeout: searchTimeout},
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &llm.StatusError{Backend: "duckduckgo", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var ddg ddgResponse
	if err := json.Unmarshal(body, &ddg); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}

	var results []string
	if ddg.Abstract != "" {
		results = append(results, fmt.Sprintf("## %s\n%s\nSource: %s", ddg.Heading, ddg.Abstract, ddg.AbstractURL))
	}
	if ddg.Answer != "" {
		results = append(results, "Answer: "+ddg.Answer)
	}
	for i, topic := range ddg.RelatedTopics {
		if i >= maxTopics {
			break
		}
		if topic.Text != "" {
			results = append(results, "- "+topic.Text)
		}
	}

	if len(results) == 0 {
		return DefaultFallback, nil
	}

	return strings.Join(results, "\n\n"), nil
}

type ddgResponse struct {
	Abstract      string     `json:"Abstract"`
	AbstractURL   string     `json:"AbstractURL"`
	Heading       string     `json:"Heading"`
	Answer        string     `json:"Answer"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	Text     string `json:"Text"`
	FirstURL string `json:"FirstURL"`
}
