package search

import (
	"context"
	"strings"
	"sync/atomic"
)

// Rule answers any query containing Keyword, compared case-insensitively.
type Rule struct {
	Keyword string `toml:"keyword" json:"keyword"`
	Answer  string `toml:"answer" json:"answer"`
}

// DefaultFallback is returned by Canned when no rule matches.
const DefaultFallback = "No information found."

// DefaultRules is the built-in canned table.
var DefaultRules = []Rule{
	{Keyword: "weather", Answer: "The weather is sunny, 25°C."},
	{Keyword: "news", Answer: "The top news is that AI is transforming the world."},
}

type table struct {
	rules    []Rule
	fallback string
}

// Canned is an offline Backend that answers from a keyword table. The table
// can be replaced while searches are in flight.
type Canned struct {
	current atomic.Pointer[table]
}

func NewCanned(rules []Rule, fallback string) *Canned {
	c := &Canned{}
	c.Replace(rules, fallback)
	return c
}

// Replace swaps the table atomically. An empty fallback keeps DefaultFallback.
func (c *Canned) Replace(rules []Rule, fallback string) {
	if fallback == "" {
		fallback = DefaultFallback
	}

	t := &table{fallback: fallback}
	for _, r := range rules {
		kw := strings.ToLower(strings.TrimSpace(r.Keyword))
		if kw == "" {
			continue
		}
		t.rules = append(t.rules, Rule{Keyword: kw, Answer: r.Answer})
	}

	c.current.Store(t)
}

// Search returns the answer of the first matching rule.
func (c *Canned) Search(_ context.Context, query string) (string, error) {
	t := c.current.Load()
	q := strings.ToLower(query)
	for _, r := range t.rules {
		if strings.Contains(q, r.Keyword) {
			return r.Answer, nil
		}
	}

	return t.fallback, nil
}
