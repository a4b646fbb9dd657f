package search

import "fmt"

// Config selects and configures a search backend.
type Config struct {
	// Backend is one of "canned", "duckduckgo" or "tavily".
	Backend    string `toml:"backend"`
	BaseURL    string `toml:"base_url"`
	APIKey     string `toml:"api_key"`
	MaxResults int    `toml:"max_results"`

	// Canned table, used by the "canned" backend.
	Fallback string `toml:"fallback"`
	Rules    []Rule `toml:"rules"`
}

// New builds the backend named by cfg. An empty backend name selects the
// canned table, falling back to DefaultRules when cfg has none.
func New(cfg Config) (Backend, error) {
	switch cfg.Backend {
	case "", "canned":
		rules := cfg.Rules
		if len(rules) == 0 {
			rules = DefaultRules
		}
		return NewCanned(rules, cfg.Fallback), nil
	case "duckduckgo":
		return NewDuckDuckGo(cfg.BaseURL), nil
	case "tavily":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("tavily search backend needs an api key")
		}
		return NewTavily(cfg.APIKey, cfg.BaseURL, cfg.MaxResults), nil
	default:
		return nil, fmt.Errorf("unknown search backend: %s", cfg.Backend)
	}
}
