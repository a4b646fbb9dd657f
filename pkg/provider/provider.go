// Package provider builds the configured model backend.
package provider

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/provider/anthropic"
	"github.com/papercomputeco/studyflow/pkg/provider/gemini"
	"github.com/papercomputeco/studyflow/pkg/provider/ollama"
	"github.com/papercomputeco/studyflow/pkg/provider/openai"
)

// Backend names.
const (
	Ollama    = "ollama"
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Gemini    = "gemini"
)

// Config selects and configures a backend.
type Config struct {
	Backend string        `toml:"backend"`
	Model   string        `toml:"model"`
	BaseURL string        `toml:"base_url"`
	APIKey  string        `toml:"api_key"`
	Timeout time.Duration `toml:"timeout"`

	// RPM caps requests per minute; zero disables limiting.
	RPM   int `toml:"rpm"`
	Burst int `toml:"burst"`
}

// Backends lists the supported backend names.
func Backends() []string { return []string{Ollama, OpenAI, Anthropic, Gemini} }

// New builds the backend named by cfg.Backend, wrapped in a rate limiter.
// An empty backend selects Ollama.
func New(cfg Config, logger *zap.Logger) (llm.Generator, error) {
	var gen llm.Generator
	switch cfg.Backend {
	case "", Ollama:
		gen = ollama.New(ollama.Config{BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}, logger)

	case OpenAI:
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %s: api key required", cfg.Backend)
		}
		gen = openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}, logger)

	case Anthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s: api key required", cfg.Backend)
		}
		gen = anthropic.New(anthropic.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}, logger)

	case Gemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("provider %s: api key required", cfg.Backend)
		}
		gen = gemini.New(gemini.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model, Timeout: cfg.Timeout}, logger)

	default:
		return nil, fmt.Errorf("unknown provider: %s (available: %v)", cfg.Backend, Backends())
	}

	logger.Info("model backend configured",
		zap.String("backend", cfg.Backend),
		zap.String("model", cfg.Model),
		zap.Int("rpm", cfg.RPM),
	)

	return llm.NewRateLimited(gen, cfg.RPM, cfg.Burst), nil
}
