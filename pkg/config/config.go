// Package config loads studyflow settings from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/provider"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STUDYFLOW_"

type Config struct {
	Server  Server          `toml:"server"`
	Model   provider.Config `toml:"model"`
	Options llm.Options     `toml:"options"`
	Search  search.Config   `toml:"search"`
}

type Server struct {
	// Listen is the HTTP listen address.
	Listen string `toml:"listen"`

	// DBPath is the SQLite run ledger. Empty keeps runs in memory.
	DBPath string `toml:"db_path"`

	Debug bool `toml:"debug"`
}

// Default returns the built-in configuration: a local Ollama model and the
// canned search table.
func Default() *Config {
	return &Config{
		Server: Server{Listen: ":8080"},
		Model:  provider.Config{Backend: provider.Ollama},
		Search: search.Config{Backend: "canned"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path, or a path that does not exist, yields the defaults.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, len(undecoded))
				for i, k := range undecoded {
					keys[i] = k.String()
				}
				return nil, fmt.Errorf("config %s: unknown keys: %s", path, strings.Join(keys, ", "))
			}
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides settings from STUDYFLOW_* variables. Secrets are
// expected to arrive this way rather than in the file.
func applyEnv(cfg *Config, getenv func(string) string) error {
	strs := map[string]*string{
		"LISTEN":         &cfg.Server.Listen,
		"DB_PATH":        &cfg.Server.DBPath,
		"BACKEND":        &cfg.Model.Backend,
		"MODEL":          &cfg.Model.Model,
		"BASE_URL":       &cfg.Model.BaseURL,
		"API_KEY":        &cfg.Model.APIKey,
		"SEARCH_BACKEND": &cfg.Search.Backend,
		"SEARCH_API_KEY": &cfg.Search.APIKey,
	}
	for name, dst := range strs {
		if v := getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	if v := getenv(EnvPrefix + "DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", EnvPrefix, err)
		}
		cfg.Server.Debug = debug
	}
	if v := getenv(EnvPrefix + "RPM"); v != "" {
		rpm, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sRPM: %w", EnvPrefix, err)
		}
		cfg.Model.RPM = rpm
	}

	return nil
}

// CannedRules returns the configured canned search table, or the built-in
// one when the file declares none.
func (c *Config) CannedRules() []search.Rule {
	if len(c.Search.Rules) == 0 {
		return search.DefaultRules
	}

	return c.Search.Rules
}
