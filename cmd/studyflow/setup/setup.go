// Package setup holds the flags shared by every studyflow command and turns
// them into a loaded configuration, a logger and a model backend.
package setup

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/papercomputeco/studyflow/pkg/config"
	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/flows"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/logger"
	"github.com/papercomputeco/studyflow/pkg/provider"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
)

// DefaultConfigPath is read when --config is not given. It may be absent.
const DefaultConfigPath = "studyflow.toml"

// Globals are the persistent flags of the root command.
type Globals struct {
	ConfigPath string
	Debug      bool
	JSONLogs   bool
}

// Bind registers the persistent flags on root.
func (g *Globals) Bind(root *cobra.Command) {
	root.PersistentFlags().StringVarP(&g.ConfigPath, "config", "c", DefaultConfigPath, "Path to the TOML config file")
	root.PersistentFlags().BoolVar(&g.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&g.JSONLogs, "json-logs", false, "Log JSON lines instead of console text")
}

// Load reads the config file and the environment.
func (g *Globals) Load() (*config.Config, error) {
	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	if g.Debug {
		cfg.Server.Debug = true
	}

	return cfg, nil
}

// Logger writes to cmd's stderr so command output on stdout stays clean.
func (g *Globals) Logger(cmd *cobra.Command, cfg *config.Config) *zap.Logger {
	return logger.New(logger.Options{
		Debug:  cfg.Server.Debug,
		JSON:   g.JSONLogs,
		Output: zapcore.Lock(zapcore.AddSync(cmd.ErrOrStderr())),
	})
}

// Generator builds the configured model backend, with the configured
// default options applied under each flow's own.
func Generator(cfg *config.Config, logger *zap.Logger) (llm.Generator, error) {
	gen, err := provider.New(cfg.Model, logger)
	if err != nil {
		return nil, err
	}

	return llm.NewDefaulted(gen, cfg.Options), nil
}

// Service builds the flow catalog and executor for in-process use. No run
// ledger is attached; only the server keeps one.
func Service(cfg *config.Config, logger *zap.Logger) (*flows.Service, error) {
	gen, err := Generator(cfg, logger)
	if err != nil {
		return nil, err
	}

	backend, err := search.New(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("search backend: %w", err)
	}

	catalog, err := flows.NewCatalog(backend)
	if err != nil {
		return nil, err
	}

	return flows.NewService(flow.NewExecutor(gen, logger), catalog), nil
}
