package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/cmd/studyflow/setup"
	"github.com/papercomputeco/studyflow/pkg/config"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
	"github.com/papercomputeco/studyflow/server"
)

const serveLongDesc string = `Serve the study flows over HTTP and MCP.

Every flow is available at POST /flows/<name>, the chat client posts its
history to /chat, and MCP clients connect to /mcp. Each run is recorded in
the run ledger, in memory or in the SQLite file given by --db.

When the search backend is the canned table, edits to the config file's
[search] section are picked up without a restart.

Examples:
  studyflow serve
  studyflow serve --listen :9000 --db ~/.studyflow/runs.db
  STUDYFLOW_BACKEND=gemini STUDYFLOW_API_KEY=... studyflow serve`

const serveShortDesc string = "Serve flows over HTTP and MCP"

type serveCommander struct {
	globals *setup.Globals
	listen  string
	dbPath  string
}

func NewServeCmd(globals *setup.Globals) *cobra.Command {
	cmder := &serveCommander{globals: globals}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.listen, "listen", "l", "", "Address to listen on (default from config, :8080)")
	cmd.Flags().StringVar(&cmder.dbPath, "db", "", "Path to the SQLite run ledger (default: in-memory)")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	cfg, err := c.globals.Load()
	if err != nil {
		return err
	}
	if c.listen != "" {
		cfg.Server.Listen = c.listen
	}
	if c.dbPath != "" {
		cfg.Server.DBPath = c.dbPath
	}

	logger := c.globals.Logger(cmd, cfg)
	defer logger.Sync()

	gen, err := setup.Generator(cfg, logger)
	if err != nil {
		return fmt.Errorf("could not configure model backend: %w", err)
	}

	backend, err := search.New(cfg.Search)
	if err != nil {
		return fmt.Errorf("could not configure search backend: %w", err)
	}

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.Listen,
		DBPath:     cfg.Server.DBPath,
	}, gen, backend, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if canned, ok := backend.(*search.Canned); ok && c.globals.ConfigPath != "" {
		go c.watchSearchTable(ctx, canned, logger)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := srv.Shutdown(); err != nil {
			return err
		}
		return <-errCh
	}
}

// watchSearchTable swaps the canned search table whenever the config file
// changes. Nothing else is reloaded.
func (c *serveCommander) watchSearchTable(ctx context.Context, canned *search.Canned, logger *zap.Logger) {
	err := config.Watch(ctx, c.globals.ConfigPath, logger, func(cfg *config.Config) {
		canned.Replace(cfg.CannedRules(), cfg.Search.Fallback)
		logger.Info("reloaded canned search table", zap.Int("rules", len(cfg.CannedRules())))
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("config watch stopped", zap.Error(err))
	}
}
