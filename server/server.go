// Package server exposes the study flows over HTTP and MCP, and keeps a
// content-addressed ledger of every run it executes.
//
// The server is stateless with respect to conversations: chat clients send
// their whole history on every request and receive the extended history
// back.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/flow"
	"github.com/papercomputeco/studyflow/pkg/flows"
	"github.com/papercomputeco/studyflow/pkg/llm"
	"github.com/papercomputeco/studyflow/pkg/runlog"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
)

// Server serves the flow catalog.
type Server struct {
	config  Config
	service *flows.Service
	storer  runlog.Storer
	mcp     *mcp.Server
	logger  *zap.Logger
	app     *fiber.App

	// streams is cancelled on Shutdown and parents every streamed batch.
	streams    context.Context
	stopStream context.CancelFunc
}

// New builds the run ledger, the flow catalog and the HTTP routes. gen is
// the model backend every flow runs against and backend answers the
// chatbot's search tool.
func New(config Config, gen llm.Generator, backend search.Backend, logger *zap.Logger) (*Server, error) {
	var storer runlog.Storer
	var err error

	if config.DBPath != "" {
		storer, err = runlog.NewSQLiteStorer(config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		logger.Info("using SQLite run ledger", zap.String("path", config.DBPath))
	} else {
		storer = runlog.NewMemoryStorer()
		logger.Info("using in-memory run ledger")
	}

	catalog, err := flows.NewCatalog(backend)
	if err != nil {
		storer.Close()
		return nil, fmt.Errorf("failed to define flows: %w", err)
	}

	recorder := runlog.NewRecorder(storer, logger)
	exec := flow.NewExecutor(gen, logger, flow.WithRecorder(recorder))

	bodyLimit := config.BodyLimit
	if bodyLimit == 0 {
		bodyLimit = DefaultBodyLimit
	}

	s := &Server{
		config:  config,
		service: flows.NewService(exec, catalog),
		storer:  storer,
		logger:  logger,
		app: fiber.New(fiber.Config{
			DisableStartupMessage: true,
			BodyLimit:             bodyLimit,
		}),
	}
	s.streams, s.stopStream = context.WithCancel(context.Background())
	s.mcp = newMCPServer(s.service, logger)
	s.routes()

	return s, nil
}

func (s *Server) routes() {
	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	s.app.Get("/flows", s.handleListFlows)
	s.app.Get("/flows/:name", s.handleDescribeFlow)
	s.app.Post("/flows/:name", s.handleRunFlow)
	s.app.Post("/flows/:name/batch", s.handleBatch)

	s.app.Post("/chat", s.handleChat)
	s.app.Post("/media", s.handleUpload)

	// run ledger inspection; fixed paths before /runs/:hash
	s.app.Get("/runs/stats", s.handleRunStats)
	s.app.Get("/runs/history", s.handleListHistories)
	s.app.Get("/runs/history/:hash", s.handleGetHistory)
	s.app.Post("/runs/nodes", s.handleIngestNodes)
	s.app.Get("/runs/:hash", s.handleGetNode)

	mcpHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.mcp
	}, &mcp.StreamableHTTPOptions{Stateless: true, JSONResponse: true})
	s.app.All("/mcp", adaptor.HTTPHandler(mcpHandler))
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Service returns the typed flow entry points the server runs.
func (s *Server) Service() *flows.Service { return s.service }

// Storer returns the run ledger.
func (s *Server) Storer() runlog.Storer { return s.storer }

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting studyflow server",
		zap.String("listen", s.config.ListenAddr),
		zap.Strings("flows", s.service.Catalog().Names()),
	)

	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting studyflow server", zap.String("listen", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown() error {
	s.stopStream()
	return s.app.Shutdown()
}

// Close releases the run ledger.
func (s *Server) Close() error {
	return s.storer.Close()
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
