// Package mcp exposes the interpretation engine as Model Context Protocol tools.
// The lite server needs no external services: feedback lives in SQLite under the data
// directory and narratives, when enabled, are cached in memory.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	litecfg "github.com/cbc-interpretation-server/internal/config"
	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/extraction"
	"github.com/cbc-interpretation-server/internal/feedback"
	"github.com/cbc-interpretation-server/internal/logging"
	"github.com/cbc-interpretation-server/internal/narrative"
	"github.com/cbc-interpretation-server/internal/service"
)

// ServerName is announced to MCP clients.
const ServerName = "cbc-interpretation-server-lite"

// LiteServer is a lightweight MCP server over stdio.
type LiteServer struct {
	config        *litecfg.LiteConfig
	mcpServer     *mcp.Server
	interpreter   *service.Interpreter
	extractor     domain.ReadingExtractor
	narrator      domain.NarrativeGenerator
	feedbackStore feedback.Store
	logger        *logrus.Logger
	closers       []func() error
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithFeedbackStore sets a custom feedback store.
func WithFeedbackStore(store feedback.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.feedbackStore = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// WithNarrator overrides the narrative generator built from the configuration.
func WithNarrator(narrator domain.NarrativeGenerator) LiteServerOption {
	return func(s *LiteServer) error {
		s.narrator = narrator
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config:    cfg,
		extractor: extraction.NewTextExtractor(),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.logger == nil {
		logger, closeLog, err := logging.New(cfg.Logging())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		server.logger = logger
		server.closers = append(server.closers, closeLog)
	}

	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	interpreter, err := service.NewInterpreterFromConfig(server.logger, cfg.Interpretation())
	if err != nil {
		return nil, fmt.Errorf("failed to create interpreter: %w", err)
	}
	server.interpreter = interpreter

	if server.feedbackStore == nil {
		store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create feedback store: %w", err)
		}
		server.feedbackStore = store
		server.closers = append(server.closers, store.Close)
	}

	if server.narrator == nil && cfg.NarrativeEnabled {
		// the lite cache config has no Redis URL, so Setup stays in memory
		svc, closeCache, err := narrative.Setup(context.Background(), cfg.Narrative(), cfg.Cache(), server.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create narrative service: %w", err)
		}
		server.narrator = svc
		server.closers = append(server.closers, closeCache)
	}
	if server.narrator == nil {
		server.narrator = narrative.NewLocalGenerator()
	}

	server.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: service.EngineVersion,
	}, nil)
	server.registerTools()

	server.logger.WithFields(logrus.Fields{
		"data_dir":  cfg.DataDir,
		"narrative": cfg.NarrativeEnabled,
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves MCP over stdio until the client disconnects or ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting CBC interpretation MCP server (lite)")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// Close releases everything the server opened, in reverse order.
func (s *LiteServer) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.WithError(err).Error("Failed to release server resource")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	s.closers = nil
	return firstErr
}

// GetFeedbackStore returns the feedback store for external access.
func (s *LiteServer) GetFeedbackStore() feedback.Store {
	return s.feedbackStore
}
