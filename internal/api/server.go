package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/feedback"
	"github.com/cbc-interpretation-server/internal/middleware"
	"github.com/cbc-interpretation-server/internal/service"
)

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	interpreter   *service.Interpreter
	extractor     domain.ReadingExtractor
	narrator      domain.NarrativeGenerator
	feedbackStore feedback.Store
	router        *gin.Engine
	server        *http.Server
}

// Option configures optional collaborators of the server.
type Option func(*Server)

// WithExtractor enables the plain-text interpretation endpoint.
func WithExtractor(extractor domain.ReadingExtractor) Option {
	return func(s *Server) { s.extractor = extractor }
}

// WithNarrator enables the narrative endpoint.
func WithNarrator(narrator domain.NarrativeGenerator) Option {
	return func(s *Server) { s.narrator = narrator }
}

// WithFeedbackStore enables the feedback endpoints.
func WithFeedbackStore(store feedback.Store) Option {
	return func(s *Server) { s.feedbackStore = store }
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, interpreter *service.Interpreter, logger *logrus.Logger, opts ...Option) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst))
	router.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))
	router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))

	server := &Server{
		configManager: configManager,
		logger:        logger,
		interpreter:   interpreter,
		router:        router,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()

	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithFields(logrus.Fields{"addr": addr, "tls": cfg.TLSEnabled}).Info("HTTP server listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/interpret", s.handleInterpret)
		v1.POST("/interpret/text", s.handleInterpretText)
		v1.GET("/reference-ranges", s.handleReferenceRanges)
		v1.GET("/rules", s.handleRules)
		v1.POST("/narrative", s.handleNarrative)
		v1.POST("/feedback", s.handleSubmitFeedback)
		v1.GET("/feedback", s.handleListFeedback)
		v1.GET("/feedback/stats", s.handleFeedbackStats)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"timestamp":         time.Now().UTC(),
		"version":           s.configManager.GetConfig().MCP.ServerVersion,
		"engine_version":    service.EngineVersion,
		"reference_version": s.interpreter.Table().Version(),
		"rules_version":     s.interpreter.Rules().Version(),
		"narrative":         s.narrator != nil,
		"feedback":          s.feedbackStore != nil,
	})
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Correlation-ID, X-Report-Fingerprint")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// abort writes a standardized error body and stops the handler chain.
func abort(c *gin.Context, status int, code, message, details string) {
	c.AbortWithStatusJSON(status, &domain.APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: c.GetString(middleware.CorrelationIDKey),
	})
}
