package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/cbc-interpretation-server/internal/api"
	"github.com/cbc-interpretation-server/internal/config"
	"github.com/cbc-interpretation-server/internal/extraction"
	"github.com/cbc-interpretation-server/internal/feedback"
	"github.com/cbc-interpretation-server/internal/logging"
	"github.com/cbc-interpretation-server/internal/narrative"
	"github.com/cbc-interpretation-server/internal/service"
)

func main() {
	configFile := flag.String("config", "", "path to config.yaml (default: search . ./config /etc/cbc-interpretation-server)")
	flag.Parse()

	// Load configuration
	configManager, err := config.NewManagerFromFile(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer closeLog()

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interpreter, err := service.NewInterpreterFromConfig(logger, cfg.Interpretation)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create interpreter")
	}

	opts := []api.Option{api.WithExtractor(extraction.NewTextExtractor())}

	if cfg.Narrative.Enabled {
		narrator, closeCache, err := narrative.Setup(ctx, cfg.Narrative, cfg.Cache, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create narrative service")
		}
		defer closeCache()
		opts = append(opts, api.WithNarrator(narrator))
	} else {
		opts = append(opts, api.WithNarrator(narrative.NewLocalGenerator()))
	}

	if cfg.Feedback.Enabled {
		store, err := feedback.NewSQLiteStore(cfg.Feedback.Path)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open feedback store")
		}
		defer store.Close()
		opts = append(opts, api.WithFeedbackStore(store))
	}

	logger.WithFields(logrus.Fields{
		"host":      cfg.Server.Host,
		"port":      cfg.Server.Port,
		"narrative": cfg.Narrative.Enabled,
		"feedback":  cfg.Feedback.Enabled,
	}).Info("Starting CBC interpretation server")

	// Create server
	server := api.NewServer(configManager, interpreter, logger, opts...)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Start server
	if err := server.Start(ctx); err != nil {
		logger.WithError(err).Error("Server failed")
		return
	}

	logger.Info("Server stopped")
}
