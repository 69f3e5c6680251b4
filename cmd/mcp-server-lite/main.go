// Package main provides the stdio MCP entry point for the CBC interpretation engine.
// It requires no external services: feedback is kept in SQLite under CBC_DATA_DIR.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cbc-interpretation-server/internal/config"
	"github.com/cbc-interpretation-server/internal/mcp"
)

func main() {
	// stdout belongs to the MCP transport
	log.SetOutput(os.Stderr)

	cfg := config.LoadLiteConfig()

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		return
	}
}
