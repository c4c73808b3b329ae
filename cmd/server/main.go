// Package main is the entry point for the socialhub server.
//
// MAIN PACKAGE IN GO:
// main stays minimal. Its job is to:
//  1. Read configuration (env vars and .env, see internal/config)
//  2. Create the logger
//  3. Start the application
//
// All actual logic lives in imported packages (internal/server,
// internal/service, ...), which keeps it testable without running a binary.
//
// WHY cmd/server/?
// cmd/ is the Go convention for executable entry points. Each executable
// gets its own directory with its own main.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/socialhub/internal/config"
	"github.com/sakif/socialhub/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	// === 1. READ CONFIGURATION ===
	// Example:
	//   JWT_SECRET=$(openssl rand -hex 32) go run ./cmd/server
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// === 2. SET UP LOGGING ===
	// Log levels (least to most severe): Debug → Info → Warn → Error.
	// LOG_LEVEL=debug shows websocket and live-query chatter.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	// === 3. DATABASE DIRECTORY ===
	// os.MkdirAll is `mkdir -p`: it creates parents and tolerates existing dirs.
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Start blocks until Ctrl+C or SIGTERM.
	return srv.Start()
}
