// Package main implements the genrelay server: the HTTP API in front of the
// credit-metered generation provider, its key pool and the enhancement
// workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/genrelay/internal/config"
	"github.com/phrazzld/genrelay/internal/platform/logger"
	"github.com/phrazzld/genrelay/internal/platform/postgres"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Run a database migration command (up, down, status, ...) and exit")
	flag.Parse()

	if err := run(*migrateCmd, flag.Args()); err != nil {
		log.Fatalf("genrelay: %v", err)
	}
}

func run(migrateCmd string, migrateArgs []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"default_model", cfg.Generation.DefaultModel,
		"fallback_key_present", cfg.Provider.FallbackAPIKey != "")

	db, err := setupAppDatabase(cfg, l)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if migrateCmd != "" {
		defer closeDB(db, l)
		l.Info("executing migrations", "command", migrateCmd)
		return postgres.Migrate(ctx, db, migrateCmd, l, migrateArgs...)
	}

	app, err := newApplication(ctx, cfg, l, db)
	if err != nil {
		closeDB(db, l)
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}

func closeDB(db interface{ Close() error }, l *slog.Logger) {
	if err := db.Close(); err != nil {
		l.Error("error closing database connection", "error", err)
	}
}
