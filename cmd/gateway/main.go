package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/winkai/studio-gateway/internal/config"
	"github.com/winkai/studio-gateway/internal/credentials"
	"github.com/winkai/studio-gateway/internal/gateway"
	"github.com/winkai/studio-gateway/internal/oauth"
	"github.com/winkai/studio-gateway/internal/server"
	"github.com/winkai/studio-gateway/internal/settings"
	"github.com/winkai/studio-gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("WINK_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.Init("studio-gateway", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	store, err := settings.New(cfg.Settings.Path)
	if err != nil {
		log.Fatalf("Failed to open settings store: %v", err)
	}
	defer store.Close()

	tokens := oauth.New(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret,
		oauth.WithLogger(logger))

	resolver := credentials.New(cfg, store)
	gw := gateway.New(resolver,
		gateway.WithLogger(logger),
		gateway.WithTokenProvider(tokens))

	srv := server.New(cfg.Server.Port, gw, cfg.Relay.Upstream, logger)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
