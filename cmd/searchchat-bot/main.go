package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akshata29/aisearchmm-sub000/internal/api"
	"github.com/akshata29/aisearchmm-sub000/internal/backend"
	"github.com/akshata29/aisearchmm-sub000/internal/bot"
	"github.com/akshata29/aisearchmm-sub000/internal/bus"
	"github.com/akshata29/aisearchmm-sub000/internal/config"
	"github.com/akshata29/aisearchmm-sub000/internal/slack"
	"github.com/akshata29/aisearchmm-sub000/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("searchchat-bot starting", "port", cfg.Port, "backend", cfg.BackendURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database — holds delivery claims so redelivered mentions answer once.
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Backend client
	headers := http.Header{}
	if cfg.SessionID != "" {
		headers.Set("X-Session-Id", cfg.SessionID)
	}
	if cfg.AuthMode != "" {
		headers.Set("X-Auth-Mode", cfg.AuthMode)
	}
	if cfg.APIToken != "" {
		headers.Set("Authorization", "Bearer "+cfg.APIToken)
	}
	asker := backend.NewClient(cfg.BackendURL, headers, cfg.MaxRetries, cfg.RetryBackoff, cfg.StreamTimeout, slog.Default())
	slog.Info("backend client ready", "retries", cfg.MaxRetries, "timeout", cfg.StreamTimeout)

	// NATS
	busClient, err := bus.NewClient(cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer busClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Slack poster
	if cfg.SlackBotToken == "" {
		slog.Error("SLACK_BOT_TOKEN is required")
		os.Exit(1)
	}
	poster := slack.NewPoster(cfg.SlackBotToken, cfg.SlackAPIURL, cfg.RequestTimeout, slog.Default())

	// Bot — the mention pipeline
	b := bot.New(asker, db, poster, busClient, bot.Config{
		ChunkCount:        cfg.ChunkCount,
		RankingMode:       cfg.RankingMode,
		Streaming:         cfg.Streaming,
		KnowledgeAgent:    cfg.KnowledgeAgent,
		UseHistory:        cfg.UseHistory,
		HistoryCap:        cfg.HistoryCap,
		CompletionSubject: cfg.CompletionSubject,
	}, slog.Default())

	if err := busClient.Subscribe(cfg.MentionSubject, b.HandleMention); err != nil {
		slog.Error("failed to subscribe to mentions", "error", err)
		os.Exit(1)
	}

	// HTTP API
	opts := backend.Options{
		ChunkCount:     cfg.ChunkCount,
		RankingMode:    cfg.RankingMode,
		Streaming:      cfg.Streaming,
		KnowledgeAgent: cfg.KnowledgeAgent,
	}
	srv := api.NewServer(cfg.Port, asker, opts, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := busClient.Publish("chat.agent.searchbot.registered", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("searchchat-bot ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("searchchat-bot stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
