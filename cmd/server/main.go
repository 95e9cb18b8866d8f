package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelcm/ghl-stats-go/internal/aggregate"
	"github.com/angelcm/ghl-stats-go/internal/config"
	"github.com/angelcm/ghl-stats-go/internal/crm"
	"github.com/angelcm/ghl-stats-go/internal/directory"
	"github.com/angelcm/ghl-stats-go/internal/httpx"
)

func main() {
	_ = godotenv.Load() // best-effort, env vars win

	cfg := config.FromEnv()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("err", err.Error()))
		os.Exit(1)
	}

	client := crm.NewClient(cfg.CRMBaseURL, cfg.HTTPTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	dir, err := directory.Build(ctx, cfg, client, logger)
	cancel()
	if err != nil {
		logger.Error("directory build failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	cache := aggregate.NewMemoryCache(cfg.CacheTTL)
	engine := aggregate.New(dir, client, cache, cfg, logger)

	r := httpx.NewRouter(logger, dir, engine)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting server",
		slog.String("port", cfg.Port),
		slog.String("strategy", string(cfg.Strategy)),
		slog.Int("locations", len(dir.List())))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
