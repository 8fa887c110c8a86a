package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"festcred/internal/adapter/repo"
	"festcred/internal/http/handlers"
	"festcred/internal/http/httpapi"
	"festcred/internal/infra"
	"festcred/internal/metrics"
	"festcred/internal/regid"
	"festcred/internal/service"
	"festcred/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: db connection failed")
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, repo.Schema); err != nil {
		logger.Fatal().Err(err).Msg("api: apply schema failed")
	}

	rdb, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("api: redis unavailable, registration ids will use the fallback form")
	}
	var seq regid.Sequencer
	if rdb != nil {
		seq = rdb
		defer rdb.Close()
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}
	signer, err := storage.NewURLSigner(cfg.SigningSecret, strings.TrimRight(cfg.PublicBaseURL, "/")+"/v1/files")
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure url signer")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	allocator := regid.NewAllocator(seq, logger)
	svc := service.New(repo.NewRegistrationRepo(pool), repo.NewJobQueue(pool), allocator, signer, cfg.SignedURLTTL, metrics.New(registry), logger)
	app := handlers.NewApp(svc, store, signer, logger)

	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		OperatorToken:   cfg.OperatorToken,
		RateLimitPerMin: cfg.RateLimitPerMin,
		MetricsRegistry: registry,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("api: http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: shutdown failed")
	}
	logger.Info().Msg("api: stopped")
}
