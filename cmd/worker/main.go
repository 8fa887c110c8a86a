package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"festcred/internal/adapter/repo"
	"festcred/internal/badge"
	"festcred/internal/infra"
	"festcred/internal/metrics"
	"festcred/internal/providers/enhance"
	"festcred/internal/storage"
	"festcred/internal/worker"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, repo.Schema); err != nil {
		logger.Fatal().Err(err).Msg("worker: apply schema failed")
	}

	store, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	enhancer := resolveEnhancer(ctx, cfg, logger)

	registry := prometheus.NewRegistry()
	go serveMetrics(cfg.MetricsPort, registry, logger)

	w := worker.New(
		worker.Config{
			Concurrency:      cfg.WorkerConcurrency,
			PollInterval:     cfg.WorkerPollInterval,
			RetryBaseDelay:   cfg.RetryBaseDelay,
			RetryMultiplier:  cfg.RetryMultiplier,
			RetryMaxAttempts: cfg.RetryMaxAttempts,
			EnhanceTimeout:   cfg.EnhanceTimeout,
			JobRetention:     cfg.JobRetention,
		},
		repo.NewJobQueue(pool),
		repo.NewRegistrationRepo(pool),
		store,
		enhancer,
		composerSource(cfg.TemplatePath),
		metrics.New(registry),
		logger,
	)

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker: started")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// serveMetrics exposes the worker's counters on a side port.
func serveMetrics(port string, registry *prometheus.Registry, logger infra.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		logger.Warn().Err(err).Msg("worker: metrics listener failed")
	}
}

// resolveEnhancer probes the configured models once at startup. A nil result
// means every job runs the unenhanced path.
func resolveEnhancer(ctx context.Context, cfg *infra.Config, logger infra.Logger) worker.Enhancer {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := enhance.ResolveModel(probeCtx, enhance.Options{
		APIKey:     cfg.EnhanceAPIKey,
		BaseURL:    cfg.EnhanceBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.EnhanceTimeout},
		Logger:     &logger,
	}, cfg.EnhanceModels)
	if err != nil {
		if errors.Is(err, enhance.ErrNoCredentials) {
			logger.Warn().Msg("worker: no enhancement credentials, photos will be used as-is")
		} else {
			logger.Warn().Err(err).Msg("worker: no usable enhancement model, photos will be used as-is")
		}
		return nil
	}
	logger.Info().Str("model", client.Model()).Msg("worker: enhancement ready")
	return client
}

// composerSource loads the credential template lazily and caches the first
// success. Jobs that run before the template exists fail individually.
func composerSource(templatePath string) worker.ComposerSource {
	var (
		mu       sync.Mutex
		renderer *badge.Renderer
	)
	return func() (worker.Composer, error) {
		mu.Lock()
		defer mu.Unlock()
		if renderer != nil {
			return renderer, nil
		}
		r, err := badge.NewRenderer(templatePath)
		if err != nil {
			return nil, err
		}
		renderer = r
		return renderer, nil
	}
}
