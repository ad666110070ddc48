// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crm-assistant/internal/common/camunda"
	"crm-assistant/internal/common/config"
	"crm-assistant/internal/common/database"
	"crm-assistant/internal/common/llm"
	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/common/observability"
	"crm-assistant/internal/common/ratelimit"
	"crm-assistant/internal/handlers"
	aq "crm-assistant/internal/workers/ai-conversation/answer-question"
	ls "crm-assistant/internal/workers/ai-conversation/llm-synthesis"
	pui "crm-assistant/internal/workers/ai-conversation/parse-user-intent"
	vi "crm-assistant/internal/workers/ai-conversation/validate-intent"
	qp "crm-assistant/internal/workers/data-access/query-postgresql"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func fatal(log logger.Logger, msg string, err error) {
	log.Error(msg, map[string]interface{}{"error": err.Error()})
	os.Exit(1)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("Starting crm assistant...", map[string]interface{}{
		"environment": cfg.App.Environment,
		"version":     cfg.App.Version,
	})

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		fatal(log, "postgres failed after retries", err)
	}
	defer pg.Close()
	log.Info("PostgreSQL connected successfully", map[string]interface{}{"driver": cfg.Database.Postgres.Driver})

	checks := map[string]handlers.Check{"postgres": pg.Ping}

	// --- Init Redis for rate limiting ---
	var limiter handlers.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		var rdb *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rdb, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rdb.Ping(ctx)
		}, 10, 2*time.Second, log, "Redis connection")
		if err != nil {
			fatal(log, "redis failed after retries", err)
		}
		defer rdb.Close()

		limiter = ratelimit.New(rdb.GetClient(), cfg.Server.RateLimit.Requests,
			time.Duration(cfg.Server.RateLimit.Window)*time.Second, log)
		checks["redis"] = rdb.Ping
		log.Info("Redis connected successfully", nil)
	}

	// --- Init model backend ---
	chat, err := llm.NewFromConfig(ctx, cfg.LLM, obs, log)
	if err != nil {
		fatal(log, "llm client init failed", err)
	}
	if closer, ok := chat.(llm.Closer); ok {
		defer closer.Close()
	}

	// --- Pipeline ---
	stages := aq.Stages{
		Extractor: pui.NewHandler(pui.LoadConfig(cfg), chat, obs, log),
		Validator: vi.NewHandler(log),
		Executor:  qp.NewHandler(qp.LoadConfig(cfg), pg.GetDB(), obs, log),
		Generator: ls.NewHandler(ls.LoadConfig(cfg), chat, obs, log),
	}
	answerer := aq.NewHandler(aq.LoadConfig(cfg), stages, obs, log)

	// --- Zeebe worker ---
	var zeebe *camunda.Client
	var jobWorker *camunda.Worker
	if cfg.Camunda.Enabled && config.IsWorkerEnabled(cfg, aq.TaskType) {
		zeebe, err = camunda.Connect(ctx, camunda.ConfigFrom(cfg.Camunda), log)
		if err != nil {
			fatal(log, "zeebe client failed after retries", err)
		}
		jobWorker = camunda.StartWorker(zeebe.GetClient(), aq.TaskType, config.GetWorkerConfig(cfg, aq.TaskType), answerer, log)
		checks["zeebe"] = zeebe.HealthCheck
	}

	// --- HTTP API, Health & Metrics ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/ready", handlers.Ready(checks))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/api/ask", handlers.NewAskHandler(answerer, handlers.AskOptions{
		APIKey:     cfg.Server.APIKey,
		Timeout:    config.GetDuration(cfg.Server.RequestTimeout),
		Production: cfg.App.IsProduction(),
		Limiter:    limiter,
	}, log))

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "HTTP server failed", err)
		}
	}()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	log.Info("Shutdown signal received, stopping...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down HTTP server", map[string]interface{}{"error": err.Error()})
	}
	if jobWorker != nil {
		jobWorker.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			log.Error("Error closing Zeebe client", map[string]interface{}{"error": err.Error()})
		}
	}

	log.Info("crm assistant stopped gracefully", nil)
}
