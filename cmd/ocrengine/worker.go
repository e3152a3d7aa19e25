package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/ocr-engine/internal/logging"
	"github.com/adverant/nexus/ocr-engine/internal/processor"
	"github.com/adverant/nexus/ocr-engine/internal/queue"
	"github.com/adverant/nexus/ocr-engine/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func newWorkerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume async extraction jobs and serve metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd.Context(), c)
		},
	}
	return cmd
}

func runWorker(ctx context.Context, c *cli) error {
	logger := logging.NewLogger("worker")
	cfg := c.cfg

	logger.Info("OCR worker starting",
		"queueRedis", cfg.Queue.RedisURL,
		"concurrency", cfg.Queue.Concurrency,
		"jobTracking", cfg.Database.URL != "",
		"metricsPort", cfg.Metrics.Port)

	e, err := newEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	// Job tracking is optional
	var tracker queue.JobTracker
	if cfg.Database.URL != "" {
		db, err := storage.NewPostgresClient(cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to initialize job tracking: %w", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			return err
		}
		tracker = db
		logger.Info("Job tracking enabled (PostgreSQL)")
	}

	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:    cfg.Queue.RedisURL,
		Concurrency: cfg.Queue.Concurrency,
		Extractor:   e.service,
		Tracker:     tracker,
		JobTimeout:  cfg.Queue.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize queue consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	var server *http.Server
	if cfg.Metrics.Port > 0 {
		server = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           newOpsHandler(e.service),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("OCR worker is ready, waiting for jobs")

	// Setup graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()
	logger.Info("Shutdown signal received, draining in-flight jobs")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error stopping metrics server", "error", err)
		}
	}

	logger.Info("Shutdown complete")
	return nil
}

// newOpsHandler serves /metrics, /health and /providers
func newOpsHandler(svc *processor.Service) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		report := svc.HealthCheck(r.Context())
		status := http.StatusOK
		if !report.Healthy {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	})
	mux.HandleFunc("/providers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.ProviderStatuses())
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
