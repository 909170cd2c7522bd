package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/product-snapshot-pipeline/internal/catalog"
	"github.com/tendant/product-snapshot-pipeline/internal/config"
	"github.com/tendant/product-snapshot-pipeline/internal/db"
	"github.com/tendant/product-snapshot-pipeline/internal/dbosruntime"
	"github.com/tendant/product-snapshot-pipeline/internal/handlers"
	"github.com/tendant/product-snapshot-pipeline/internal/metrics"
	"github.com/tendant/product-snapshot-pipeline/internal/orchestrator"
	"github.com/tendant/product-snapshot-pipeline/internal/runs"
	"github.com/tendant/product-snapshot-pipeline/internal/scheduler"
	"github.com/tendant/product-snapshot-pipeline/internal/snapshot"
	"github.com/tendant/product-snapshot-pipeline/internal/storage"
	"github.com/tendant/product-snapshot-pipeline/internal/upload"
	"github.com/tendant/product-snapshot-pipeline/internal/vision"
)

// Production snapshot worker: Postgres store, DBOS-backed durable run queue,
// daily cron batch, prometheus metrics.
func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}
	if cfg.VisionEndpoint == "" || cfg.VisionAPIKey == "" {
		log.Fatalf("VISION_ENDPOINT and VISION_API_KEY are required")
	}

	// Database and schema
	conn, err := db.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer conn.Close()

	store := snapshot.NewStore(conn, snapshot.DialectPostgres)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure snapshot schema: %v", err)
	}

	products := catalog.NewSQLSource(conn)
	if err := products.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure products table: %v", err)
	}
	log.Printf("✓ Database ready")

	// Metrics
	m := metrics.New(prometheus.DefaultRegisterer)

	// Pipeline
	validator := upload.NewValidator(cfg.MaxUploadBytes, cfg.AllowedImageTypes)
	visionClient := vision.NewClient(vision.Config{
		Endpoint: cfg.VisionEndpoint,
		APIKey:   cfg.VisionAPIKey,
		Timeout:  cfg.AnalysisTimeout,
		Retry:    cfg.Retry,
	}).WithObserver(m)

	orch := orchestrator.New(validator, visionClient, store).
		WithAnalysisLimit(cfg.AnalysisConcurrency).
		WithMetrics(m)
	log.Printf("✓ Pipeline initialized (vendor=%s, timeout=%s, retries=%d)", cfg.VisionEndpoint, cfg.AnalysisTimeout, cfg.Retry.MaxRetries)

	// DBOS runtime for durable async runs
	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL: cfg.DatabaseURL,
		AppName:     "snapshot-worker",
		QueueName:   cfg.QueueName,
		Concurrency: cfg.QueueConcurrency,
	})
	if err != nil {
		log.Fatalf("Failed to initialize DBOS: %v", err)
	}

	imageSource := storage.NewHTTPImageSource(30*time.Second, cfg.MaxUploadBytes)
	runner := runs.NewRunner(dbosRuntime, imageSource, orch)

	// Launch DBOS (must be done after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		log.Fatalf("Failed to launch DBOS: %v", err)
	}
	defer dbosRuntime.Shutdown(10 * time.Second)

	log.Printf("✓ DBOS runtime initialized")
	log.Printf("  Queue: %s", dbosRuntime.QueueName())
	log.Printf("  Concurrency: %d", dbosRuntime.Concurrency())

	// Daily snapshot batch
	daily := scheduler.NewService(products, imageSource, orch)
	if err := daily.Start(cfg.ScheduleSpec); err != nil {
		log.Fatalf("Failed to start snapshot scheduler: %v", err)
	}
	defer daily.Stop()

	// HTTP server
	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	handlers.NewSnapshotHandler(orch, store).Register(mux)
	handlers.NewAsyncHandler(runner).Register(mux)
	log.Printf("✓ Registered snapshot endpoints")

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Snapshot worker starting on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// handleHealth returns health status
func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}
