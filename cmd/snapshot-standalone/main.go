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

	"github.com/tendant/product-snapshot-pipeline/internal/catalog"
	"github.com/tendant/product-snapshot-pipeline/internal/config"
	"github.com/tendant/product-snapshot-pipeline/internal/db"
	"github.com/tendant/product-snapshot-pipeline/internal/handlers"
	"github.com/tendant/product-snapshot-pipeline/internal/orchestrator"
	"github.com/tendant/product-snapshot-pipeline/internal/scheduler"
	"github.com/tendant/product-snapshot-pipeline/internal/snapshot"
	"github.com/tendant/product-snapshot-pipeline/internal/storage"
	"github.com/tendant/product-snapshot-pipeline/internal/upload"
	"github.com/tendant/product-snapshot-pipeline/internal/vision"
)

// Standalone snapshot worker for quick testing.
// Uses an embedded SQLite store under ./dev-data; no Postgres or DBOS needed.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	if cfg.VisionEndpoint == "" || cfg.VisionAPIKey == "" {
		log.Fatalf("VISION_ENDPOINT and VISION_API_KEY are required")
	}

	log.Printf("Snapshot Standalone Worker")
	log.Printf("  Mode: Embedded (SQLite storage)")
	log.Printf("  Data directory: %s", cfg.DataDir)
	log.Printf("  HTTP address: %s", cfg.HTTPAddr)

	conn, err := db.OpenSQLite(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer conn.Close()

	store := snapshot.NewStore(conn, snapshot.DialectSQLite)
	if err := store.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure snapshot schema: %v", err)
	}

	products := catalog.NewSQLSource(conn)
	if err := products.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("Failed to ensure products table: %v", err)
	}
	log.Printf("✓ Embedded store ready")

	validator := upload.NewValidator(cfg.MaxUploadBytes, cfg.AllowedImageTypes)
	visionClient := vision.NewClient(vision.Config{
		Endpoint: cfg.VisionEndpoint,
		APIKey:   cfg.VisionAPIKey,
		Timeout:  cfg.AnalysisTimeout,
		Retry:    cfg.Retry,
	})

	orch := orchestrator.New(validator, visionClient, store).
		WithAnalysisLimit(cfg.AnalysisConcurrency)
	log.Printf("✓ Pipeline initialized")

	daily := scheduler.NewService(products, storage.NewHTTPImageSource(30*time.Second, cfg.MaxUploadBytes), orch)
	if err := daily.Start(cfg.ScheduleSpec); err != nil {
		log.Fatalf("Failed to start snapshot scheduler: %v", err)
	}
	defer daily.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handleHealth)
	handlers.NewSnapshotHandler(orch, store).Register(mux)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("✓ Snapshot worker ready on %s", cfg.HTTPAddr)
		log.Printf("")
		log.Printf("Available endpoints:")
		log.Printf("  GET  /health                        - Health check")
		log.Printf("  POST /v1/products/{id}/snapshot     - Upload and analyze an image")
		log.Printf("  GET  /v1/products/{id}/snapshot     - Latest completed snapshot")
		log.Printf("  GET  /v1/products/{id}/snapshots    - Snapshot history")
		log.Printf("  GET  /v1/stats                      - Summary statistics")
		log.Printf("")
		log.Printf("Quick test:")
		log.Printf("  curl -F file=@image.jpg http://localhost:8080/v1/products/p1/snapshot")
		log.Printf("")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

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

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	})
}
