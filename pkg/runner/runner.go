// Package runner provides a high-level API for embedding the snapshot
// pipeline with DBOS-backed durable execution in another application.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/tendant/product-snapshot-pipeline/internal/catalog"
	"github.com/tendant/product-snapshot-pipeline/internal/db"
	"github.com/tendant/product-snapshot-pipeline/internal/dbosruntime"
	"github.com/tendant/product-snapshot-pipeline/internal/orchestrator"
	"github.com/tendant/product-snapshot-pipeline/internal/runs"
	"github.com/tendant/product-snapshot-pipeline/internal/scheduler"
	"github.com/tendant/product-snapshot-pipeline/internal/snapshot"
	"github.com/tendant/product-snapshot-pipeline/internal/storage"
	"github.com/tendant/product-snapshot-pipeline/internal/upload"
	"github.com/tendant/product-snapshot-pipeline/internal/vision"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// Config holds the configuration for initializing the embedded runner
type Config struct {
	DatabaseURL         string        // Postgres connection string (store + DBOS state)
	AppName             string        // Application name for DBOS
	QueueName           string        // DBOS queue name
	Concurrency         int           // Number of concurrent queue workers
	VisionEndpoint      string        // Vendor API base URL
	VisionAPIKey        string        // Vendor subscription key
	AnalysisTimeout     time.Duration // Per-request vendor timeout
	MaxUploadBytes      int64         // Image size cap
	AllowedImageTypes   []string      // Content-type allow-list
	AnalysisConcurrency int64         // In-flight vendor call bound (0 = unlimited)
	ApplicationVersion  string        // Optional: override binary hash for version matching
}

// Runner embeds the snapshot pipeline with a DBOS-backed run queue
type Runner struct {
	runtime *dbosruntime.Runtime
	runs    *runs.Runner
	orch    *orchestrator.Orchestrator
	store   *snapshot.Store
	daily   *scheduler.Service
}

// New creates and launches an embedded snapshot runner
func New(cfg Config) (*Runner, error) {
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 10 * 1024 * 1024
	}
	if len(cfg.AllowedImageTypes) == 0 {
		cfg.AllowedImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}
	}

	conn, err := db.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := snapshot.NewStore(conn, snapshot.DialectPostgres)
	if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}

	products := catalog.NewSQLSource(conn)
	if err := products.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}

	validator := upload.NewValidator(cfg.MaxUploadBytes, cfg.AllowedImageTypes)
	visionClient := vision.NewClient(vision.Config{
		Endpoint: cfg.VisionEndpoint,
		APIKey:   cfg.VisionAPIKey,
		Timeout:  cfg.AnalysisTimeout,
		Retry:    vision.NewDefaultRetryConfig(),
	})
	orch := orchestrator.New(validator, visionClient, store).
		WithAnalysisLimit(cfg.AnalysisConcurrency)

	dbosRuntime, err := dbosruntime.NewRuntime(context.Background(), dbosruntime.Config{
		DatabaseURL:        cfg.DatabaseURL,
		AppName:            cfg.AppName,
		QueueName:          cfg.QueueName,
		Concurrency:        cfg.Concurrency,
		ApplicationVersion: cfg.ApplicationVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DBOS: %w", err)
	}

	imageSource := storage.NewHTTPImageSource(30*time.Second, cfg.MaxUploadBytes)
	runQueue := runs.NewRunner(dbosRuntime, imageSource, orch)

	// Launch DBOS (must be after workflow registration)
	if err := dbosRuntime.Launch(); err != nil {
		return nil, fmt.Errorf("failed to launch DBOS: %w", err)
	}

	return &Runner{
		runtime: dbosRuntime,
		runs:    runQueue,
		orch:    orch,
		store:   store,
		daily:   scheduler.NewService(products, imageSource, orch),
	}, nil
}

// EnqueueSnapshot submits a durable async snapshot run for a product image URL
func (r *Runner) EnqueueSnapshot(ctx context.Context, productID, imageURL string) (string, error) {
	return r.runs.Enqueue(ctx, pipeline.SnapshotRequest{
		ProductID: productID,
		ImageURL:  imageURL,
		Options:   pipeline.DefaultOptions(),
	})
}

// Snapshot runs the pipeline synchronously on in-memory image bytes
func (r *Runner) Snapshot(ctx context.Context, productID string, imageData []byte, contentType string) (*orchestrator.Result, error) {
	return r.orch.Run(ctx, productID, upload.Payload{
		Data:         imageData,
		ContentType:  contentType,
		DeclaredSize: int64(len(imageData)),
	}, pipeline.DefaultOptions())
}

// RunDailyBatch snapshots every cataloged product once
func (r *Runner) RunDailyBatch(ctx context.Context) (*scheduler.BatchResult, error) {
	return r.daily.RunBatch(ctx)
}

// Store exposes the snapshot store for read queries
func (r *Runner) Store() *snapshot.Store {
	return r.store
}

// Shutdown gracefully shuts down the embedded runner
func (r *Runner) Shutdown(timeoutSeconds int) {
	if r.runtime != nil {
		r.runtime.Shutdown(time.Duration(timeoutSeconds) * time.Second)
	}
}
