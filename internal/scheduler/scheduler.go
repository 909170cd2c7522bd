// Package scheduler triggers the daily snapshot run. Triggering is
// at-least-once: a repeated run for the same day is harmless because
// unchanged products dedupe by fingerprint.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tendant/product-snapshot-pipeline/internal/catalog"
	"github.com/tendant/product-snapshot-pipeline/internal/orchestrator"
	"github.com/tendant/product-snapshot-pipeline/internal/storage"
	"github.com/tendant/product-snapshot-pipeline/internal/upload"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// PipelineRunner runs one snapshot invocation. Satisfied by
// *orchestrator.Orchestrator.
type PipelineRunner interface {
	Run(ctx context.Context, productID string, payload upload.Payload, opts pipeline.Options) (*orchestrator.Result, error)
}

// BatchResult summarizes one daily run
type BatchResult struct {
	Products   int
	Completed  int
	Duplicates int
	Failed     int
}

// Service runs the snapshot pipeline once per product on a cron schedule
type Service struct {
	products catalog.Source
	images   storage.ImageSource
	runner   PipelineRunner
	options  pipeline.Options
	cron     *cron.Cron
}

// NewService creates the daily snapshot service
func NewService(products catalog.Source, images storage.ImageSource, runner PipelineRunner) *Service {
	return &Service{
		products: products,
		images:   images,
		runner:   runner,
		options:  pipeline.DefaultOptions(),
		cron:     cron.New(),
	}
}

// Start registers the batch on the given cron spec and starts the scheduler
func (s *Service) Start(spec string) error {
	if spec == "" {
		spec = "0 3 * * *" // Default: daily at 03:00
	}
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
		defer cancel()
		if _, err := s.RunBatch(ctx); err != nil {
			log.Printf("Scheduled snapshot batch failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule snapshot batch: %w", err)
	}
	s.cron.Start()
	log.Printf("✓ Daily snapshot schedule registered: %s", spec)
	return nil
}

// Stop stops the scheduler and waits for a running batch to finish
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// RunBatch snapshots every product in the catalog once, independently.
// A failure for one product never aborts the batch; it only increments the
// failure count.
func (s *Service) RunBatch(ctx context.Context) (*BatchResult, error) {
	products, err := s.products.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate products: %w", err)
	}

	result := &BatchResult{Products: len(products)}
	log.Printf("Starting snapshot batch for %d products", len(products))

	for _, p := range products {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		img, err := s.images.Fetch(ctx, p.ImageURL)
		if err != nil {
			log.Printf("Snapshot batch: failed to fetch image for product %s: %v", p.ID, err)
			result.Failed++
			continue
		}

		runResult, err := s.runner.Run(ctx, p.ID, upload.Payload{
			Data:         img.Data,
			ContentType:  img.ContentType,
			DeclaredSize: int64(len(img.Data)),
		}, s.options)
		if err != nil {
			log.Printf("Snapshot batch: run failed for product %s: %v", p.ID, err)
			result.Failed++
			continue
		}

		if runResult.Duplicate {
			result.Duplicates++
		} else {
			result.Completed++
		}
	}

	log.Printf("Snapshot batch done: %d products, %d new, %d unchanged, %d failed",
		result.Products, result.Completed, result.Duplicates, result.Failed)
	return result, nil
}
