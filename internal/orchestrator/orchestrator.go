// Package orchestrator composes the snapshot pipeline: validate → analyze →
// normalize → dedupe-check → persist. One invocation makes at most one
// analysis call sequence and at most one snapshot write.
package orchestrator

import (
	"context"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tendant/product-snapshot-pipeline/internal/fingerprint"
	"github.com/tendant/product-snapshot-pipeline/internal/metrics"
	"github.com/tendant/product-snapshot-pipeline/internal/normalize"
	"github.com/tendant/product-snapshot-pipeline/internal/snapshot"
	"github.com/tendant/product-snapshot-pipeline/internal/upload"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// Analyzer is the vendor client contract the orchestrator depends on.
// Satisfied by *vision.Client; tests substitute scripted doubles.
type Analyzer interface {
	Analyze(ctx context.Context, imageData []byte, opts pipeline.Options) ([]byte, error)
}

// Result is the outcome of one pipeline run
type Result struct {
	RunID     string
	Snapshot  *snapshot.Snapshot
	Duplicate bool
}

// Orchestrator runs the snapshot pipeline. It holds no cross-invocation
// mutable state beyond the optional in-flight analysis limiter.
type Orchestrator struct {
	validator *upload.Validator
	analyzer  Analyzer
	store     *snapshot.Store
	limiter   *semaphore.Weighted
	metrics   *metrics.Metrics
}

// New creates an orchestrator. All collaborators are injected so tests can
// script the vendor.
func New(validator *upload.Validator, analyzer Analyzer, store *snapshot.Store) *Orchestrator {
	return &Orchestrator{
		validator: validator,
		analyzer:  analyzer,
		store:     store,
	}
}

// WithAnalysisLimit bounds simultaneous in-flight vendor calls.
// n <= 0 means unlimited.
func (o *Orchestrator) WithAnalysisLimit(n int64) *Orchestrator {
	if n > 0 {
		o.limiter = semaphore.NewWeighted(n)
	}
	return o
}

// WithMetrics attaches run metrics
func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// Run executes one pipeline invocation for a product image.
//
// Validation failures reject before any snapshot row is written. Analysis
// and normalization failures are absorbed into a failed snapshot for the
// audit trail and then re-signaled. A fingerprint matching the latest
// completed snapshot is a no-op success returning the existing row.
// Cancellation is honored up to the point the analysis call is issued;
// after that the run completes to a terminal state.
func (o *Orchestrator) Run(ctx context.Context, productID string, payload upload.Payload, opts pipeline.Options) (*Result, error) {
	runID := uuid.New().String()
	log.Printf("[%s] Starting snapshot run for product_id=%s", runID, productID)

	// Empty options mean the full feature set. Normalized here so the
	// fingerprint and the vendor call always agree on the features.
	if len(opts.Features()) == 0 {
		opts = pipeline.DefaultOptions()
	}

	// Validating
	validated, err := o.validator.Validate(payload)
	if err != nil {
		log.Printf("[%s] Validation rejected upload: %v", runID, err)
		o.metrics.ObserveRun("rejected")
		return nil, err
	}

	submission, err := upload.PrepareForAnalysis(validated)
	if err != nil {
		log.Printf("[%s] Failed to prepare image for analysis: %v", runID, err)
		o.metrics.ObserveRun("rejected")
		return nil, &upload.ValidationError{Reason: upload.ReasonUndecodable, Detail: err.Error()}
	}

	if o.limiter != nil {
		if err := o.limiter.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer o.limiter.Release(1)
	}

	// Last cancellation point: once the vendor call goes out, the run is
	// driven to a terminal state so no vendor request is left without a
	// recorded outcome.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	runCtx := context.WithoutCancel(ctx)

	// Analyzing
	rawBody, err := o.analyzer.Analyze(runCtx, submission, opts)
	if err != nil {
		return nil, o.recordFailure(runCtx, runID, productID, validated, "analysis: "+err.Error(), err)
	}
	log.Printf("[%s] Vendor analysis succeeded (%d bytes)", runID, len(rawBody))

	// Normalizing
	normalized, err := normalize.Normalize(rawBody)
	if err != nil {
		return nil, o.recordFailure(runCtx, runID, productID, validated, "normalization: "+err.Error(), err)
	}

	// DedupChecking
	fp, err := fingerprint.Compute(productID, validated.Data, opts, normalized)
	if err != nil {
		return nil, o.recordFailure(runCtx, runID, productID, validated, "fingerprint: "+err.Error(), err)
	}

	latest, err := o.store.LatestCompleted(runCtx, productID)
	if err != nil {
		// Store unavailable: nothing was written, propagate directly
		return nil, err
	}
	if latest != nil && fingerprint.IsDuplicate(fp, latest.Fingerprint) {
		log.Printf("[%s] Result unchanged (fingerprint=%s) - returning existing snapshot %s", runID, fp, latest.ID)
		o.metrics.ObserveRun("duplicate")
		return &Result{RunID: runID, Snapshot: latest, Duplicate: true}, nil
	}

	// Persisting
	stored, err := o.store.Save(runCtx, &snapshot.Snapshot{
		ProductID:        productID,
		Fingerprint:      fp,
		ImageDigest:      fingerprint.ImageDigest(validated.Data),
		ImageSize:        int64(len(validated.Data)),
		Status:           pipeline.StatusCompleted,
		NormalizedResult: normalized,
		RawResultBlob:    rawBody,
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[%s] Snapshot stored: id=%s product_id=%s fingerprint=%s", runID, stored.ID, productID, fp)
	o.metrics.ObserveRun("completed")
	return &Result{RunID: runID, Snapshot: stored}, nil
}

// recordFailure writes a failed snapshot for the audit trail and returns the
// original pipeline error. Failures are never deduplicated. A store outage
// during the audit write is logged but does not mask the pipeline fault.
func (o *Orchestrator) recordFailure(ctx context.Context, runID, productID string, img *upload.ValidatedImage, reason string, cause error) error {
	log.Printf("[%s] Pipeline failed for product_id=%s: %s", runID, productID, reason)
	o.metrics.ObserveRun("failed")

	_, saveErr := o.store.Save(ctx, &snapshot.Snapshot{
		ProductID:   productID,
		Fingerprint: fingerprint.ImageDigest(img.Data),
		ImageDigest: fingerprint.ImageDigest(img.Data),
		ImageSize:   int64(len(img.Data)),
		Status:      pipeline.StatusFailed,
		ErrorReason: reason,
	})
	if saveErr != nil {
		log.Printf("[%s] Failed to record failure snapshot: %v", runID, saveErr)
	}
	return cause
}
