// Package runs enqueues snapshot pipeline runs onto the DBOS queue so they
// execute durably: an accepted run survives a worker crash and resumes.
package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"

	"github.com/tendant/product-snapshot-pipeline/internal/dbosruntime"
	"github.com/tendant/product-snapshot-pipeline/internal/orchestrator"
	"github.com/tendant/product-snapshot-pipeline/internal/storage"
	"github.com/tendant/product-snapshot-pipeline/internal/upload"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// ErrNoImage is returned when a run request carries no image reference
var ErrNoImage = errors.New("snapshot request has no image URL")

// Outcome is the serializable result of one enqueued snapshot run
type Outcome struct {
	RunID      string `json:"run_id"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Status     string `json:"status"`
	Duplicate  bool   `json:"duplicate"`
}

// Runner executes snapshot runs as DBOS workflows
type Runner struct {
	runtime *dbosruntime.Runtime
	images  storage.ImageSource
	orch    *orchestrator.Orchestrator
}

// NewRunner creates a runner and registers the snapshot workflow with DBOS.
// Must be called before the runtime is launched.
func NewRunner(runtime *dbosruntime.Runtime, images storage.ImageSource, orch *orchestrator.Orchestrator) *Runner {
	r := &Runner{
		runtime: runtime,
		images:  images,
		orch:    orch,
	}
	if runtime != nil {
		dbos.RegisterWorkflow(runtime.Context(), r.executeSnapshotDBOS)
	}
	return r
}

// Enqueue submits a snapshot run for durable async execution and returns
// its run id
func (r *Runner) Enqueue(ctx context.Context, req pipeline.SnapshotRequest) (string, error) {
	if r.runtime == nil {
		return "", errors.New("DBOS runtime not initialized")
	}
	if req.ImageURL == "" {
		return "", ErrNoImage
	}

	workflowID := fmt.Sprintf("snapshot-%s-%d", req.ProductID, time.Now().UnixNano())

	handle, err := dbos.RunWorkflow[pipeline.SnapshotRequest, *Outcome](
		r.runtime.Context(),
		r.executeSnapshotDBOS,
		req,
		dbos.WithWorkflowID(workflowID),
		dbos.WithQueue(r.runtime.QueueName()),
	)
	if err != nil {
		return "", err
	}

	return handle.GetWorkflowID(), nil
}

// GetStatus retrieves the status of an enqueued run
func (r *Runner) GetStatus(ctx context.Context, runID string) (*dbosruntime.WorkflowStatusInfo, error) {
	if r.runtime == nil {
		return nil, errors.New("status tracking requires the DBOS runtime")
	}
	return r.runtime.GetWorkflowStatus(ctx, runID)
}

// executeSnapshotDBOS is the DBOS workflow function: fetch the product
// image, then drive the pipeline to a terminal state
func (r *Runner) executeSnapshotDBOS(dbosCtx dbos.DBOSContext, req pipeline.SnapshotRequest) (*Outcome, error) {
	img, err := r.images.Fetch(dbosCtx, req.ImageURL)
	if err != nil {
		return nil, fmt.Errorf("image fetch failed for product %s: %w", req.ProductID, err)
	}

	result, err := r.orch.Run(dbosCtx, req.ProductID, upload.Payload{
		Data:         img.Data,
		ContentType:  img.ContentType,
		DeclaredSize: int64(len(img.Data)),
	}, req.Options)
	if err != nil {
		return nil, err
	}

	return &Outcome{
		RunID:      result.RunID,
		SnapshotID: result.Snapshot.ID,
		Status:     result.Snapshot.Status,
		Duplicate:  result.Duplicate,
	}, nil
}
