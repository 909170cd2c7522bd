package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/product-snapshot-pipeline/internal/catalog"
	"github.com/tendant/product-snapshot-pipeline/internal/orchestrator"
	"github.com/tendant/product-snapshot-pipeline/internal/snapshot"
	"github.com/tendant/product-snapshot-pipeline/internal/storage"
	"github.com/tendant/product-snapshot-pipeline/internal/upload"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// fakeImageSource serves canned bytes per ref, erroring for unknown refs
type fakeImageSource map[string]*storage.Image

func (f fakeImageSource) Fetch(_ context.Context, ref string) (*storage.Image, error) {
	img, ok := f[ref]
	if !ok {
		return nil, errors.New("image not found: " + ref)
	}
	return img, nil
}

// fakeRunner records the products it was invoked for
type fakeRunner struct {
	seen      []string
	failFor   map[string]error
	duplicate map[string]bool
}

func (r *fakeRunner) Run(_ context.Context, productID string, payload upload.Payload, _ pipeline.Options) (*orchestrator.Result, error) {
	r.seen = append(r.seen, productID)
	if err := r.failFor[productID]; err != nil {
		return nil, err
	}
	return &orchestrator.Result{
		RunID:     "run-" + productID,
		Snapshot:  &snapshot.Snapshot{ID: "snap-" + productID, ProductID: productID, Status: pipeline.StatusCompleted},
		Duplicate: r.duplicate[productID],
	}, nil
}

func TestRunBatch_AllProductsSnapshotted(t *testing.T) {
	products := catalog.StaticSource{
		{ID: "p1", ImageURL: "ref1"},
		{ID: "p2", ImageURL: "ref2"},
	}
	images := fakeImageSource{
		"ref1": {Data: []byte("img1"), ContentType: "image/jpeg"},
		"ref2": {Data: []byte("img2"), ContentType: "image/png"},
	}
	runner := &fakeRunner{}

	svc := NewService(products, images, runner)
	result, err := svc.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Products)
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, []string{"p1", "p2"}, runner.seen)
}

func TestRunBatch_UnchangedProductsCountAsDuplicates(t *testing.T) {
	products := catalog.StaticSource{
		{ID: "p1", ImageURL: "ref1"},
		{ID: "p2", ImageURL: "ref2"},
	}
	images := fakeImageSource{
		"ref1": {Data: []byte("img1"), ContentType: "image/jpeg"},
		"ref2": {Data: []byte("img2"), ContentType: "image/jpeg"},
	}
	runner := &fakeRunner{duplicate: map[string]bool{"p2": true}}

	svc := NewService(products, images, runner)
	result, err := svc.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Completed)
	assert.Equal(t, 1, result.Duplicates)
}

func TestRunBatch_FailuresDoNotAbortTheBatch(t *testing.T) {
	products := catalog.StaticSource{
		{ID: "p1", ImageURL: "ref1"},
		{ID: "p2", ImageURL: "missing"}, // fetch fails
		{ID: "p3", ImageURL: "ref3"},    // run fails
		{ID: "p4", ImageURL: "ref4"},
	}
	images := fakeImageSource{
		"ref1": {Data: []byte("img1"), ContentType: "image/jpeg"},
		"ref3": {Data: []byte("img3"), ContentType: "image/jpeg"},
		"ref4": {Data: []byte("img4"), ContentType: "image/jpeg"},
	}
	runner := &fakeRunner{failFor: map[string]error{"p3": errors.New("vendor down")}}

	svc := NewService(products, images, runner)
	result, err := svc.RunBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.Products)
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, []string{"p1", "p3", "p4"}, runner.seen, "the fetch failure never reaches the runner")
}

func TestRunBatch_EmptyCatalog(t *testing.T) {
	svc := NewService(catalog.StaticSource{}, fakeImageSource{}, &fakeRunner{})
	result, err := svc.RunBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &BatchResult{}, result)
}

func TestRunBatch_CanceledContextStopsEarly(t *testing.T) {
	products := catalog.StaticSource{
		{ID: "p1", ImageURL: "ref1"},
		{ID: "p2", ImageURL: "ref2"},
	}
	runner := &fakeRunner{}
	svc := NewService(products, fakeImageSource{}, runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.RunBatch(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.seen)
}

func TestStartStop(t *testing.T) {
	svc := NewService(catalog.StaticSource{}, fakeImageSource{}, &fakeRunner{})
	require.NoError(t, svc.Start("0 3 * * *"))
	svc.Stop()
}

func TestStart_RejectsBadSpec(t *testing.T) {
	svc := NewService(catalog.StaticSource{}, fakeImageSource{}, &fakeRunner{})
	assert.Error(t, svc.Start("not a cron spec"))
}
