package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/product-snapshot-pipeline/internal/db"
	"github.com/tendant/product-snapshot-pipeline/internal/normalize"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.OpenSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := NewStore(conn, DialectSQLite)
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func completedSnapshot(productID, fp string) *Snapshot {
	return &Snapshot{
		ProductID:   productID,
		Fingerprint: fp,
		ImageDigest: "digest-" + fp,
		ImageSize:   1024,
		Status:      pipeline.StatusCompleted,
		NormalizedResult: &normalize.NormalizedResult{
			Tags:              []normalize.Tag{{Label: "cup", Confidence: 0.95}},
			DominantColors:    []string{"White"},
			ConfidenceOverall: 0.95,
		},
		RawResultBlob: json.RawMessage(`{"tags":[{"name":"cup","confidence":0.95}]}`),
	}
}

func TestSave_AssignsIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)

	stored, err := store.Save(context.Background(), completedSnapshot("p1", "fp1"))
	require.NoError(t, err)

	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.CapturedAt.IsZero())
	assert.Equal(t, pipeline.StatusCompleted, stored.Status)
}

func TestSave_DuplicateFingerprintReturnsWinningRow(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, completedSnapshot("p1", "fp1"))
	require.NoError(t, err)

	second, err := store.Save(ctx, completedSnapshot("p1", "fp1"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "the loser must observe the winning row")

	history, err := store.History(ctx, "p1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "a second identical result is a no-op, not a new row")
}

func TestSave_SameFingerprintDifferentProducts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Save(ctx, completedSnapshot("p1", "fp1"))
	require.NoError(t, err)
	second, err := store.Save(ctx, completedSnapshot("p2", "fp1"))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
}

func TestSave_FailedSnapshotsAreNeverDeduplicated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	failed := &Snapshot{
		ProductID:   "p1",
		Fingerprint: "fp1",
		Status:      pipeline.StatusFailed,
		ErrorReason: "analysis: vendor status 500",
	}

	first, err := store.Save(ctx, failed)
	require.NoError(t, err)
	second, err := store.Save(ctx, failed)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "failures keep a full audit trail")

	history, err := store.History(ctx, "p1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestSave_FailedDoesNotBlockLaterCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, &Snapshot{
		ProductID:   "p1",
		Fingerprint: "fp1",
		Status:      pipeline.StatusFailed,
		ErrorReason: "normalization: bad payload",
	})
	require.NoError(t, err)

	completed, err := store.Save(ctx, completedSnapshot("p1", "fp1"))
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusCompleted, completed.Status)
}

func TestLatestCompleted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	latest, err := store.LatestCompleted(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, latest, "no snapshot yet")

	_, err = store.Save(ctx, completedSnapshot("p1", "fp1"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	second, err := store.Save(ctx, completedSnapshot("p1", "fp2"))
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	// A trailing failure must not shadow the completed row
	_, err = store.Save(ctx, &Snapshot{
		ProductID: "p1", Fingerprint: "fp3",
		Status: pipeline.StatusFailed, ErrorReason: "analysis: timeout",
	})
	require.NoError(t, err)

	latest, err = store.LatestCompleted(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)
	require.NotNil(t, latest.NormalizedResult)
	assert.Equal(t, "cup", latest.NormalizedResult.Tags[0].Label)
	assert.JSONEq(t, `{"tags":[{"name":"cup","confidence":0.95}]}`, string(latest.RawResultBlob))
}

func TestSave_ConcurrentIdenticalWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const writers = 8
	ids := make([]string, writers)
	errs := make([]error, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			stored, err := store.Save(ctx, completedSnapshot("p1", "fp1"))
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = stored.ID
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id, "all concurrent writers must observe the same snapshot id")
	}

	history, err := store.History(ctx, "p1", 100, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "exactly one completed row must exist")
}

func TestHistory_OrderAndPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, fp := range []string{"fp1", "fp2", "fp3"} {
		_, err := store.Save(ctx, completedSnapshot("p1", fp))
		require.NoError(t, err)
		time.Sleep(time.Millisecond) // distinct captured_at_us per row
	}

	all, err := store.History(ctx, "p1", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CapturedAt.After(all[i-1].CapturedAt), "history must be newest first")
	}

	page, err := store.History(ctx, "p1", 2, 1)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, all[1].ID, page[0].ID)
}

func TestStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Save(ctx, completedSnapshot("p1", "fp1"))
	require.NoError(t, err)
	_, err = store.Save(ctx, completedSnapshot("p2", "fp2"))
	require.NoError(t, err)
	_, err = store.Save(ctx, &Snapshot{
		ProductID: "p3", Fingerprint: "fp3",
		Status: pipeline.StatusFailed, ErrorReason: "analysis: timeout",
	})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalSnapshots)
	assert.Equal(t, 2, stats.CompletedSnapshots)
	assert.Equal(t, 1, stats.FailedSnapshots)
	assert.Equal(t, int64(2048), stats.TotalImageBytes)
	require.NotEmpty(t, stats.MostCommonTags)
	assert.Equal(t, TagCount{Tag: "cup", Count: 2}, stats.MostCommonTags[0])
}
