package snapshot

import (
	"encoding/json"
	"time"

	"github.com/tendant/product-snapshot-pipeline/internal/normalize"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// Snapshot is one immutable, timestamped analysis outcome for a product.
// Rows are append-only; the store never updates or deletes them.
type Snapshot struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	CapturedAt  time.Time `json:"captured_at"`
	Fingerprint string    `json:"fingerprint"`
	ImageDigest string    `json:"image_digest,omitempty"`
	ImageSize   int64     `json:"image_size,omitempty"`
	Status      string    `json:"status"`

	// NormalizedResult is nil for failed snapshots
	NormalizedResult *normalize.NormalizedResult `json:"normalized_result,omitempty"`

	// RawResultBlob is the verbatim vendor response, kept for audit.
	// Nil for failed snapshots.
	RawResultBlob json.RawMessage `json:"raw_result_blob,omitempty"`

	// ErrorReason is set only for failed snapshots
	ErrorReason string `json:"error_reason,omitempty"`
}

// Completed reports whether this snapshot holds a successful analysis
func (s *Snapshot) Completed() bool {
	return s.Status == pipeline.StatusCompleted
}

// TagCount is one entry in the stats tag frequency list
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Stats summarizes the snapshot table for the stats endpoint
type Stats struct {
	TotalSnapshots     int        `json:"total_snapshots"`
	CompletedSnapshots int        `json:"completed_snapshots"`
	FailedSnapshots    int        `json:"failed_snapshots"`
	TotalImageBytes    int64      `json:"total_image_bytes"`
	MostCommonTags     []TagCount `json:"most_common_tags"`
}
