package pipeline

// Feature constants name the visual features requested from the vision vendor
const (
	FeatureTags        = "tags"
	FeatureDescription = "description"
	FeatureColor       = "color"
)

// Options selects which visual features the vendor is asked to analyze
type Options struct {
	Tags        bool `json:"tags"`
	Description bool `json:"description"`
	Color       bool `json:"color"`
}

// DefaultOptions returns the full feature set
func DefaultOptions() Options {
	return Options{Tags: true, Description: true, Color: true}
}

// Features returns the enabled feature names in a fixed order.
// The order feeds the fingerprint and must stay stable.
func (o Options) Features() []string {
	var f []string
	if o.Tags {
		f = append(f, FeatureTags)
	}
	if o.Description {
		f = append(f, FeatureDescription)
	}
	if o.Color {
		f = append(f, FeatureColor)
	}
	return f
}

// SnapshotRequest represents a request to snapshot a product image
type SnapshotRequest struct {
	ProductID string  `json:"product_id"`
	ImageURL  string  `json:"image_url,omitempty"`
	Options   Options `json:"options"`
}

// SnapshotResponse represents the response from triggering a snapshot run
type SnapshotResponse struct {
	RunID      string `json:"run_id"`
	SnapshotID string `json:"snapshot_id,omitempty"`
	Duplicate  bool   `json:"duplicate"`
}

// Snapshot status constants
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)
