package normalize

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/tendant/product-snapshot-pipeline/internal/vision"
)

// Tag is one canonical tag with its clamped confidence
type Tag struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// NormalizedResult is the canonical, vendor-agnostic analysis result.
// Tags are sorted by descending confidence with ties broken by label so the
// serialized form is deterministic for fingerprinting.
type NormalizedResult struct {
	Tags              []Tag    `json:"tags"`
	Description       *string  `json:"description"`
	DominantColors    []string `json:"dominant_colors"`
	ConfidenceOverall float64  `json:"confidence_overall"`
}

// NormalizationError means the vendor payload was structurally unparseable
type NormalizationError struct {
	Detail string
	Err    error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed: %s", e.Detail)
}

func (e *NormalizationError) Unwrap() error {
	return e.Err
}

// Normalize maps the verbatim vendor response body into the canonical shape.
// Missing vendor fields are not errors: absent tags become an empty slice,
// an absent description becomes nil. Confidences outside [0,1] are clamped
// and logged; only structurally invalid JSON fails.
func Normalize(rawBody []byte) (*NormalizedResult, error) {
	if len(rawBody) == 0 {
		return nil, &NormalizationError{Detail: "vendor response is empty"}
	}

	var raw vision.RawAnalysisResult
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, &NormalizationError{
			Detail: fmt.Sprintf("vendor response is not valid JSON: %v", err),
			Err:    err,
		}
	}

	result := &NormalizedResult{
		Tags:           make([]Tag, 0, len(raw.Tags)),
		DominantColors: []string{},
	}

	for _, t := range raw.Tags {
		if t.Name == "" {
			log.Printf("Dropping vendor tag with empty name (confidence=%f)", t.Confidence)
			continue
		}
		result.Tags = append(result.Tags, Tag{
			Label:      t.Name,
			Confidence: clamp(t.Confidence, t.Name),
		})
	}

	// Deterministic ordering: descending confidence, ties broken lexically
	sort.SliceStable(result.Tags, func(i, j int) bool {
		if result.Tags[i].Confidence != result.Tags[j].Confidence {
			return result.Tags[i].Confidence > result.Tags[j].Confidence
		}
		return result.Tags[i].Label < result.Tags[j].Label
	})

	if raw.Description != nil && len(raw.Description.Captions) > 0 {
		best := raw.Description.Captions[0]
		for _, c := range raw.Description.Captions[1:] {
			if c.Confidence > best.Confidence {
				best = c
			}
		}
		if best.Text != "" {
			text := best.Text
			result.Description = &text
			result.ConfidenceOverall = clamp(best.Confidence, "description")
		}
	}

	if raw.Color != nil {
		result.DominantColors = dedupeColors(raw.Color.DominantColors)
	}

	// Without a caption confidence, fall back to the strongest tag
	if result.ConfidenceOverall == 0 && len(result.Tags) > 0 {
		result.ConfidenceOverall = result.Tags[0].Confidence
	}

	return result, nil
}

// clamp forces a confidence into [0,1], logging vendor data quality issues
func clamp(v float64, field string) float64 {
	if v < 0 {
		log.Printf("Clamping out-of-range confidence %f for %q to 0", v, field)
		return 0
	}
	if v > 1 {
		log.Printf("Clamping out-of-range confidence %f for %q to 1", v, field)
		return 1
	}
	return v
}

// dedupeColors returns the colors as a sorted set
func dedupeColors(colors []string) []string {
	seen := make(map[string]bool, len(colors))
	out := make([]string, 0, len(colors))
	for _, c := range colors {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
