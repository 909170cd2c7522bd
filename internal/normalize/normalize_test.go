package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_FullVendorResponse(t *testing.T) {
	raw := []byte(`{
		"tags": [
			{"name": "mug", "confidence": 0.80},
			{"name": "cup", "confidence": 0.95},
			{"name": "ceramic", "confidence": 0.80}
		],
		"description": {
			"captions": [
				{"text": "a cup on a table", "confidence": 0.91},
				{"text": "a mug", "confidence": 0.52}
			]
		},
		"color": {
			"dominantColors": ["White", "Brown", "White"]
		}
	}`)

	result, err := Normalize(raw)
	require.NoError(t, err)

	// Sorted by descending confidence, ties broken lexically
	require.Len(t, result.Tags, 3)
	assert.Equal(t, Tag{Label: "cup", Confidence: 0.95}, result.Tags[0])
	assert.Equal(t, Tag{Label: "ceramic", Confidence: 0.80}, result.Tags[1])
	assert.Equal(t, Tag{Label: "mug", Confidence: 0.80}, result.Tags[2])

	require.NotNil(t, result.Description)
	assert.Equal(t, "a cup on a table", *result.Description)
	assert.Equal(t, 0.91, result.ConfidenceOverall)

	// Colors are a deduplicated, sorted set
	assert.Equal(t, []string{"Brown", "White"}, result.DominantColors)
}

func TestNormalize_MissingFieldsAreNotErrors(t *testing.T) {
	result, err := Normalize([]byte(`{}`))
	require.NoError(t, err)

	assert.Empty(t, result.Tags)
	assert.NotNil(t, result.Tags, "absent tag list becomes an empty sequence")
	assert.Nil(t, result.Description)
	assert.Empty(t, result.DominantColors)
	assert.Zero(t, result.ConfidenceOverall)
}

func TestNormalize_ClampsOutOfRangeConfidences(t *testing.T) {
	raw := []byte(`{
		"tags": [
			{"name": "over", "confidence": 1.7},
			{"name": "under", "confidence": -0.3}
		]
	}`)

	result, err := Normalize(raw)
	require.NoError(t, err)

	require.Len(t, result.Tags, 2)
	assert.Equal(t, Tag{Label: "over", Confidence: 1.0}, result.Tags[0])
	assert.Equal(t, Tag{Label: "under", Confidence: 0.0}, result.Tags[1])
}

func TestNormalize_DropsEmptyTagLabels(t *testing.T) {
	raw := []byte(`{"tags": [{"name": "", "confidence": 0.9}, {"name": "cup", "confidence": 0.5}]}`)

	result, err := Normalize(raw)
	require.NoError(t, err)

	require.Len(t, result.Tags, 1)
	assert.Equal(t, "cup", result.Tags[0].Label)
}

func TestNormalize_BestCaptionWins(t *testing.T) {
	raw := []byte(`{
		"description": {
			"captions": [
				{"text": "weak", "confidence": 0.2},
				{"text": "strong", "confidence": 0.8}
			]
		}
	}`)

	result, err := Normalize(raw)
	require.NoError(t, err)

	require.NotNil(t, result.Description)
	assert.Equal(t, "strong", *result.Description)
}

func TestNormalize_ConfidenceFallsBackToTopTag(t *testing.T) {
	raw := []byte(`{"tags": [{"name": "cup", "confidence": 0.95}]}`)

	result, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, 0.95, result.ConfidenceOverall)
}

func TestNormalize_InvalidJSONFails(t *testing.T) {
	for _, raw := range [][]byte{
		nil,
		[]byte(""),
		[]byte("not json"),
		[]byte(`["wrong", "shape"]`),
	} {
		_, err := Normalize(raw)
		var nerr *NormalizationError
		assert.ErrorAs(t, err, &nerr, "payload %q should fail", raw)
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	raw := []byte(`{
		"tags": [
			{"name": "b", "confidence": 0.5},
			{"name": "a", "confidence": 0.5},
			{"name": "c", "confidence": 0.5}
		]
	}`)

	first, err := Normalize(raw)
	require.NoError(t, err)
	second, err := Normalize(raw)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "a", first.Tags[0].Label)
	assert.Equal(t, "b", first.Tags[1].Label)
	assert.Equal(t, "c", first.Tags[2].Label)
}
