// Package fingerprint computes the content-addressed dedup key for snapshot
// runs. Identical image bytes and identical normalized results for the same
// product always fingerprint the same, independent of invocation time, which
// makes at-least-once triggering and duplicate submissions safe.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tendant/product-snapshot-pipeline/internal/normalize"
	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// Compute returns the fingerprint for one pipeline run: a SHA-256 over the
// product id, the digest of the original image bytes, the requested feature
// set, and the canonical JSON serialization of the normalized result.
func Compute(productID string, imageData []byte, opts pipeline.Options, result *normalize.NormalizedResult) (string, error) {
	normalizedJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("failed to serialize normalized result: %w", err)
	}

	imageDigest := sha256.Sum256(imageData)

	h := sha256.New()
	h.Write([]byte(productID))
	h.Write([]byte{0})
	h.Write(imageDigest[:])
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(opts.Features(), ",")))
	h.Write([]byte{0})
	h.Write(normalizedJSON)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ImageDigest returns the hex SHA-256 of the raw image bytes, stored
// alongside the snapshot for audit
func ImageDigest(imageData []byte) string {
	d := sha256.Sum256(imageData)
	return hex.EncodeToString(d[:])
}

// IsDuplicate reports whether the candidate fingerprint matches the most
// recent completed snapshot's fingerprint. A nil latest means no completed
// snapshot exists yet.
func IsDuplicate(candidate string, latestFingerprint string) bool {
	return latestFingerprint != "" && candidate == latestFingerprint
}
