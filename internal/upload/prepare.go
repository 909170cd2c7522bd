package upload

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// MaxVendorDimension is the largest width/height the vision vendor accepts.
// Images beyond this are downscaled before submission; the original bytes
// still drive the fingerprint.
const MaxVendorDimension = 10000

// PrepareForAnalysis returns the bytes to submit to the vision vendor.
// Images within the vendor's dimension limits pass through untouched;
// oversized images are downscaled with Lanczos resampling and re-encoded
// as JPEG.
func PrepareForAnalysis(img *ValidatedImage) ([]byte, error) {
	if img.Width <= MaxVendorDimension && img.Height <= MaxVendorDimension {
		return img.Data, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	scaled := imaging.Fit(decoded, MaxVendorDimension, MaxVendorDimension, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("JPEG encode failed: %w", err)
	}

	return buf.Bytes(), nil
}
