package storage

import "context"

// Image is a fetched product image with its declared content type
type Image struct {
	Data        []byte
	ContentType string
}

// ImageSource fetches product image bytes for scheduled re-snapshot runs.
// Uploads arriving over HTTP carry their own bytes and never go through a
// source.
type ImageSource interface {
	// Fetch returns the image at the given reference (URL or path)
	Fetch(ctx context.Context, ref string) (*Image, error)
}
