package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPImageSource fetches product images over HTTP
type HTTPImageSource struct {
	httpClient *http.Client
	maxBytes   int64
}

// NewHTTPImageSource creates an HTTP image source. maxBytes caps the
// response body so a misconfigured image URL cannot exhaust memory.
func NewHTTPImageSource(timeout time.Duration, maxBytes int64) *HTTPImageSource {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPImageSource{
		httpClient: &http.Client{Timeout: timeout},
		maxBytes:   maxBytes,
	}
}

// Fetch downloads the image at the given URL
func (s *HTTPImageSource) Fetch(ctx context.Context, ref string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download failed with status %d", resp.StatusCode)
	}

	reader := io.Reader(resp.Body)
	if s.maxBytes > 0 {
		// One extra byte so an at-limit image is distinguishable from an
		// over-limit one; the validator enforces the real cap
		reader = io.LimitReader(resp.Body, s.maxBytes+1)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}

	return &Image{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
