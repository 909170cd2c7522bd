package vision

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/product-snapshot-pipeline/pkg/pipeline"
)

// visual feature names as the vendor API spells them
var vendorFeatureNames = map[string]string{
	pipeline.FeatureTags:        "Tags",
	pipeline.FeatureDescription: "Description",
	pipeline.FeatureColor:       "Color",
}

// CallObserver receives per-call observations for metrics. Correctness never
// depends on it.
type CallObserver interface {
	ObserveVendorCall(status int, duration time.Duration)
	ObserveVendorRetry()
}

// Client wraps calls to the external vision analysis service with timeout,
// retry with backoff, and error classification
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	retry      RetryConfig
	observer   CallObserver
}

// Config holds the vision client configuration
type Config struct {
	// Endpoint is the vendor API base URL, e.g. https://region.api.cognitive.example.com
	Endpoint string

	// APIKey is the vendor subscription key
	APIKey string

	// Timeout bounds each individual request (default: 10s)
	Timeout time.Duration

	// Retry controls the transient-failure retry loop
	Retry RetryConfig
}

// NewClient creates a vision client
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry: cfg.Retry,
	}
}

// WithObserver attaches a metrics observer and returns the client
func (c *Client) WithObserver(obs CallObserver) *Client {
	c.observer = obs
	return c
}

// Analyze submits image bytes to the vendor and returns the unmodified
// response body. Transient failures (network error, 429, 5xx) are retried
// with exponential backoff and jitter; other failures return an
// *AnalysisError with Kind permanent immediately.
func (c *Client) Analyze(ctx context.Context, imageData []byte, opts pipeline.Options) ([]byte, error) {
	url := c.analyzeURL(opts)

	var lastErr *AnalysisError
	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retry.Backoff(attempt - 1)
			log.Printf("Retrying vision analysis in %s (attempt %d/%d): %v", backoff, attempt, c.retry.MaxRetries, lastErr)
			if c.observer != nil {
				c.observer.ObserveVendorRetry()
			}
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				lastErr.Err = ctx.Err()
				return nil, lastErr
			}
		}

		body, analysisErr := c.call(ctx, url, imageData)
		if analysisErr == nil {
			return body, nil
		}
		if analysisErr.Kind == KindPermanent {
			return nil, analysisErr
		}
		lastErr = analysisErr
	}

	lastErr.Kind = KindTransientExhausted
	return nil, lastErr
}

// call performs one vendor request and classifies the outcome
func (c *Client) call(ctx context.Context, url string, imageData []byte) ([]byte, *AnalysisError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(imageData))
	if err != nil {
		return nil, &AnalysisError{
			Kind:          KindPermanent,
			VendorMessage: fmt.Sprintf("failed to create request: %v", err),
			Err:           err,
		}
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.observer != nil {
			c.observer.ObserveVendorCall(0, time.Since(start))
		}
		// Network errors and timeouts are transient
		return nil, &AnalysisError{
			Kind:          KindTransientExhausted,
			VendorMessage: fmt.Sprintf("request failed: %v", err),
			Err:           err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if c.observer != nil {
		c.observer.ObserveVendorCall(resp.StatusCode, time.Since(start))
	}
	if err != nil {
		return nil, &AnalysisError{
			Kind:          KindTransientExhausted,
			VendorStatus:  resp.StatusCode,
			VendorMessage: fmt.Sprintf("failed to read response: %v", err),
			Err:           err,
		}
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}

	kind := KindPermanent
	if IsRetryableStatus(resp.StatusCode) {
		kind = KindTransientExhausted
	}
	return nil, &AnalysisError{
		Kind:          kind,
		VendorStatus:  resp.StatusCode,
		VendorMessage: truncate(string(body), 512),
	}
}

// analyzeURL builds the vendor analyze URL for the requested features
func (c *Client) analyzeURL(opts pipeline.Options) string {
	features := opts.Features()
	if len(features) == 0 {
		features = pipeline.DefaultOptions().Features()
	}
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, vendorFeatureNames[f])
	}
	return fmt.Sprintf("%s/vision/v3.2/analyze?visualFeatures=%s", c.endpoint, strings.Join(names, ","))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
