package vision

import (
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for transient vendor failures
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the initial call
	// (default: 3, so up to 4 calls total)
	MaxRetries int

	// InitialBackoff is the wait before the first retry (default: 500ms)
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between retries (default: 30s)
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to the backoff on each retry (default: 2.0)
	BackoffMultiplier float64

	// Jitter adds up to this fraction of the computed backoff as random
	// delay, spreading out concurrent retries (default: 0.2)
	Jitter float64
}

// Default retry constants for the vision vendor API
const (
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 500 * time.Millisecond
	DefaultMaxBackoff        = 30 * time.Second
	DefaultBackoffMultiplier = 2.0
	DefaultJitter            = 0.2
)

// NewDefaultRetryConfig returns a RetryConfig with sensible defaults for
// the vision vendor's rate limits
func NewDefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		Jitter:            DefaultJitter,
	}
}

// IsRetryableStatus reports whether an HTTP status from the vendor is worth
// retrying. 429 and 5xx are transient; other 4xx are permanent rejections.
func IsRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// Backoff computes the wait before retry number attempt (0-based), with
// exponential growth capped at MaxBackoff plus random jitter.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= c.BackoffMultiplier
	}
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}
	if c.Jitter > 0 {
		backoff += rand.Float64() * c.Jitter * backoff
	}
	return time.Duration(backoff)
}
