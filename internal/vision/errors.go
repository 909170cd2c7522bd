package vision

import "fmt"

// ErrorKind classifies an analysis failure for the caller's retry decision
type ErrorKind string

const (
	// KindTransientExhausted means the retry budget ran out on retryable
	// failures (network errors, 429, 5xx)
	KindTransientExhausted ErrorKind = "transient_exhausted"

	// KindPermanent means the vendor rejected the request and retrying the
	// same input cannot help (4xx other than 429, malformed image)
	KindPermanent ErrorKind = "permanent"
)

// AnalysisError reports a failed vendor analysis call sequence
type AnalysisError struct {
	Kind          ErrorKind
	VendorStatus  int
	VendorMessage string
	Err           error
}

func (e *AnalysisError) Error() string {
	if e.VendorStatus > 0 {
		return fmt.Sprintf("vision analysis failed (%s): vendor status %d: %s", e.Kind, e.VendorStatus, e.VendorMessage)
	}
	return fmt.Sprintf("vision analysis failed (%s): %s", e.Kind, e.VendorMessage)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
