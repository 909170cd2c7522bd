package upload

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ValidationReason is a machine-readable reason for rejecting an upload
type ValidationReason string

const (
	ReasonTooLarge        ValidationReason = "too_large"
	ReasonUnsupportedType ValidationReason = "unsupported_type"
	ReasonEmpty           ValidationReason = "empty"
	ReasonUndecodable     ValidationReason = "undecodable"
)

// ValidationError reports why an upload was rejected before any external call
type ValidationError struct {
	Reason ValidationReason
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("upload validation failed (%s): %s", e.Reason, e.Detail)
}

// Payload is a raw image upload as received from the caller
type Payload struct {
	Data         []byte
	ContentType  string
	DeclaredSize int64
}

// ValidatedImage is an upload that passed all checks
type ValidatedImage struct {
	Data        []byte
	ContentType string
	Format      string // decoded format name: jpeg, png, gif, webp
	Width       int
	Height      int
}

// Validator checks incoming image payloads against size/type/format
// constraints. It makes no network calls and has no side effects.
type Validator struct {
	maxBytes     int64
	allowedTypes map[string]bool
}

// NewValidator creates a validator with the given max byte size and
// content-type allow-list
func NewValidator(maxBytes int64, allowedTypes []string) *Validator {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = true
	}
	return &Validator{
		maxBytes:     maxBytes,
		allowedTypes: allowed,
	}
}

// Validate checks the payload and returns a ValidatedImage, or a
// *ValidationError describing the first failed constraint
func (v *Validator) Validate(p Payload) (*ValidatedImage, error) {
	if len(p.Data) == 0 {
		return nil, &ValidationError{
			Reason: ReasonEmpty,
			Detail: "payload is empty",
		}
	}

	// Declared size is checked first so oversized uploads can be rejected
	// before the body is buffered by callers that know the size up front.
	if p.DeclaredSize > v.maxBytes || int64(len(p.Data)) > v.maxBytes {
		return nil, &ValidationError{
			Reason: ReasonTooLarge,
			Detail: fmt.Sprintf("payload is %d bytes, limit is %d", max64(p.DeclaredSize, int64(len(p.Data))), v.maxBytes),
		}
	}

	if !v.allowedTypes[p.ContentType] {
		return nil, &ValidationError{
			Reason: ReasonUnsupportedType,
			Detail: fmt.Sprintf("content type %q is not allowed", p.ContentType),
		}
	}

	// Verify the payload actually decodes as an image. DecodeConfig reads
	// only the header, so this stays cheap for large files.
	cfg, format, err := image.DecodeConfig(bytes.NewReader(p.Data))
	if err != nil {
		return nil, &ValidationError{
			Reason: ReasonUndecodable,
			Detail: fmt.Sprintf("payload does not decode as an image: %v", err),
		}
	}

	return &ValidatedImage{
		Data:        p.Data,
		ContentType: p.ContentType,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
