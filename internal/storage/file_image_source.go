package storage

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// FileImageSource reads product images from a local directory. Used by the
// standalone dev mode so no image server is needed.
type FileImageSource struct {
	baseDir string
}

// NewFileImageSource creates a file-backed image source rooted at baseDir
func NewFileImageSource(baseDir string) *FileImageSource {
	return &FileImageSource{baseDir: baseDir}
}

// Fetch reads the image at ref, which must stay inside the base directory
func (s *FileImageSource) Fetch(ctx context.Context, ref string) (*Image, error) {
	path := filepath.Join(s.baseDir, filepath.Clean("/"+ref))
	if !strings.HasPrefix(path, filepath.Clean(s.baseDir)+string(os.PathSeparator)) {
		return nil, fmt.Errorf("image ref %q escapes base directory", ref)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Image{Data: data, ContentType: contentType}, nil
}
