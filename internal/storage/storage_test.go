package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPImageSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg bytes"))
	}))
	defer server.Close()

	source := NewHTTPImageSource(5*time.Second, 1<<20)
	img, err := source.Fetch(context.Background(), server.URL+"/product.jpg")
	require.NoError(t, err)

	assert.Equal(t, []byte("jpeg bytes"), img.Data)
	assert.Equal(t, "image/jpeg", img.ContentType)
}

func TestHTTPImageSource_NonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	source := NewHTTPImageSource(5*time.Second, 1<<20)
	_, err := source.Fetch(context.Background(), server.URL)
	assert.ErrorContains(t, err, "status 404")
}

func TestHTTPImageSource_CapsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(make([]byte, 100))
	}))
	defer server.Close()

	source := NewHTTPImageSource(5*time.Second, 10)
	img, err := source.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, img.Data, 11, "reads one byte past the cap so the validator sees an over-limit payload")
}

func TestFileImageSource_Fetch(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "product.png"), []byte("png bytes"), 0o644))

	source := NewFileImageSource(dir)
	img, err := source.Fetch(context.Background(), "product.png")
	require.NoError(t, err)

	assert.Equal(t, []byte("png bytes"), img.Data)
	assert.Equal(t, "image/png", img.ContentType)
}

func TestFileImageSource_MissingFile(t *testing.T) {
	source := NewFileImageSource(t.TempDir())
	_, err := source.Fetch(context.Background(), "nope.jpg")
	assert.Error(t, err)
}

func TestFileImageSource_NeutralizesTraversal(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.png"), []byte("outside"), 0o644))

	imagesDir := filepath.Join(dir, "images")
	require.NoError(t, os.Mkdir(imagesDir, 0o755))

	// ".." is stripped, so the ref resolves inside the base dir and misses
	source := NewFileImageSource(imagesDir)
	_, err := source.Fetch(context.Background(), "../secret.png")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "outside")
}
