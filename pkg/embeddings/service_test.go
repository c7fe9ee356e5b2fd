package embeddings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/docpipe/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func localService(url string, dims int) *Service {
	cfg := &config.Config{}
	cfg.Embeddings = config.EmbeddingsConfig{
		Provider:     "local",
		ModelName:    "all-mpnet-base-v2",
		Dimensions:   dims,
		ServiceURL:   url,
		BatchTimeout: 5 * time.Second,
	}
	return NewService(cfg, discardLogger())
}

func embedServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embed", r.URL.Path)
		var req struct {
			Inputs []string `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		vectors := make([][]float32, len(req.Inputs))
		for i := range vectors {
			vectors[i] = make([]float32, dims)
			vectors[i][0] = float32(i + 1)
		}
		json.NewEncoder(w).Encode(vectors)
	}))
}

func TestServiceEmbedDocuments(t *testing.T) {
	srv := embedServer(t, 4)
	defer srv.Close()

	svc := localService(srv.URL, 4)
	vectors, err := svc.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Len(t, vectors[0], 4)
	assert.Equal(t, float32(1), vectors[0][0])
	assert.Equal(t, float32(3), vectors[2][0])
}

func TestServiceDimensionMismatch(t *testing.T) {
	srv := embedServer(t, 3)
	defer srv.Close()

	svc := localService(srv.URL, 768)
	_, err := svc.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "dimension")
}

func TestServiceEmptyInput(t *testing.T) {
	svc := localService("http://unreachable.invalid", 768)
	vectors, err := svc.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestServiceUnknownProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Embeddings = config.EmbeddingsConfig{Provider: "other", Dimensions: 4}
	svc := NewService(cfg, discardLogger())

	_, err := svc.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "unknown embedding provider")

	// Init error is sticky.
	_, err = svc.EmbedDocuments(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestServiceServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	svc := localService(srv.URL, 4)
	_, err := svc.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "503")
}

func TestMeanVector(t *testing.T) {
	assert.Nil(t, MeanVector(nil))

	mean := MeanVector([][]float32{
		{1, 2, 3},
		{3, 4, 5},
	})
	assert.Equal(t, []float32{2, 3, 4}, mean)

	single := MeanVector([][]float32{{7, 8}})
	assert.Equal(t, []float32{7, 8}, single)
}
