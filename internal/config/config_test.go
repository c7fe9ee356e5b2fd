package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DOCUMENT_SEARCH_URL", "http://metadata.local")
	t.Setenv("S3_ENDPOINT_URI", "http://localhost:9000")
	t.Setenv("S3_BUCKET_NAME", "documents")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("VECTOR_DB_URL", "postgres://u:p@localhost:5432/vectors")
	t.Setenv("LOGS_DATABASE_URL", "postgres://u:p@localhost:5432/vectors")
}

func TestNewConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := NewConfig(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)

	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
	assert.Equal(t, "all-mpnet-base-v2", cfg.Embeddings.ModelName)
	assert.Equal(t, "all-mpnet-base-v2", cfg.Keywords.ModelName)
	assert.Equal(t, 1000, cfg.Chunking.Size)
	assert.Equal(t, 200, cfg.Chunking.Overlap)
	assert.Equal(t, 25, cfg.Persistence.InsertBatchSize)
	assert.True(t, cfg.Persistence.AutoCreateExtension)
	assert.Equal(t, "auto", cfg.FilesConcurrency)
	assert.Equal(t, "auto", cfg.Keywords.Workers)
	assert.Equal(t, 1, cfg.Metadata.ProjectPageSize)
	assert.Equal(t, 1000, cfg.Metadata.DocsPageSize)
	assert.True(t, cfg.OCR.Enabled)
	assert.Equal(t, "tesseract", cfg.OCR.Provider)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, "eng", cfg.OCR.Language)
	assert.True(t, cfg.Database.SharedLogsStore())
}

func TestNewConfigMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DOCUMENT_SEARCH_URL", "")
	os.Unsetenv("DOCUMENT_SEARCH_URL")

	_, err := NewConfig(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"overlap >= size", "CHUNK_OVERLAP", "1000"},
		{"batch over cap", "CHUNK_INSERT_BATCH_SIZE", "51"},
		{"zero batch", "CHUNK_INSERT_BATCH_SIZE", "0"},
		{"unknown ocr provider", "OCR_PROVIDER", "abbyy"},
		{"bad concurrency", "FILES_CONCURRENCY_SIZE", "lots"},
		{"bad keyword workers", "KEYWORD_EXTRACTION_WORKERS", "-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.key, tt.val)

			_, err := NewConfig(slog.New(slog.NewTextHandler(os.Stderr, nil)))
			assert.Error(t, err)
		})
	}
}

func TestResolveWorkerCount(t *testing.T) {
	tests := []struct {
		setting string
		cpus    int
		want    int
	}{
		{"auto", 32, 16},
		{"auto", 16, 8},
		{"auto", 8, 8},
		{"auto", 4, 4},
		{"auto-full", 16, 16},
		{"auto-conservative", 16, 4},
		{"auto-conservative", 2, 1},
		{"6", 32, 6},
		{"1", 1, 1},
	}

	for _, tt := range tests {
		got, err := ResolveWorkerCount(tt.setting, tt.cpus)
		require.NoError(t, err, "setting %q", tt.setting)
		assert.Equal(t, tt.want, got, "setting %q cpus %d", tt.setting, tt.cpus)
	}

	_, err := ResolveWorkerCount("0", 8)
	assert.Error(t, err)
}

func TestResolveKeywordWorkers(t *testing.T) {
	tests := []struct {
		setting string
		cpus    int
		want    int
	}{
		{"auto", 32, 2},
		{"auto", 16, 2},
		{"auto", 8, 3},
		{"auto", 12, 3},
		{"auto", 4, 4},
		{"auto-aggressive", 2, 4},
		{"auto-conservative", 32, 1},
		{"2", 4, 2},
	}

	for _, tt := range tests {
		got, err := ResolveKeywordWorkers(tt.setting, tt.cpus)
		require.NoError(t, err, "setting %q", tt.setting)
		assert.Equal(t, tt.want, got, "setting %q cpus %d", tt.setting, tt.cpus)
	}

	_, err := ResolveKeywordWorkers("zero", 8)
	assert.Error(t, err)
}
