package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all pipeline configuration, loaded from the environment.
type Config struct {
	// Metadata API settings
	Metadata MetadataConfig

	// Object store settings
	S3 S3Config

	// Database settings
	Database DatabaseConfig

	// Embeddings configuration
	Embeddings EmbeddingsConfig

	// Keyword extraction configuration
	Keywords KeywordsConfig

	// Chunking configuration
	Chunking ChunkingConfig

	// Persistence configuration
	Persistence PersistenceConfig

	// OCR configuration
	OCR OCRConfig

	// FilesConcurrency controls the document worker pool size:
	// "auto", "auto-full", "auto-conservative", or an integer override.
	FilesConcurrency string `env:"FILES_CONCURRENCY_SIZE" envDefault:"auto"`
}

// MetadataConfig holds the upstream document metadata API settings.
type MetadataConfig struct {
	BaseURL         string `env:"DOCUMENT_SEARCH_URL,required"`
	ProjectPageSize int    `env:"GET_PROJECT_PAGE" envDefault:"1"`
	DocsPageSize    int    `env:"GET_DOCS_PAGE" envDefault:"1000"`
}

// S3Config holds object store connection settings.
type S3Config struct {
	EndpointURI     string `env:"S3_ENDPOINT_URI,required"`
	Bucket          string `env:"S3_BUCKET_NAME,required"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID,required"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY,required"`
	Region          string `env:"S3_REGION,required"`

	// FetchTimeout bounds a single object download.
	FetchTimeout time.Duration `env:"S3_FETCH_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig holds the vector store and processing-log store DSNs.
// The two URLs may be identical, in which case one pool is shared.
type DatabaseConfig struct {
	VectorURL string `env:"VECTOR_DB_URL,required"`
	LogsURL   string `env:"LOGS_DATABASE_URL,required"`

	MaxOpenConns     int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleTime      time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	StatementTimeout time.Duration `env:"DB_STATEMENT_TIMEOUT" envDefault:"30s"`
	QueryDebug       bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// SharedLogsStore reports whether log rows go to the same database as vectors.
func (d *DatabaseConfig) SharedLogsStore() bool {
	return d.LogsURL == "" || d.LogsURL == d.VectorURL
}

// EmbeddingsConfig holds embedding model settings.
type EmbeddingsConfig struct {
	// Provider: "local" (text-embeddings-inference server) or "genai"
	Provider string `env:"EMBEDDING_PROVIDER" envDefault:"local"`

	ModelName  string `env:"EMBEDDING_MODEL_NAME" envDefault:"all-mpnet-base-v2"`
	Dimensions int    `env:"EMBEDDING_DIMENSIONS" envDefault:"768"`

	// ServiceURL of the local inference server
	ServiceURL string `env:"EMBEDDING_SERVICE_URL" envDefault:"http://localhost:8080"`

	// GoogleAPIKey enables the genai provider
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`

	// BatchTimeout bounds a single micro-batch call.
	BatchTimeout time.Duration `env:"EMBEDDING_BATCH_TIMEOUT" envDefault:"2m"`
}

// KeywordsConfig holds per-chunk keyword extraction settings.
type KeywordsConfig struct {
	ModelName   string `env:"KEYWORD_MODEL_NAME" envDefault:"all-mpnet-base-v2"`
	MaxPerChunk int    `env:"KEYWORDS_PER_CHUNK" envDefault:"5"`

	// Workers controls intra-document keyword parallelism: "auto",
	// "auto-aggressive", "auto-conservative", or an integer override.
	Workers string `env:"KEYWORD_EXTRACTION_WORKERS" envDefault:"auto"`
}

// ChunkingConfig holds the character chunker settings.
type ChunkingConfig struct {
	Size    int `env:"CHUNK_SIZE" envDefault:"1000"`
	Overlap int `env:"CHUNK_OVERLAP" envDefault:"200"`
}

// PersistenceConfig holds chunk insert batching settings.
type PersistenceConfig struct {
	InsertBatchSize       int  `env:"CHUNK_INSERT_BATCH_SIZE" envDefault:"25"`
	AutoCreateExtension   bool `env:"AUTO_CREATE_PGVECTOR_EXTENSION" envDefault:"true"`
}

// OCRConfig holds OCR routing settings.
type OCRConfig struct {
	Enabled  bool   `env:"OCR_ENABLED" envDefault:"true"`
	Provider string `env:"OCR_PROVIDER" envDefault:"tesseract"`
	DPI      int    `env:"OCR_DPI" envDefault:"300"`
	Language string `env:"OCR_LANGUAGE" envDefault:"eng"`

	TimeoutMinutes int `env:"OCR_TIMEOUT_MINUTES" envDefault:"5"`

	// Azure Document Intelligence (provider "azure")
	AzureEndpoint string `env:"AZURE_DI_ENDPOINT"`
	AzureKey      string `env:"AZURE_DI_KEY"`
}

// Timeout returns the per-document OCR deadline.
func (o *OCRConfig) Timeout() time.Duration {
	return time.Duration(o.TimeoutMinutes) * time.Minute
}

// NewConfig loads configuration from environment variables.
func NewConfig(log *slog.Logger) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info("configuration loaded",
		slog.String("metadata_url", cfg.Metadata.BaseURL),
		slog.String("s3_bucket", cfg.S3.Bucket),
		slog.Int("embedding_dimensions", cfg.Embeddings.Dimensions),
		slog.String("embedding_model", cfg.Embeddings.ModelName),
		slog.Bool("ocr_enabled", cfg.OCR.Enabled),
		slog.String("ocr_provider", cfg.OCR.Provider),
	)

	return cfg, nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Config) Validate() error {
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("CHUNK_OVERLAP (%d) must be smaller than CHUNK_SIZE (%d)",
			c.Chunking.Overlap, c.Chunking.Size)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive")
	}
	if c.Persistence.InsertBatchSize <= 0 || c.Persistence.InsertBatchSize > 50 {
		return fmt.Errorf("CHUNK_INSERT_BATCH_SIZE must be in 1..50, got %d",
			c.Persistence.InsertBatchSize)
	}
	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive")
	}
	switch c.OCR.Provider {
	case "tesseract", "azure":
	default:
		return fmt.Errorf("OCR_PROVIDER must be tesseract or azure, got %q", c.OCR.Provider)
	}
	if _, err := ResolveWorkerCount(c.FilesConcurrency, 8); err != nil {
		return err
	}
	if _, err := ResolveKeywordWorkers(c.Keywords.Workers, 8); err != nil {
		return err
	}
	return nil
}

// ResolveWorkerCount maps a FILES_CONCURRENCY_SIZE setting and a detected CPU
// count to the document worker pool size.
func ResolveWorkerCount(setting string, cpus int) (int, error) {
	if cpus < 1 {
		cpus = 1
	}
	switch setting {
	case "", "auto":
		if cpus >= 16 {
			return cpus / 2, nil
		}
		return cpus, nil
	case "auto-full":
		return cpus, nil
	case "auto-conservative":
		w := cpus / 4
		if w < 1 {
			w = 1
		}
		return w, nil
	}
	n, err := strconv.Atoi(setting)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid FILES_CONCURRENCY_SIZE %q", setting)
	}
	return n, nil
}

// ResolveKeywordWorkers maps a KEYWORD_EXTRACTION_WORKERS setting and a
// detected CPU count to the per-document keyword thread cap.
func ResolveKeywordWorkers(setting string, cpus int) (int, error) {
	if cpus < 1 {
		cpus = 1
	}
	switch setting {
	case "", "auto":
		switch {
		case cpus >= 16:
			return 2, nil
		case cpus >= 8:
			return 3, nil
		default:
			return 4, nil
		}
	case "auto-aggressive":
		return 4, nil
	case "auto-conservative":
		return 1, nil
	}
	n, err := strconv.Atoi(setting)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid KEYWORD_EXTRACTION_WORKERS %q", setting)
	}
	return n, nil
}
