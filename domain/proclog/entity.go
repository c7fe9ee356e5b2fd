package proclog

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/emergent-company/docpipe/pkg/procerror"
)

// Entry is one append-only processing attempt record. Attempts are never
// updated; the latest row by processed_at is the document's current state.
type Entry struct {
	bun.BaseModel `bun:"table:processing_logs,alias:pl"`

	ID          uuid.UUID        `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	DocumentID  string           `bun:"document_id,notnull"`
	ProjectID   string           `bun:"project_id,notnull"`
	Status      procerror.Status `bun:"status,notnull"`
	Reason      string           `bun:"reason,nullzero"`
	Error       string           `bun:"error,nullzero"`
	Metrics     Metrics          `bun:"metrics,type:jsonb"`
	ProcessedAt time.Time        `bun:"processed_at,notnull,default:now()"`
}

// Metrics captures per-stage timings and counters for one attempt.
type Metrics struct {
	FetchMs          int64  `json:"fetch_ms,omitempty"`
	ExtractMs        int64  `json:"extract_ms,omitempty"`
	OcrMs            int64  `json:"ocr_ms,omitempty"`
	ChunkMs          int64  `json:"chunk_ms,omitempty"`
	EmbedMs          int64  `json:"embed_ms,omitempty"`
	PersistMs        int64  `json:"persist_ms,omitempty"`
	TotalMs          int64  `json:"total_ms,omitempty"`
	PageCount        int    `json:"page_count,omitempty"`
	ChunkCount       int    `json:"chunk_count,omitempty"`
	KeywordChunks    int    `json:"keyword_chunks,omitempty"`
	DBRetries        int    `json:"db_retries,omitempty"`
	ExtractionMethod string `json:"extraction_method,omitempty"`
	FileSize         int64  `json:"file_size,omitempty"`

	// DocMetadata is the inspection snapshot (producer, creator, title,
	// pdf_version), kept even for failed and skipped attempts.
	DocMetadata map[string]string `json:"doc_metadata,omitempty"`
}
