package chunks

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Chunk is one embedded window of document text in the document_chunks
// table. ChunkIndex is the document-wide ordinal; Page is the 1-based source
// page.
type Chunk struct {
	bun.BaseModel `bun:"table:document_chunks,alias:c"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid,default:gen_random_uuid()"`
	DocumentID string         `bun:"document_id,notnull"`
	ProjectID  string         `bun:"project_id,notnull"`
	ChunkIndex int            `bun:"chunk_index,notnull"`
	Page       int            `bun:"page,notnull"`
	Content    string         `bun:"content,notnull"`
	CharCount  int            `bun:"char_count,notnull"`
	Keywords   []string       `bun:"keywords,array"`
	Metadata   *ChunkMetadata `bun:"metadata,type:jsonb"`
	Embedding  string         `bun:"embedding,type:vector,nullzero"`
	CreatedAt  time.Time      `bun:"created_at,notnull,default:now()"`
}

// ChunkMetadata records the chunk's provenance so search consumers never
// need a join back to the documents table.
type ChunkMetadata struct {
	DocumentName   string            `json:"documentName,omitempty"`
	S3Key          string            `json:"s3Key,omitempty"`
	EmbeddingModel string            `json:"embeddingModel,omitempty"`
	Extraction     string            `json:"extraction,omitempty"`
	DocMetadata    map[string]string `json:"docMetadata,omitempty"`
}
