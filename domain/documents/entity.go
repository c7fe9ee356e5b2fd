package documents

import (
	"time"

	"github.com/uptrace/bun"
)

// Document is the per-document row in the vector store. Rollup fields
// (keywords, tags, headings, embedding) are filled after a successful
// processing attempt.
type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	DocumentID       string            `bun:"document_id,pk"`
	ProjectID        string            `bun:"project_id,notnull"`
	Name             string            `bun:"name,notnull"`
	S3Key            string            `bun:"s3_key,notnull"`
	PageCount        int               `bun:"page_count,notnull"`
	ExtractionMethod string            `bun:"extraction_method,notnull"`
	Metadata         map[string]string `bun:"document_metadata,type:jsonb"`
	Keywords         []string          `bun:"document_keywords,array"`
	Tags             []string          `bun:"document_tags,array"`
	Headings         []string          `bun:"document_headings,array"`
	Embedding        string            `bun:"embedding,type:vector,nullzero"`
	CreatedAt        time.Time         `bun:"created_at,notnull,default:now()"`
	UpdatedAt        time.Time         `bun:"updated_at,notnull,default:now()"`
}
