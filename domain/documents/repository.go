// Package documents persists document identities and enrichment rollups.
package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/pgutils"
)

// Module provides the documents repository as an fx module.
var Module = fx.Module("documents",
	fx.Provide(NewRepository),
)

// Repository handles database operations for documents.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("documents.repo")),
	}
}

// Upsert registers the document identity before processing starts.
// Idempotent by document_id; name and s3_key are refreshed on re-runs.
func (r *Repository) Upsert(ctx context.Context, idb bun.IDB, d *Document) error {
	if idb == nil {
		idb = r.db
	}
	d.UpdatedAt = time.Now()

	_, err := idb.NewInsert().
		Model(d).
		On("CONFLICT (document_id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("s3_key = EXCLUDED.s3_key").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to upsert document", logger.Error(err), slog.String("document_id", d.DocumentID))
		return fmt.Errorf("upsert document %s: %w", d.DocumentID, err)
	}
	return nil
}

// Enrichment is the post-processing rollup written once all chunks of a
// successful attempt are persisted.
type Enrichment struct {
	PageCount        int
	ExtractionMethod string
	Keywords         []string
	Tags             []string
	Headings         []string
	Metadata         map[string]string
	Embedding        []float32
}

// UpdateEnrichment stores the document-level rollup.
func (r *Repository) UpdateEnrichment(ctx context.Context, idb bun.IDB, documentID string, e Enrichment) error {
	if _, err := r.enrichmentQuery(idb, documentID, e).Exec(ctx); err != nil {
		r.log.Error("failed to update document enrichment", logger.Error(err), slog.String("document_id", documentID))
		return fmt.Errorf("update document enrichment %s: %w", documentID, err)
	}
	return nil
}

// enrichmentQuery builds the rollup update. The document_* column names form
// the search-service contract and must not drift.
func (r *Repository) enrichmentQuery(idb bun.IDB, documentID string, e Enrichment) *bun.UpdateQuery {
	if idb == nil {
		idb = r.db
	}

	q := idb.NewUpdate().
		Model((*Document)(nil)).
		Set("page_count = ?", e.PageCount).
		Set("extraction_method = ?", e.ExtractionMethod).
		Set("document_keywords = ?", pgdialect.Array(textArray(e.Keywords))).
		Set("document_tags = ?", pgdialect.Array(textArray(e.Tags))).
		Set("document_headings = ?", pgdialect.Array(textArray(e.Headings))).
		Set("updated_at = now()").
		Where("document_id = ?", documentID)
	if e.Metadata != nil {
		q = q.Set("document_metadata = ?", e.Metadata)
	}
	if len(e.Embedding) > 0 {
		q = q.Set("embedding = ?::vector", pgutils.FormatVector(e.Embedding))
	}
	return q
}

// textArray keeps array columns non-null: an empty rollup writes '{}'.
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
