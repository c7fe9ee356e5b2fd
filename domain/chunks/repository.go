// Package chunks persists embedded document chunks.
package chunks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/pkg/logger"
)

// Module provides the chunks repository as an fx module.
var Module = fx.Module("chunks",
	fx.Provide(NewRepository),
)

// Repository handles database operations for document chunks.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("chunks.repo")),
	}
}

// InsertBatch writes one batch of chunks. Callers batch and wrap in a
// transaction; this is a single multi-row insert.
func (r *Repository) InsertBatch(ctx context.Context, idb bun.IDB, batch []*Chunk) error {
	if len(batch) == 0 {
		return nil
	}
	if idb == nil {
		idb = r.db
	}

	if _, err := idb.NewInsert().Model(&batch).Exec(ctx); err != nil {
		return fmt.Errorf("insert chunk batch of %d: %w", len(batch), err)
	}
	return nil
}

// DeleteByDocument removes every chunk for the document. Used both to clear
// a prior attempt before re-processing and to roll back a partial write.
func (r *Repository) DeleteByDocument(ctx context.Context, idb bun.IDB, documentID string) (int64, error) {
	if idb == nil {
		idb = r.db
	}

	res, err := idb.NewDelete().
		Model((*Chunk)(nil)).
		Where("document_id = ?", documentID).
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to delete document chunks", logger.Error(err), slog.String("document_id", documentID))
		return 0, fmt.Errorf("delete chunks for document %s: %w", documentID, err)
	}

	affected, _ := res.RowsAffected()
	return affected, nil
}

// CountByDocument returns the number of stored chunks for a document.
func (r *Repository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*Chunk)(nil)).
		Where("document_id = ?", documentID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count chunks for document %s: %w", documentID, err)
	}
	return count, nil
}
