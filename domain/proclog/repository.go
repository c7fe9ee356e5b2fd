// Package proclog stores the append-only processing history. It writes to
// the logs database, which may or may not be the vector store.
package proclog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/internal/database"
	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/procerror"
)

// Module provides the processing log repository as an fx module.
var Module = fx.Module("proclog",
	fx.Provide(NewRepository),
)

// Repository appends and reads processing log entries.
type Repository struct {
	pools *database.Pools
	log   *slog.Logger
}

func NewRepository(pools *database.Pools, log *slog.Logger) *Repository {
	return &Repository{
		pools: pools,
		log:   log.With(logger.Scope("proclog.repo")),
	}
}

// Append writes one attempt record. Entries are never updated in place.
func (r *Repository) Append(ctx context.Context, e *Entry) error {
	if e.ProcessedAt.IsZero() {
		e.ProcessedAt = time.Now()
	}

	if _, err := r.pools.Logs.NewInsert().Model(e).Exec(ctx); err != nil {
		r.log.Error("failed to append processing log",
			logger.Error(err),
			slog.String("document_id", e.DocumentID),
			slog.String("status", string(e.Status)),
		)
		return fmt.Errorf("append processing log for %s: %w", e.DocumentID, err)
	}
	return nil
}

// MostRecent returns the latest entry for a document, or nil when the
// document has never been attempted.
func (r *Repository) MostRecent(ctx context.Context, documentID string) (*Entry, error) {
	entry := new(Entry)
	err := r.pools.Logs.NewSelect().
		Model(entry).
		Where("document_id = ?", documentID).
		Order("processed_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("most recent log for %s: %w", documentID, err)
	}
	return entry, nil
}

// LatestStatuses returns the latest status per document for a project in a
// single query. Used for admission decisions over full document listings.
func (r *Repository) LatestStatuses(ctx context.Context, projectID string) (map[string]procerror.Status, error) {
	var rows []struct {
		DocumentID string           `bun:"document_id"`
		Status     procerror.Status `bun:"status"`
	}

	err := r.pools.Logs.NewRaw(
		`SELECT DISTINCT ON (document_id) document_id, status
		 FROM processing_logs
		 WHERE project_id = ?
		 ORDER BY document_id, processed_at DESC`,
		projectID,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("latest statuses for project %s: %w", projectID, err)
	}

	statuses := make(map[string]procerror.Status, len(rows))
	for _, row := range rows {
		statuses[row.DocumentID] = row.Status
	}
	return statuses, nil
}

// SelectRetryCandidates returns document ids whose most recent entry has the
// given status. Empty projectID means all projects.
func (r *Repository) SelectRetryCandidates(ctx context.Context, status procerror.Status, projectID string) ([]string, error) {
	query := `SELECT document_id FROM (
			SELECT DISTINCT ON (document_id) document_id, status
			FROM processing_logs`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY document_id, processed_at DESC
		) latest WHERE status = ?`
	args = append(args, string(status))

	var ids []string
	if err := r.pools.Logs.NewRaw(query, args...).Scan(ctx, &ids); err != nil {
		return nil, fmt.Errorf("select retry candidates: %w", err)
	}
	return ids, nil
}
