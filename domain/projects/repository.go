// Package projects persists upstream project identities.
package projects

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/pkg/logger"
)

// Module provides the projects repository as an fx module.
var Module = fx.Module("projects",
	fx.Provide(NewRepository),
)

// Repository handles database operations for projects.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("projects.repo")),
	}
}

// Upsert registers the project on first sighting. Idempotent by project_id;
// existing rows are never touched.
func (r *Repository) Upsert(ctx context.Context, p *Project) error {
	if _, err := r.insertQuery(p).Exec(ctx); err != nil {
		r.log.Error("failed to upsert project", logger.Error(err), slog.String("project_id", p.ProjectID))
		return fmt.Errorf("upsert project %s: %w", p.ProjectID, err)
	}
	return nil
}

func (r *Repository) insertQuery(p *Project) *bun.InsertQuery {
	return r.db.NewInsert().
		Model(p).
		On("CONFLICT (project_id) DO NOTHING")
}
