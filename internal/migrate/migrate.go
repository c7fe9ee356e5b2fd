// Package migrate provides database migration functionality using Goose.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/internal/database"
	"github.com/emergent-company/docpipe/migrations"
	"github.com/emergent-company/docpipe/pkg/logger"
)

// Module provides migration dependencies.
var Module = fx.Options(
	fx.Provide(NewMigrator),
)

// Migrator applies the embedded schema to both stores. When the vector and
// logs URLs point at the same database the schema is applied once.
type Migrator struct {
	pools         *database.Pools
	autoExtension bool
	embeddingDims int
	log           *slog.Logger
}

func NewMigrator(pools *database.Pools, cfg *config.Config, log *slog.Logger) *Migrator {
	return &Migrator{
		pools:         pools,
		autoExtension: cfg.Persistence.AutoCreateExtension,
		embeddingDims: cfg.Embeddings.Dimensions,
		log:           log.With(logger.Scope("migrator")),
	}
}

// Up creates the pgvector extension (when enabled) and runs all pending
// migrations.
func (m *Migrator) Up(ctx context.Context) error {
	m.log.Info("running database migrations")

	if m.autoExtension {
		if _, err := m.pools.Store.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("create vector extension: %w", err)
		}
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, m.pools.Store.DB, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if err := m.validateVectorWidth(ctx); err != nil {
		return err
	}

	if err := m.ensureLogsSchema(ctx); err != nil {
		return err
	}

	m.log.Info("migrations completed")
	return nil
}

// ensureLogsSchema creates the processing log table on the logs store. The
// logs database can be a different server with no pgvector, so its one table
// is applied directly rather than through the goose stream.
func (m *Migrator) ensureLogsSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS processing_logs (
			id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
			document_id text NOT NULL,
			project_id text NOT NULL,
			status text NOT NULL,
			reason text,
			error text,
			metrics jsonb NOT NULL DEFAULT '{}'::jsonb,
			processed_at timestamptz NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_processing_logs_document
			ON processing_logs (document_id, processed_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_processing_logs_project
			ON processing_logs (project_id)`,
	}
	for _, stmt := range stmts {
		if _, err := m.pools.Logs.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure processing_logs schema: %w", err)
		}
	}
	return nil
}

// EnsureVectorIndexes builds the HNSW indexes outside the migration stream so
// index creation can be skipped per run. CREATE INDEX IF NOT EXISTS makes the
// call idempotent.
func (m *Migrator) EnsureVectorIndexes(ctx context.Context) error {
	m.log.Info("ensuring HNSW vector indexes")

	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding_hnsw
			ON document_chunks USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_embedding_hnsw
			ON documents USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := m.pools.Store.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create vector index: %w", err)
		}
	}
	return nil
}

// validateVectorWidth confirms the migrated column width matches the
// configured embedding dimension before any documents are processed.
func (m *Migrator) validateVectorWidth(ctx context.Context) error {
	var width int
	err := m.pools.Store.NewRaw(
		`SELECT coalesce(atttypmod, -1) FROM pg_attribute
		 WHERE attrelid = 'document_chunks'::regclass AND attname = 'embedding'`,
	).Scan(ctx, &width)
	if err != nil {
		return fmt.Errorf("inspect embedding column: %w", err)
	}
	if width > 0 && width != m.embeddingDims {
		return fmt.Errorf("embedding column is vector(%d) but EMBEDDING_DIMENSIONS=%d", width, m.embeddingDims)
	}
	return nil
}

// Status prints goose status for the store database.
func (m *Migrator) Status(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.StatusContext(ctx, m.pools.Store.DB, "."); err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	return nil
}

// Version returns the current database schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, fmt.Errorf("set dialect: %w", err)
	}
	version, err := goose.GetDBVersionContext(ctx, m.pools.Store.DB)
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}
