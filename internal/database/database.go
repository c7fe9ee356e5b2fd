// Package database wires the pgx connection pools and the Bun ORM handles
// for the vector store and the processing-log store.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/pkg/logger"
)

var Module = fx.Module("database",
	fx.Provide(NewPools),
	// Expose the vector store as the default bun.IDB for repositories.
	fx.Provide(func(p *Pools) bun.IDB { return p.Store }),
)

// Pools bundles the vector store and processing-log store handles.
// When VECTOR_DB_URL and LOGS_DATABASE_URL are identical the same
// underlying pool backs both.
type Pools struct {
	Store *bun.DB
	Logs  *bun.DB
}

// NewPools creates the connection pools. The pool is shared by all document
// workers; its size is min(W, DB_MAX_OPEN_CONNS) with overflow capped at
// twice the configured maximum.
func NewPools(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*Pools, error) {
	log = log.With(logger.Scope("database"))

	store, storePool, err := open(cfg.Database.VectorURL, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	logs := store
	var logsPool *pgxpool.Pool
	if !cfg.Database.SharedLogsStore() {
		logs, logsPool, err = open(cfg.Database.LogsURL, cfg, log)
		if err != nil {
			storePool.Close()
			return nil, fmt.Errorf("open logs store: %w", err)
		}
	}

	log.Info("database pools created",
		slog.Int("max_conns", cfg.Database.MaxOpenConns),
		slog.Bool("shared_logs_store", cfg.Database.SharedLogsStore()),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing database pools")
			if err := store.Close(); err != nil {
				return err
			}
			storePool.Close()
			if logsPool != nil {
				if err := logs.Close(); err != nil {
					return err
				}
				logsPool.Close()
			}
			return nil
		},
	})

	return &Pools{Store: store, Logs: logs}, nil
}

func open(dsn string, cfg *config.Config, log *slog.Logger) (*bun.DB, *pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse pgx config: %w", err)
	}

	applyPoolLimits(poolConfig, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	workers, err := config.ResolveWorkerCount(cfg.FilesConcurrency, runtime.NumCPU())
	if err != nil {
		pool.Close()
		return nil, nil, err
	}

	sqldb := stdlib.OpenDBFromPool(pool)
	sqldb.SetMaxOpenConns(steadyConns(workers, cfg.Database.MaxOpenConns))

	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Database.QueryDebug {
		db.AddQueryHook(&queryLoggingHook{log: log})
	}

	return db, pool, nil
}

// applyPoolLimits bounds the pgx pool at twice the configured cap and puts a
// per-statement timeout on every connection the pool hands out.
func applyPoolLimits(pc *pgxpool.Config, cfg *config.Config) {
	pc.MaxConns = int32(2 * cfg.Database.MaxOpenConns)
	pc.MinConns = 1
	pc.MaxConnIdleTime = cfg.Database.MaxIdleTime
	if cfg.Database.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] =
			strconv.FormatInt(cfg.Database.StatementTimeout.Milliseconds(), 10)
	}
}

// steadyConns sizes the steady-state pool at min(W, DB_MAX_OPEN_CONNS) so a
// small worker pool does not hold idle connections open.
func steadyConns(workers, limit int) int {
	if limit < 1 {
		limit = 1
	}
	if workers >= 1 && workers < limit {
		return workers
	}
	return limit
}

// queryLoggingHook implements bun.QueryHook for query logging.
type queryLoggingHook struct {
	log *slog.Logger
}

func (h *queryLoggingHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLoggingHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)

	if event.Err != nil && event.Err != sql.ErrNoRows {
		h.log.Error("query error",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
			logger.Error(event.Err),
		)
		return
	}

	if duration > 3*time.Second {
		h.log.Warn("slow query",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
		)
		return
	}

	h.log.Debug("query",
		slog.String("query", event.Query),
		slog.Duration("duration", duration),
	)
}

// SafeTx wraps a bun.Tx to make Rollback safe to call after Commit.
//
// Usage:
//
//	tx, err := BeginSafeTx(ctx, db)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback() // Safe to call even after Commit
//
//	// ... do work ...
//
//	return tx.Commit()
type SafeTx struct {
	bun.Tx
	committed bool
}

// BeginSafeTx starts a new transaction and returns a SafeTx wrapper.
func BeginSafeTx(ctx context.Context, db bun.IDB) (*SafeTx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SafeTx{Tx: tx}, nil
}

// Commit commits the transaction and marks it as committed.
func (tx *SafeTx) Commit() error {
	if tx.committed {
		return nil
	}
	err := tx.Tx.Commit()
	if err == nil {
		tx.committed = true
	}
	return err
}

// Rollback rolls back the transaction only if it hasn't been committed.
func (tx *SafeTx) Rollback() error {
	if tx.committed {
		return nil
	}
	return tx.Tx.Rollback()
}
