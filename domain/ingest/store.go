package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/uptrace/bun"

	"github.com/emergent-company/docpipe/domain/chunks"
	"github.com/emergent-company/docpipe/domain/documents"
	"github.com/emergent-company/docpipe/domain/proclog"
	"github.com/emergent-company/docpipe/domain/projects"
	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/internal/database"
	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/pgutils"
	"github.com/emergent-company/docpipe/pkg/procerror"
)

const (
	maxBatchAttempts = 5
	baseRetryDelay   = time.Second
	retryJitter      = 0.2
)

// Store is the persistence facade used by document processors. Chunk writes
// for a single document are serialized through a hash-sharded mutex so a
// rollback never interleaves with another attempt's batches.
type Store struct {
	db        bun.IDB
	projects  *projects.Repository
	documents *documents.Repository
	chunks    *chunks.Repository
	logs      *proclog.Repository

	batchSize int
	shards    []sync.Mutex
	baseDelay time.Duration
	log       *slog.Logger
}

func NewStore(
	db bun.IDB,
	cfg *config.Config,
	projectRepo *projects.Repository,
	documentRepo *documents.Repository,
	chunkRepo *chunks.Repository,
	logRepo *proclog.Repository,
	log *slog.Logger,
) *Store {
	workers, _ := config.ResolveWorkerCount(cfg.FilesConcurrency, runtime.NumCPU())
	if workers < 1 {
		workers = 1
	}

	return &Store{
		db:        db,
		projects:  projectRepo,
		documents: documentRepo,
		chunks:    chunkRepo,
		logs:      logRepo,
		batchSize: cfg.Persistence.InsertBatchSize,
		shards:    make([]sync.Mutex, 4*workers),
		baseDelay: baseRetryDelay,
		log:       log.With(logger.Scope("ingest.store")),
	}
}

func (s *Store) shard(documentID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(documentID))
	return &s.shards[h.Sum32()%uint32(len(s.shards))]
}

// RegisterProject upserts the project row before its documents are queued.
func (s *Store) RegisterProject(ctx context.Context, p *projects.Project) error {
	return s.projects.Upsert(ctx, p)
}

// PersistDocument writes the document row, its chunks in batches, and the
// enrichment rollup. Each batch runs in its own transaction with
// exponential-backoff retries on transient errors. If a batch exhausts its
// retries every chunk written for this attempt is deleted, leaving the
// document with no partial state. Returns the number of batch retries that
// occurred.
func (s *Store) PersistDocument(ctx context.Context, doc *documents.Document, chs []*chunks.Chunk, enrich documents.Enrichment) (int, error) {
	mu := s.shard(doc.DocumentID)
	mu.Lock()
	defer mu.Unlock()

	retries := 0

	// Clear any chunks from a prior attempt so a re-run replaces rather
	// than appends.
	if err := s.withRetry(ctx, &retries, func() error {
		_, err := s.chunks.DeleteByDocument(ctx, nil, doc.DocumentID)
		return err
	}); err != nil {
		return retries, fmt.Errorf("clear prior chunks: %w", err)
	}

	if err := s.withRetry(ctx, &retries, func() error {
		return s.documents.Upsert(ctx, nil, doc)
	}); err != nil {
		return retries, fmt.Errorf("upsert document: %w", err)
	}

	for start := 0; start < len(chs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chs) {
			end = len(chs)
		}
		batch := chs[start:end]

		if err := s.withRetry(ctx, &retries, func() error {
			return s.insertBatchTx(ctx, batch)
		}); err != nil {
			s.rollbackAttempt(doc.DocumentID)
			return retries, fmt.Errorf("insert chunks %d-%d: %w", start, end, err)
		}
	}

	if err := s.withRetry(ctx, &retries, func() error {
		return s.documents.UpdateEnrichment(ctx, nil, doc.DocumentID, enrich)
	}); err != nil {
		s.rollbackAttempt(doc.DocumentID)
		return retries, fmt.Errorf("update enrichment: %w", err)
	}

	return retries, nil
}

func (s *Store) insertBatchTx(ctx context.Context, batch []*chunks.Chunk) error {
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.chunks.InsertBatch(ctx, tx, batch); err != nil {
		return err
	}
	return tx.Commit()
}

// withRetry runs fn with exponential backoff on transient errors: 1s base,
// doubling, at most maxBatchAttempts attempts, ±20% jitter. Non-transient
// errors and context cancellation abort immediately.
func (s *Store) withRetry(ctx context.Context, retries *int, fn func() error) error {
	var lastErr error
	delay := s.baseDelay

	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !pgutils.IsTransient(lastErr) || attempt == maxBatchAttempts {
			return lastErr
		}

		*retries++
		jittered := jitter(delay)
		s.log.Warn("transient store error, retrying",
			logger.Error(lastErr),
			slog.Int("attempt", attempt),
			slog.Duration("delay", jittered),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
		delay *= 2
	}
	return lastErr
}

func jitter(d time.Duration) time.Duration {
	f := float64(d) * (1 + retryJitter*(2*rand.Float64()-1))
	return time.Duration(f)
}

// rollbackAttempt best-effort deletes whatever this attempt wrote. It uses a
// background context because the attempt's own context may already be
// cancelled.
func (s *Store) rollbackAttempt(documentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := s.chunks.DeleteByDocument(ctx, nil, documentID)
	if err != nil {
		s.log.Error("failed to roll back partial chunk write",
			logger.Error(err),
			slog.String("document_id", documentID),
		)
		return
	}
	s.log.Warn("rolled back partial chunk write",
		slog.String("document_id", documentID),
		slog.Int64("chunks_deleted", deleted),
	)
}

// AppendLog writes one processing attempt record.
func (s *Store) AppendLog(ctx context.Context, entry *proclog.Entry) error {
	return s.logs.Append(ctx, entry)
}

// LatestStatuses returns the latest status per document for a project.
func (s *Store) LatestStatuses(ctx context.Context, projectID string) (map[string]procerror.Status, error) {
	return s.logs.LatestStatuses(ctx, projectID)
}

// MostRecentLog returns the latest attempt for a document, or nil.
func (s *Store) MostRecentLog(ctx context.Context, documentID string) (*proclog.Entry, error) {
	return s.logs.MostRecent(ctx, documentID)
}

// SelectRetryCandidates returns document ids whose latest log has the given
// status.
func (s *Store) SelectRetryCandidates(ctx context.Context, status procerror.Status, projectID string) ([]string, error) {
	return s.logs.SelectRetryCandidates(ctx, status, projectID)
}
