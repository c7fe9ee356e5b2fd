package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/emergent-company/docpipe/domain/projects"
	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/internal/metadata"
	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/procerror"
)

// DrainTimeout bounds how long shutdown waits for in-flight documents.
const DrainTimeout = 60 * time.Second

// RetryMode controls which documents are admitted relative to their latest
// processing log.
type RetryMode int

const (
	// RetryNone processes documents that have never succeeded.
	RetryNone RetryMode = iota
	// RetryFailed admits only documents whose latest log is a failure.
	RetryFailed
	// RetrySkipped admits only documents whose latest log is skipped.
	RetrySkipped
)

// Options configure a single run.
type Options struct {
	// ProjectIDs restricts the run; empty means all projects.
	ProjectIDs []string
	RetryMode  RetryMode
	// ShallowCap limits admitted documents per project; 0 means unlimited.
	ShallowCap int
	// Budget is the wall-clock budget; 0 means unlimited and a negative
	// value admits nothing. Once elapsed no new documents are admitted,
	// in-flight ones finish.
	Budget time.Duration
}

type projectLister interface {
	ListProjects(ctx context.Context) ([]metadata.Project, error)
	ListDocuments(ctx context.Context, projectID string, fn func(metadata.Document) error) error
}

type documentProcessor interface {
	Process(ctx context.Context, projectID string, doc metadata.Document) Result
}

type admissionStore interface {
	RegisterProject(ctx context.Context, p *projects.Project) error
	LatestStatuses(ctx context.Context, projectID string) (map[string]procerror.Status, error)
}

var errStopListing = errors.New("stop listing documents")

// Orchestrator discovers projects, admits documents per retry mode, shallow
// cap and budget, and drives them through a bounded worker pool.
type Orchestrator struct {
	meta      projectLister
	store     admissionStore
	processor documentProcessor
	progress  *Progress

	workers      int
	drainTimeout time.Duration
	log          *slog.Logger
}

func NewOrchestrator(
	cfg *config.Config,
	meta *metadata.Client,
	store *Store,
	processor *Processor,
	progress *Progress,
	log *slog.Logger,
) *Orchestrator {
	workers, _ := config.ResolveWorkerCount(cfg.FilesConcurrency, runtime.NumCPU())
	if workers < 1 {
		workers = 1
	}

	return &Orchestrator{
		meta:         meta,
		store:        store,
		processor:    processor,
		progress:     progress,
		workers:      workers,
		drainTimeout: DrainTimeout,
		log:          log.With(logger.Scope("ingest.orchestrator")),
	}
}

type task struct {
	projectID string
	doc       metadata.Document
}

// Run executes one full pipeline pass. It returns an error only for fatal
// orchestrator-level problems (project discovery failure); per-document
// failures are reflected in the summary and the processing logs.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	projectList, err := o.meta.ListProjects(ctx)
	if err != nil {
		return o.progress.Summary(), fmt.Errorf("discover projects: %w", err)
	}
	projectList = filterProjects(projectList, opts.ProjectIDs)

	o.log.Info("run starting",
		slog.Int("projects", len(projectList)),
		slog.Int("workers", o.workers),
		slog.String("retry_mode", retryModeName(opts.RetryMode)),
	)

	// A negative budget is already spent; zero means unlimited.
	var deadline time.Time
	if opts.Budget != 0 {
		deadline = time.Now().Add(opts.Budget)
	}

	reportCtx, stopReport := context.WithCancel(ctx)
	defer stopReport()
	go o.progress.Report(reportCtx)

	tasks := make(chan task)
	var wg sync.WaitGroup
	for i := 0; i < o.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				result := o.processor.Process(ctx, t.projectID, t.doc)
				o.progress.Record(result.Status)
			}
		}()
	}

	for _, project := range projectList {
		if ctx.Err() != nil || budgetExpired(deadline) {
			break
		}
		if err := o.admitProject(ctx, project, opts, deadline, tasks); err != nil {
			o.log.Error("project admission failed, continuing with next project",
				logger.Error(err),
				slog.String("project_id", project.ProjectID),
			)
		}
	}

	close(tasks)
	o.waitForDrain(ctx, &wg)

	summary := o.progress.Summary()
	o.progress.emit("run complete")
	return summary, nil
}

// admitProject lists a project's documents page by page and enqueues the
// admitted ones. Listing stops early on shallow cap, budget expiry, or
// shutdown.
func (o *Orchestrator) admitProject(ctx context.Context, project metadata.Project, opts Options, deadline time.Time, tasks chan<- task) error {
	if err := o.store.RegisterProject(ctx, &projects.Project{
		ProjectID: project.ProjectID,
		Name:      project.Name,
	}); err != nil {
		return err
	}

	statuses, err := o.store.LatestStatuses(ctx, project.ProjectID)
	if err != nil {
		return err
	}

	admitted := 0
	err = o.meta.ListDocuments(ctx, project.ProjectID, func(doc metadata.Document) error {
		if ctx.Err() != nil || budgetExpired(deadline) {
			return errStopListing
		}
		if opts.ShallowCap > 0 && admitted >= opts.ShallowCap {
			return errStopListing
		}
		if !admit(opts.RetryMode, statuses, doc.DocumentID) {
			return nil
		}

		select {
		case tasks <- task{projectID: project.ProjectID, doc: doc}:
			admitted++
			o.progress.Admit(1)
			return nil
		case <-ctx.Done():
			return errStopListing
		}
	})
	if err != nil && !errors.Is(err, errStopListing) {
		return err
	}

	o.log.Debug("project admitted",
		slog.String("project_id", project.ProjectID),
		slog.Int("documents", admitted),
	)
	return nil
}

// admit applies the retry-mode admission rule against the document's latest
// log status.
func admit(mode RetryMode, statuses map[string]procerror.Status, documentID string) bool {
	status, seen := statuses[documentID]
	switch mode {
	case RetryFailed:
		return seen && status == procerror.StatusFailure
	case RetrySkipped:
		return seen && status == procerror.StatusSkipped
	default:
		return !seen || status != procerror.StatusSuccess
	}
}

// waitForDrain waits for the worker pool. After shutdown begins, in-flight
// documents get the drain timeout to finish before being abandoned.
func (o *Orchestrator) waitForDrain(ctx context.Context, wg *sync.WaitGroup) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-ctx.Done():
	}

	o.log.Info("shutdown requested, draining in-flight documents",
		slog.Duration("drain_timeout", o.drainTimeout))
	select {
	case <-done:
	case <-time.After(o.drainTimeout):
		o.log.Warn("drain timeout exceeded, abandoning in-flight documents")
	}
}

func budgetExpired(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

func filterProjects(all []metadata.Project, ids []string) []metadata.Project {
	if len(ids) == 0 {
		return all
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []metadata.Project
	for _, p := range all {
		if want[p.ProjectID] {
			out = append(out, p)
		}
	}
	return out
}

func retryModeName(m RetryMode) string {
	switch m {
	case RetryFailed:
		return "failed-only"
	case RetrySkipped:
		return "skipped-only"
	default:
		return "none"
	}
}
