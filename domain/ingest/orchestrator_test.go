package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emergent-company/docpipe/domain/projects"
	"github.com/emergent-company/docpipe/internal/metadata"
	"github.com/emergent-company/docpipe/pkg/procerror"
)

type fakeMeta struct {
	projects    []metadata.Project
	documents   map[string][]metadata.Document
	projectsErr error
	listErr     map[string]error
}

func (f *fakeMeta) ListProjects(context.Context) ([]metadata.Project, error) {
	return f.projects, f.projectsErr
}

func (f *fakeMeta) ListDocuments(_ context.Context, projectID string, fn func(metadata.Document) error) error {
	if err := f.listErr[projectID]; err != nil {
		return err
	}
	for _, doc := range f.documents[projectID] {
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

type fakeAdmission struct {
	mu         sync.Mutex
	registered []string
	statuses   map[string]map[string]procerror.Status
	statusErr  error
}

func (f *fakeAdmission) RegisterProject(_ context.Context, p *projects.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, p.ProjectID)
	return nil
}

func (f *fakeAdmission) LatestStatuses(_ context.Context, projectID string) (map[string]procerror.Status, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statuses[projectID], nil
}

type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	status    procerror.Status
	block     chan struct{}
}

func (f *fakeProcessor) Process(_ context.Context, _ string, doc metadata.Document) Result {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.processed = append(f.processed, doc.DocumentID)
	f.mu.Unlock()
	status := f.status
	if status == "" {
		status = procerror.StatusSuccess
	}
	return Result{Status: status}
}

func (f *fakeProcessor) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.processed))
	copy(out, f.processed)
	return out
}

func docs(ids ...string) []metadata.Document {
	out := make([]metadata.Document, len(ids))
	for i, id := range ids {
		out[i] = metadata.Document{DocumentID: id, Name: id + ".pdf", S3Key: "p/" + id + ".pdf"}
	}
	return out
}

func newTestOrchestrator(meta *fakeMeta, store *fakeAdmission, proc *fakeProcessor, workers int) *Orchestrator {
	log := quietLogger()
	return &Orchestrator{
		meta:         meta,
		store:        store,
		processor:    proc,
		progress:     NewProgress(log, nil),
		workers:      workers,
		drainTimeout: 100 * time.Millisecond,
		log:          log,
	}
}

func TestRunProcessesAllDocuments(t *testing.T) {
	meta := &fakeMeta{
		projects: []metadata.Project{{ProjectID: "p1"}, {ProjectID: "p2"}},
		documents: map[string][]metadata.Document{
			"p1": docs("d1", "d2"),
			"p2": docs("d3"),
		},
	}
	store := &fakeAdmission{}
	proc := &fakeProcessor{}
	o := newTestOrchestrator(meta, store, proc, 3)

	summary, err := o.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Admitted)
	assert.Equal(t, int64(3), summary.Processed)
	assert.Equal(t, int64(3), summary.Succeeded)
	assert.ElementsMatch(t, []string{"d1", "d2", "d3"}, proc.seen())
	assert.ElementsMatch(t, []string{"p1", "p2"}, store.registered)
}

func TestRunProjectsDiscoveryFailureIsFatal(t *testing.T) {
	meta := &fakeMeta{projectsErr: errors.New("metadata api down")}
	o := newTestOrchestrator(meta, &fakeAdmission{}, &fakeProcessor{}, 1)

	_, err := o.Run(context.Background(), Options{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "discover projects")
}

func TestRunProjectFilter(t *testing.T) {
	meta := &fakeMeta{
		projects: []metadata.Project{{ProjectID: "p1"}, {ProjectID: "p2"}, {ProjectID: "p3"}},
		documents: map[string][]metadata.Document{
			"p1": docs("d1"),
			"p2": docs("d2"),
			"p3": docs("d3"),
		},
	}
	proc := &fakeProcessor{}
	o := newTestOrchestrator(meta, &fakeAdmission{}, proc, 2)

	_, err := o.Run(context.Background(), Options{ProjectIDs: []string{"p1", "p3"}})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1", "d3"}, proc.seen())
}

func TestRunSkipsAlreadySucceeded(t *testing.T) {
	meta := &fakeMeta{
		projects:  []metadata.Project{{ProjectID: "p1"}},
		documents: map[string][]metadata.Document{"p1": docs("d1", "d2", "d3")},
	}
	store := &fakeAdmission{statuses: map[string]map[string]procerror.Status{
		"p1": {
			"d1": procerror.StatusSuccess,
			"d2": procerror.StatusFailure,
		},
	}}
	proc := &fakeProcessor{}
	o := newTestOrchestrator(meta, store, proc, 2)

	summary, err := o.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Admitted)
	assert.ElementsMatch(t, []string{"d2", "d3"}, proc.seen())
}

func TestRunRetryFailedOnly(t *testing.T) {
	meta := &fakeMeta{
		projects:  []metadata.Project{{ProjectID: "p1"}},
		documents: map[string][]metadata.Document{"p1": docs("d1", "d2", "d3", "d4")},
	}
	store := &fakeAdmission{statuses: map[string]map[string]procerror.Status{
		"p1": {
			"d1": procerror.StatusSuccess,
			"d2": procerror.StatusFailure,
			"d3": procerror.StatusSkipped,
		},
	}}
	proc := &fakeProcessor{}
	o := newTestOrchestrator(meta, store, proc, 1)

	_, err := o.Run(context.Background(), Options{RetryMode: RetryFailed})

	require.NoError(t, err)
	assert.Equal(t, []string{"d2"}, proc.seen())
}

func TestRunRetrySkippedOnly(t *testing.T) {
	meta := &fakeMeta{
		projects:  []metadata.Project{{ProjectID: "p1"}},
		documents: map[string][]metadata.Document{"p1": docs("d1", "d2", "d3")},
	}
	store := &fakeAdmission{statuses: map[string]map[string]procerror.Status{
		"p1": {
			"d1": procerror.StatusSkipped,
			"d2": procerror.StatusFailure,
		},
	}}
	proc := &fakeProcessor{}
	o := newTestOrchestrator(meta, store, proc, 1)

	_, err := o.Run(context.Background(), Options{RetryMode: RetrySkipped})

	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, proc.seen())
}

func TestRunShallowCap(t *testing.T) {
	meta := &fakeMeta{
		projects: []metadata.Project{{ProjectID: "p1"}, {ProjectID: "p2"}},
		documents: map[string][]metadata.Document{
			"p1": docs("a1", "a2", "a3", "a4"),
			"p2": docs("b1", "b2", "b3"),
		},
	}
	proc := &fakeProcessor{}
	o := newTestOrchestrator(meta, &fakeAdmission{}, proc, 2)

	summary, err := o.Run(context.Background(), Options{ShallowCap: 2})

	require.NoError(t, err)
	assert.Equal(t, int64(4), summary.Admitted)
	assert.ElementsMatch(t, []string{"a1", "a2", "b1", "b2"}, proc.seen())
}

func TestRunContinuesPastFailedProject(t *testing.T) {
	meta := &fakeMeta{
		projects: []metadata.Project{{ProjectID: "p1"}, {ProjectID: "p2"}},
		documents: map[string][]metadata.Document{
			"p2": docs("d1"),
		},
		listErr: map[string]error{"p1": errors.New("listing 500")},
	}
	proc := &fakeProcessor{}
	o := newTestOrchestrator(meta, &fakeAdmission{}, proc, 1)

	_, err := o.Run(context.Background(), Options{})

	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, proc.seen())
}

func TestRunBudgetStopsAdmission(t *testing.T) {
	meta := &fakeMeta{
		projects:  []metadata.Project{{ProjectID: "p1"}},
		documents: map[string][]metadata.Document{"p1": docs("d1", "d2")},
	}
	proc := &fakeProcessor{}
	o := newTestOrchestrator(meta, &fakeAdmission{}, proc, 1)

	// Budget already expired before the run starts.
	summary, err := o.Run(context.Background(), Options{Budget: -time.Second})

	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Admitted)
	assert.Empty(t, proc.seen())
}

func TestRunCancelledContextStopsAdmission(t *testing.T) {
	meta := &fakeMeta{
		projects:  []metadata.Project{{ProjectID: "p1"}},
		documents: map[string][]metadata.Document{"p1": docs("d1", "d2")},
	}
	proc := &fakeProcessor{block: make(chan struct{})}
	o := newTestOrchestrator(meta, &fakeAdmission{}, proc, 1)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Summary, 1)
	go func() {
		summary, _ := o.Run(ctx, Options{})
		done <- summary
	}()

	// The single worker is blocked on d1, so d2 cannot be enqueued; cancel
	// must release the admission loop and the drain must give up.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case summary := <-done:
		assert.LessOrEqual(t, summary.Processed, int64(1))
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	close(proc.block)
}

func TestAdmitRules(t *testing.T) {
	statuses := map[string]procerror.Status{
		"ok":      procerror.StatusSuccess,
		"bad":     procerror.StatusFailure,
		"skipped": procerror.StatusSkipped,
	}

	tests := []struct {
		name string
		mode RetryMode
		doc  string
		want bool
	}{
		{"default admits unseen", RetryNone, "new", true},
		{"default skips success", RetryNone, "ok", false},
		{"default admits failure", RetryNone, "bad", true},
		{"default admits skipped", RetryNone, "skipped", true},
		{"retry-failed admits failure", RetryFailed, "bad", true},
		{"retry-failed rejects unseen", RetryFailed, "new", false},
		{"retry-failed rejects skipped", RetryFailed, "skipped", false},
		{"retry-skipped admits skipped", RetrySkipped, "skipped", true},
		{"retry-skipped rejects failure", RetrySkipped, "bad", false},
		{"retry-skipped rejects unseen", RetrySkipped, "new", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, admit(tt.mode, statuses, tt.doc))
		})
	}
}

func TestFilterProjects(t *testing.T) {
	all := []metadata.Project{{ProjectID: "a"}, {ProjectID: "b"}, {ProjectID: "c"}}

	assert.Len(t, filterProjects(all, nil), 3)

	got := filterProjects(all, []string{"c", "a"})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ProjectID)
	assert.Equal(t, "c", got[1].ProjectID)

	assert.Empty(t, filterProjects(all, []string{"zz"}))
}
