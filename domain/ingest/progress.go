package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/procerror"
	"github.com/emergent-company/docpipe/pkg/syshealth"
)

const progressInterval = 30 * time.Second

// Progress tracks run counters and emits a summary line on a fixed interval.
// All counters are safe for concurrent update from workers.
type Progress struct {
	admitted  atomic.Int64
	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	started time.Time
	sampler *syshealth.Sampler
	log     *slog.Logger
}

// NewProgress creates the tracker. sampler may be nil, in which case the
// periodic report carries counters only.
func NewProgress(log *slog.Logger, sampler *syshealth.Sampler) *Progress {
	return &Progress{
		started: time.Now(),
		sampler: sampler,
		log:     log.With(logger.Scope("ingest.progress")),
	}
}

func (p *Progress) Admit(n int) { p.admitted.Add(int64(n)) }

// Record tallies one finished document.
func (p *Progress) Record(status procerror.Status) {
	p.processed.Add(1)
	switch status {
	case procerror.StatusSuccess:
		p.succeeded.Add(1)
	case procerror.StatusFailure:
		p.failed.Add(1)
	case procerror.StatusSkipped:
		p.skipped.Add(1)
	}
}

// Summary is the final tally of a run.
type Summary struct {
	Admitted  int64
	Processed int64
	Succeeded int64
	Failed    int64
	Skipped   int64
	Elapsed   time.Duration
}

func (p *Progress) Summary() Summary {
	return Summary{
		Admitted:  p.admitted.Load(),
		Processed: p.processed.Load(),
		Succeeded: p.succeeded.Load(),
		Failed:    p.failed.Load(),
		Skipped:   p.skipped.Load(),
		Elapsed:   time.Since(p.started),
	}
}

// Report logs the running tally every 30 seconds until ctx is cancelled.
func (p *Progress) Report(ctx context.Context) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.emit("progress")
		}
	}
}

func (p *Progress) emit(msg string) {
	s := p.Summary()
	attrs := []any{
		slog.Int64("admitted", s.Admitted),
		slog.Int64("processed", s.Processed),
		slog.Int64("succeeded", s.Succeeded),
		slog.Int64("failed", s.Failed),
		slog.Int64("skipped", s.Skipped),
		slog.Duration("elapsed", s.Elapsed.Round(time.Second)),
	}
	if p.sampler != nil {
		attrs = append(attrs, slog.Any("system", p.sampler.Snapshot(context.Background())))
	}
	p.log.Info(msg, attrs...)
}
