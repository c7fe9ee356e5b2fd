// Package syshealth samples host and connection-pool pressure. Long
// ingestion runs saturate CPU and the database pool long before they fail,
// so the periodic progress report includes a snapshot.
package syshealth

import (
	"context"
	"database/sql"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/emergent-company/docpipe/pkg/logger"
)

// sampleTimeout bounds a single collection cycle so a stuck /proc read can
// never stall the progress reporter.
const sampleTimeout = 5 * time.Second

// Snapshot is one point-in-time reading.
type Snapshot struct {
	Load1             float64
	CPUCores          int
	MemoryUsedPercent float64
	DBConnsOpen       int
	DBConnsInUse      int
	DBWaitCount       int64
}

// LogValue renders the snapshot as a single grouped slog value.
func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("load1", s.Load1),
		slog.Int("cpu_cores", s.CPUCores),
		slog.Float64("mem_used_pct", s.MemoryUsedPercent),
		slog.Int("db_conns_open", s.DBConnsOpen),
		slog.Int("db_conns_in_use", s.DBConnsInUse),
		slog.Int64("db_wait_count", s.DBWaitCount),
	)
}

// Sampler collects snapshots. Collection is best-effort: a reading that
// fails is left at zero rather than failing the caller.
type Sampler struct {
	cores   int
	dbStats func() sql.DBStats
	log     *slog.Logger

	// Injectable for tests.
	getLoadAvg  func(ctx context.Context) (*load.AvgStat, error)
	getMemStats func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewSampler builds a sampler over the given pool-stats source. dbStats may
// be nil when no pool is attached.
func NewSampler(dbStats func() sql.DBStats, log *slog.Logger) *Sampler {
	return &Sampler{
		cores:       runtime.NumCPU(),
		dbStats:     dbStats,
		log:         log.With(logger.Scope("syshealth")),
		getLoadAvg:  load.AvgWithContext,
		getMemStats: mem.VirtualMemoryWithContext,
	}
}

// Snapshot takes one reading.
func (s *Sampler) Snapshot(ctx context.Context) Snapshot {
	ctx, cancel := context.WithTimeout(ctx, sampleTimeout)
	defer cancel()

	snap := Snapshot{CPUCores: s.cores}

	if s.dbStats != nil {
		stats := s.dbStats()
		snap.DBConnsOpen = stats.OpenConnections
		snap.DBConnsInUse = stats.InUse
		snap.DBWaitCount = stats.WaitCount
	}

	if avg, err := s.getLoadAvg(ctx); err != nil {
		s.log.Debug("load average unavailable", logger.Error(err))
	} else {
		snap.Load1 = avg.Load1
	}

	if vm, err := s.getMemStats(ctx); err != nil {
		s.log.Debug("memory stats unavailable", logger.Error(err))
	} else {
		snap.MemoryUsedPercent = vm.UsedPercent
	}

	return snap
}
