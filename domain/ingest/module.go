package ingest

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/emergent-company/docpipe/internal/database"
	"github.com/emergent-company/docpipe/pkg/syshealth"
)

// Module wires the persistence facade, document processor, progress reporter
// and orchestrator.
var Module = fx.Module("ingest",
	fx.Provide(
		NewStore,
		NewProcessor,
		NewProgress,
		NewOrchestrator,
		func(pools *database.Pools, log *slog.Logger) *syshealth.Sampler {
			return syshealth.NewSampler(pools.Store.Stats, log)
		},
	),
)
