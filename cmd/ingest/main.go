// Package main is the document ingestion pipeline entry point. One
// invocation discovers projects, processes their PDF documents into embedded
// chunks, and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/emergent-company/docpipe/domain/chunks"
	"github.com/emergent-company/docpipe/domain/documents"
	"github.com/emergent-company/docpipe/domain/ingest"
	"github.com/emergent-company/docpipe/domain/proclog"
	"github.com/emergent-company/docpipe/domain/projects"
	"github.com/emergent-company/docpipe/internal/config"
	"github.com/emergent-company/docpipe/internal/database"
	"github.com/emergent-company/docpipe/internal/metadata"
	"github.com/emergent-company/docpipe/internal/migrate"
	"github.com/emergent-company/docpipe/internal/storage"
	"github.com/emergent-company/docpipe/internal/version"
	"github.com/emergent-company/docpipe/pkg/embeddings"
	"github.com/emergent-company/docpipe/pkg/logger"
	"github.com/emergent-company/docpipe/pkg/ocr"
)

// Exit codes: 0 completed (per-document failures included), 2 invalid
// arguments, 3 unrecoverable startup error.
const (
	exitOK          = 0
	exitInvalidArgs = 2
	exitStartup     = 3
)

type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type cliArgs struct {
	opts        ingest.Options
	skipIndexes bool
}

func parseArgs(args []string) (cliArgs, error) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)

	var projectIDs stringList
	fs.Var(&projectIDs, "project_id", "restrict to this project (repeatable); absent = all projects")
	retryFailed := fs.Bool("retry-failed", false, "admit only documents whose last log is a failure")
	retrySkipped := fs.Bool("retry-skipped", false, "admit only documents whose last log is skipped")
	shallow := fs.Int("shallow", 0, "process at most N documents per project")
	timed := fs.Int("timed", 0, "wall-clock budget in minutes")
	skipIndexes := fs.Bool("skip-hnsw-indexes", false, "do not build ANN indexes on vector columns")

	if err := fs.Parse(args); err != nil {
		return cliArgs{}, err
	}
	if *retryFailed && *retrySkipped {
		return cliArgs{}, fmt.Errorf("--retry-failed and --retry-skipped are mutually exclusive")
	}
	if *shallow < 0 {
		return cliArgs{}, fmt.Errorf("--shallow must be non-negative")
	}
	if *timed < 0 {
		return cliArgs{}, fmt.Errorf("--timed must be non-negative")
	}

	// --timed 0 means an already-spent budget, not an unlimited one.
	budget := time.Duration(*timed) * time.Minute
	if budget == 0 {
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "timed" {
				budget = -time.Nanosecond
			}
		})
	}

	mode := ingest.RetryNone
	if *retryFailed {
		mode = ingest.RetryFailed
	}
	if *retrySkipped {
		mode = ingest.RetrySkipped
	}

	return cliArgs{
		opts: ingest.Options{
			ProjectIDs: projectIDs,
			RetryMode:  mode,
			ShallowCap: *shallow,
			Budget:     budget,
		},
		skipIndexes: *skipIndexes,
	}, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	_ = godotenv.Load()

	args, err := parseArgs(argv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitInvalidArgs
	}

	var (
		orchestrator *ingest.Orchestrator
		migrator     *migrate.Migrator
		log          *slog.Logger
	)

	app := fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		storage.Module,
		metadata.Module,
		migrate.Module,

		// Model clients
		embeddings.Module,
		ocr.Module,

		// Domain modules
		projects.Module,
		documents.Module,
		chunks.Module,
		proclog.Module,
		ingest.Module,

		fx.Populate(&orchestrator, &migrator, &log),
	)
	if err := app.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: startup failed:", err)
		return exitStartup
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error: startup failed:", err)
		return exitStartup
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	build := version.Info()
	log.Info("docpipe starting",
		slog.String("version", build.Version),
		slog.String("commit", build.GitCommit),
	)

	if err := migrator.Up(ctx); err != nil {
		log.Error("schema initialization failed", logger.Error(err))
		return exitStartup
	}
	if !args.skipIndexes {
		if err := migrator.EnsureVectorIndexes(ctx); err != nil {
			log.Error("vector index creation failed", logger.Error(err))
			return exitStartup
		}
	}

	summary, err := orchestrator.Run(ctx, args.opts)
	if err != nil {
		log.Error("run aborted", logger.Error(err))
		return exitStartup
	}

	log.Info("ingestion finished",
		slog.Int64("processed", summary.Processed),
		slog.Int64("succeeded", summary.Succeeded),
		slog.Int64("failed", summary.Failed),
		slog.Int64("skipped", summary.Skipped),
		slog.Duration("elapsed", summary.Elapsed.Round(time.Second)),
	)
	return exitOK
}
