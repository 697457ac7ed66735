// Package app implements the application layer for compak.
package app

import (
	"context"
	"maps"
	"os"
	"slices"

	"go.trai.ch/compak/internal/adapters/config"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/compak/internal/engine/graph"
	"go.trai.ch/compak/internal/engine/resolver"
	"go.trai.ch/compak/internal/engine/transaction"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	registries   ports.RegistryFactory
	store        ports.LockfileStore
	verifier     ports.Verifier
	merger       ports.ComposeMerger
	archiver     ports.Archiver
	engines      *transaction.Factory
	tracer       ports.Tracer
	telemetry    ports.Telemetry
	logger       ports.Logger
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	registries ports.RegistryFactory,
	store ports.LockfileStore,
	verifier ports.Verifier,
	merger ports.ComposeMerger,
	archiver ports.Archiver,
	engines *transaction.Factory,
	tracer ports.Tracer,
	telemetry ports.Telemetry,
	log ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		registries:   registries,
		store:        store,
		verifier:     verifier,
		merger:       merger,
		archiver:     archiver,
		engines:      engines,
		tracer:       tracer,
		telemetry:    telemetry,
		logger:       log,
	}
}

// Options are the settings shared by every command.
type Options struct {
	// Project is the directory the project root is searched from. Empty
	// means the working directory.
	Project string
	// Registry overrides the configured registry.
	Registry string
}

// Report describes what a mutating command changed.
type Report struct {
	Diff domain.LockDiff
	// Unchanged is set when the project already matched the resolution and
	// nothing was written.
	Unchanged bool
}

// project loads the configuration of the project enclosing opts.Project and
// opens its registry.
func (a *App) project(opts Options) (domain.ProjectConfig, ports.RegistryClient, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return domain.ProjectConfig{}, nil, zerr.Wrap(err, "failed to get working directory")
	}
	root, err := a.root(opts)
	if err != nil {
		return domain.ProjectConfig{}, nil, err
	}
	cfg, err := a.configLoader.Load(root)
	if err != nil {
		return domain.ProjectConfig{}, nil, zerr.Wrap(err, "failed to load configuration")
	}
	if opts.Registry != "" {
		cfg.Registry = config.ResolveRegistry(cwd, opts.Registry)
	}

	reg, err := a.registries.Open(cfg)
	if err != nil {
		return domain.ProjectConfig{}, nil, err
	}
	return cfg, reg, nil
}

// change computes the requests to resolve from the current lockfile, and the
// versions the resolver should keep when they still fit.
type change func(lock *domain.Lockfile) (requests []domain.Request, preferred domain.ResolvedSet, err error)

// mutate runs one transaction against the project: under the project lock it
// loads the lockfile, resolves the requests returned by fn and applies the
// result.
func (a *App) mutate(ctx context.Context, opts Options, name string, fn change) (*Report, error) {
	cfg, reg, err := a.project(opts)
	if err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, name, ports.WithAttribute("project", cfg.Root))
	defer span.End()

	engine := a.engines.New(reg)
	report := &Report{}
	err = engine.Locked(ctx, cfg.Root, func(ctx context.Context) error {
		lock, err := a.store.Load(cfg.Root)
		if err != nil {
			return err
		}

		requests, preferred, err := fn(lock)
		if err != nil {
			return err
		}

		g, set, err := a.resolve(ctx, cfg, reg, requests, preferred)
		if err != nil {
			return err
		}

		tx, err := engine.Plan(ctx, cfg, lock, transaction.Proposal{Requested: requests, Versions: set, Graph: g})
		if err != nil {
			return err
		}
		report.Diff = tx.Diff

		ctx, vertex := a.telemetry.Record(ctx, "apply")
		if tx.Diff.Empty() && slices.EqualFunc(lock.Requested, tx.Next.Requested, sameRequest) {
			report.Unchanged = true
			vertex.Cached()
			return engine.Rollback(tx)
		}
		err = engine.Apply(ctx, tx)
		vertex.Complete(err)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return report, nil
}

// resolve builds the dependency graph of requests and picks versions.
func (a *App) resolve(
	ctx context.Context,
	cfg domain.ProjectConfig,
	reg ports.Registry,
	requests []domain.Request,
	preferred domain.ResolvedSet,
) (*domain.DependencyGraph, domain.ResolvedSet, error) {
	if len(requests) == 0 {
		return domain.NewDependencyGraph(), domain.ResolvedSet{}, nil
	}

	ctx, span := a.tracer.Start(ctx, "resolve", ports.WithAttribute("requests", len(requests)))
	defer span.End()
	_, vertex := a.telemetry.Record(ctx, "resolve")

	deps := make([]domain.Dependency, len(requests))
	for i, r := range requests {
		deps[i] = r.Dependency()
	}

	g, err := graph.NewBuilder(reg, cfg.Workers).Build(ctx, deps)
	if err != nil {
		span.RecordError(err)
		vertex.Complete(err)
		return nil, nil, err
	}
	set, err := resolver.New(resolver.WithPreferred(preferred)).Resolve(g)
	if err != nil {
		span.RecordError(err)
		vertex.Complete(err)
		return nil, nil, err
	}

	span.SetAttribute("packages", len(set))
	vertex.Complete(nil)
	return g, set, nil
}

func sameRequest(a, b domain.Request) bool {
	return a.ID == b.ID && a.Constraint.String() == b.Constraint.String() && maps.Equal(a.Values, b.Values)
}
