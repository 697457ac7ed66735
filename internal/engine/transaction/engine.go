// Package transaction applies a resolved set to a project: it stages every
// write in a scratch area, swaps the staged files into place and persists the
// lockfile last, or discards the staging area and leaves the project as it was.
package transaction

import (
	"cmp"
	"context"
	"errors"
	iofs "io/fs"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
)

// Proposal is the state a transaction moves the project to.
type Proposal struct {
	// Requested replaces the lockfile's recorded requests.
	Requested []domain.Request
	// Versions is the resolved set to install.
	Versions domain.ResolvedSet
	// Graph holds the manifests of Versions.
	Graph *domain.DependencyGraph
}

// Engine drives the transaction state machine.
type Engine struct {
	registry ports.Registry
	store    ports.LockfileStore
	locker   ports.ProjectLocker
	archiver ports.Archiver
	merger   ports.ComposeMerger
	hasher   ports.Hasher
	tracer   ports.Tracer
	logger   ports.Logger

	// beforeSwap runs ahead of every commit step.
	beforeSwap func(domain.FileOp) error
}

// NewEngine creates a new Engine.
func NewEngine(
	registry ports.Registry,
	store ports.LockfileStore,
	locker ports.ProjectLocker,
	archiver ports.Archiver,
	merger ports.ComposeMerger,
	hasher ports.Hasher,
	tracer ports.Tracer,
	logger ports.Logger,
) *Engine {
	return &Engine{
		registry: registry,
		store:    store,
		locker:   locker,
		archiver: archiver,
		merger:   merger,
		hasher:   hasher,
		tracer:   tracer,
		logger:   logger,
	}
}

// Locked runs fn while holding the single-writer lock of root. Reading the
// lockfile, resolving and applying belong inside one Locked call. Staging
// directories found once the lock is held belong to interrupted transactions
// and are removed first.
func (e *Engine) Locked(ctx context.Context, root string, fn func(context.Context) error) error {
	release, err := e.locker.Acquire(ctx, root, "compak "+uuid.NewString())
	if err != nil {
		return err
	}
	e.sweepStaging(root)
	err = fn(ctx)
	if relErr := release(); relErr != nil {
		return errors.Join(err, relErr)
	}
	return err
}

func (e *Engine) sweepStaging(root string) {
	dir := domain.StagingRoot(root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, iofs.ErrNotExist) {
			e.logger.Warn("failed to read staging directory " + dir + ": " + err.Error())
		}
		return
	}
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(p); err != nil {
			e.logger.Warn("failed to remove stale staging directory " + p + ": " + err.Error())
			continue
		}
		e.logger.Warn("removed stale staging directory " + p)
	}
}

// Plan diffs the proposal against current and returns a planned transaction.
// Effective parameter values are computed and checked here so that invalid
// values fail before anything is written. A package whose version and digest
// are unchanged but whose requested values differ is planned as an upgrade.
func (e *Engine) Plan(
	ctx context.Context,
	cfg domain.ProjectConfig,
	current *domain.Lockfile,
	p Proposal,
) (*domain.Transaction, error) {
	_, span := e.tracer.Start(ctx, "plan")
	defer span.End()

	digests := make(map[domain.PackageID]digest.Digest, len(p.Versions))
	manifests := make(map[domain.PackageID]*domain.Manifest, len(p.Versions))
	for _, id := range p.Versions.IDs() {
		v := p.Versions[id]
		m, ok := p.Graph.Manifest(id, v)
		if !ok {
			err := zerr.With(zerr.Wrap(domain.ErrPackageNotFound, "no manifest for resolved version"), "package", id.String())
			span.RecordError(err)
			return nil, zerr.With(err, "version", v.String())
		}
		manifests[id] = m
		if m.Digest != "" {
			digests[id] = m.Digest
		}
	}

	next := current.Clone()
	next.Requested = nil
	for _, r := range p.Requested {
		r.Values = maps.Clone(r.Values)
		next.SetRequest(r)
	}

	diff := domain.Diff(current, p.Versions, digests)
	diff = reconfigured(diff, current, next)

	tx := domain.NewTransaction(current.Clone(), p.Versions, diff)
	tx.Next = next
	tx.Root = cfg.Root
	tx.OverrideFile = cfg.OverrideFile
	tx.Workers = cfg.Workers
	tx.Manifests = make(map[domain.PackageID]*domain.Manifest)
	tx.Values = make(map[domain.PackageID]map[string]string)

	for _, c := range diff.Changed() {
		m := manifests[c.ID]
		values, err := m.ResolveValues(next.Values(c.ID))
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		tx.Manifests[c.ID] = m
		tx.Values[c.ID] = values
	}
	for _, c := range diff.Remove {
		tx.Next.Remove(c.ID)
	}

	span.SetAttribute("install", len(diff.Install))
	span.SetAttribute("upgrade", len(diff.Upgrade))
	span.SetAttribute("remove", len(diff.Remove))
	return tx, nil
}

// reconfigured moves unchanged packages whose requested values changed to
// the upgrade bucket.
func reconfigured(d domain.LockDiff, current, next *domain.Lockfile) domain.LockDiff {
	var keep []domain.Change
	for _, c := range d.Unchanged {
		if maps.Equal(current.Values(c.ID), next.Values(c.ID)) {
			keep = append(keep, c)
			continue
		}
		d.Upgrade = append(d.Upgrade, c)
	}
	d.Unchanged = keep
	slices.SortFunc(d.Upgrade, func(a, b domain.Change) int { return cmp.Compare(a.ID, b.ID) })
	return d
}

// Apply stages and commits tx. A staging failure or a cancellation before
// the commit rolls the transaction back.
func (e *Engine) Apply(ctx context.Context, tx *domain.Transaction) error {
	e.tracer.EmitPlan(ctx, changedIDs(tx.Diff))

	if err := e.Stage(ctx, tx); err != nil {
		e.rollbackAfter(tx)
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, domain.ErrTransactionCancelled) {
			return errors.Join(domain.ErrTransactionCancelled, err)
		}
		return err
	}

	if err := e.Commit(ctx, tx); err != nil {
		if errors.Is(err, domain.ErrTransactionCancelled) {
			e.rollbackAfter(tx)
		}
		return err
	}
	return nil
}

func (e *Engine) rollbackAfter(tx *domain.Transaction) {
	if err := e.Rollback(tx); err != nil {
		e.logger.Error(err)
	}
}

func changedIDs(d domain.LockDiff) []string {
	var out []string
	for _, c := range d.Changed() {
		out = append(out, c.ID.String())
	}
	for _, c := range d.Remove {
		out = append(out, c.ID.String())
	}
	slices.Sort(out)
	return out
}

// defaultWorkers bounds staging when the project does not configure it.
func defaultWorkers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}
