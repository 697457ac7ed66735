// Package graph builds the dependency graph of a request by querying a registry.
package graph

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"runtime"
	"slices"

	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Builder expands requests into their transitive dependency graph.
type Builder struct {
	registry ports.Registry
	workers  int
}

// NewBuilder creates a Builder fetching from registry with at most workers
// requests in flight. A non-positive workers means runtime.NumCPU.
func NewBuilder(registry ports.Registry, workers int) *Builder {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Builder{registry: registry, workers: workers}
}

type expansion struct {
	id      domain.PackageID
	version domain.Version
}

// Build runs a level-synchronous breadth-first traversal from requests. Each
// level first fetches the version lists of new packages, then the manifests
// of every candidate not yet expanded. Fetches of one level run concurrently
// and are merged in (package, version descending) order, so the graph does
// not depend on completion order.
func (b *Builder) Build(ctx context.Context, requests []domain.Dependency) (*domain.DependencyGraph, error) {
	if len(requests) == 0 {
		return nil, domain.ErrNoPackagesSpecified
	}

	g := domain.NewDependencyGraph()
	frontier := make(map[domain.PackageID]struct{})
	for _, r := range requests {
		if err := r.ID.Validate(); err != nil {
			return nil, err
		}
		g.AddEdge(domain.Edge{To: r.ID, Constraint: r.Constraint})
		frontier[r.ID] = struct{}{}
	}

	fetched := make(map[domain.PackageID]struct{})
	for len(frontier) > 0 {
		level := slices.Sorted(maps.Keys(frontier))
		clear(frontier)

		var fresh []domain.PackageID
		for _, id := range level {
			if _, ok := fetched[id]; !ok {
				fresh = append(fresh, id)
				fetched[id] = struct{}{}
			}
		}
		if err := b.fetchVersions(ctx, g, fresh); err != nil {
			return nil, err
		}

		var jobs []expansion
		for _, id := range level {
			n, _ := g.Node(id)
			if err := checkRequests(n); err != nil {
				return nil, err
			}
			for _, v := range n.Candidates() {
				if !n.HasManifest(v) {
					jobs = append(jobs, expansion{id: id, version: v})
				}
			}
		}

		manifests, err := b.fetchManifests(ctx, jobs)
		if err != nil {
			return nil, err
		}
		for _, m := range manifests {
			if err := g.AddManifest(m); err != nil {
				return nil, err
			}
			for _, dep := range m.Dependencies {
				edge := domain.Edge{From: m.ID, FromVersion: m.Version, To: dep.ID, Constraint: dep.Constraint}
				if g.AddEdge(edge) {
					frontier[dep.ID] = struct{}{}
				}
			}
		}
	}

	if err := g.DetectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *Builder) fetchVersions(ctx context.Context, g *domain.DependencyGraph, ids []domain.PackageID) error {
	results := make([][]domain.Version, len(ids))
	errs := make([]error, len(ids))
	var eg errgroup.Group
	eg.SetLimit(b.workers)
	for i, id := range ids {
		eg.Go(func() error {
			vs, err := b.registry.Versions(ctx, id)
			if err != nil {
				errs[i] = fetchError(err, id, "")
				return nil
			}
			results[i] = vs
			return nil
		})
	}
	_ = eg.Wait()
	if err := firstError(errs); err != nil {
		return err
	}

	for i, id := range ids {
		if err := g.SetVersions(id, results[i]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) fetchManifests(ctx context.Context, jobs []expansion) ([]*domain.Manifest, error) {
	slices.SortFunc(jobs, func(x, y expansion) int {
		return cmp.Or(cmp.Compare(x.id, y.id), y.version.Compare(x.version))
	})

	results := make([]*domain.Manifest, len(jobs))
	errs := make([]error, len(jobs))
	var eg errgroup.Group
	eg.SetLimit(b.workers)
	for i, job := range jobs {
		eg.Go(func() error {
			m, err := b.registry.Manifest(ctx, job.id, job.version)
			if err != nil {
				errs[i] = fetchError(err, job.id, job.version.String())
				return nil
			}
			results[i] = m
			return nil
		})
	}
	_ = eg.Wait()
	if err := firstError(errs); err != nil {
		return nil, err
	}
	return results, nil
}

// firstError returns the failure of the lowest index. Every fetch of a level
// runs to completion so the reported error does not depend on timing.
func firstError(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// checkRequests fails when a user request matches none of the published
// versions. Manifest edges without a match stay in the graph; the resolver
// reports them as conflicts if they end up active.
func checkRequests(n *domain.Node) error {
	for _, e := range n.Incoming {
		if !e.IsRequest() {
			continue
		}
		if !slices.ContainsFunc(n.Versions, e.Constraint.Matches) {
			var err error = zerr.Wrap(domain.ErrPackageNotFound, "no published version matches the request")
			err = zerr.With(err, "package", n.ID.String())
			return zerr.With(err, "constraint", e.Constraint.String())
		}
	}
	return nil
}

// fetchError keeps not-found and cancellation errors as they are and reports
// any other failure as a registry error with package metadata.
func fetchError(err error, id domain.PackageID, version string) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, domain.ErrPackageNotFound), errors.Is(err, domain.ErrRegistryError):
	default:
		err = errors.Join(domain.ErrRegistryError, err)
	}
	err = zerr.With(err, "package", id.String())
	if version != "" {
		err = zerr.With(err, "version", version)
	}
	return err
}
