package app

import (
	"context"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// List returns the installed packages in lockfile order.
func (a *App) List(_ context.Context, opts Options) ([]domain.LockEntry, error) {
	root, err := a.root(opts)
	if err != nil {
		return nil, err
	}
	lock, err := a.store.Load(root)
	if err != nil {
		return nil, err
	}
	return lock.Entries, nil
}

// PackageStatus compares one installed package with its registry.
type PackageStatus struct {
	ID        domain.PackageID
	Installed domain.Version
	// Latest is the newest release in the registry, nil when it could not
	// be determined.
	Latest    *domain.Version
	Requested bool
}

// Outdated reports whether the registry has a newer release.
func (s PackageStatus) Outdated() bool {
	return s.Latest != nil && s.Installed.Less(*s.Latest)
}

// Status is the state of a project against its lockfile and registry.
type Status struct {
	Packages []PackageStatus
	Drift    []domain.Drift
}

// Status checks every installed file against the lockfile and looks up the
// latest release of each package. Registry failures are reported as
// warnings and leave Latest unset.
func (a *App) Status(ctx context.Context, opts Options) (*Status, error) {
	cfg, reg, err := a.project(opts)
	if err != nil {
		return nil, err
	}
	lock, err := a.store.Load(cfg.Root)
	if err != nil {
		return nil, err
	}

	ctx, span := a.tracer.Start(ctx, "status")
	defer span.End()

	drift, err := a.verifier.Drift(cfg.Root, lock)
	if err != nil {
		return nil, err
	}
	regions, err := a.regionDrift(cfg.Root, lock)
	if err != nil {
		return nil, err
	}
	drift = append(drift, regions...)

	out := &Status{Drift: drift, Packages: make([]PackageStatus, len(lock.Entries))}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, e := range lock.Entries {
		_, requested := lock.Request(e.ID)
		out.Packages[i] = PackageStatus{ID: e.ID, Installed: e.Version, Requested: requested}
		g.Go(func() error {
			versions, err := reg.Versions(gctx, e.ID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				a.logger.Warn("could not check " + e.ID.String() + ": " + err.Error())
				return nil
			}
			if latest, ok := latestRelease(versions, e.Version.IsPrerelease()); ok {
				out.Packages[i].Latest = &latest
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// regionDrift checks the managed Compose regions recorded in lock. A region
// that is gone is missing; one whose keys were edited, or whose file no
// longer parses, is modified.
func (a *App) regionDrift(root string, lock *domain.Lockfile) ([]domain.Drift, error) {
	files := make(map[string][]byte)
	var out []domain.Drift
	for _, e := range lock.Entries {
		for _, f := range e.Files {
			if !f.Region {
				continue
			}
			content, ok := files[f.Path]
			if !ok {
				raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path)))
				if err != nil && !errors.Is(err, iofs.ErrNotExist) {
					return nil, zerr.With(errors.Join(domain.ErrFilesystem, err), "path", f.Path)
				}
				content = raw
				files[f.Path] = content
			}

			hash, found, err := a.merger.RegionHash(content, e.ID)
			switch {
			case err != nil:
				out = append(out, domain.Drift{Package: e.ID, Path: f.Path, Reason: domain.DriftModified})
			case !found:
				out = append(out, domain.Drift{Package: e.ID, Path: f.Path, Reason: domain.DriftMissing})
			case hash != f.Hash:
				out = append(out, domain.Drift{Package: e.ID, Path: f.Path, Reason: domain.DriftModified})
			}
		}
	}
	return out, nil
}

// latestRelease returns the highest version, skipping pre-releases unless
// allowed or nothing else exists.
func latestRelease(versions []domain.Version, prerelease bool) (domain.Version, bool) {
	if len(versions) == 0 {
		return domain.Version{}, false
	}
	sorted := slices.Clone(versions)
	domain.SortVersionsDesc(sorted)
	for _, v := range sorted {
		if prerelease || !v.IsPrerelease() {
			return v, true
		}
	}
	return sorted[0], true
}

// Search queries the registry.
func (a *App) Search(ctx context.Context, opts Options, query string, limit int) ([]domain.SearchResult, error) {
	_, reg, err := a.project(opts)
	if err != nil {
		return nil, err
	}
	ctx, span := a.tracer.Start(ctx, "search")
	defer span.End()
	return reg.Search(ctx, query, limit)
}

// root finds the project root without opening the registry.
func (a *App) root(opts Options) (string, error) {
	start := opts.Project
	if start == "" {
		start = "."
	}
	return a.configLoader.FindRoot(start)
}
