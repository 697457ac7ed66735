package app

import (
	"context"
	"maps"

	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/zerr"
)

// Install adds requests for the given packages and applies the resolution.
// Values from --set apply to every package named. Installed packages keep
// their version when it still satisfies the new constraints.
func (a *App) Install(ctx context.Context, opts Options, specs []string, values map[string]string) (*Report, error) {
	deps, err := parseSpecs(specs)
	if err != nil {
		return nil, err
	}
	return a.mutate(ctx, opts, "install", func(lock *domain.Lockfile) ([]domain.Request, domain.ResolvedSet, error) {
		next := lock.Clone()
		for _, dep := range deps {
			merged := maps.Clone(next.Values(dep.ID))
			if merged == nil && len(values) > 0 {
				merged = make(map[string]string, len(values))
			}
			maps.Copy(merged, values)
			next.SetRequest(domain.Request{ID: dep.ID, Constraint: dep.Constraint, Values: merged})
		}
		return next.Requested, lock.Versions(), nil
	})
}

// Upgrade replaces the constraints of requested packages and resolves
// without holding them at their locked versions. A package named without a
// constraint may move to any release.
func (a *App) Upgrade(ctx context.Context, opts Options, specs []string) (*Report, error) {
	deps, err := parseSpecs(specs)
	if err != nil {
		return nil, err
	}
	return a.mutate(ctx, opts, "upgrade", func(lock *domain.Lockfile) ([]domain.Request, domain.ResolvedSet, error) {
		next := lock.Clone()
		preferred := lock.Versions()
		for _, dep := range deps {
			r, ok := next.Request(dep.ID)
			if !ok {
				return nil, nil, notInstalled(dep.ID)
			}
			r.Constraint = dep.Constraint
			next.SetRequest(r)
			delete(preferred, dep.ID)
		}
		return next.Requested, preferred, nil
	})
}

// Uninstall drops the requests for ids. Packages only reachable through them
// are removed as well.
func (a *App) Uninstall(ctx context.Context, opts Options, ids []string) (*Report, error) {
	if len(ids) == 0 {
		return nil, domain.ErrNoPackagesSpecified
	}
	return a.mutate(ctx, opts, "uninstall", func(lock *domain.Lockfile) ([]domain.Request, domain.ResolvedSet, error) {
		next := lock.Clone()
		for _, raw := range ids {
			id := domain.PackageID(raw)
			if err := id.Validate(); err != nil {
				return nil, nil, err
			}
			if !next.RemoveRequest(id) {
				return nil, nil, notInstalled(id)
			}
		}
		return next.Requested, lock.Versions(), nil
	})
}

// Update re-resolves every recorded request from its original constraint,
// taking the newest versions that satisfy it.
func (a *App) Update(ctx context.Context, opts Options) (*Report, error) {
	return a.mutate(ctx, opts, "update", func(lock *domain.Lockfile) ([]domain.Request, domain.ResolvedSet, error) {
		return lock.Clone().Requested, nil, nil
	})
}

func parseSpecs(specs []string) ([]domain.Dependency, error) {
	if len(specs) == 0 {
		return nil, domain.ErrNoPackagesSpecified
	}
	deps := make([]domain.Dependency, 0, len(specs))
	for _, s := range specs {
		dep, err := domain.ParseDependency(s)
		if err != nil {
			return nil, err
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

func notInstalled(id domain.PackageID) error {
	return zerr.With(zerr.Wrap(domain.ErrPackageNotInstalled, "package was not requested"), "package", id.String())
}
