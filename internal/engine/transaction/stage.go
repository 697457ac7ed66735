package transaction

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// staged is the outcome of staging one package.
type staged struct {
	digest digest.Digest
	files  []domain.InstalledFile
}

// Stage performs every write of tx below its staging directory. Packages are
// staged concurrently; the override file is merged afterwards in package
// order. No live file is touched. On error the caller must roll back.
func (e *Engine) Stage(ctx context.Context, tx *domain.Transaction) error {
	if tx.State != domain.TxPlanned {
		return tx.Transition(domain.TxStaged)
	}

	ctx, span := e.tracer.Start(ctx, "stage", ports.WithAttribute("transaction", tx.ID.String()))
	defer span.End()

	tx.StagingDir = filepath.Join(domain.StagingRoot(tx.Root), tx.ID.String())
	if err := os.MkdirAll(tx.StagingDir, domain.DirPerm); err != nil {
		err = fsError(err, "failed to create staging directory", tx.StagingDir)
		span.RecordError(err)
		return err
	}

	changed := tx.Diff.Changed()
	results := make([]staged, len(changed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultWorkers(tx.Workers))
	for i, c := range changed {
		g.Go(func() error {
			res, err := e.stagePackage(gctx, tx, c.ID)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Join(domain.ErrTransactionCancelled, err)
	}

	overrideOp, err := e.stageOverride(tx, changed, results)
	if err != nil {
		span.RecordError(err)
		return err
	}

	for i, c := range changed {
		tx.Next.Put(domain.LockEntry{
			ID:      c.ID,
			Version: tx.Proposed[c.ID],
			Digest:  results[i].digest,
			Files:   results[i].files,
		})
	}
	tx.Next.Normalize()

	tx.Ops = e.fileOps(tx, changed, results, overrideOp)
	span.SetAttribute("operations", len(tx.Ops))
	return tx.Transition(domain.TxStaged)
}

// stagePackage downloads, verifies and unpacks one package and renders its
// values file.
func (e *Engine) stagePackage(ctx context.Context, tx *domain.Transaction, id domain.PackageID) (staged, error) {
	v := tx.Proposed[id]
	m := tx.Manifests[id]

	rc, d, err := e.registry.Content(ctx, id, v)
	if err != nil {
		return staged{}, err
	}
	defer rc.Close() //nolint:errcheck // Best effort close in defer

	if m.Digest != "" && m.Digest != d {
		return staged{}, digestMismatch(id, v, m.Digest)
	}

	rel := domain.PackageDir(id)
	dest := filepath.Join(tx.StagingDir, filepath.FromSlash(rel))
	verifier := d.Verifier()
	stream := io.TeeReader(rc, verifier)

	names, err := e.archiver.Extract(stream, dest)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return staged{}, ctxErr
		}
		return staged{}, zerr.With(zerr.With(errors.Join(domain.ErrFilesystem, err), "package", id.String()), "version", v.String())
	}
	if _, err := io.Copy(io.Discard, stream); err != nil {
		return staged{}, zerr.With(errors.Join(domain.ErrFilesystem, err), "package", id.String())
	}
	if !verifier.Verified() {
		return staged{}, digestMismatch(id, v, d)
	}

	if values := tx.Values[id]; len(values) > 0 {
		envPath := filepath.Join(dest, domain.EnvFileName)
		if err := os.WriteFile(envPath, renderEnv(values), domain.FilePerm); err != nil {
			return staged{}, fsError(err, "failed to write values file", envPath)
		}
		names = append(names, domain.EnvFileName)
		slices.Sort(names)
		names = slices.Compact(names)
	}

	files := make([]domain.InstalledFile, 0, len(names))
	for _, name := range names {
		hash, err := e.hasher.HashFile(filepath.Join(dest, filepath.FromSlash(name)))
		if err != nil {
			return staged{}, zerr.With(errors.Join(domain.ErrFilesystem, err), "package", id.String())
		}
		files = append(files, domain.InstalledFile{Path: path.Join(rel, name), Hash: hash})
	}
	return staged{digest: d, files: files}, nil
}

// renderEnv writes one KEY=value line per value in key order.
func renderEnv(values map[string]string) []byte {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(values[k])
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// stageOverride computes the new override file from the live one: regions of
// removed packages are dropped, regions of changed packages are replaced.
// It returns the operation to commit, or nil when the file is unchanged.
func (e *Engine) stageOverride(tx *domain.Transaction, changed []domain.Change, results []staged) (*domain.FileOp, error) {
	live := filepath.Join(tx.Root, filepath.FromSlash(tx.OverrideFile))
	//nolint:gosec // Path is the configured override file below the project root
	current, err := os.ReadFile(live)
	if err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return nil, fsError(err, "failed to read override file", live)
	}

	next := current
	for _, c := range tx.Diff.Remove {
		if !ownsRegion(tx.Previous, c.ID) {
			continue
		}
		if next, err = e.merger.Remove(next, c.ID); err != nil {
			return nil, zerr.With(err, "package", c.ID.String())
		}
	}

	for i, c := range changed {
		m := tx.Manifests[c.ID]
		fragment, err := e.readFragment(tx, m)
		if err != nil {
			return nil, err
		}
		if fragment == nil {
			if ownsRegion(tx.Previous, c.ID) {
				if next, err = e.merger.Remove(next, c.ID); err != nil {
					return nil, zerr.With(err, "package", c.ID.String())
				}
			}
			continue
		}

		var hash string
		next, hash, err = e.merger.Merge(next, c.ID, fragment)
		if err != nil {
			return nil, zerr.With(err, "package", c.ID.String())
		}
		results[i].files = append(results[i].files, domain.InstalledFile{Path: tx.OverrideFile, Hash: hash, Region: true})
	}

	if bytes.Equal(current, next) {
		return nil, nil
	}
	if len(next) == 0 {
		return &domain.FileOp{Kind: domain.OpDelete, Path: tx.OverrideFile}, nil
	}

	stagedPath := filepath.Join(tx.StagingDir, filepath.FromSlash(tx.OverrideFile))
	if err := os.MkdirAll(filepath.Dir(stagedPath), domain.DirPerm); err != nil {
		return nil, fsError(err, "failed to create staging directory", stagedPath)
	}
	if err := os.WriteFile(stagedPath, next, domain.FilePerm); err != nil {
		return nil, fsError(err, "failed to stage override file", stagedPath)
	}
	return &domain.FileOp{Kind: domain.OpMerge, Path: tx.OverrideFile, Staged: stagedPath}, nil
}

// readFragment returns the package's Compose fragment from its staged
// content, or nil when the package ships none under the default name.
func (e *Engine) readFragment(tx *domain.Transaction, m *domain.Manifest) ([]byte, error) {
	name := m.ComposeFile()
	if !filepath.IsLocal(filepath.FromSlash(name)) {
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrMalformedManifest, "compose file escapes the package"), "package", m.ID.String()), "field", "compose")
	}
	p := filepath.Join(tx.StagingDir, filepath.FromSlash(domain.PackageDir(m.ID)), filepath.FromSlash(name))
	//nolint:gosec // Path is checked to stay inside the staged package
	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, iofs.ErrNotExist) && m.Compose.File == "":
		return nil, nil
	case errors.Is(err, iofs.ErrNotExist):
		return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrMalformedManifest, "compose file missing from content"), "package", m.ID.String()), "field", "compose")
	default:
		return nil, fsError(err, "failed to read compose fragment", p)
	}
}

// fileOps lists the commit steps: staged writes and the override merge in
// path order, then deletions of files no longer owned by anyone.
func (e *Engine) fileOps(tx *domain.Transaction, changed []domain.Change, results []staged, override *domain.FileOp) []domain.FileOp {
	var writes, deletes []domain.FileOp

	kept := make(map[string]struct{})
	for i, c := range changed {
		for _, f := range results[i].files {
			if f.Region {
				continue
			}
			kept[f.Path] = struct{}{}
			writes = append(writes, domain.FileOp{
				Kind:    domain.OpWrite,
				Path:    f.Path,
				Staged:  filepath.Join(tx.StagingDir, filepath.FromSlash(f.Path)),
				Package: c.ID,
			})
		}
	}

	obsolete := make([]domain.PackageID, 0, len(changed)+len(tx.Diff.Remove))
	for _, c := range tx.Diff.Upgrade {
		obsolete = append(obsolete, c.ID)
	}
	for _, c := range tx.Diff.Remove {
		obsolete = append(obsolete, c.ID)
	}
	for _, id := range obsolete {
		entry, ok := tx.Previous.Entry(id)
		if !ok {
			continue
		}
		for _, f := range entry.Files {
			if _, still := kept[f.Path]; f.Region || still {
				continue
			}
			deletes = append(deletes, domain.FileOp{Kind: domain.OpDelete, Path: f.Path, Package: id})
		}
	}

	if override != nil {
		if override.Kind == domain.OpDelete {
			deletes = append(deletes, *override)
		} else {
			writes = append(writes, *override)
		}
	}

	byPath := func(a, b domain.FileOp) int { return cmp.Compare(a.Path, b.Path) }
	slices.SortFunc(writes, byPath)
	slices.SortFunc(deletes, byPath)
	return append(writes, deletes...)
}

func ownsRegion(lock *domain.Lockfile, id domain.PackageID) bool {
	entry, ok := lock.Entry(id)
	if !ok {
		return false
	}
	return slices.ContainsFunc(entry.Files, func(f domain.InstalledFile) bool { return f.Region })
}

func digestMismatch(id domain.PackageID, v domain.Version, want digest.Digest) error {
	var err error = zerr.With(zerr.Wrap(domain.ErrDigestMismatch, "package content does not match its digest"), "package", id.String())
	err = zerr.With(err, "version", v.String())
	return zerr.With(err, "digest", want.String())
}

func fsError(cause error, msg, p string) error {
	return zerr.With(errors.Join(domain.ErrFilesystem, zerr.Wrap(cause, msg)), "path", p)
}
