package fs

import (
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Verifier = (*Verifier)(nil)

// Verifier compares installed files against the hashes recorded in the lockfile.
type Verifier struct {
	hasher ports.Hasher
}

// NewVerifier creates a new Verifier.
func NewVerifier(hasher ports.Hasher) *Verifier {
	return &Verifier{hasher: hasher}
}

// Drift lists the files of lock that are missing below root or whose content
// changed. Region files are shared between packages and are skipped here;
// their managed regions are compared by region hash instead.
func (v *Verifier) Drift(root string, lock *domain.Lockfile) ([]domain.Drift, error) {
	var out []domain.Drift
	for _, e := range lock.Entries {
		for _, f := range e.Files {
			if f.Region {
				continue
			}
			path := filepath.Join(root, filepath.FromSlash(f.Path))
			hash, err := v.hasher.HashFile(path)
			if err != nil {
				if errors.Is(err, iofs.ErrNotExist) {
					out = append(out, domain.Drift{Package: e.ID, Path: f.Path, Reason: domain.DriftMissing})
					continue
				}
				return nil, zerr.With(err, "package", e.ID.String())
			}
			if hash != f.Hash {
				out = append(out, domain.Drift{Package: e.ID, Path: f.Path, Reason: domain.DriftModified})
			}
		}
	}
	return out, nil
}

// Exists reports whether path exists.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	return false, zerr.With(zerr.Wrap(err, "failed to stat path"), "path", path)
}
