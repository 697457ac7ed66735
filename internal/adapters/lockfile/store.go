// Package lockfile persists the project lockfile as YAML.
package lockfile

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/opencontainers/go-digest"
	compakfs "go.trai.ch/compak/internal/adapters/fs"
	"go.trai.ch/compak/internal/core/domain"
	"go.trai.ch/compak/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.LockfileStore = (*Store)(nil)

// Store implements ports.LockfileStore using compak.lock at the project root.
type Store struct {
	mu sync.RWMutex
}

// NewStore creates a new lockfile store.
func NewStore() *Store {
	return &Store{}
}

// Path returns the lockfile path of a project.
func Path(root string) string {
	return filepath.Join(root, domain.LockFileName)
}

// Load reads the lockfile of the project at root.
func (s *Store) Load(root string) (*domain.Lockfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := Path(root)
	//nolint:gosec // Path is derived from the project root
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewLockfile(), nil
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read lockfile"), "path", path)
	}

	lock, err := Unmarshal(data)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return lock, nil
}

// Save writes the lockfile of the project at root with a temp file and rename.
func (s *Store) Save(root string, lock *domain.Lockfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := Marshal(lock)
	if err != nil {
		return err
	}
	if err := compakfs.WriteFileAtomic(Path(root), data, domain.FilePerm); err != nil {
		return zerr.Wrap(err, "failed to write lockfile")
	}
	return nil
}

type document struct {
	Version   int       `yaml:"version"`
	Requested []request `yaml:"requested,omitempty"`
	Packages  []entry   `yaml:"packages,omitempty"`
}

type request struct {
	Name       string            `yaml:"name"`
	Constraint string            `yaml:"constraint"`
	Values     map[string]string `yaml:"values,omitempty"`
}

type entry struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Digest  string `yaml:"digest"`
	Files   []file `yaml:"files,omitempty"`
}

type file struct {
	Path   string `yaml:"path"`
	Hash   string `yaml:"hash"`
	Region bool   `yaml:"region,omitempty"`
}

// Marshal renders the lockfile in its canonical form: requests and entries
// sorted by name, files sorted by path, two space indentation.
func Marshal(lock *domain.Lockfile) ([]byte, error) {
	l := lock.Clone()
	l.Normalize()

	doc := document{Version: l.Version}
	for _, r := range l.Requested {
		doc.Requested = append(doc.Requested, request{
			Name:       r.ID.String(),
			Constraint: r.Constraint.String(),
			Values:     r.Values,
		})
	}
	for _, e := range l.Entries {
		out := entry{Name: e.ID.String(), Version: e.Version.String(), Digest: e.Digest.String()}
		for _, f := range e.Files {
			out.Files = append(out.Files, file(f))
		}
		doc.Packages = append(doc.Packages, out)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, zerr.Wrap(err, "failed to marshal lockfile")
	}
	if err := enc.Close(); err != nil {
		return nil, zerr.Wrap(err, "failed to marshal lockfile")
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a lockfile and checks its invariants. Every failure is
// domain.ErrCorruptLockfile.
func Unmarshal(data []byte) (*domain.Lockfile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.NewLockfile(), nil
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Join(domain.ErrCorruptLockfile, zerr.Wrap(err, "failed to parse lockfile"))
	}

	lock := &domain.Lockfile{Version: doc.Version}
	for _, r := range doc.Requested {
		c, err := domain.ParseConstraint(r.Constraint)
		if err != nil {
			return nil, corrupt("invalid constraint", r.Name, err)
		}
		lock.Requested = append(lock.Requested, domain.Request{
			ID:         domain.PackageID(r.Name),
			Constraint: c,
			Values:     r.Values,
		})
	}
	for _, e := range doc.Packages {
		v, err := domain.ParseVersion(e.Version)
		if err != nil {
			return nil, corrupt("invalid version", e.Name, err)
		}
		d, err := digest.Parse(e.Digest)
		if err != nil {
			return nil, corrupt("invalid digest", e.Name, err)
		}
		out := domain.LockEntry{ID: domain.PackageID(e.Name), Version: v, Digest: d}
		for _, f := range e.Files {
			out.Files = append(out.Files, domain.InstalledFile(f))
		}
		lock.Entries = append(lock.Entries, out)
	}

	if err := lock.Validate(); err != nil {
		return nil, err
	}
	lock.Normalize()
	return lock, nil
}

func corrupt(reason, name string, cause error) error {
	return errors.Join(
		zerr.With(zerr.Wrap(domain.ErrCorruptLockfile, reason), "package", name),
		cause,
	)
}
