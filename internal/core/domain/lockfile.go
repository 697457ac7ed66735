package domain

import (
	"cmp"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.trai.ch/zerr"
)

// LockfileFormat is the current lockfile format version.
const LockfileFormat = 1

// InstalledFile is a project file written by a package.
type InstalledFile struct {
	// Path is relative to the project root and slash separated.
	Path string
	// Hash is the xxhash of the file, or of the package's managed region when Region is set.
	Hash string
	// Region marks a shared override file where the package only owns its managed region.
	Region bool
}

// LockEntry records one installed package.
type LockEntry struct {
	ID      PackageID
	Version Version
	Digest  digest.Digest
	Files   []InstalledFile
}

// Lockfile is the single source of truth for what is installed in a project.
// Entries are kept sorted and unique by package ID.
type Lockfile struct {
	// Version is the lockfile format version.
	Version int

	// Requested holds the user's original requests, used to re-resolve on update.
	Requested []Request

	// Entries holds one entry per installed package.
	Entries []LockEntry
}

// NewLockfile creates an empty lockfile in the current format.
func NewLockfile() *Lockfile {
	return &Lockfile{Version: LockfileFormat}
}

// Entry returns the entry for id.
func (l *Lockfile) Entry(id PackageID) (LockEntry, bool) {
	i := slices.IndexFunc(l.Entries, func(e LockEntry) bool { return e.ID == id })
	if i < 0 {
		return LockEntry{}, false
	}
	return l.Entries[i], true
}

// Request returns the recorded request for id.
func (l *Lockfile) Request(id PackageID) (Request, bool) {
	for _, r := range l.Requested {
		if r.ID == id {
			return r, true
		}
	}
	return Request{}, false
}

// SetRequest adds or replaces the request for r.ID.
func (l *Lockfile) SetRequest(r Request) {
	for i := range l.Requested {
		if l.Requested[i].ID == r.ID {
			l.Requested[i] = r
			return
		}
	}
	l.Requested = append(l.Requested, r)
	l.sortRequests()
}

// RemoveRequest drops the request for id and reports whether it existed.
func (l *Lockfile) RemoveRequest(id PackageID) bool {
	n := len(l.Requested)
	l.Requested = slices.DeleteFunc(l.Requested, func(r Request) bool { return r.ID == id })
	return len(l.Requested) != n
}

// Dependencies returns the recorded requests as user edges.
func (l *Lockfile) Dependencies() []Dependency {
	out := make([]Dependency, len(l.Requested))
	for i, r := range l.Requested {
		out[i] = r.Dependency()
	}
	return out
}

// Values returns the user overrides recorded for id, if it was requested explicitly.
func (l *Lockfile) Values(id PackageID) map[string]string {
	if r, ok := l.Request(id); ok {
		return r.Values
	}
	return nil
}

// Put adds or replaces an entry, keeping entries sorted.
func (l *Lockfile) Put(e LockEntry) {
	if i := slices.IndexFunc(l.Entries, func(x LockEntry) bool { return x.ID == e.ID }); i >= 0 {
		l.Entries[i] = e
		return
	}
	l.Entries = append(l.Entries, e)
	slices.SortFunc(l.Entries, func(a, b LockEntry) int { return cmp.Compare(a.ID, b.ID) })
}

// Remove drops the entry for id.
func (l *Lockfile) Remove(id PackageID) {
	l.Entries = slices.DeleteFunc(l.Entries, func(e LockEntry) bool { return e.ID == id })
}

// Versions returns the installed set as a ResolvedSet.
func (l *Lockfile) Versions() ResolvedSet {
	out := make(ResolvedSet, len(l.Entries))
	for _, e := range l.Entries {
		out[e.ID] = e.Version
	}
	return out
}

// Normalize sorts requests, entries and file lists into their canonical order.
func (l *Lockfile) Normalize() {
	l.sortRequests()
	slices.SortFunc(l.Entries, func(a, b LockEntry) int { return cmp.Compare(a.ID, b.ID) })
	for i := range l.Entries {
		slices.SortFunc(l.Entries[i].Files, func(a, b InstalledFile) int { return cmp.Compare(a.Path, b.Path) })
	}
}

func (l *Lockfile) sortRequests() {
	slices.SortFunc(l.Requested, func(a, b Request) int { return cmp.Compare(a.ID, b.ID) })
}

// Validate checks the invariants a loaded lockfile must hold.
func (l *Lockfile) Validate() error {
	if l.Version != LockfileFormat {
		return zerr.With(zerr.Wrap(ErrCorruptLockfile, "unsupported lockfile format"), "format", l.Version)
	}
	seen := make(map[PackageID]struct{}, len(l.Entries))
	for _, e := range l.Entries {
		if err := e.ID.Validate(); err != nil {
			return zerr.With(zerr.Wrap(ErrCorruptLockfile, "invalid package id"), "package", e.ID.String())
		}
		if _, dup := seen[e.ID]; dup {
			return zerr.With(zerr.Wrap(ErrCorruptLockfile, "duplicate package entry"), "package", e.ID.String())
		}
		seen[e.ID] = struct{}{}
		if err := e.Digest.Validate(); err != nil {
			return zerr.With(zerr.Wrap(ErrCorruptLockfile, "invalid digest"), "package", e.ID.String())
		}
		for _, f := range e.Files {
			if !IsProjectPath(f.Path) {
				err := zerr.With(zerr.Wrap(ErrCorruptLockfile, "file path escapes the project"), "package", e.ID.String())
				return zerr.With(err, "path", f.Path)
			}
		}
	}
	requested := make(map[PackageID]struct{}, len(l.Requested))
	for _, r := range l.Requested {
		if err := r.ID.Validate(); err != nil {
			return zerr.With(zerr.Wrap(ErrCorruptLockfile, "invalid requested package id"), "package", r.ID.String())
		}
		if _, dup := requested[r.ID]; dup {
			return zerr.With(zerr.Wrap(ErrCorruptLockfile, "duplicate request"), "package", r.ID.String())
		}
		requested[r.ID] = struct{}{}
	}
	return nil
}

// IsProjectPath reports whether a slash separated path stays inside the
// project root it is joined onto.
func IsProjectPath(p string) bool {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	return filepath.IsLocal(filepath.FromSlash(p))
}

// Clone returns a deep copy.
func (l *Lockfile) Clone() *Lockfile {
	out := &Lockfile{Version: l.Version}
	for _, r := range l.Requested {
		r.Values = maps.Clone(r.Values)
		out.Requested = append(out.Requested, r)
	}
	for _, e := range l.Entries {
		e.Files = slices.Clone(e.Files)
		out.Entries = append(out.Entries, e)
	}
	return out
}

// OwnedPaths returns every non-region file path owned by installed packages.
func (l *Lockfile) OwnedPaths() map[string]PackageID {
	out := make(map[string]PackageID)
	for _, e := range l.Entries {
		for _, f := range e.Files {
			if !f.Region {
				out[f.Path] = e.ID
			}
		}
	}
	return out
}
