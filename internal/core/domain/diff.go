package domain

import (
	"maps"
	"slices"

	"github.com/opencontainers/go-digest"
)

// Change describes how one package moves between the current lockfile and a
// proposed resolution. Before is nil for installs and After is nil for removals.
type Change struct {
	ID     PackageID
	Before *Version
	After  *Version
}

// IsDowngrade reports whether an upgrade moves to a lower version.
func (c Change) IsDowngrade() bool {
	return c.Before != nil && c.After != nil && c.After.Less(*c.Before)
}

// LockDiff classifies every package of either input into exactly one bucket.
type LockDiff struct {
	Install   []Change
	Upgrade   []Change
	Remove    []Change
	Unchanged []Change
}

// Empty reports whether applying the diff would change nothing.
func (d LockDiff) Empty() bool {
	return len(d.Install) == 0 && len(d.Upgrade) == 0 && len(d.Remove) == 0
}

// Changed returns installs and upgrades, the packages whose content must be staged.
func (d LockDiff) Changed() []Change {
	out := make([]Change, 0, len(d.Install)+len(d.Upgrade))
	out = append(out, d.Install...)
	return append(out, d.Upgrade...)
}

// Diff compares the current lockfile with a proposed resolution. It is pure
// and total: a package only in current is removed, only in proposed is
// installed, in both with another version or digest is upgraded (downgrades
// included), otherwise unchanged. digests may be nil, in which case equal
// versions are unchanged. Every bucket is sorted by package ID.
func Diff(current *Lockfile, proposed ResolvedSet, digests map[PackageID]digest.Digest) LockDiff {
	var d LockDiff

	ids := make(map[PackageID]struct{}, len(proposed)+len(current.Entries))
	for id := range proposed {
		ids[id] = struct{}{}
	}
	for _, e := range current.Entries {
		ids[e.ID] = struct{}{}
	}

	for _, id := range slices.Sorted(maps.Keys(ids)) {
		entry, installed := current.Entry(id)
		next, wanted := proposed[id]
		switch {
		case installed && !wanted:
			before := entry.Version
			d.Remove = append(d.Remove, Change{ID: id, Before: &before})
		case !installed && wanted:
			after := next
			d.Install = append(d.Install, Change{ID: id, After: &after})
		default:
			before, after := entry.Version, next
			change := Change{ID: id, Before: &before, After: &after}
			dg, known := digests[id]
			if !before.Equal(after) || (known && dg != entry.Digest) {
				d.Upgrade = append(d.Upgrade, change)
			} else {
				d.Unchanged = append(d.Unchanged, change)
			}
		}
	}
	return d
}
