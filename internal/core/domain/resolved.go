package domain

import (
	"maps"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// ResolvedSet maps every required package to its chosen version.
type ResolvedSet map[PackageID]Version

// IDs returns the packages in lexical order.
func (s ResolvedSet) IDs() []PackageID {
	return slices.Sorted(maps.Keys(s))
}

// Satisfies checks that every edge active under this assignment holds: user
// requests, and the edges declared by each chosen manifest.
func (s ResolvedSet) Satisfies(g *DependencyGraph) error {
	for _, e := range g.Requests() {
		if err := s.checkEdge(e); err != nil {
			return err
		}
	}
	for _, id := range s.IDs() {
		m, ok := g.Manifest(id, s[id])
		if !ok {
			return zerr.With(zerr.With(zerr.Wrap(ErrPackageNotFound, "resolved version has no manifest"), "package", id.String()), "version", s[id].String())
		}
		for _, dep := range m.Dependencies {
			e := Edge{From: id, FromVersion: s[id], To: dep.ID, Constraint: dep.Constraint}
			if err := s.checkEdge(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s ResolvedSet) checkEdge(e Edge) error {
	v, ok := s[e.To]
	if !ok || !e.Constraint.Matches(v) {
		return &ConflictError{
			Package: e.To,
			Terms:   []ConflictTerm{{Package: e.To, Constraint: e.Constraint, Source: e.Source()}},
		}
	}
	return nil
}

// ConflictTerm is one constraint that takes part in a conflict.
type ConflictTerm struct {
	Package    PackageID
	Constraint Constraint
	Source     string
}

// String renders the term as "pkg@constraint (from source)".
func (t ConflictTerm) String() string {
	return t.Package.String() + "@" + t.Constraint.String() + " (from " + t.Source + ")"
}

// ConflictError explains why no version of Package can be chosen. Terms is the
// minimal set of constraints that jointly exclude every candidate.
type ConflictError struct {
	Package PackageID
	Terms   []ConflictTerm
}

// Error renders the conflict deterministically.
func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Terms))
	for i, t := range e.Terms {
		parts[i] = t.String()
	}
	return "version conflict on " + e.Package.String() + ": no version satisfies " + strings.Join(parts, ", ")
}

// Unwrap lets errors.Is match ErrConflict.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Sources returns the distinct sources of the conflicting terms in order.
func (e *ConflictError) Sources() []string {
	var out []string
	for _, t := range e.Terms {
		if !slices.Contains(out, t.Source) {
			out = append(out, t.Source)
		}
	}
	return out
}
