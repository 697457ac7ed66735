// Package resolver chooses one version per required package so that every
// active constraint holds.
package resolver

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"go.trai.ch/compak/internal/core/domain"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithPreferred makes the resolver try the given versions first. Packages
// already installed keep their version when it still satisfies every edge.
func WithPreferred(preferred domain.ResolvedSet) Option {
	return func(r *Resolver) {
		r.preferred = preferred
	}
}

// Resolver runs a backtracking search over a dependency graph. It is
// synchronous and performs no I/O.
type Resolver struct {
	preferred domain.ResolvedSet
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is New().Resolve(g).
func Resolve(g *domain.DependencyGraph) (domain.ResolvedSet, error) {
	return New().Resolve(g)
}

// choice is one entry of the explicit search stack.
type choice struct {
	pkg        domain.PackageID
	candidates []domain.Version
	next       int
	// activated counts the edges pushed by the current assignment of pkg.
	activated []domain.Edge
	assigned  bool
}

// exhaustion records a package left without any satisfying version.
type exhaustion struct {
	pkg   domain.PackageID
	edges []domain.Edge
	depth int
}

type solver struct {
	graph     *domain.DependencyGraph
	preferred domain.ResolvedSet

	assignment domain.ResolvedSet
	active     map[domain.PackageID][]domain.Edge
	stack      []*choice
	deadEnds   map[string]struct{}

	deepest  *exhaustion
	fallback *exhaustion
}

// Resolve picks a version for every package reachable through active edges.
// Selection is most-constrained first with ties broken by package ID;
// candidates are tried highest first, preferred versions before the rest.
// Failure returns a *domain.ConflictError holding a minimal set of terms.
func (r *Resolver) Resolve(g *domain.DependencyGraph) (domain.ResolvedSet, error) {
	s := &solver{
		graph:      g,
		preferred:  r.preferred,
		assignment: make(domain.ResolvedSet),
		active:     make(map[domain.PackageID][]domain.Edge),
		deadEnds:   make(map[string]struct{}),
	}
	for _, e := range g.Requests() {
		s.active[e.To] = append(s.active[e.To], e)
	}
	return s.run()
}

func (s *solver) run() (domain.ResolvedSet, error) {
	for {
		pkg, ok := s.selectNext()
		if !ok {
			return maps.Clone(s.assignment), nil
		}

		candidates := s.satisfying(pkg)
		if len(candidates) == 0 {
			s.recordExhaustion(pkg, false)
			s.markDead()
			if !s.backtrack() {
				return nil, s.conflict()
			}
			continue
		}

		cp := &choice{pkg: pkg, candidates: s.order(pkg, candidates)}
		s.stack = append(s.stack, cp)
		if !s.advance(cp) && !s.backtrack() {
			return nil, s.conflict()
		}
	}
}

// selectNext returns the unassigned required package with the fewest
// satisfying candidates.
func (s *solver) selectNext() (domain.PackageID, bool) {
	var best domain.PackageID
	bestCount := -1
	for _, id := range slices.Sorted(maps.Keys(s.active)) {
		if len(s.active[id]) == 0 {
			continue
		}
		if _, done := s.assignment[id]; done {
			continue
		}
		n := len(s.satisfying(id))
		if bestCount < 0 || n < bestCount {
			best, bestCount = id, n
		}
	}
	return best, bestCount >= 0
}

// satisfying lists the expanded versions of id matching every active edge,
// highest first.
func (s *solver) satisfying(id domain.PackageID) []domain.Version {
	n, ok := s.graph.Node(id)
	if !ok {
		return nil
	}
	edges := s.active[id]
	var out []domain.Version
	for _, v := range n.Versions {
		if n.HasManifest(v) && matchesAll(edges, v) {
			out = append(out, v)
		}
	}
	return out
}

// order moves a preferred version to the front.
func (s *solver) order(id domain.PackageID, candidates []domain.Version) []domain.Version {
	pref, ok := s.preferred[id]
	if !ok {
		return candidates
	}
	i := slices.IndexFunc(candidates, pref.Equal)
	if i <= 0 {
		return candidates
	}
	out := make([]domain.Version, 0, len(candidates))
	out = append(out, candidates[i])
	out = append(out, candidates[:i]...)
	return append(out, candidates[i+1:]...)
}

// advance assigns the next acceptable candidate of cp.
func (s *solver) advance(cp *choice) bool {
	for cp.next < len(cp.candidates) {
		v := cp.candidates[cp.next]
		cp.next++
		if s.assign(cp, v) {
			return true
		}
	}
	return false
}

// assign tries pkg@v: it activates the edges of its manifest and keeps the
// assignment only if every required package still has a satisfying version
// and the resulting state is not a known dead end.
func (s *solver) assign(cp *choice, v domain.Version) bool {
	m, ok := s.graph.Manifest(cp.pkg, v)
	if !ok {
		return false
	}

	s.assignment[cp.pkg] = v
	cp.assigned = true
	for _, dep := range m.Dependencies {
		e := domain.Edge{From: cp.pkg, FromVersion: v, To: dep.ID, Constraint: dep.Constraint}
		s.active[e.To] = append(s.active[e.To], e)
		cp.activated = append(cp.activated, e)
	}

	if s.consistent(cp) {
		if _, dead := s.deadEnds[s.fingerprint()]; !dead {
			return true
		}
	}
	s.undo(cp)
	return false
}

// consistent checks the packages touched by the edges cp just activated.
func (s *solver) consistent(cp *choice) bool {
	touched := make(map[domain.PackageID]struct{}, len(cp.activated))
	for _, e := range cp.activated {
		touched[e.To] = struct{}{}
	}
	for _, id := range slices.Sorted(maps.Keys(touched)) {
		if len(s.satisfying(id)) == 0 {
			s.recordExhaustion(id, false)
			return false
		}
		if v, ok := s.assignment[id]; ok && !matchesAll(s.active[id], v) {
			s.recordExhaustion(id, true)
			return false
		}
	}
	return true
}

func (s *solver) undo(cp *choice) {
	if !cp.assigned {
		return
	}
	for i := len(cp.activated) - 1; i >= 0; i-- {
		to := cp.activated[i].To
		s.active[to] = s.active[to][:len(s.active[to])-1]
		if len(s.active[to]) == 0 {
			delete(s.active, to)
		}
	}
	cp.activated = nil
	delete(s.assignment, cp.pkg)
	cp.assigned = false
}

// backtrack resumes the most recent choice point that still has candidates.
// Exhausted choice points mark the assignment beneath them as a dead end.
func (s *solver) backtrack() bool {
	for len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		s.undo(top)
		if s.advance(top) {
			return true
		}
		s.markDead()
		s.stack = s.stack[:len(s.stack)-1]
	}
	return false
}

func (s *solver) markDead() {
	s.deadEnds[s.fingerprint()] = struct{}{}
}

// fingerprint identifies the current assignment. The active edges are a
// function of it, so equal fingerprints mean equal search states.
func (s *solver) fingerprint() string {
	var b strings.Builder
	for _, id := range s.assignment.IDs() {
		b.WriteString(id.String())
		b.WriteByte('@')
		b.WriteString(s.assignment[id].String())
		b.WriteByte(0)
	}
	return b.String()
}

// recordExhaustion keeps the deepest point where id ran out of versions.
// A clash with an already assigned version is only kept as a fallback.
func (s *solver) recordExhaustion(id domain.PackageID, clash bool) {
	ex := &exhaustion{pkg: id, edges: slices.Clone(s.active[id]), depth: len(s.assignment)}
	if clash {
		if s.fallback == nil || ex.depth > s.fallback.depth {
			s.fallback = ex
		}
		return
	}
	if s.deepest == nil || ex.depth > s.deepest.depth {
		s.deepest = ex
	}
}

// conflict builds the error for the recorded exhaustion. Edges are visited
// in lexical order of their source and dropped whenever the rest still
// excludes every published version. At least one edge is always kept.
func (s *solver) conflict() error {
	ex := s.deepest
	minimize := true
	if ex == nil {
		ex = s.fallback
		minimize = false
	}
	if ex == nil {
		ex = s.requestExhaustion()
	}
	if ex == nil {
		return &domain.ConflictError{}
	}

	edges := slices.Clone(ex.edges)
	slices.SortFunc(edges, compareEdges)
	if minimize {
		var published []domain.Version
		if n, ok := s.graph.Node(ex.pkg); ok {
			published = n.Versions
		}
		for i := 0; i < len(edges) && len(edges) > 1; {
			rest := slices.Delete(slices.Clone(edges), i, i+1)
			if !slices.ContainsFunc(published, func(v domain.Version) bool { return matchesAll(rest, v) }) {
				edges = rest
				continue
			}
			i++
		}
	}

	terms := make([]domain.ConflictTerm, len(edges))
	for i, e := range edges {
		terms[i] = domain.ConflictTerm{Package: e.To, Constraint: e.Constraint, Source: e.Source()}
	}
	return &domain.ConflictError{Package: ex.pkg, Terms: terms}
}

// requestExhaustion blames the requests on the lowest requested package.
func (s *solver) requestExhaustion() *exhaustion {
	requests := s.graph.Requests()
	if len(requests) == 0 {
		return nil
	}
	pkg := slices.MinFunc(requests, func(a, b domain.Edge) int { return cmp.Compare(a.To, b.To) }).To
	var edges []domain.Edge
	for _, e := range requests {
		if e.To == pkg {
			edges = append(edges, e)
		}
	}
	return &exhaustion{pkg: pkg, edges: edges}
}

func compareEdges(a, b domain.Edge) int {
	return cmp.Or(
		cmp.Compare(a.Source(), b.Source()),
		cmp.Compare(a.Constraint.String(), b.Constraint.String()),
	)
}

func matchesAll(edges []domain.Edge, v domain.Version) bool {
	for _, e := range edges {
		if !e.Constraint.Matches(v) {
			return false
		}
	}
	return true
}
