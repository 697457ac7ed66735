// Package domain contains the core domain models of compak: packages, versions,
// constraints, the dependency graph, resolved sets and the lockfile.
package domain

import (
	"iter"
	"maps"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// RequestSource names the user as the origin of a constraint.
const RequestSource = "request"

// Edge is one constraint imposed on a package, either by the user or by a
// specific version of another package.
type Edge struct {
	// From is the depending package. It is empty for a user request.
	From PackageID
	// FromVersion is the version of From that declares the edge.
	FromVersion Version
	// To is the package being constrained.
	To PackageID
	// Constraint restricts the acceptable versions of To.
	Constraint Constraint
}

// IsRequest reports whether the edge comes from the user rather than a manifest.
func (e Edge) IsRequest() bool {
	return e.From == ""
}

// Source renders the origin of the edge: "request" or "id@version".
func (e Edge) Source() string {
	if e.IsRequest() {
		return RequestSource
	}
	return e.From.String() + "@" + e.FromVersion.String()
}

func (e Edge) key() string {
	return e.Source() + "\x00" + e.Constraint.String()
}

// Node is a package in the dependency graph together with every constraint
// imposed on it and the versions the registry knows.
type Node struct {
	ID PackageID

	// Incoming holds every constraint source in insertion order. It only grows.
	Incoming []Edge

	// Versions are all published versions, highest first. Nil until fetched.
	Versions []Version

	edgeKeys  map[string]struct{}
	manifests map[string]*Manifest
}

// Candidates returns the provisional candidate versions: every known version
// that satisfies at least one incoming constraint, highest first.
func (n *Node) Candidates() []Version {
	out := make([]Version, 0, len(n.Versions))
	for _, v := range n.Versions {
		for _, e := range n.Incoming {
			if e.Constraint.Matches(v) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// Manifest returns the fetched manifest of version v.
func (n *Node) Manifest(v Version) (*Manifest, bool) {
	m, ok := n.manifests[v.String()]
	return m, ok
}

// HasManifest reports whether version v has been expanded.
func (n *Node) HasManifest(v Version) bool {
	_, ok := n.manifests[v.String()]
	return ok
}

// DependencyGraph is the transitive closure of a request: one node per
// package, each carrying the accumulated constraints from all its dependents.
// A node only exists once at least one constraint points at it.
type DependencyGraph struct {
	nodes    map[PackageID]*Node
	requests []Edge
}

// NewDependencyGraph creates an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[PackageID]*Node),
	}
}

// AddEdge records a constraint on e.To, creating the node when needed.
// It reports whether the edge was new.
func (g *DependencyGraph) AddEdge(e Edge) bool {
	n, ok := g.nodes[e.To]
	if !ok {
		n = &Node{
			ID:        e.To,
			edgeKeys:  make(map[string]struct{}),
			manifests: make(map[string]*Manifest),
		}
		g.nodes[e.To] = n
	}
	k := e.key()
	if _, dup := n.edgeKeys[k]; dup {
		return false
	}
	n.edgeKeys[k] = struct{}{}
	n.Incoming = append(n.Incoming, e)
	if e.IsRequest() {
		g.requests = append(g.requests, e)
	}
	return true
}

// SetVersions records the published versions of a package. The slice is
// copied and sorted highest first.
func (g *DependencyGraph) SetVersions(id PackageID, versions []Version) error {
	n, ok := g.nodes[id]
	if !ok {
		return zerr.With(zerr.Wrap(ErrPackageNotFound, "package is not part of the graph"), "package", id.String())
	}
	vs := slices.Clone(versions)
	SortVersionsDesc(vs)
	n.Versions = slices.CompactFunc(vs, Version.Equal)
	return nil
}

// AddManifest stores a fetched manifest on its node.
func (g *DependencyGraph) AddManifest(m *Manifest) error {
	n, ok := g.nodes[m.ID]
	if !ok {
		return zerr.With(zerr.Wrap(ErrPackageNotFound, "package is not part of the graph"), "package", m.ID.String())
	}
	n.manifests[m.Version.String()] = m
	return nil
}

// Node returns the node for id.
func (g *DependencyGraph) Node(id PackageID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Manifest returns the manifest of id at version v.
func (g *DependencyGraph) Manifest(id PackageID, v Version) (*Manifest, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Manifest(v)
}

// Requests returns the user request edges in insertion order.
func (g *DependencyGraph) Requests() []Edge {
	return slices.Clone(g.requests)
}

// IDs returns every package in lexical order.
func (g *DependencyGraph) IDs() []PackageID {
	return slices.Sorted(maps.Keys(g.nodes))
}

// Len returns the number of nodes.
func (g *DependencyGraph) Len() int {
	return len(g.nodes)
}

// Walk yields nodes in lexical order of their IDs.
func (g *DependencyGraph) Walk() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for _, id := range g.IDs() {
			if !yield(g.nodes[id]) {
				return
			}
		}
	}
}

// DetectCycles looks for a package-level cycle among manifest edges.
// Packages are visited in lexical order so the reported cycle is stable.
func (g *DependencyGraph) DetectCycles() error {
	adj := make(map[PackageID][]PackageID, len(g.nodes))
	for _, n := range g.nodes {
		for _, e := range n.Incoming {
			if e.IsRequest() {
				continue
			}
			if !slices.Contains(adj[e.From], e.To) {
				adj[e.From] = append(adj[e.From], e.To)
			}
		}
	}
	for from := range adj {
		slices.Sort(adj[from])
	}

	visited := make(map[PackageID]int) // 0: unvisited, 1: visiting, 2: visited
	var path []PackageID

	var visit func(u PackageID) error
	visit = func(u PackageID) error {
		visited[u] = 1
		path = append(path, u)
		for _, dep := range adj[u] {
			if visited[dep] == 1 {
				return buildCycleError(path, dep)
			}
			if visited[dep] == 0 {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		visited[u] = 2
		path = path[:len(path)-1]
		return nil
	}

	for _, id := range g.IDs() {
		if visited[id] == 0 {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildCycleError constructs an error with cycle path metadata.
func buildCycleError(path []PackageID, dep PackageID) error {
	start := slices.Index(path, dep)
	parts := make([]string, 0, len(path)-start+1)
	for _, id := range path[start:] {
		parts = append(parts, id.String())
	}
	parts = append(parts, dep.String())
	cycle := strings.Join(parts, " -> ")
	return zerr.With(zerr.Wrap(ErrCyclicDependency, cycle), "cycle", cycle)
}
