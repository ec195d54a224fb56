package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Node kinds. Root nodes come from the configured category set and are
// never created or removed by graph operations.
const (
	KindRoot    = "root"
	KindMain    = "main"
	KindSibling = "sibling"
)

// Provenance tags carried on nodes for diagnosing mis-classifications.
// They never affect invariants.
const (
	ProvenanceOntology     = "ontology"
	ProvenanceOracle       = "oracle"
	ProvenanceOrphanRepair = "orphan-repair"
	ProvenanceHistoryReuse = "history-reuse"
)

// LevelPending marks a node that has been created but not yet placed under
// a root by chain merging.
const LevelPending = -1

type Node struct {
	ID         uuid.UUID
	Name       string
	Kind       string
	Level      int
	OriginChain []string
	Confidence float64
	Provenance string
	OntologyID string
}

// Edge is a child->parent link. IsPrimaryChain marks membership in the
// authoritative chain that rooted the child.
type Edge struct {
	ChildID          uuid.UUID
	ParentID         uuid.UUID
	RelationshipKind string
	Confidence       float64
	IsPrimaryChain   bool
}

// Root declares one fixed root category for NewGraph.
type Root struct {
	Name       string
	OntologyID string
}

// Graph is the mutable pathway DAG for one pipeline run. It is not safe
// for concurrent writers; the pipeline mutates it single-threaded.
type Graph struct {
	nodes  map[uuid.UUID]*Node
	byName map[string]uuid.UUID

	// parentEdges is keyed by child, childEdges by parent; both hold the
	// same *Edge values.
	parentEdges map[uuid.UUID][]*Edge
	childEdges  map[uuid.UUID][]*Edge

	rootIDs   []uuid.UUID
	rootNames map[string]bool

	maxDepth int

	// interactions counts live assignments per node id.
	interactions map[uuid.UUID]int
}

func NewGraph(roots []Root, maxDepth int) (*Graph, error) {
	if len(roots) == 0 {
		return nil, fmt.Errorf("hierarchy: at least one root required")
	}
	if maxDepth <= 1 {
		maxDepth = 10
	}
	g := &Graph{
		nodes:        map[uuid.UUID]*Node{},
		byName:       map[string]uuid.UUID{},
		parentEdges:  map[uuid.UUID][]*Edge{},
		childEdges:   map[uuid.UUID][]*Edge{},
		rootNames:    map[string]bool{},
		maxDepth:     maxDepth,
		interactions: map[uuid.UUID]int{},
	}
	for _, r := range roots {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("hierarchy: root with empty name")
		}
		if g.rootNames[name] {
			return nil, fmt.Errorf("hierarchy: duplicate root %q", name)
		}
		n := &Node{
			ID:         uuid.New(),
			Name:       name,
			Kind:       KindRoot,
			Level:      0,
			Confidence: 1.0,
			Provenance: ProvenanceOntology,
			OntologyID: strings.TrimSpace(r.OntologyID),
		}
		g.nodes[n.ID] = n
		g.byName[name] = n.ID
		g.rootIDs = append(g.rootIDs, n.ID)
		g.rootNames[name] = true
	}
	return g, nil
}

func (g *Graph) MaxDepth() int { return g.maxDepth }

func (g *Graph) IsRootName(name string) bool {
	return g.rootNames[strings.TrimSpace(name)]
}

func (g *Graph) RootNames() []string {
	out := make([]string, 0, len(g.rootIDs))
	for _, id := range g.rootIDs {
		out = append(out, g.nodes[id].Name)
	}
	return out
}

func (g *Graph) NodeByID(id uuid.UUID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

func (g *Graph) NodeByName(name string) (*Node, bool) {
	id, ok := g.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, false
	}
	return g.nodes[id], true
}

// Nodes returns all nodes sorted by name for deterministic iteration.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Edges returns all edges sorted by (child, parent) name.
func (g *Graph) Edges() []*Edge {
	var out []*Edge
	for _, es := range g.parentEdges {
		out = append(out, es...)
	}
	sort.Slice(out, func(i, j int) bool {
		ci, cj := g.nodes[out[i].ChildID].Name, g.nodes[out[j].ChildID].Name
		if ci != cj {
			return ci < cj
		}
		return g.nodes[out[i].ParentID].Name < g.nodes[out[j].ParentID].Name
	})
	return out
}

// Parents returns the parent nodes of id.
func (g *Graph) Parents(id uuid.UUID) []*Node {
	es := g.parentEdges[id]
	out := make([]*Node, 0, len(es))
	for _, e := range es {
		if p, ok := g.nodes[e.ParentID]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Children returns the child nodes of id.
func (g *Graph) Children(id uuid.UUID) []*Node {
	es := g.childEdges[id]
	out := make([]*Node, 0, len(es))
	for _, e := range es {
		if c, ok := g.nodes[e.ChildID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ChildNames returns the names of direct children of the named node.
func (g *Graph) ChildNames(parentName string) []string {
	p, ok := g.NodeByName(parentName)
	if !ok {
		return nil
	}
	kids := g.Children(p.ID)
	out := make([]string, 0, len(kids))
	for _, c := range kids {
		out = append(out, c.Name)
	}
	sort.Strings(out)
	return out
}

// IsLeaf reports whether the node has no children.
func (g *Graph) IsLeaf(id uuid.UUID) bool {
	return len(g.childEdges[id]) == 0
}

// EnsureNode returns the node with the given name, creating it at
// LevelPending when absent. Root names always resolve to the existing
// root node regardless of the requested kind.
func (g *Graph) EnsureNode(name, kind, provenance string, confidence float64) (*Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("hierarchy: empty node name")
	}
	if n, ok := g.NodeByName(name); ok {
		return n, nil
	}
	if kind == KindRoot {
		return nil, fmt.Errorf("hierarchy: cannot create root node %q", name)
	}
	n := &Node{
		ID:         uuid.New(),
		Name:       name,
		Kind:       kind,
		Level:      LevelPending,
		Confidence: confidence,
		Provenance: provenance,
	}
	g.nodes[n.ID] = n
	g.byName[name] = n.ID
	return n, nil
}

// RestoreNode rehydrates a persisted node. Root names resolve to the
// configured root (its ontology id is kept); other names are created or
// updated in place.
func (g *Graph) RestoreNode(name, kind, provenance, ontologyID string, level int, originChain []string, confidence float64) (*Node, error) {
	name = strings.TrimSpace(name)
	if g.rootNames[name] {
		n, _ := g.NodeByName(name)
		return n, nil
	}
	if kind == KindRoot {
		return nil, fmt.Errorf("hierarchy: persisted root %q is not configured", name)
	}
	n, err := g.EnsureNode(name, kind, provenance, confidence)
	if err != nil {
		return nil, err
	}
	n.Kind = kind
	n.Level = level
	n.Provenance = provenance
	n.OntologyID = strings.TrimSpace(ontologyID)
	n.Confidence = confidence
	if len(originChain) > 0 {
		n.OriginChain = append([]string(nil), originChain...)
	}
	return n, nil
}

// RestoreEdge rehydrates a persisted child->parent edge. Both endpoints
// must already exist.
func (g *Graph) RestoreEdge(childName, parentName string, primary bool, confidence float64) error {
	c, ok := g.NodeByName(childName)
	if !ok {
		return fmt.Errorf("hierarchy: restore edge: child %q not found", childName)
	}
	p, ok := g.NodeByName(parentName)
	if !ok {
		return fmt.Errorf("hierarchy: restore edge: parent %q not found", parentName)
	}
	g.addEdge(c.ID, p.ID, primary, confidence)
	return nil
}

// SeedChild places a curated child under parentName with a primary edge and
// ontology provenance. Existing names are reused; only the edge is ensured.
func (g *Graph) SeedChild(parentName, name, ontologyID string) (*Node, error) {
	parent, ok := g.NodeByName(parentName)
	if !ok {
		return nil, fmt.Errorf("hierarchy: seed parent %q not found", parentName)
	}
	n, err := g.EnsureNode(name, KindMain, ProvenanceOntology, 1.0)
	if err != nil {
		return nil, err
	}
	if n.OntologyID == "" {
		n.OntologyID = strings.TrimSpace(ontologyID)
	}
	if n.Level == LevelPending || parent.Level+1 < n.Level {
		if n.Kind != KindRoot {
			n.Level = parent.Level + 1
		}
	}
	g.addEdge(n.ID, parent.ID, true, 1.0)
	return n, nil
}

// addEdge inserts or updates the child->parent edge. An existing edge is
// never downgraded from primary to non-primary.
func (g *Graph) addEdge(childID, parentID uuid.UUID, primary bool, confidence float64) *Edge {
	for _, e := range g.parentEdges[childID] {
		if e.ParentID == parentID {
			if primary && !e.IsPrimaryChain {
				e.IsPrimaryChain = true
			}
			if confidence > e.Confidence {
				e.Confidence = confidence
			}
			return e
		}
	}
	e := &Edge{
		ChildID:          childID,
		ParentID:         parentID,
		RelationshipKind: "is-a",
		Confidence:       confidence,
		IsPrimaryChain:   primary,
	}
	g.parentEdges[childID] = append(g.parentEdges[childID], e)
	g.childEdges[parentID] = append(g.childEdges[parentID], e)
	return e
}

// HasPrimaryParent reports whether the named node has at least one primary
// parent edge, meaning some chain has already rooted it.
func (g *Graph) HasPrimaryParent(name string) bool {
	n, ok := g.NodeByName(name)
	if !ok {
		return false
	}
	for _, e := range g.parentEdges[n.ID] {
		if e.IsPrimaryChain {
			return true
		}
	}
	return false
}

// HasPrimaryEdge reports whether child->parent exists and is primary.
func (g *Graph) HasPrimaryEdge(childName, parentName string) bool {
	c, ok := g.NodeByName(childName)
	if !ok {
		return false
	}
	p, ok := g.NodeByName(parentName)
	if !ok {
		return false
	}
	for _, e := range g.parentEdges[c.ID] {
		if e.ParentID == p.ID && e.IsPrimaryChain {
			return true
		}
	}
	return false
}

func (g *Graph) removeNode(id uuid.UUID) {
	n, ok := g.nodes[id]
	if !ok {
		return
	}
	for _, e := range g.parentEdges[id] {
		g.childEdges[e.ParentID] = dropEdge(g.childEdges[e.ParentID], e)
	}
	for _, e := range g.childEdges[id] {
		g.parentEdges[e.ChildID] = dropEdge(g.parentEdges[e.ChildID], e)
	}
	delete(g.parentEdges, id)
	delete(g.childEdges, id)
	delete(g.byName, n.Name)
	delete(g.nodes, id)
	delete(g.interactions, id)
}

func dropEdge(es []*Edge, target *Edge) []*Edge {
	out := es[:0]
	for _, e := range es {
		if e != target {
			out = append(out, e)
		}
	}
	return out
}

// SetInteractionCount records the number of live assignments on a node.
func (g *Graph) SetInteractionCount(id uuid.UUID, n int) {
	if n <= 0 {
		delete(g.interactions, id)
		return
	}
	g.interactions[id] = n
}

// AddInteraction increments the live-assignment count for a node.
func (g *Graph) AddInteraction(id uuid.UUID) {
	g.interactions[id]++
}

func (g *Graph) InteractionCount(id uuid.UUID) int {
	return g.interactions[id]
}

// RecomputeLevels walks breadth-first from the roots and rewrites every
// reachable node's level as the shortest parent-path distance. Unreachable
// non-root nodes keep their stored level (the validator reports them).
func (g *Graph) RecomputeLevels() {
	dist := map[uuid.UUID]int{}
	queue := make([]uuid.UUID, 0, len(g.rootIDs))
	for _, id := range g.rootIDs {
		dist[id] = 0
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.childEdges[cur] {
			next := dist[cur] + 1
			if d, seen := dist[e.ChildID]; !seen || next < d {
				dist[e.ChildID] = next
				queue = append(queue, e.ChildID)
			}
		}
	}
	for id, d := range dist {
		g.nodes[id].Level = d
	}
}
