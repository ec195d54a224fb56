package hierarchy

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MergeChain folds a validated root->leaf chain into the graph. Every
// element becomes a node if absent, consecutive pairs become primary-chain
// edges, and pre-existing nodes have their level lowered (never raised) to
// the position in this chain. The terminal element records the chain as its
// origin. Returned warnings describe edges skipped to keep the graph
// acyclic.
func (g *Graph) MergeChain(chain []string, confidence float64) ([]string, error) {
	cleaned := make([]string, 0, len(chain))
	for _, s := range chain {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, fmt.Errorf("hierarchy: chain contains empty element")
		}
		cleaned = append(cleaned, s)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("hierarchy: empty chain")
	}
	if !g.IsRootName(cleaned[0]) {
		return nil, fmt.Errorf("hierarchy: chain root %q is not a configured root category", cleaned[0])
	}
	if len(cleaned) > g.maxDepth {
		return nil, fmt.Errorf("hierarchy: chain length %d exceeds depth cap %d", len(cleaned), g.maxDepth)
	}
	seen := map[string]bool{}
	for _, s := range cleaned {
		if seen[s] {
			return nil, fmt.Errorf("hierarchy: chain repeats element %q", s)
		}
		seen[s] = true
	}

	var warnings []string

	nodes := make([]*Node, len(cleaned))
	for i, name := range cleaned {
		n, ok := g.NodeByName(name)
		if !ok {
			var err error
			n, err = g.EnsureNode(name, KindMain, ProvenanceOracle, confidence)
			if err != nil {
				return warnings, err
			}
		}
		// Chain membership makes a placeholder sibling authoritative.
		if n.Kind == KindSibling {
			n.Kind = KindMain
		}
		if n.Level == LevelPending || i < n.Level {
			if n.Kind != KindRoot {
				n.Level = i
			}
		}
		if confidence > n.Confidence && n.Kind != KindRoot {
			n.Confidence = confidence
		}
		nodes[i] = n
	}

	for i := 1; i < len(nodes); i++ {
		parent, child := nodes[i-1], nodes[i]
		if g.reachableUpward(parent.ID, child.ID) {
			warnings = append(warnings, fmt.Sprintf("skipped edge %s -> %s: would create a cycle", child.Name, parent.Name))
			continue
		}
		g.addEdge(child.ID, parent.ID, true, confidence)
	}

	terminal := nodes[len(nodes)-1]
	if len(terminal.OriginChain) == 0 {
		terminal.OriginChain = append([]string(nil), cleaned...)
	}
	return warnings, nil
}

// reachableUpward reports whether walking parent edges from id can reach
// target. Iterative with an explicit stack; the graph may be large and, by
// bug, cyclic, so recursion is avoided and visits are bounded.
func (g *Graph) reachableUpward(id, target uuid.UUID) bool {
	if id == target {
		return true
	}
	visited := map[uuid.UUID]bool{}
	stack := []uuid.UUID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		for _, e := range g.parentEdges[cur] {
			if e.ParentID == target {
				return true
			}
			if !visited[e.ParentID] {
				stack = append(stack, e.ParentID)
			}
		}
	}
	return false
}

// InsertSibling attaches a placeholder child under parentName with a
// non-primary edge. A name that already exists anywhere in the graph is
// left untouched and returned as-is.
func (g *Graph) InsertSibling(parentName, name string, confidence float64) (*Node, bool, error) {
	parent, ok := g.NodeByName(parentName)
	if !ok {
		return nil, false, fmt.Errorf("hierarchy: sibling parent %q not found", parentName)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, fmt.Errorf("hierarchy: empty sibling name")
	}
	if existing, ok := g.NodeByName(name); ok {
		return existing, false, nil
	}
	n, err := g.EnsureNode(name, KindSibling, ProvenanceOracle, confidence)
	if err != nil {
		return nil, false, err
	}
	if parent.Level >= 0 {
		n.Level = parent.Level + 1
	}
	g.addEdge(n.ID, parent.ID, false, confidence)
	return n, true, nil
}
