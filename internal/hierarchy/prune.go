package hierarchy

import "sort"

// PruneDeadNodes removes every non-root, non-sibling node whose transitive
// subtree carries zero interactions, along with its incident edges. Counts
// come from a point-in-time snapshot taken before any deletion. Removing a
// node can make its former parent dead, so callers iterate via
// PruneToFixedPoint. Returns the removed names.
func (g *Graph) PruneDeadNodes() []string {
	counts := g.subtreeInteractionCounts()
	var dead []*Node
	for _, n := range g.Nodes() {
		if n.Kind == KindRoot || n.Kind == KindSibling {
			continue
		}
		if counts[n.ID] == 0 {
			dead = append(dead, n)
		}
	}
	names := make([]string, 0, len(dead))
	for _, n := range dead {
		names = append(names, n.Name)
		g.removeNode(n.ID)
	}
	sort.Strings(names)
	return names
}

// PruneToFixedPoint repeats prune-then-recheck until no dead nodes remain
// or maxPasses is hit. With snapshot counts a single pass already removes
// whole dead subtrees; the bound guards against surprises.
func (g *Graph) PruneToFixedPoint(maxPasses int) []string {
	if maxPasses <= 0 {
		maxPasses = 10
	}
	var all []string
	for pass := 0; pass < maxPasses; pass++ {
		removed := g.PruneDeadNodes()
		if len(removed) == 0 {
			break
		}
		all = append(all, removed...)
	}
	return all
}
