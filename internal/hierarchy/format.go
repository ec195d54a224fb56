package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// FormatTree renders the hierarchy as an indented tree for logs and the
// inspection API. Sibling nodes are marked; nodes reachable by more than
// one parent are printed under each and flagged after the first visit.
func (g *Graph) FormatTree() string {
	var b strings.Builder
	printed := map[uuid.UUID]bool{}

	var walk func(id uuid.UUID, depth int)
	walk = func(id uuid.UUID, depth int) {
		n, ok := g.nodes[id]
		if !ok {
			return
		}
		indent := strings.Repeat("  ", depth)
		marker := ""
		if n.Kind == KindSibling {
			marker = " [sibling]"
		}
		if printed[id] {
			fmt.Fprintf(&b, "%s%s%s (see above)\n", indent, n.Name, marker)
			return
		}
		printed[id] = true
		count := g.interactions[id]
		if count > 0 {
			fmt.Fprintf(&b, "%s%s%s (%d interactions)\n", indent, n.Name, marker, count)
		} else {
			fmt.Fprintf(&b, "%s%s%s\n", indent, n.Name, marker)
		}
		kids := g.Children(id)
		sort.Slice(kids, func(i, j int) bool { return kids[i].Name < kids[j].Name })
		if depth >= g.maxDepth {
			return
		}
		for _, c := range kids {
			walk(c.ID, depth+1)
		}
	}

	for _, id := range g.rootIDs {
		walk(id, 0)
	}
	return b.String()
}
