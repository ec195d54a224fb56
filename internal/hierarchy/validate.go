package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Issue kinds reported by validation.
const (
	IssueDeadNode           = "dead_node"
	IssueUnreachable        = "unreachable"
	IssueDuplicateName      = "duplicate_name"
	IssueOriginChainRoot    = "origin_chain_root"
	IssueSiblingPrimaryEdge = "sibling_primary_edge"
	IssueCycle              = "cycle"
	IssueOrphanRoot         = "orphan_root"
	IssueMissingAssignment  = "missing_assignment"
	IssueDanglingAssignment = "dangling_assignment"
	IssueSubThreshold       = "sub_threshold_confidence"
)

const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

type Issue struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Node     string `json:"node,omitempty"`
	Detail   string `json:"detail"`
}

// Report collects every invariant violation found in one sweep. Checks are
// independent; a failing check never stops the others.
type Report struct {
	Issues []Issue `json:"issues"`
}

func (r *Report) add(kind, severity, node, detail string) {
	r.Issues = append(r.Issues, Issue{Kind: kind, Severity: severity, Node: node, Detail: detail})
}

func (r *Report) Errors() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out = append(out, i)
		}
	}
	return out
}

func (r *Report) Warnings() []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == SeverityWarning {
			out = append(out, i)
		}
	}
	return out
}

func (r *Report) HasErrors() bool { return len(r.Errors()) > 0 }

// HasStructuralErrors reports violations that must halt automatic progress
// (cycles, duplicate names) as opposed to repairable ones.
func (r *Report) HasStructuralErrors() bool {
	for _, i := range r.Issues {
		if i.Kind == IssueCycle || i.Kind == IssueDuplicateName {
			return true
		}
	}
	return false
}

// Validate sweeps the graph and reports every structural invariant
// violation. Assignment-count invariants are appended by the caller, which
// owns the interaction records.
func (g *Graph) Validate() *Report {
	r := &Report{}
	g.checkDeadNodes(r)
	g.checkReachability(r)
	g.checkDuplicateNames(r)
	g.checkOriginChains(r)
	g.checkSiblingEdges(r)
	g.checkCycles(r)
	return r
}

// checkDeadNodes reports non-root, non-sibling nodes with zero interactions
// anywhere in their transitive subtree.
func (g *Graph) checkDeadNodes(r *Report) {
	counts := g.subtreeInteractionCounts()
	for _, n := range g.Nodes() {
		if n.Kind == KindRoot || n.Kind == KindSibling {
			continue
		}
		if counts[n.ID] == 0 {
			r.add(IssueDeadNode, SeverityWarning, n.Name, "no interactions anywhere in subtree")
		}
	}
}

// subtreeInteractionCounts accumulates live-assignment counts bottom-up.
// Memoized iterative post-order; cycles (present only under a structural
// bug) are broken by treating in-progress nodes as zero.
func (g *Graph) subtreeInteractionCounts() map[uuid.UUID]int {
	memo := map[uuid.UUID]int{}
	state := map[uuid.UUID]int{} // 0 unseen, 1 in progress, 2 done
	for id := range g.nodes {
		if state[id] == 2 {
			continue
		}
		stack := []uuid.UUID{id}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			switch state[cur] {
			case 0:
				state[cur] = 1
				for _, e := range g.childEdges[cur] {
					if state[e.ChildID] == 0 {
						stack = append(stack, e.ChildID)
					}
				}
			case 1:
				total := g.interactions[cur]
				for _, e := range g.childEdges[cur] {
					total += memo[e.ChildID]
				}
				memo[cur] = total
				state[cur] = 2
				stack = stack[:len(stack)-1]
			default:
				stack = stack[:len(stack)-1]
			}
		}
	}
	return memo
}

func (g *Graph) checkReachability(r *Report) {
	reached := map[uuid.UUID]bool{}
	queue := append([]uuid.UUID(nil), g.rootIDs...)
	for _, id := range queue {
		reached[id] = true
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.childEdges[cur] {
			if !reached[e.ChildID] {
				reached[e.ChildID] = true
				queue = append(queue, e.ChildID)
			}
		}
	}
	for _, n := range g.Nodes() {
		if !reached[n.ID] {
			r.add(IssueUnreachable, SeverityError, n.Name, "no path to any root")
		}
	}
}

func (g *Graph) checkDuplicateNames(r *Report) {
	byName := map[string][]uuid.UUID{}
	for id, n := range g.nodes {
		byName[n.Name] = append(byName[n.Name], id)
	}
	names := make([]string, 0, len(byName))
	for name, ids := range byName {
		if len(ids) > 1 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		r.add(IssueDuplicateName, SeverityError, name, fmt.Sprintf("%d nodes share this name", len(byName[name])))
	}
}

func (g *Graph) checkOriginChains(r *Report) {
	for _, n := range g.Nodes() {
		if len(n.OriginChain) == 0 {
			continue
		}
		if !g.IsRootName(n.OriginChain[0]) {
			r.add(IssueOriginChainRoot, SeverityError, n.Name,
				fmt.Sprintf("origin chain starts at %q, not a root category", n.OriginChain[0]))
		}
	}
}

func (g *Graph) checkSiblingEdges(r *Report) {
	for _, n := range g.Nodes() {
		if n.Kind != KindSibling {
			continue
		}
		for _, e := range g.parentEdges[n.ID] {
			if e.IsPrimaryChain {
				r.add(IssueSiblingPrimaryEdge, SeverityError, n.Name, "sibling node carries a primary-chain edge")
			}
		}
	}
}

// checkCycles runs an iterative DFS over parent edges with an explicit
// on-path set. Revisiting a node already on the current path is a cycle.
func (g *Graph) checkCycles(r *Report) {
	const (
		unseen = 0
		onPath = 1
		done   = 2
	)
	state := map[uuid.UUID]int{}
	reported := map[uuid.UUID]bool{}

	for _, start := range g.Nodes() {
		if state[start.ID] != unseen {
			continue
		}
		type frame struct {
			id   uuid.UUID
			next int
		}
		stack := []frame{{id: start.ID}}
		state[start.ID] = onPath
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			edges := g.parentEdges[f.id]
			if f.next < len(edges) {
				pid := edges[f.next].ParentID
				f.next++
				switch state[pid] {
				case unseen:
					state[pid] = onPath
					stack = append(stack, frame{id: pid})
				case onPath:
					if !reported[pid] {
						reported[pid] = true
						r.add(IssueCycle, SeverityError, g.nodes[pid].Name, "parent-edge cycle through this node")
					}
				}
				continue
			}
			state[f.id] = done
			stack = stack[:len(stack)-1]
		}
	}
}

// RepairOrphanRoots reparents every level-0 node whose name is not a
// configured root under the fallback root, with low confidence and an
// orphan-repair provenance tag. Runs before validation. Returns the names
// repaired.
func (g *Graph) RepairOrphanRoots(fallbackRoot string, confidence float64) ([]string, error) {
	fb, ok := g.NodeByName(fallbackRoot)
	if !ok || fb.Kind != KindRoot {
		return nil, fmt.Errorf("hierarchy: fallback root %q not found", fallbackRoot)
	}
	var repaired []string
	for _, n := range g.Nodes() {
		if n.Kind == KindRoot {
			continue
		}
		orphan := n.Level == 0 || (n.Level == LevelPending && len(g.parentEdges[n.ID]) == 0)
		if !orphan {
			continue
		}
		if strings.TrimSpace(n.Name) == "" {
			continue
		}
		g.addEdge(n.ID, fb.ID, true, confidence)
		n.Level = 1
		n.Confidence = confidence
		n.Provenance = ProvenanceOrphanRepair
		repaired = append(repaired, n.Name)
	}
	return repaired, nil
}
