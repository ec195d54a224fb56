package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/yungbote/biopath-backend/internal/app"
	datagraph "github.com/yungbote/biopath-backend/internal/data/graph"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/hierarchy"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type ValidateCommitDeps struct {
	Log         *logger.Logger
	Cfg         *app.Config
	Graph       *hierarchy.Graph
	Pathways    repos.PathwayRepo
	Parents     repos.PathwayParentRepo
	Assignments repos.AssignmentRepo

	// Mirror is optional; nil disables the Neo4j sync.
	Mirror *datagraph.PathwayGraph
}

type ValidateCommitInput struct {
	Run          *RunContext
	Interactions []*types.Interaction
}

type ValidateCommitOutput struct {
	Report               *hierarchy.Report
	Repaired             []string
	Pruned               []string
	NodesPersisted       int
	EdgesPersisted       int
	AssignmentsPersisted int
}

// ValidateCommitStep closes a run: orphan repair, the full invariant sweep,
// dead-node pruning, then persistence of the surviving graph and every
// assignment. Structural errors (cycles, duplicate names) block pruning but
// not persistence, so the damage is inspectable afterwards.
func ValidateCommitStep(ctx context.Context, deps ValidateCommitDeps, in ValidateCommitInput) (ValidateCommitOutput, error) {
	if deps.Log == nil || deps.Cfg == nil || deps.Graph == nil ||
		deps.Pathways == nil || deps.Parents == nil || deps.Assignments == nil {
		return ValidateCommitOutput{}, fmt.Errorf("validate commit: missing deps")
	}
	if in.Run == nil {
		return ValidateCommitOutput{}, fmt.Errorf("validate commit: missing run context")
	}
	log := deps.Log.With("step", "ValidateCommit")
	out := ValidateCommitOutput{}
	g := deps.Graph

	applyAssignmentCounts(g, in.Run)
	g.RecomputeLevels()

	repaired, err := g.RepairOrphanRoots(deps.Cfg.FallbackRoot, deps.Cfg.OrphanRepairedConfidence)
	if err != nil {
		return out, fmt.Errorf("validate commit: orphan repair: %w", err)
	}
	out.Repaired = repaired
	if len(repaired) > 0 {
		g.RecomputeLevels()
	}

	report := g.Validate()
	appendAssignmentIssues(report, g, in, deps.Cfg)

	if deps.Cfg.PruneDeadNodes && !report.HasStructuralErrors() {
		out.Pruned = g.PruneToFixedPoint(10)
		if len(out.Pruned) > 0 {
			report = g.Validate()
			appendAssignmentIssues(report, g, in, deps.Cfg)
		}
	}
	out.Report = report

	idByName, err := persistNodes(ctx, deps, g)
	if err != nil {
		return out, err
	}
	out.NodesPersisted = len(idByName)

	if err := deletePruned(ctx, deps, out.Pruned); err != nil {
		return out, err
	}

	edges, err := persistEdges(ctx, deps, g, idByName)
	if err != nil {
		return out, err
	}
	out.EdgesPersisted = edges

	persisted, err := persistAssignments(ctx, deps, in.Run, idByName)
	if err != nil {
		return out, err
	}
	out.AssignmentsPersisted = persisted

	if deps.Mirror.Enabled() {
		if err := deps.Mirror.EnsureConstraints(ctx); err != nil {
			return out, err
		}
		if err := deps.Mirror.Sync(ctx, g); err != nil {
			return out, err
		}
	}

	log.Info("validate and commit complete",
		"issues", len(report.Issues), "errors", len(report.Errors()),
		"repaired", len(out.Repaired), "pruned", len(out.Pruned),
		"nodes", out.NodesPersisted, "edges", out.EdgesPersisted,
		"assignments", out.AssignmentsPersisted)
	return out, nil
}

func applyAssignmentCounts(g *hierarchy.Graph, run *RunContext) {
	counts := map[string]int{}
	for _, a := range run.Assignments {
		counts[a.PathwayName]++
	}
	for _, n := range g.Nodes() {
		g.SetInteractionCount(n.ID, counts[n.Name])
	}
}

// appendAssignmentIssues adds the invariants that need the interaction
// records: every stored interaction must hold exactly one assignment, every
// assigned name must resolve to a node, and assignments below the
// confidence floor are flagged.
func appendAssignmentIssues(report *hierarchy.Report, g *hierarchy.Graph, in ValidateCommitInput, cfg *app.Config) {
	run := in.Run
	dangling := map[string]int{}
	subThreshold := 0
	for _, a := range run.Assignments {
		if _, ok := g.NodeByName(a.PathwayName); !ok {
			dangling[a.PathwayName]++
		}
		if a.Confidence < cfg.MinConfidenceAssignment {
			subThreshold++
		}
	}

	unassigned := 0
	for _, row := range in.Interactions {
		if _, ok := run.Assignments[row.ID]; !ok {
			unassigned++
		}
	}
	if unassigned > 0 {
		report.Issues = append(report.Issues, hierarchy.Issue{
			Kind:     hierarchy.IssueMissingAssignment,
			Severity: hierarchy.SeverityError,
			Detail:   fmt.Sprintf("%d interactions have no assignment", unassigned),
		})
	}

	names := make([]string, 0, len(dangling))
	for name := range dangling {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		report.Issues = append(report.Issues, hierarchy.Issue{
			Kind:     hierarchy.IssueDanglingAssignment,
			Severity: hierarchy.SeverityError,
			Node:     name,
			Detail:   fmt.Sprintf("%d interactions assigned to a name with no node", dangling[name]),
		})
	}
	if subThreshold > 0 {
		report.Issues = append(report.Issues, hierarchy.Issue{
			Kind:     hierarchy.IssueSubThreshold,
			Severity: hierarchy.SeverityWarning,
			Detail:   fmt.Sprintf("%d assignments below confidence %.2f", subThreshold, cfg.MinConfidenceAssignment),
		})
	}
}

func persistNodes(ctx context.Context, deps ValidateCommitDeps, g *hierarchy.Graph) (map[string]uuid.UUID, error) {
	idByName := map[string]uuid.UUID{}
	for _, n := range g.Nodes() {
		row, err := deps.Pathways.GetOrCreateByName(ctx, nil, &types.Pathway{
			Name:        n.Name,
			Kind:        n.Kind,
			Level:       n.Level,
			IsLeaf:      g.IsLeaf(n.ID),
			OriginChain: mustJSON(n.OriginChain),
			Confidence:  n.Confidence,
			Provenance:  n.Provenance,
			OntologyID:  n.OntologyID,
		})
		if err != nil {
			return nil, fmt.Errorf("validate commit: persist node %q: %w", n.Name, err)
		}
		if err := deps.Pathways.UpdateFields(ctx, nil, row.ID, map[string]interface{}{
			"kind":         n.Kind,
			"level":        n.Level,
			"is_leaf":      g.IsLeaf(n.ID),
			"origin_chain": mustJSON(n.OriginChain),
			"confidence":   n.Confidence,
			"provenance":   n.Provenance,
			"ontology_id":  n.OntologyID,
		}); err != nil {
			return nil, fmt.Errorf("validate commit: update node %q: %w", n.Name, err)
		}
		idByName[n.Name] = row.ID
	}
	return idByName, nil
}

// deletePruned removes rows persisted by earlier runs for nodes pruned this
// run, edges first.
func deletePruned(ctx context.Context, deps ValidateCommitDeps, pruned []string) error {
	var ids []uuid.UUID
	for _, name := range pruned {
		row, err := deps.Pathways.GetByName(ctx, nil, name)
		if err != nil {
			return fmt.Errorf("validate commit: lookup pruned %q: %w", name, err)
		}
		if row != nil {
			ids = append(ids, row.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if err := deps.Parents.FullDeleteByNodeIDs(ctx, nil, ids); err != nil {
		return fmt.Errorf("validate commit: delete pruned edges: %w", err)
	}
	if err := deps.Pathways.FullDeleteByIDs(ctx, nil, ids); err != nil {
		return fmt.Errorf("validate commit: delete pruned nodes: %w", err)
	}
	return nil
}

func persistEdges(ctx context.Context, deps ValidateCommitDeps, g *hierarchy.Graph, idByName map[string]uuid.UUID) (int, error) {
	var rows []*types.PathwayParent
	for _, e := range g.Edges() {
		child, _ := g.NodeByID(e.ChildID)
		parent, _ := g.NodeByID(e.ParentID)
		if child == nil || parent == nil {
			continue
		}
		childID, ok1 := idByName[child.Name]
		parentID, ok2 := idByName[parent.Name]
		if !ok1 || !ok2 {
			continue
		}
		rows = append(rows, &types.PathwayParent{
			ChildID:          childID,
			ParentID:         parentID,
			RelationshipKind: e.RelationshipKind,
			Confidence:       e.Confidence,
			IsPrimaryChain:   e.IsPrimaryChain,
		})
	}
	if err := deps.Parents.UpsertPairs(ctx, nil, rows); err != nil {
		return 0, fmt.Errorf("validate commit: persist edges: %w", err)
	}
	return len(rows), nil
}

func persistAssignments(ctx context.Context, deps ValidateCommitDeps, run *RunContext, idByName map[string]uuid.UUID) (int, error) {
	ids := make([]uuid.UUID, 0, len(run.Assignments))
	for id := range run.Assignments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	persisted := 0
	for _, id := range ids {
		a := run.Assignments[id]
		pathwayID, ok := idByName[a.PathwayName]
		if !ok {
			continue
		}
		if err := deps.Assignments.UpsertByInteractionID(ctx, nil, &types.PathwayInteraction{
			InteractionID: a.InteractionID,
			PathwayID:     pathwayID,
			RawName:       a.PathwayName,
			Confidence:    a.Confidence,
			Source:        a.Source,
		}); err != nil {
			return persisted, fmt.Errorf("validate commit: persist assignment %s: %w", a.InteractionID, err)
		}
		persisted++
	}
	return persisted, nil
}
