package pathway

import (
	"context"
	"fmt"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	"github.com/yungbote/biopath-backend/internal/hierarchy"
)

// LoadGraph rebuilds the in-memory hierarchy from Postgres: configured
// roots first, then persisted nodes and edges, then live assignment counts
// when an assignment repo is supplied.
func LoadGraph(ctx context.Context, cfg *app.Config, pathways repos.PathwayRepo, parents repos.PathwayParentRepo, assignments repos.AssignmentRepo) (*hierarchy.Graph, error) {
	roots := make([]hierarchy.Root, 0, len(cfg.Roots))
	for _, r := range cfg.Roots {
		roots = append(roots, hierarchy.Root{Name: r.Name, OntologyID: r.OntologyID})
	}
	graph, err := hierarchy.NewGraph(roots, cfg.MaxHierarchyDepth)
	if err != nil {
		return nil, err
	}

	rows, err := pathways.GetAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load pathways: %w", err)
	}
	nameByID := map[string]string{}
	for _, row := range rows {
		chain := decodeStrings(row.OriginChain)
		if _, err := graph.RestoreNode(row.Name, row.Kind, row.Provenance, row.OntologyID, row.Level, chain, row.Confidence); err != nil {
			return nil, fmt.Errorf("restore node %q: %w", row.Name, err)
		}
		nameByID[row.ID.String()] = row.Name
	}

	edges, err := parents.GetAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	for _, e := range edges {
		child, ok1 := nameByID[e.ChildID.String()]
		parent, ok2 := nameByID[e.ParentID.String()]
		if !ok1 || !ok2 {
			continue
		}
		if err := graph.RestoreEdge(child, parent, e.IsPrimaryChain, e.Confidence); err != nil {
			return nil, fmt.Errorf("restore edge %q -> %q: %w", child, parent, err)
		}
	}

	if assignments != nil {
		counts, err := assignments.CountByPathwayID(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("load assignment counts: %w", err)
		}
		for id, count := range counts {
			name, ok := nameByID[id.String()]
			if !ok {
				continue
			}
			if n, ok := graph.NodeByName(name); ok {
				graph.SetInteractionCount(n.ID, count)
			}
		}
	}

	return graph, nil
}
