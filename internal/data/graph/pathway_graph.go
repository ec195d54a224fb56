package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/biopath-backend/internal/hierarchy"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
	"github.com/yungbote/biopath-backend/internal/platform/neo4jdb"
)

// PathwayGraph mirrors the pathway DAG into Neo4j for traversal queries.
// The mirror is derived data; Postgres stays the source of truth.
type PathwayGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewPathwayGraph(client *neo4jdb.Client, log *logger.Logger) *PathwayGraph {
	return &PathwayGraph{client: client, log: log.With("service", "PathwayGraph")}
}

// Enabled reports whether a Neo4j client is wired.
func (g *PathwayGraph) Enabled() bool {
	return g != nil && g.client != nil
}

// EnsureConstraints creates the uniqueness constraint on pathway names.
func (g *PathwayGraph) EnsureConstraints(ctx context.Context) error {
	if !g.Enabled() {
		return nil
	}
	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			CREATE CONSTRAINT pathway_name_unique IF NOT EXISTS
			FOR (p:Pathway) REQUIRE p.name IS UNIQUE
		`, nil)
	})
	if err != nil {
		return fmt.Errorf("graph: ensure constraints: %w", err)
	}
	return nil
}

// Sync upserts every node and parent edge of the hierarchy into the mirror.
// Existing mirror nodes absent from the hierarchy are detached and deleted,
// so a pruned pathway disappears from the mirror too.
func (g *PathwayGraph) Sync(ctx context.Context, h *hierarchy.Graph) error {
	if !g.Enabled() {
		return nil
	}
	if h == nil {
		return fmt.Errorf("graph: nil hierarchy")
	}

	nodeRows := make([]map[string]any, 0)
	names := make([]string, 0)
	for _, n := range h.Nodes() {
		nodeRows = append(nodeRows, map[string]any{
			"name":         n.Name,
			"kind":         n.Kind,
			"level":        n.Level,
			"confidence":   n.Confidence,
			"provenance":   n.Provenance,
			"ontology_id":  n.OntologyID,
			"interactions": h.InteractionCount(n.ID),
		})
		names = append(names, n.Name)
	}

	edgeRows := make([]map[string]any, 0)
	for _, e := range h.Edges() {
		child, _ := h.NodeByID(e.ChildID)
		parent, _ := h.NodeByID(e.ParentID)
		if child == nil || parent == nil {
			continue
		}
		edgeRows = append(edgeRows, map[string]any{
			"child":      child.Name,
			"parent":     parent.Name,
			"primary":    e.IsPrimaryChain,
			"confidence": e.Confidence,
		})
	}

	session := g.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.client.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MERGE (p:Pathway {name: row.name})
			SET p.kind = row.kind,
			    p.level = row.level,
			    p.confidence = row.confidence,
			    p.provenance = row.provenance,
			    p.ontology_id = row.ontology_id,
			    p.interactions = row.interactions
		`, map[string]any{"rows": nodeRows}); err != nil {
			return nil, err
		}

		if _, err := tx.Run(ctx, `
			UNWIND $rows AS row
			MATCH (c:Pathway {name: row.child})
			MATCH (p:Pathway {name: row.parent})
			MERGE (c)-[r:CHILD_OF]->(p)
			SET r.is_primary_chain = row.primary,
			    r.confidence = row.confidence
		`, map[string]any{"rows": edgeRows}); err != nil {
			return nil, err
		}

		if _, err := tx.Run(ctx, `
			MATCH (p:Pathway)
			WHERE NOT p.name IN $names
			DETACH DELETE p
		`, map[string]any{"names": names}); err != nil {
			return nil, err
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("graph: sync mirror: %w", err)
	}

	g.log.Info("pathway mirror synced", "nodes", len(nodeRows), "edges", len(edgeRows))
	return nil
}
