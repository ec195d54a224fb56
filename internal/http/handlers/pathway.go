package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	"github.com/yungbote/biopath-backend/internal/http/response"
	pathwaymod "github.com/yungbote/biopath-backend/internal/modules/pathway"
	pkgerrors "github.com/yungbote/biopath-backend/internal/pkg/errors"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

// PathwayHandler serves read-only views of the persisted hierarchy. Each
// request rebuilds the in-memory graph from Postgres; the tree is small
// relative to request volume and this keeps the handler stateless.
type PathwayHandler struct {
	log   *logger.Logger
	cfg   *app.Config
	repos *repos.All
}

func NewPathwayHandler(log *logger.Logger, cfg *app.Config, all *repos.All) *PathwayHandler {
	return &PathwayHandler{log: log.With("handler", "PathwayHandler"), cfg: cfg, repos: all}
}

type pathwayNodeView struct {
	Name         string   `json:"name"`
	Kind         string   `json:"kind"`
	Level        int      `json:"level"`
	Confidence   float64  `json:"confidence"`
	Provenance   string   `json:"provenance"`
	OntologyID   string   `json:"ontology_id,omitempty"`
	Interactions int      `json:"interactions"`
	Parents      []string `json:"parents,omitempty"`
}

func (h *PathwayHandler) ListPathways(c *gin.Context) {
	graph, err := pathwaymod.LoadGraph(c.Request.Context(), h.cfg, h.repos.Pathway, h.repos.PathwayParent, h.repos.Assignment)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "pathway_load_failed", err)
		return
	}
	out := make([]pathwayNodeView, 0)
	for _, n := range graph.Nodes() {
		view := pathwayNodeView{
			Name:         n.Name,
			Kind:         n.Kind,
			Level:        n.Level,
			Confidence:   n.Confidence,
			Provenance:   n.Provenance,
			OntologyID:   n.OntologyID,
			Interactions: graph.InteractionCount(n.ID),
		}
		for _, p := range graph.Parents(n.ID) {
			view.Parents = append(view.Parents, p.Name)
		}
		out = append(out, view)
	}
	response.RespondOK(c, gin.H{"pathways": out})
}

func (h *PathwayHandler) GetTree(c *gin.Context) {
	graph, err := pathwaymod.LoadGraph(c.Request.Context(), h.cfg, h.repos.Pathway, h.repos.PathwayParent, h.repos.Assignment)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "pathway_load_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"tree": graph.FormatTree()})
}

func (h *PathwayHandler) GetValidation(c *gin.Context) {
	graph, err := pathwaymod.LoadGraph(c.Request.Context(), h.cfg, h.repos.Pathway, h.repos.PathwayParent, h.repos.Assignment)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "pathway_load_failed", err)
		return
	}
	report := graph.Validate()
	response.RespondOK(c, gin.H{
		"issues":   report.Issues,
		"errors":   len(report.Errors()),
		"warnings": len(report.Warnings()),
	})
}

func (h *PathwayHandler) GetAssignment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_interaction_id", err)
		return
	}
	rows, err := h.repos.Assignment.GetByInteractionIDs(c.Request.Context(), nil, []uuid.UUID{id})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "assignment_load_failed", err)
		return
	}
	if len(rows) == 0 {
		response.RespondError(c, http.StatusNotFound, "assignment_not_found", pkgerrors.ErrNotFound)
		return
	}
	row := rows[0]
	pw, err := h.repos.Pathway.GetByID(c.Request.Context(), nil, row.PathwayID)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "pathway_load_failed", err)
		return
	}
	payload := gin.H{
		"interaction_id": row.InteractionID,
		"confidence":     row.Confidence,
		"source":         row.Source,
	}
	if pw != nil {
		payload["pathway"] = pw.Name
	}
	response.RespondOK(c, payload)
}
