package steps

import (
	"context"
	"fmt"

	types "github.com/yungbote/biopath-backend/internal/domain"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/hierarchy"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type RefineAssignDeps struct {
	Log   *logger.Logger
	AI    gemini.Client
	Cfg   *app.Config
	Graph *hierarchy.Graph
}

type RefineAssignInput struct {
	Run          *RunContext
	Interactions []*types.Interaction
}

type RefineAssignOutput struct {
	Processed    int
	Reassigned   int
	KeptPrior    int
	OutOfSet     int
	SubThreshold int
}

// RefineAssignStep re-evaluates every interaction against the closed
// vocabulary of canonical names from the first two stages. The oracle must
// pick verbatim from that vocabulary; an answer outside it keeps the prior
// assignment. Small sequential batches keep each call's vocabulary and
// interaction list well inside the model's attention span.
func RefineAssignStep(ctx context.Context, deps RefineAssignDeps, in RefineAssignInput) (RefineAssignOutput, error) {
	if deps.Log == nil || deps.AI == nil || deps.Cfg == nil || deps.Graph == nil {
		return RefineAssignOutput{}, fmt.Errorf("refine assign: missing deps")
	}
	if in.Run == nil {
		return RefineAssignOutput{}, fmt.Errorf("refine assign: missing run context")
	}
	log := deps.Log.With("step", "RefineAssign")
	out := RefineAssignOutput{}

	vocabulary := in.Run.AssignedNames()
	if len(vocabulary) == 0 {
		return out, nil
	}
	inSet := map[string]bool{}
	for _, name := range vocabulary {
		inSet[name] = true
	}

	for _, batch := range batchSlices(in.Interactions, deps.Cfg.RefinementBatchSize) {
		results, err := refineAssignCall(ctx, deps, batch, vocabulary)
		if err != nil {
			if gemini.IsUnavailable(err) {
				return out, err
			}
			log.Warn("refinement batch failed, keeping prior assignments",
				"batch_size", len(batch), "error", err)
			out.Processed += len(batch)
			out.KeptPrior += len(batch)
			continue
		}

		for _, row := range batch {
			out.Processed++
			prior := in.Run.Assignments[row.ID]
			res, ok := results[row.ID.String()]
			if !ok {
				out.KeptPrior++
				continue
			}
			if !inSet[res.Pathway] {
				log.Warn("refinement answer outside the vocabulary, keeping prior",
					"interaction_id", row.ID, "pathway", res.Pathway)
				out.OutOfSet++
				continue
			}
			if res.Confidence < deps.Cfg.MinConfidenceRefinement {
				out.SubThreshold++
				if deps.Cfg.RejectBelowConfidence {
					continue
				}
			}
			if prior != nil && prior.PathwayName == res.Pathway {
				prior.Confidence = res.Confidence
				prior.Source = types.AssignmentSourceRefinement
				continue
			}
			in.Run.Assignments[row.ID] = &Assignment{
				InteractionID: row.ID,
				PathwayName:   res.Pathway,
				Confidence:    res.Confidence,
				Source:        types.AssignmentSourceRefinement,
			}
			out.Reassigned++
		}
	}

	// Every assigned name gets a node now, at pending level until chain
	// building roots it. Names that stay unrooted fall to the orphan repair
	// at commit time instead of dangling.
	for _, a := range in.Run.Assignments {
		if _, err := deps.Graph.EnsureNode(a.PathwayName, hierarchy.KindMain, hierarchy.ProvenanceOracle, a.Confidence); err != nil {
			return out, fmt.Errorf("refine assign: ensure node %q: %w", a.PathwayName, err)
		}
	}

	log.Info("refinement complete",
		"processed", out.Processed, "reassigned", out.Reassigned,
		"kept_prior", out.KeptPrior, "out_of_set", out.OutOfSet,
		"sub_threshold", out.SubThreshold)
	return out, nil
}

func refineAssignCall(ctx context.Context, deps RefineAssignDeps, batch []*types.Interaction, vocabulary []string) (map[string]AssignmentResult, error) {
	p, err := prompts.Build(prompts.PromptRefineAssign, prompts.Input{
		Interactions:   interactionContexts(batch, 300),
		CandidateNames: vocabulary,
	})
	if err != nil {
		return nil, err
	}
	data, err := deps.AI.GenerateJSON(ctx, p.System, p.User, gemini.CallOptions{Stage: "refine"})
	if err != nil {
		return nil, err
	}
	assignments, err := parseAssignmentResults(data, len(batch))
	if err != nil {
		return nil, err
	}
	out := map[string]AssignmentResult{}
	for _, a := range assignments {
		out[batch[a.Index].ID.String()] = a
	}
	return out, nil
}
