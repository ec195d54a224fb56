package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

// StageCoarse is the ledger key for the coarse assignment pass.
const StageCoarse = "coarse_assign"

// fallbackPathwayName is assigned when the oracle cannot produce a usable
// name for an interaction. Confidence 0; normalization and refinement get
// a chance to replace it later.
const fallbackPathwayName = "Uncharacterized Protein Interaction"

type CoarseAssignDeps struct {
	Log         *logger.Logger
	AI          gemini.Client
	Cfg         *app.Config
	Checkpoints repos.CheckpointRepo
}

type CoarseAssignInput struct {
	Run          *RunContext
	Interactions []*types.Interaction
}

type CoarseAssignOutput struct {
	Processed int
	Assigned  int
	Fallback  int
	Skipped   int
}

type coarseDetail struct {
	Pathway    string  `json:"pathway"`
	Confidence float64 `json:"confidence"`
}

// CoarseAssignStep asks the oracle for the most specific plausible pathway
// name per interaction, batched. Batches are independent, so prompt
// building and calls run on a bounded worker pool; the oracle client
// serializes the actual calls. A batch that fails the requested shape is
// retried item by item; items that still fail get the deterministic
// fallback name.
func CoarseAssignStep(ctx context.Context, deps CoarseAssignDeps, in CoarseAssignInput) (CoarseAssignOutput, error) {
	if deps.Log == nil || deps.AI == nil || deps.Cfg == nil || deps.Checkpoints == nil {
		return CoarseAssignOutput{}, fmt.Errorf("coarse assign: missing deps")
	}
	if in.Run == nil {
		return CoarseAssignOutput{}, fmt.Errorf("coarse assign: missing run context")
	}
	log := deps.Log.With("step", "CoarseAssign")

	ledger, err := deps.Checkpoints.GetByStage(ctx, nil, StageCoarse)
	if err != nil {
		return CoarseAssignOutput{}, fmt.Errorf("coarse assign: load ledger: %w", err)
	}
	done := make(map[string]datatypes.JSON, len(ledger))
	for _, row := range ledger {
		if row.Status == types.CheckpointStatusDone {
			done[row.UnitKey] = row.Detail
		}
	}

	batches := batchSlices(in.Interactions, deps.Cfg.CoarseBatchSize)

	var (
		mu  sync.Mutex
		out CoarseAssignOutput
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := deps.Cfg.CoarseWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for bi, batch := range batches {
		unitKey := fmt.Sprintf("batch:%04d", bi)
		if detail, ok := done[unitKey]; ok {
			// A completed batch's assignments come back from its ledger row,
			// so a rerun sees them whether or not it resumed explicitly.
			mu.Lock()
			restoreCoarseDetail(in.Run, detail)
			out.Skipped += len(batch)
			mu.Unlock()
			continue
		}
		batch := batch
		g.Go(func() error {
			results, fallbacks, err := coarseAssignBatch(gctx, deps, batch)
			if err != nil {
				return err
			}

			detail := map[string]coarseDetail{}
			mu.Lock()
			for id, res := range results {
				in.Run.Assignments[id] = &Assignment{
					InteractionID: id,
					PathwayName:   res.Pathway,
					Confidence:    res.Confidence,
					Source:        types.AssignmentSourceCoarse,
				}
				detail[id.String()] = res
			}
			out.Processed += len(batch)
			out.Assigned += len(results) - fallbacks
			out.Fallback += fallbacks
			mu.Unlock()

			if err := deps.Checkpoints.MarkDone(gctx, nil, &types.PipelineCheckpoint{
				Stage:   StageCoarse,
				UnitKey: unitKey,
				Detail:  mustJSON(detail),
			}); err != nil {
				return fmt.Errorf("coarse assign: mark %s done: %w", unitKey, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	log.Info("coarse assignment complete",
		"processed", out.Processed, "assigned", out.Assigned,
		"fallback", out.Fallback, "skipped", out.Skipped)
	return out, nil
}

func coarseAssignBatch(ctx context.Context, deps CoarseAssignDeps, batch []*types.Interaction) (map[uuid.UUID]coarseDetail, int, error) {
	log := deps.Log.With("step", "CoarseAssign")
	results := map[uuid.UUID]coarseDetail{}

	parsed, err := coarseAssignCall(ctx, deps, batch)
	if err != nil {
		if gemini.IsUnavailable(err) {
			return nil, 0, err
		}
		// Shape violation on the whole batch: retry item by item.
		log.Warn("coarse batch failed, retrying per item", "error", err)
		for _, row := range batch {
			single, serr := coarseAssignCall(ctx, deps, []*types.Interaction{row})
			if serr != nil {
				if gemini.IsUnavailable(serr) {
					return nil, 0, serr
				}
				continue
			}
			if res, ok := single[row.ID]; ok {
				results[row.ID] = res
			}
		}
	} else {
		for id, res := range parsed {
			results[id] = res
		}
	}

	// Items the oracle skipped or answered unusably get the fallback name.
	// Root-category answers were already mapped to it in coarseAssignCall.
	fallbacks := 0
	for _, row := range batch {
		if _, ok := results[row.ID]; !ok {
			results[row.ID] = coarseDetail{Pathway: fallbackPathwayName, Confidence: 0}
		}
	}
	for _, res := range results {
		if res.Pathway == fallbackPathwayName {
			fallbacks++
		}
	}
	return results, fallbacks, nil
}

func coarseAssignCall(ctx context.Context, deps CoarseAssignDeps, batch []*types.Interaction) (map[uuid.UUID]coarseDetail, error) {
	p, err := prompts.Build(prompts.PromptCoarseAssign, prompts.Input{
		Interactions:   interactionContexts(batch, 300),
		RootCategories: deps.Cfg.RootNames(),
	})
	if err != nil {
		return nil, err
	}
	data, err := deps.AI.GenerateJSON(ctx, p.System, p.User, gemini.CallOptions{Stage: StageCoarse})
	if err != nil {
		return nil, err
	}
	assignments, err := parseAssignmentResults(data, len(batch))
	if err != nil {
		return nil, err
	}

	out := map[uuid.UUID]coarseDetail{}
	for _, a := range assignments {
		row := batch[a.Index]
		name := a.Pathway
		conf := a.Confidence
		// Root categories are too generic to be useful assignments.
		if deps.Cfg.IsRoot(name) {
			deps.Log.Warn("oracle answered with a root category, using fallback",
				"interaction_id", row.ID, "pathway", name)
			name = fallbackPathwayName
			conf = 0
		}
		out[row.ID] = coarseDetail{Pathway: name, Confidence: conf}
	}
	return out, nil
}

// ReloadCoarseResults restores coarse assignments from the ledger into the
// run context. Used by stage windows that start after the coarse pass, where
// CoarseAssignStep itself never runs.
func ReloadCoarseResults(ctx context.Context, checkpoints repos.CheckpointRepo, run *RunContext) error {
	rows, err := checkpoints.GetByStage(ctx, nil, StageCoarse)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if row.Status != types.CheckpointStatusDone {
			continue
		}
		restoreCoarseDetail(run, row.Detail)
	}
	return nil
}

// restoreCoarseDetail rehydrates one ledger row's assignments into the run.
func restoreCoarseDetail(run *RunContext, raw datatypes.JSON) int {
	if len(raw) == 0 {
		return 0
	}
	var detail map[string]coarseDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return 0
	}
	restored := 0
	for idStr, res := range detail {
		id, err := uuid.Parse(idStr)
		if err != nil || id == uuid.Nil {
			continue
		}
		run.Assignments[id] = &Assignment{
			InteractionID: id,
			PathwayName:   res.Pathway,
			Confidence:    res.Confidence,
			Source:        types.AssignmentSourceCoarse,
		}
		restored++
	}
	return restored
}
