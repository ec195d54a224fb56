package steps

import (
	"context"
	"fmt"
	"strings"

	types "github.com/yungbote/biopath-backend/internal/domain"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	"github.com/yungbote/biopath-backend/internal/hierarchy"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type ChainBuildDeps struct {
	Log     *logger.Logger
	AI      gemini.Client
	Cfg     *app.Config
	Graph   *hierarchy.Graph
	History repos.ChainHistoryRepo
}

type ChainBuildInput struct {
	Run *RunContext

	// Interactions supplies biological context samples for chain prompts.
	Interactions []*types.Interaction
}

type ChainBuildOutput struct {
	Names         int
	FromHistory   int
	Attached      int
	FromOracle    int
	Failed        int
	LowConfidence int
	Warnings      []string
}

// ChainBuildStep places every assigned canonical name into the hierarchy by
// resolving a root-to-name parent chain. Resolution order: the persisted
// chain history, then a chain already built this run that passes through the
// name, then the oracle. A name whose every source fails stays unplaced and
// is recorded for the next run; the graph is never mutated with a chain that
// failed validation.
func ChainBuildStep(ctx context.Context, deps ChainBuildDeps, in ChainBuildInput) (ChainBuildOutput, error) {
	if deps.Log == nil || deps.AI == nil || deps.Cfg == nil || deps.Graph == nil || deps.History == nil {
		return ChainBuildOutput{}, fmt.Errorf("chain build: missing deps")
	}
	if in.Run == nil {
		return ChainBuildOutput{}, fmt.Errorf("chain build: missing run context")
	}
	log := deps.Log.With("step", "ChainBuild")
	out := ChainBuildOutput{}

	contextByName := interactionSamples(in.Run, in.Interactions, deps.Cfg.ChainContextSampleSize)

	for _, name := range in.Run.AssignedNames() {
		if deps.Cfg.IsRoot(name) {
			continue
		}
		if deps.Graph.HasPrimaryParent(name) {
			continue
		}
		out.Names++

		chain, source, conf, err := resolveChain(ctx, deps, in.Run, name, contextByName[name])
		if err != nil {
			if gemini.IsUnavailable(err) {
				return out, err
			}
			log.Warn("chain resolution failed, name stays unplaced", "pathway", name, "error", err)
			in.Run.FailedChains = append(in.Run.FailedChains, name)
			out.Failed++
			continue
		}

		chain, warns, err := sanitizeChain(deps.Cfg, chain, name)
		out.Warnings = append(out.Warnings, warns...)
		if err != nil {
			log.Warn("chain rejected", "pathway", name, "error", err)
			in.Run.FailedChains = append(in.Run.FailedChains, name)
			out.Failed++
			continue
		}
		if conf < deps.Cfg.MinConfidenceHierarchy {
			log.Warn("chain accepted below the hierarchy confidence threshold",
				"pathway", name, "confidence", conf)
			out.LowConfidence++
		}

		mergeWarns, err := deps.Graph.MergeChain(chain, conf)
		out.Warnings = append(out.Warnings, mergeWarns...)
		if err != nil {
			log.Warn("chain merge rejected", "pathway", name, "error", err)
			in.Run.FailedChains = append(in.Run.FailedChains, name)
			out.Failed++
			continue
		}

		in.Run.Chains[name] = chain
		switch source {
		case types.ChainSourceHistory:
			out.FromHistory++
		case types.ChainSourceAttached:
			out.Attached++
			// An attached prefix is a resolution too; record it so the next
			// run finds the name in history directly.
			if err := deps.History.Upsert(ctx, nil, &types.PathwayChainHistory{
				CanonicalName: name,
				Chain:         mustJSON(chain),
				Source:        types.ChainSourceAttached,
			}); err != nil {
				return out, fmt.Errorf("chain build: persist history for %q: %w", name, err)
			}
		default:
			out.FromOracle++
			if err := deps.History.Upsert(ctx, nil, &types.PathwayChainHistory{
				CanonicalName: name,
				Chain:         mustJSON(chain),
				Source:        types.ChainSourceOracle,
			}); err != nil {
				return out, fmt.Errorf("chain build: persist history for %q: %w", name, err)
			}
		}
	}

	log.Info("chain building complete",
		"names", out.Names, "from_history", out.FromHistory, "attached", out.Attached,
		"from_oracle", out.FromOracle, "failed", out.Failed,
		"low_confidence", out.LowConfidence, "warnings", len(out.Warnings))
	return out, nil
}

func resolveChain(ctx context.Context, deps ChainBuildDeps, run *RunContext, name string, sample []prompts.InteractionContext) ([]string, string, float64, error) {
	row, err := deps.History.GetByCanonicalName(ctx, nil, name)
	if err != nil {
		return nil, "", 0, fmt.Errorf("history lookup for %q: %w", name, err)
	}
	if row != nil {
		if chain := decodeChain(row.Chain); len(chain) > 0 {
			return chain, types.ChainSourceHistory, 1, nil
		}
	}

	if chain := run.ChainContaining(name); len(chain) > 0 {
		return chain, types.ChainSourceAttached, 1, nil
	}
	if deps.Cfg.AttachFromPersistedChains {
		chain, err := attachFromPersisted(ctx, deps, name)
		if err != nil {
			return nil, "", 0, err
		}
		if len(chain) > 0 {
			return chain, types.ChainSourceAttached, 1, nil
		}
	}

	p, err := prompts.Build(prompts.PromptChainBuild, prompts.Input{
		PathwayName:    name,
		RootCategories: deps.Cfg.RootNames(),
		MaxDepth:       deps.Cfg.MaxHierarchyDepth,
		Interactions:   sample,
	})
	if err != nil {
		return nil, "", 0, err
	}
	data, err := deps.AI.GenerateJSON(ctx, p.System, p.User, gemini.CallOptions{
		AllowSearch: true,
		Stage:       "chain",
	})
	if err != nil {
		return nil, "", 0, err
	}
	res, err := parseChainResult(data)
	if err != nil {
		return nil, "", 0, err
	}
	return res.Chain, types.ChainSourceOracle, res.Confidence, nil
}

// attachFromPersisted scans chains persisted by earlier runs for one that
// passes through name, reusing its prefix.
func attachFromPersisted(ctx context.Context, deps ChainBuildDeps, name string) ([]string, error) {
	rows, err := deps.History.GetAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		chain := decodeChain(row.Chain)
		for i, el := range chain {
			if el == name {
				return append([]string(nil), chain[:i+1]...), nil
			}
		}
	}
	return nil, nil
}

// sanitizeChain enforces the structural rules on a resolved chain before it
// touches the graph. A chain not starting at a configured root is rejected
// outright. A chain that stops just short of the target gets the target
// appended. A chain over the depth cap is truncated so the target stays
// terminal.
func sanitizeChain(cfg *app.Config, chain []string, name string) ([]string, []string, error) {
	var warnings []string

	cleaned := make([]string, 0, len(chain))
	for _, el := range chain {
		el = strings.TrimSpace(el)
		if el != "" {
			cleaned = append(cleaned, el)
		}
	}
	if len(cleaned) == 0 {
		return nil, warnings, fmt.Errorf("empty chain for %q", name)
	}
	if !cfg.IsRoot(cleaned[0]) {
		return nil, warnings, fmt.Errorf("chain for %q starts at %q, not a root category", name, cleaned[0])
	}
	if cleaned[len(cleaned)-1] != name {
		cleaned = append(cleaned, name)
		warnings = append(warnings, fmt.Sprintf("chain for %q did not terminate at the target, appended", name))
	}
	if len(cleaned) > cfg.MaxHierarchyDepth {
		keep := cfg.MaxHierarchyDepth - 1
		cleaned = append(append([]string(nil), cleaned[:keep]...), name)
		warnings = append(warnings, fmt.Sprintf("chain for %q exceeded the depth cap of %d, truncated", name, cfg.MaxHierarchyDepth))
	}
	return cleaned, warnings, nil
}

// interactionSamples picks up to limit interactions per assigned pathway
// name, used as biological context in chain prompts.
func interactionSamples(run *RunContext, rows []*types.Interaction, limit int) map[string][]prompts.InteractionContext {
	if limit <= 0 {
		limit = 5
	}
	byID := map[string]*types.Interaction{}
	for _, r := range rows {
		if r != nil {
			byID[r.ID.String()] = r
		}
	}
	grouped := map[string][]*types.Interaction{}
	for id, a := range run.Assignments {
		if len(grouped[a.PathwayName]) >= limit {
			continue
		}
		if row, ok := byID[id.String()]; ok {
			grouped[a.PathwayName] = append(grouped[a.PathwayName], row)
		}
	}
	out := map[string][]prompts.InteractionContext{}
	for name, batch := range grouped {
		out[name] = interactionContexts(batch, 200)
	}
	return out
}
