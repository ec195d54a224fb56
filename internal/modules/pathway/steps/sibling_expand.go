package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/hierarchy"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type SiblingExpandDeps struct {
	Log   *logger.Logger
	AI    gemini.Client
	Cfg   *app.Config
	Graph *hierarchy.Graph
}

type SiblingExpandInput struct {
	Run *RunContext
}

type SiblingExpandOutput struct {
	Pairs    int
	Inserted int
	Skipped  int
	Failed   int
}

// SiblingExpandStep widens the tree around every chain built this run. For
// each parent/child link the oracle proposes other direct children of the
// parent alongside the known child. Proposals never recurse: an inserted
// sibling is not itself expanded, and parents already at the sibling cap are
// left alone.
func SiblingExpandStep(ctx context.Context, deps SiblingExpandDeps, in SiblingExpandInput) (SiblingExpandOutput, error) {
	if deps.Log == nil || deps.AI == nil || deps.Cfg == nil || deps.Graph == nil {
		return SiblingExpandOutput{}, fmt.Errorf("sibling expand: missing deps")
	}
	if in.Run == nil {
		return SiblingExpandOutput{}, fmt.Errorf("sibling expand: missing run context")
	}
	log := deps.Log.With("step", "SiblingExpand")
	out := SiblingExpandOutput{}

	type pair struct{ parent, child string }
	seen := map[pair]bool{}
	var pairs []pair

	chainNames := make([]string, 0, len(in.Run.Chains))
	for name := range in.Run.Chains {
		chainNames = append(chainNames, name)
	}
	sort.Strings(chainNames)
	for _, name := range chainNames {
		chain := in.Run.Chains[name]
		for i := 0; i+1 < len(chain); i++ {
			p := pair{parent: chain[i], child: chain[i+1]}
			if !seen[p] {
				seen[p] = true
				pairs = append(pairs, p)
			}
		}
	}
	out.Pairs = len(pairs)

	for _, p := range pairs {
		existing := deps.Graph.ChildNames(p.parent)
		if len(existing) >= deps.Cfg.MaxSiblingsPerLevel {
			out.Skipped++
			continue
		}

		res, err := siblingCall(ctx, deps, p.parent, p.child, existing)
		if err != nil {
			if gemini.IsUnavailable(err) {
				return out, err
			}
			log.Warn("sibling expansion failed", "parent", p.parent, "child", p.child, "error", err)
			out.Failed++
			continue
		}

		budget := deps.Cfg.MaxSiblingsPerLevel - len(existing)
		for _, name := range res.Siblings {
			if budget <= 0 {
				break
			}
			if name == p.parent || name == p.child || deps.Cfg.IsRoot(name) {
				continue
			}
			_, created, err := deps.Graph.InsertSibling(p.parent, name, res.Confidence)
			if err != nil {
				log.Warn("sibling insert rejected", "parent", p.parent, "sibling", name, "error", err)
				continue
			}
			if created {
				out.Inserted++
				budget--
			}
		}
	}

	log.Info("sibling expansion complete",
		"pairs", out.Pairs, "inserted", out.Inserted,
		"skipped", out.Skipped, "failed", out.Failed)
	return out, nil
}

func siblingCall(ctx context.Context, deps SiblingExpandDeps, parent, child string, existing []string) (SiblingResult, error) {
	p, err := prompts.Build(prompts.PromptSiblingExpand, prompts.Input{
		ParentName:       parent,
		MainChildName:    child,
		ExistingChildren: existing,
		MaxSiblings:      deps.Cfg.MaxSiblingsPerLevel,
	})
	if err != nil {
		return SiblingResult{}, err
	}
	data, err := deps.AI.GenerateJSON(ctx, p.System, p.User, gemini.CallOptions{
		AllowSearch: true,
		Stage:       "sibling",
	})
	if err != nil {
		return SiblingResult{}, err
	}
	res, err := parseSiblingResult(data)
	if err != nil {
		return SiblingResult{}, err
	}
	// The prompt lists the known children, but the model may echo them.
	known := map[string]bool{parent: true, child: true}
	for _, e := range existing {
		known[e] = true
	}
	filtered := res.Siblings[:0]
	for _, s := range res.Siblings {
		if !known[s] {
			filtered = append(filtered, s)
		}
	}
	res.Siblings = filtered
	return res, nil
}
