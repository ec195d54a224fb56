package steps

import (
	"context"
	"fmt"
	"sort"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type NormalizeNamesDeps struct {
	Log   *logger.Logger
	AI    gemini.Client
	Cfg   *app.Config
	Names repos.CanonicalNameRepo
}

type NormalizeNamesInput struct {
	Run *RunContext
}

type NormalizeNamesOutput struct {
	RawNames   int
	Reused     int
	Clusters   int
	Confirmed  int
	Fallback   int
	Canonicals int
}

// NormalizeNamesStep collapses the raw pathway names produced by the coarse
// pass into canonical names. Names already mapped in prior runs keep their
// mapping. The rest are clustered by normalized string similarity; clusters
// with more than one member go to the oracle, which may split a cluster into
// several true-synonym groups. When the oracle cannot answer, the
// lexicographically smallest member stands in as the canonical.
func NormalizeNamesStep(ctx context.Context, deps NormalizeNamesDeps, in NormalizeNamesInput) (NormalizeNamesOutput, error) {
	if deps.Log == nil || deps.AI == nil || deps.Cfg == nil || deps.Names == nil {
		return NormalizeNamesOutput{}, fmt.Errorf("normalize names: missing deps")
	}
	if in.Run == nil {
		return NormalizeNamesOutput{}, fmt.Errorf("normalize names: missing run context")
	}
	log := deps.Log.With("step", "NormalizeNames")
	out := NormalizeNamesOutput{}

	rawNames := in.Run.AssignedNames()
	out.RawNames = len(rawNames)
	if len(rawNames) == 0 {
		return out, nil
	}

	// Mappings are append-only across runs; reuse whatever already exists.
	existingRows, err := deps.Names.GetByRawNames(ctx, nil, rawNames)
	if err != nil {
		return out, fmt.Errorf("normalize names: load mappings: %w", err)
	}
	existing := make(map[string]string, len(existingRows))
	for _, row := range existingRows {
		existing[row.RawName] = row.CanonicalName
	}
	var pending []string
	for _, raw := range rawNames {
		if canonical, ok := existing[raw]; ok {
			in.Run.CanonicalNames[raw] = canonical
			out.Reused++
			continue
		}
		pending = append(pending, raw)
	}

	clusters := groupSimilarNames(pending, deps.Cfg.FuzzyMatchThreshold)
	out.Clusters = len(clusters)

	newMappings := map[string]string{}
	for _, cluster := range clusters {
		if len(cluster) == 1 {
			newMappings[cluster[0]] = cluster[0]
			continue
		}
		groups, err := confirmSynonyms(ctx, deps, cluster)
		if err != nil {
			if gemini.IsUnavailable(err) {
				return out, err
			}
			// Treat the whole cluster as one group under a deterministic
			// canonical so the run can proceed.
			sorted := append([]string(nil), cluster...)
			sort.Strings(sorted)
			log.Warn("synonym confirmation failed, collapsing cluster deterministically",
				"members", len(cluster), "canonical", sorted[0], "error", err)
			for _, m := range cluster {
				newMappings[m] = sorted[0]
			}
			out.Fallback++
			continue
		}
		for _, g := range groups {
			for _, m := range g.Members {
				newMappings[m] = g.Canonical
			}
		}
		out.Confirmed++
	}

	// Persist new mappings and apply the full mapping to the run.
	var rows []*types.PathwayCanonicalName
	for raw, canonical := range newMappings {
		in.Run.CanonicalNames[raw] = canonical
		rows = append(rows, &types.PathwayCanonicalName{RawName: raw, CanonicalName: canonical})
		// A canonical name is its own canonical form.
		if raw != canonical {
			in.Run.CanonicalNames[canonical] = canonical
			rows = append(rows, &types.PathwayCanonicalName{RawName: canonical, CanonicalName: canonical})
		}
	}
	for _, batch := range batchSlices(rows, deps.Cfg.NormalizeBatchSize) {
		if err := deps.Names.CreateMissing(ctx, nil, batch); err != nil {
			return out, fmt.Errorf("normalize names: persist mappings: %w", err)
		}
	}

	seen := map[string]bool{}
	for _, a := range in.Run.Assignments {
		a.PathwayName = in.Run.Canonical(a.PathwayName)
		seen[a.PathwayName] = true
	}
	out.Canonicals = len(seen)

	log.Info("name normalization complete",
		"raw", out.RawNames, "reused", out.Reused, "clusters", out.Clusters,
		"confirmed", out.Confirmed, "fallback", out.Fallback, "canonicals", out.Canonicals)
	return out, nil
}

func confirmSynonyms(ctx context.Context, deps NormalizeNamesDeps, cluster []string) ([]SynonymGroup, error) {
	p, err := prompts.Build(prompts.PromptSynonymConfirm, prompts.Input{
		ClusterMembers: cluster,
	})
	if err != nil {
		return nil, err
	}
	data, err := deps.AI.GenerateJSON(ctx, p.System, p.User, gemini.CallOptions{Stage: "normalize"})
	if err != nil {
		return nil, err
	}
	return parseSynonymGroups(data, cluster)
}
