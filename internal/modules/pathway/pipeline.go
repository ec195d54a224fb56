package pathway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	datagraph "github.com/yungbote/biopath-backend/internal/data/graph"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	types "github.com/yungbote/biopath-backend/internal/domain"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/hierarchy"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/steps"
	"github.com/yungbote/biopath-backend/internal/ontology"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

// Stage names in execution order. Chain building runs twice: once after
// refinement and once after sibling expansion, to place names the first
// pass could not root. Evidence enrichment runs last: it annotates the
// interactions themselves and depends on nothing the commit produced.
const (
	StageScaffold = "scaffold"
	StageCoarse   = "coarse"
	StageNormal   = "normalize"
	StageRefine   = "refine"
	StageChain    = "chain"
	StageSibling  = "sibling"
	StageRechain  = "rechain"
	StageCommit   = "commit"
	StageEvidence = "evidence"
)

var stageOrder = []string{
	StageScaffold, StageCoarse, StageNormal, StageRefine,
	StageChain, StageSibling, StageRechain, StageCommit, StageEvidence,
}

type StageReport struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
	Detail   string        `json:"detail"`
	Skipped  bool          `json:"skipped,omitempty"`
}

type RunReport struct {
	Stages     []StageReport      `json:"stages"`
	Validation *hierarchy.Report  `json:"validation,omitempty"`
	Tree       string             `json:"tree,omitempty"`
	Failed     []string           `json:"failed_chains,omitempty"`
}

// RunOptions narrows a run to a stage window, for reruns after a halt.
type RunOptions struct {
	FromStage string
	ToStage   string

	// Resume reloads completed coarse batches from the ledger instead of
	// recomputing them.
	Resume bool
}

// Pipeline wires the full classification run: scaffold seeding, the coarse
// and refined assignment passes, name normalization, chain building,
// sibling expansion, the validate-and-commit, and the closing evidence
// fact-check over the interactions.
type Pipeline struct {
	log      *logger.Logger
	cfg      *app.Config
	ai       gemini.Client
	repos    *repos.All
	ontology ontology.Service
	mirror   *datagraph.PathwayGraph
}

func NewPipeline(log *logger.Logger, cfg *app.Config, ai gemini.Client, all *repos.All, onto ontology.Service, mirror *datagraph.PathwayGraph) (*Pipeline, error) {
	if log == nil || cfg == nil || ai == nil || all == nil {
		return nil, fmt.Errorf("pipeline: missing deps")
	}
	prompts.RegisterAll()
	return &Pipeline{
		log:      log.With("service", "PathwayPipeline"),
		cfg:      cfg,
		ai:       ai,
		repos:    all,
		ontology: onto,
		mirror:   mirror,
	}, nil
}

// Run executes the stage window against every stored interaction. An oracle
// outage (gemini.UnavailableError) halts the run; completed coarse batches
// survive in the ledger and a Resume run picks them back up.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	report := &RunReport{}

	window, err := stageWindow(opts.FromStage, opts.ToStage)
	if err != nil {
		return nil, err
	}

	interactions, err := p.repos.Interaction.GetAll(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load interactions: %w", err)
	}
	if len(interactions) == 0 {
		p.log.Warn("no interactions stored, nothing to classify")
		return report, nil
	}
	p.log.Info("pipeline starting", "interactions", len(interactions),
		"from", window[0], "to", window[len(window)-1])

	graph, err := LoadGraph(ctx, p.cfg, p.repos.Pathway, p.repos.PathwayParent, nil)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load graph: %w", err)
	}

	run := steps.NewRunContext()
	if opts.Resume {
		if err := steps.ReloadCoarseResults(ctx, p.repos.Checkpoint, run); err != nil {
			return nil, fmt.Errorf("pipeline: reload coarse results: %w", err)
		}
		p.log.Info("resumed coarse results from ledger", "assignments", len(run.Assignments))
	}

	active := map[string]bool{}
	for _, s := range window {
		active[s] = true
	}

	for _, stage := range stageOrder {
		if !active[stage] {
			report.Stages = append(report.Stages, StageReport{Stage: stage, Skipped: true})
			continue
		}
		start := time.Now()
		detail, err := p.runStage(ctx, stage, graph, run, interactions, report)
		report.Stages = append(report.Stages, StageReport{
			Stage:    stage,
			Duration: time.Since(start),
			Detail:   detail,
		})
		if err != nil {
			if gemini.IsUnavailable(err) {
				p.log.Error("oracle unavailable, halting run", "stage", stage, "error", err)
			}
			return report, fmt.Errorf("pipeline: stage %s: %w", stage, err)
		}
	}

	report.Failed = run.FailedChains
	if active[StageCommit] {
		report.Tree = graph.FormatTree()
	}
	return report, nil
}

func (p *Pipeline) runStage(ctx context.Context, stage string, graph *hierarchy.Graph, run *steps.RunContext, interactions []*types.Interaction, report *RunReport) (string, error) {
	switch stage {
	case StageScaffold:
		out, err := steps.ScaffoldSeedStep(ctx, steps.ScaffoldSeedDeps{
			Log: p.log, Cfg: p.cfg, Graph: graph, Ontology: p.ontology,
		}, struct{}{})
		return fmt.Sprintf("seeded=%d", out.Seeded), err

	case StageCoarse:
		out, err := steps.CoarseAssignStep(ctx, steps.CoarseAssignDeps{
			Log: p.log, AI: p.ai, Cfg: p.cfg, Checkpoints: p.repos.Checkpoint,
		}, steps.CoarseAssignInput{Run: run, Interactions: interactions})
		return fmt.Sprintf("processed=%d assigned=%d fallback=%d skipped=%d",
			out.Processed, out.Assigned, out.Fallback, out.Skipped), err

	case StageNormal:
		out, err := steps.NormalizeNamesStep(ctx, steps.NormalizeNamesDeps{
			Log: p.log, AI: p.ai, Cfg: p.cfg, Names: p.repos.CanonicalName,
		}, steps.NormalizeNamesInput{Run: run})
		return fmt.Sprintf("raw=%d reused=%d clusters=%d canonicals=%d",
			out.RawNames, out.Reused, out.Clusters, out.Canonicals), err

	case StageRefine:
		out, err := steps.RefineAssignStep(ctx, steps.RefineAssignDeps{
			Log: p.log, AI: p.ai, Cfg: p.cfg, Graph: graph,
		}, steps.RefineAssignInput{Run: run, Interactions: interactions})
		return fmt.Sprintf("processed=%d reassigned=%d out_of_set=%d",
			out.Processed, out.Reassigned, out.OutOfSet), err

	case StageChain, StageRechain:
		out, err := steps.ChainBuildStep(ctx, steps.ChainBuildDeps{
			Log: p.log, AI: p.ai, Cfg: p.cfg, Graph: graph, History: p.repos.ChainHistory,
		}, steps.ChainBuildInput{Run: run, Interactions: interactions})
		return fmt.Sprintf("names=%d history=%d attached=%d oracle=%d failed=%d",
			out.Names, out.FromHistory, out.Attached, out.FromOracle, out.Failed), err

	case StageSibling:
		out, err := steps.SiblingExpandStep(ctx, steps.SiblingExpandDeps{
			Log: p.log, AI: p.ai, Cfg: p.cfg, Graph: graph,
		}, steps.SiblingExpandInput{Run: run})
		return fmt.Sprintf("pairs=%d inserted=%d", out.Pairs, out.Inserted), err

	case StageEvidence:
		out, err := steps.EvidenceEnrichStep(ctx, steps.EvidenceEnrichDeps{
			Log: p.log, AI: p.ai, Cfg: p.cfg, Interactions: p.repos.Interaction,
		}, steps.EvidenceEnrichInput{Interactions: interactions})
		return fmt.Sprintf("processed=%d validated=%d rejected=%d kept=%d",
			out.Processed, out.Validated, out.Rejected, out.KeptPrior), err

	case StageCommit:
		out, err := steps.ValidateCommitStep(ctx, steps.ValidateCommitDeps{
			Log: p.log, Cfg: p.cfg, Graph: graph,
			Pathways:    p.repos.Pathway,
			Parents:     p.repos.PathwayParent,
			Assignments: p.repos.Assignment,
			Mirror:      p.mirror,
		}, steps.ValidateCommitInput{Run: run, Interactions: interactions})
		report.Validation = out.Report
		return fmt.Sprintf("nodes=%d edges=%d assignments=%d pruned=%d errors=%d",
			out.NodesPersisted, out.EdgesPersisted, out.AssignmentsPersisted,
			len(out.Pruned), issueErrors(out.Report)), err

	default:
		return "", fmt.Errorf("unknown stage %q", stage)
	}
}

func issueErrors(r *hierarchy.Report) int {
	if r == nil {
		return 0
	}
	return len(r.Errors())
}

func stageWindow(from, to string) ([]string, error) {
	fi, ti := 0, len(stageOrder)-1
	if from != "" {
		i := stageIndex(from)
		if i < 0 {
			return nil, fmt.Errorf("pipeline: unknown stage %q", from)
		}
		fi = i
	}
	if to != "" {
		i := stageIndex(to)
		if i < 0 {
			return nil, fmt.Errorf("pipeline: unknown stage %q", to)
		}
		ti = i
	}
	if fi > ti {
		return nil, fmt.Errorf("pipeline: from stage %q is after to stage %q", from, to)
	}
	return stageOrder[fi : ti+1], nil
}

func stageIndex(name string) int {
	for i, s := range stageOrder {
		if s == name {
			return i
		}
	}
	return -1
}

func decodeStrings(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
