package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/biopath-backend/internal/app"
	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/hierarchy"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

func TestMain(m *testing.M) {
	prompts.RegisterAll()
	os.Exit(m.Run())
}

type stubAI struct {
	fn    func(system, user string, opts gemini.CallOptions) (map[string]any, error)
	calls int
}

func (s *stubAI) GenerateJSON(ctx context.Context, system, user string, opts gemini.CallOptions) (map[string]any, error) {
	s.calls++
	return s.fn(system, user, opts)
}

type memCheckpoints struct {
	done map[string]*types.PipelineCheckpoint
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{done: map[string]*types.PipelineCheckpoint{}}
}

func (m *memCheckpoints) key(stage, unit string) string { return stage + "|" + unit }

func (m *memCheckpoints) MarkDone(ctx context.Context, tx *gorm.DB, row *types.PipelineCheckpoint) error {
	if row.Status == "" {
		row.Status = types.CheckpointStatusDone
	}
	m.done[m.key(row.Stage, row.UnitKey)] = row
	return nil
}

func (m *memCheckpoints) GetByStage(ctx context.Context, tx *gorm.DB, stage string) ([]*types.PipelineCheckpoint, error) {
	var out []*types.PipelineCheckpoint
	for _, row := range m.done {
		if row.Stage == stage {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memCheckpoints) FullDeleteByStage(ctx context.Context, tx *gorm.DB, stage string) error {
	for k, row := range m.done {
		if row.Stage == stage {
			delete(m.done, k)
		}
	}
	return nil
}

type memHistory struct {
	rows map[string]*types.PathwayChainHistory
}

func newMemHistory() *memHistory {
	return &memHistory{rows: map[string]*types.PathwayChainHistory{}}
}

func (m *memHistory) GetByCanonicalName(ctx context.Context, tx *gorm.DB, name string) (*types.PathwayChainHistory, error) {
	return m.rows[name], nil
}

func (m *memHistory) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayChainHistory, error) {
	var out []*types.PathwayChainHistory
	for _, r := range m.rows {
		out = append(out, r)
	}
	return out, nil
}

func (m *memHistory) Upsert(ctx context.Context, tx *gorm.DB, row *types.PathwayChainHistory) error {
	m.rows[row.CanonicalName] = row
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func testConfig() *app.Config {
	cfg := app.DefaultConfig()
	cfg.CoarseBatchSize = 3
	cfg.CoarseWorkers = 1
	cfg.RefinementBatchSize = 2
	return cfg
}

func testInteractions(n int) []*types.Interaction {
	out := make([]*types.Interaction, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &types.Interaction{
			ID:       uuid.New(),
			ProteinA: fmt.Sprintf("PROT%dA", i),
			ProteinB: fmt.Sprintf("PROT%dB", i),
		})
	}
	return out
}

func TestCoarseAssignStepFillsRunContext(t *testing.T) {
	cfg := testConfig()
	rows := testInteractions(3)
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		return map[string]any{
			"assignments": []any{
				map[string]any{"index": float64(0), "pathway": "mTOR Signaling", "confidence": 0.9},
				map[string]any{"index": float64(1), "pathway": "Apoptosis", "confidence": 0.8},
				map[string]any{"index": float64(2), "pathway": "Wnt Signaling", "confidence": 0.85},
			},
		}, nil
	}}
	checkpoints := newMemCheckpoints()
	run := NewRunContext()

	out, err := CoarseAssignStep(context.Background(), CoarseAssignDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Checkpoints: checkpoints,
	}, CoarseAssignInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("CoarseAssignStep: %v", err)
	}
	if out.Processed != 3 || out.Assigned != 3 || out.Fallback != 0 {
		t.Fatalf("out = %+v", out)
	}
	if got := run.Assignments[rows[0].ID].PathwayName; got != "mTOR Signaling" {
		t.Fatalf("assignment = %q", got)
	}
	if len(checkpoints.done) != 1 {
		t.Fatalf("checkpoints = %d, want 1 batch", len(checkpoints.done))
	}
}

func TestCoarseAssignStepRootAnswerFallsBack(t *testing.T) {
	cfg := testConfig()
	rows := testInteractions(1)
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		return map[string]any{
			"assignments": []any{
				map[string]any{"index": float64(0), "pathway": "Metabolism", "confidence": 0.95},
			},
		}, nil
	}}
	run := NewRunContext()

	out, err := CoarseAssignStep(context.Background(), CoarseAssignDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Checkpoints: newMemCheckpoints(),
	}, CoarseAssignInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("CoarseAssignStep: %v", err)
	}
	if out.Fallback != 1 {
		t.Fatalf("fallback = %d, want 1 for a root category answer", out.Fallback)
	}
	if got := run.Assignments[rows[0].ID].PathwayName; got != fallbackPathwayName {
		t.Fatalf("assignment = %q, want fallback", got)
	}
}

func TestCoarseAssignStepRetriesPerItemOnShapeFailure(t *testing.T) {
	cfg := testConfig()
	rows := testInteractions(2)
	ai := &stubAI{}
	ai.fn = func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		// Fail the two-item batch; answer the per-item retries.
		if strings.Contains(user, "PROT0A") && strings.Contains(user, "PROT1A") {
			return nil, &gemini.ProtocolError{Reason: "garbled"}
		}
		return map[string]any{
			"assignments": []any{
				map[string]any{"index": float64(0), "pathway": "Autophagy", "confidence": 0.7},
			},
		}, nil
	}
	run := NewRunContext()

	out, err := CoarseAssignStep(context.Background(), CoarseAssignDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Checkpoints: newMemCheckpoints(),
	}, CoarseAssignInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("CoarseAssignStep: %v", err)
	}
	if out.Processed != 2 {
		t.Fatalf("processed = %d, want 2", out.Processed)
	}
	if len(run.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(run.Assignments))
	}
	for _, a := range run.Assignments {
		if a.PathwayName != "Autophagy" {
			t.Fatalf("assignment = %q, want per-item result", a.PathwayName)
		}
	}
}

func TestCoarseAssignStepSkipsDoneBatchesAndRestoresAssignments(t *testing.T) {
	cfg := testConfig()
	rows := testInteractions(3)
	detail := map[string]coarseDetail{}
	for _, r := range rows {
		detail[r.ID.String()] = coarseDetail{Pathway: "Apoptosis", Confidence: 0.8}
	}
	checkpoints := newMemCheckpoints()
	_ = checkpoints.MarkDone(context.Background(), nil, &types.PipelineCheckpoint{
		Stage: StageCoarse, UnitKey: "batch:0000", Detail: mustJSON(detail),
	})
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		t.Fatal("oracle must not be called for a completed batch")
		return nil, nil
	}}
	run := NewRunContext()

	out, err := CoarseAssignStep(context.Background(), CoarseAssignDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Checkpoints: checkpoints,
	}, CoarseAssignInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("CoarseAssignStep: %v", err)
	}
	if out.Skipped != 3 {
		t.Fatalf("skipped = %d, want 3", out.Skipped)
	}
	// Skipping must not lose the batch's output: a fresh run context gets the
	// ledgered assignments back even without an explicit resume.
	if len(run.Assignments) != 3 {
		t.Fatalf("assignments = %d, want 3 restored from the ledger", len(run.Assignments))
	}
	a := run.Assignments[rows[0].ID]
	if a == nil || a.PathwayName != "Apoptosis" || a.Source != types.AssignmentSourceCoarse {
		t.Fatalf("restored assignment = %+v", a)
	}
}

func TestRefineAssignStepKeepsPriorOnOutOfSetAnswer(t *testing.T) {
	cfg := testConfig()
	rows := testInteractions(1)
	run := NewRunContext()
	run.Assignments[rows[0].ID] = &Assignment{
		InteractionID: rows[0].ID,
		PathwayName:   "Apoptosis",
		Confidence:    0.75,
		Source:        types.AssignmentSourceCoarse,
	}
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		return map[string]any{
			"assignments": []any{
				map[string]any{"index": float64(0), "pathway": "Programmed Cell Death", "confidence": 0.9},
			},
		}, nil
	}}

	out, err := RefineAssignStep(context.Background(), RefineAssignDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: newStepGraph(t, cfg),
	}, RefineAssignInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("RefineAssignStep: %v", err)
	}
	if out.OutOfSet != 1 {
		t.Fatalf("out_of_set = %d, want 1", out.OutOfSet)
	}
	if got := run.Assignments[rows[0].ID].PathwayName; got != "Apoptosis" {
		t.Fatalf("assignment = %q, prior must be kept", got)
	}
}

func TestRefineAssignStepReassignsWithinVocabulary(t *testing.T) {
	cfg := testConfig()
	rows := testInteractions(2)
	run := NewRunContext()
	run.Assignments[rows[0].ID] = &Assignment{InteractionID: rows[0].ID, PathwayName: "Apoptosis", Confidence: 0.7, Source: types.AssignmentSourceCoarse}
	run.Assignments[rows[1].ID] = &Assignment{InteractionID: rows[1].ID, PathwayName: "Autophagy", Confidence: 0.7, Source: types.AssignmentSourceCoarse}

	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		return map[string]any{
			"assignments": []any{
				map[string]any{"index": float64(0), "pathway": "Autophagy", "confidence": 0.92},
				map[string]any{"index": float64(1), "pathway": "Autophagy", "confidence": 0.88},
			},
		}, nil
	}}

	g := newStepGraph(t, cfg)
	out, err := RefineAssignStep(context.Background(), RefineAssignDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: g,
	}, RefineAssignInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("RefineAssignStep: %v", err)
	}
	if out.Reassigned != 1 {
		t.Fatalf("reassigned = %d, want 1", out.Reassigned)
	}
	a := run.Assignments[rows[0].ID]
	if a.PathwayName != "Autophagy" || a.Source != types.AssignmentSourceRefinement {
		t.Fatalf("assignment = %+v", a)
	}
	// The target gets a node eagerly, pending until chain building.
	n, ok := g.NodeByName("Autophagy")
	if !ok {
		t.Fatal("assigned name has no node")
	}
	if n.Kind != hierarchy.KindMain || n.Level != hierarchy.LevelPending {
		t.Fatalf("eager node = kind %q level %d", n.Kind, n.Level)
	}
}

func TestRefineAssignStepRejectBelowConfidence(t *testing.T) {
	cfg := testConfig()
	cfg.RejectBelowConfidence = true
	cfg.MinConfidenceRefinement = 0.8
	rows := testInteractions(1)
	run := NewRunContext()
	run.Assignments[rows[0].ID] = &Assignment{InteractionID: rows[0].ID, PathwayName: "Apoptosis", Confidence: 0.7, Source: types.AssignmentSourceCoarse}
	run.Assignments[uuid.New()] = &Assignment{PathwayName: "Autophagy", Confidence: 0.9}

	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		return map[string]any{
			"assignments": []any{
				map[string]any{"index": float64(0), "pathway": "Autophagy", "confidence": 0.5},
			},
		}, nil
	}}

	out, err := RefineAssignStep(context.Background(), RefineAssignDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: newStepGraph(t, cfg),
	}, RefineAssignInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("RefineAssignStep: %v", err)
	}
	if out.SubThreshold != 1 {
		t.Fatalf("sub_threshold = %d, want 1", out.SubThreshold)
	}
	if got := run.Assignments[rows[0].ID].PathwayName; got != "Apoptosis" {
		t.Fatalf("assignment = %q, low-confidence answer must be rejected", got)
	}
}

func TestSanitizeChain(t *testing.T) {
	cfg := testConfig()

	// Terminal near-miss gets the target appended.
	chain, warns, err := sanitizeChain(cfg, []string{"Cell Death", "Apoptosis"}, "Intrinsic Apoptosis")
	if err != nil {
		t.Fatalf("sanitizeChain: %v", err)
	}
	if len(warns) != 1 || chain[len(chain)-1] != "Intrinsic Apoptosis" {
		t.Fatalf("chain = %v warns = %v", chain, warns)
	}

	// Non-root start is rejected.
	if _, _, err := sanitizeChain(cfg, []string{"Apoptosis", "Intrinsic Apoptosis"}, "Intrinsic Apoptosis"); err == nil {
		t.Fatal("expected rejection for non-root start")
	}

	// Over-depth chains keep the target terminal.
	cfg.MaxHierarchyDepth = 4
	long := []string{"Cell Death", "A", "B", "C", "D", "Target"}
	chain, warns, err = sanitizeChain(cfg, long, "Target")
	if err != nil {
		t.Fatalf("sanitizeChain: %v", err)
	}
	if len(chain) != 4 || chain[3] != "Target" || chain[0] != "Cell Death" {
		t.Fatalf("truncated chain = %v", chain)
	}
	if len(warns) == 0 {
		t.Fatal("expected a truncation warning")
	}
}

func newStepGraph(t *testing.T, cfg *app.Config) *hierarchy.Graph {
	t.Helper()
	roots := make([]hierarchy.Root, 0, len(cfg.Roots))
	for _, r := range cfg.Roots {
		roots = append(roots, hierarchy.Root{Name: r.Name, OntologyID: r.OntologyID})
	}
	g, err := hierarchy.NewGraph(roots, cfg.MaxHierarchyDepth)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}
	return g
}

func TestChainBuildStepPrefersHistory(t *testing.T) {
	cfg := testConfig()
	g := newStepGraph(t, cfg)
	history := newMemHistory()
	_ = history.Upsert(context.Background(), nil, &types.PathwayChainHistory{
		CanonicalName: "Apoptosis",
		Chain:         mustJSON([]string{"Cell Death", "Apoptosis"}),
		Source:        types.ChainSourceOracle,
	})
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		t.Fatal("oracle must not be called when history has the chain")
		return nil, nil
	}}

	run := NewRunContext()
	run.Assignments[uuid.New()] = &Assignment{PathwayName: "Apoptosis", Confidence: 0.9}

	out, err := ChainBuildStep(context.Background(), ChainBuildDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: g, History: history,
	}, ChainBuildInput{Run: run})
	if err != nil {
		t.Fatalf("ChainBuildStep: %v", err)
	}
	if out.FromHistory != 1 || out.FromOracle != 0 {
		t.Fatalf("out = %+v", out)
	}
	if !g.HasPrimaryEdge("Apoptosis", "Cell Death") {
		t.Fatal("history chain not merged")
	}
}

func TestChainBuildStepAttachesToCurrentRunChains(t *testing.T) {
	cfg := testConfig()
	g := newStepGraph(t, cfg)
	run := NewRunContext()
	// A chain rehydrated earlier this run passes through Apoptosis, but the
	// graph has not been rebuilt from it.
	run.Chains["Intrinsic Apoptosis"] = []string{"Cell Death", "Apoptosis", "Intrinsic Apoptosis"}
	run.Assignments[uuid.New()] = &Assignment{PathwayName: "Apoptosis", Confidence: 0.9}

	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		t.Fatal("oracle must not be called when a run chain passes through the name")
		return nil, nil
	}}

	history := newMemHistory()
	out, err := ChainBuildStep(context.Background(), ChainBuildDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: g, History: history,
	}, ChainBuildInput{Run: run})
	if err != nil {
		t.Fatalf("ChainBuildStep: %v", err)
	}
	if out.Attached != 1 || out.FromOracle != 0 {
		t.Fatalf("out = %+v, want the chain prefix reused", out)
	}
	if !g.HasPrimaryEdge("Apoptosis", "Cell Death") {
		t.Fatal("attached prefix not merged")
	}
	// The attachment is durable: the next run must find it in history.
	row := history.rows["Apoptosis"]
	if row == nil || row.Source != types.ChainSourceAttached {
		t.Fatalf("history row = %+v, want an attached entry", row)
	}
	if chain := decodeChain(row.Chain); len(chain) != 2 || chain[1] != "Apoptosis" {
		t.Fatalf("persisted chain = %v", chain)
	}
}

func TestChainBuildStepOraclePathPersistsHistory(t *testing.T) {
	cfg := testConfig()
	g := newStepGraph(t, cfg)
	history := newMemHistory()
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		if !opts.AllowSearch {
			t.Fatal("chain building must allow search grounding")
		}
		return map[string]any{
			"chain":      []any{"Cell Death", "Apoptosis", "Intrinsic Apoptosis"},
			"confidence": 0.9,
		}, nil
	}}

	run := NewRunContext()
	run.Assignments[uuid.New()] = &Assignment{PathwayName: "Intrinsic Apoptosis", Confidence: 0.9}

	out, err := ChainBuildStep(context.Background(), ChainBuildDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: g, History: history,
	}, ChainBuildInput{Run: run})
	if err != nil {
		t.Fatalf("ChainBuildStep: %v", err)
	}
	if out.FromOracle != 1 {
		t.Fatalf("out = %+v", out)
	}
	if history.rows["Intrinsic Apoptosis"] == nil {
		t.Fatal("oracle chain not persisted to history")
	}
	if !g.HasPrimaryEdge("Intrinsic Apoptosis", "Apoptosis") {
		t.Fatal("oracle chain not merged")
	}
}

func TestChainBuildStepRecordsFailuresWithoutMutatingGraph(t *testing.T) {
	cfg := testConfig()
	g := newStepGraph(t, cfg)
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		return map[string]any{
			"chain":      []any{"Not A Root", "Mystery Pathway"},
			"confidence": 0.9,
		}, nil
	}}

	run := NewRunContext()
	run.Assignments[uuid.New()] = &Assignment{PathwayName: "Mystery Pathway", Confidence: 0.9}

	before := len(g.Nodes())
	out, err := ChainBuildStep(context.Background(), ChainBuildDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: g, History: newMemHistory(),
	}, ChainBuildInput{Run: run})
	if err != nil {
		t.Fatalf("ChainBuildStep: %v", err)
	}
	if out.Failed != 1 {
		t.Fatalf("failed = %d, want 1", out.Failed)
	}
	if len(run.FailedChains) != 1 || run.FailedChains[0] != "Mystery Pathway" {
		t.Fatalf("failed chains = %v", run.FailedChains)
	}
	if len(g.Nodes()) != before {
		t.Fatal("rejected chain mutated the graph")
	}
}

func TestSiblingExpandStepInsertsCappedSiblings(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSiblingsPerLevel = 3
	g := newStepGraph(t, cfg)
	run := NewRunContext()
	run.Chains["Apoptosis"] = []string{"Cell Death", "Apoptosis"}
	if _, err := g.MergeChain(run.Chains["Apoptosis"], 0.9); err != nil {
		t.Fatalf("merge: %v", err)
	}

	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		return map[string]any{
			"siblings":   []any{"Necroptosis", "Pyroptosis", "Ferroptosis", "Autosis"},
			"confidence": 0.8,
		}, nil
	}}

	out, err := SiblingExpandStep(context.Background(), SiblingExpandDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: g,
	}, SiblingExpandInput{Run: run})
	if err != nil {
		t.Fatalf("SiblingExpandStep: %v", err)
	}
	if out.Pairs != 1 {
		t.Fatalf("pairs = %d, want 1", out.Pairs)
	}
	// One existing child leaves budget for two more.
	if out.Inserted != 2 {
		t.Fatalf("inserted = %d, want 2 under the cap", out.Inserted)
	}
	n, ok := g.NodeByName("Necroptosis")
	if !ok {
		t.Fatal("first proposed sibling missing")
	}
	if n.Kind != hierarchy.KindSibling {
		t.Fatalf("kind = %q, want sibling", n.Kind)
	}
	if g.HasPrimaryEdge("Necroptosis", "Cell Death") {
		t.Fatal("sibling edge must not be primary")
	}
}

func TestSiblingExpandStepSkipsFullParents(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSiblingsPerLevel = 1
	g := newStepGraph(t, cfg)
	run := NewRunContext()
	run.Chains["Apoptosis"] = []string{"Cell Death", "Apoptosis"}
	if _, err := g.MergeChain(run.Chains["Apoptosis"], 0.9); err != nil {
		t.Fatalf("merge: %v", err)
	}
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		t.Fatal("oracle must not be called for a parent at the cap")
		return nil, nil
	}}

	out, err := SiblingExpandStep(context.Background(), SiblingExpandDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Graph: g,
	}, SiblingExpandInput{Run: run})
	if err != nil {
		t.Fatalf("SiblingExpandStep: %v", err)
	}
	if out.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", out.Skipped)
	}
}

func TestParseAssignmentResultsRejectsBadIndexes(t *testing.T) {
	_, err := parseAssignmentResults(map[string]any{
		"assignments": []any{
			map[string]any{"index": float64(5), "pathway": "Apoptosis", "confidence": 0.9},
		},
	}, 2)
	if !gemini.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error", err)
	}
}

func TestParseSynonymGroupsEnforcesCoverage(t *testing.T) {
	members := []string{"mTOR Signaling", "mTORC1 Signaling"}

	// A member missing from every group is a protocol violation.
	_, err := parseSynonymGroups(map[string]any{
		"groups": []any{
			map[string]any{"canonical": "mTOR Signaling", "members": []any{"mTOR Signaling"}},
		},
	}, members)
	if !gemini.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error for missing member", err)
	}

	// A member outside the submitted cluster is rejected too.
	_, err = parseSynonymGroups(map[string]any{
		"groups": []any{
			map[string]any{"canonical": "mTOR Signaling", "members": []any{"mTOR Signaling", "Wnt Signaling"}},
		},
	}, members)
	if !gemini.IsProtocolError(err) {
		t.Fatalf("err = %v, want protocol error for foreign member", err)
	}

	groups, err := parseSynonymGroups(map[string]any{
		"groups": []any{
			map[string]any{"canonical": "mTOR Signaling", "members": []any{"mTOR Signaling"}},
			map[string]any{"canonical": "mTORC1 Signaling", "members": []any{"mTORC1 Signaling"}},
		},
	}, members)
	if err != nil {
		t.Fatalf("parseSynonymGroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2 (oracle may split a cluster)", len(groups))
	}
}

func TestNormalizeNamesStepSplitsAndPersists(t *testing.T) {
	cfg := testConfig()
	run := NewRunContext()
	idA, idB, idC := uuid.New(), uuid.New(), uuid.New()
	run.Assignments[idA] = &Assignment{InteractionID: idA, PathwayName: "mTOR Signaling", Confidence: 0.9}
	run.Assignments[idB] = &Assignment{InteractionID: idB, PathwayName: "MTOR signalling pathway", Confidence: 0.8}
	run.Assignments[idC] = &Assignment{InteractionID: idC, PathwayName: "mTORC1 Signaling", Confidence: 0.85}

	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		if opts.AllowSearch {
			t.Fatal("synonym confirmation must not use search grounding")
		}
		return map[string]any{
			"groups": []any{
				map[string]any{"canonical": "mTOR Signaling", "members": []any{"mTOR Signaling", "MTOR signalling pathway"}},
				map[string]any{"canonical": "mTORC1 Signaling", "members": []any{"mTORC1 Signaling"}},
			},
		}, nil
	}}
	names := &memCanonicalNames{}

	out, err := NormalizeNamesStep(context.Background(), NormalizeNamesDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Names: names,
	}, NormalizeNamesInput{Run: run})
	if err != nil {
		t.Fatalf("NormalizeNamesStep: %v", err)
	}
	if out.Canonicals != 2 {
		t.Fatalf("canonicals = %d, want 2", out.Canonicals)
	}
	if got := run.Assignments[idB].PathwayName; got != "mTOR Signaling" {
		t.Fatalf("rewritten assignment = %q", got)
	}
	if got := run.Assignments[idC].PathwayName; got != "mTORC1 Signaling" {
		t.Fatalf("rewritten assignment = %q", got)
	}
	if len(names.created) == 0 {
		t.Fatal("mappings not persisted")
	}
}

func TestNormalizeNamesStepSecondRunReusesMappings(t *testing.T) {
	cfg := testConfig()
	names := &memCanonicalNames{}
	rawNames := []string{"mTOR Signaling", "MTOR signalling pathway", "mTORC1 Signaling"}

	newRun := func() *RunContext {
		run := NewRunContext()
		for _, raw := range rawNames {
			id := uuid.New()
			run.Assignments[id] = &Assignment{InteractionID: id, PathwayName: raw, Confidence: 0.8}
		}
		return run
	}

	first := newRun()
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		return map[string]any{
			"groups": []any{
				map[string]any{"canonical": "mTOR Signaling", "members": []any{"mTOR Signaling", "MTOR signalling pathway"}},
				map[string]any{"canonical": "mTORC1 Signaling", "members": []any{"mTORC1 Signaling"}},
			},
		}, nil
	}}
	if _, err := NormalizeNamesStep(context.Background(), NormalizeNamesDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Names: names,
	}, NormalizeNamesInput{Run: first}); err != nil {
		t.Fatalf("NormalizeNamesStep first run: %v", err)
	}
	persisted := len(names.created)

	// The same raw names on a later invocation resolve entirely from the
	// stored mappings.
	second := newRun()
	silent := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		t.Fatal("oracle must not be consulted when every mapping already exists")
		return nil, nil
	}}
	out, err := NormalizeNamesStep(context.Background(), NormalizeNamesDeps{
		Log: testLogger(t), AI: silent, Cfg: cfg, Names: names,
	}, NormalizeNamesInput{Run: second})
	if err != nil {
		t.Fatalf("NormalizeNamesStep second run: %v", err)
	}
	if out.Reused != 3 || out.Clusters != 0 {
		t.Fatalf("out = %+v, want every name reused with no new clusters", out)
	}
	for _, a := range second.Assignments {
		if a.PathwayName != "mTOR Signaling" && a.PathwayName != "mTORC1 Signaling" {
			t.Fatalf("second run resolved %q outside the first run's canonicals", a.PathwayName)
		}
	}
	if len(names.created) != persisted {
		t.Fatalf("mapping rows = %d, want unchanged %d (append-only, no rewrites)", len(names.created), persisted)
	}
}

type memCanonicalNames struct {
	created []*types.PathwayCanonicalName
}

func (m *memCanonicalNames) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayCanonicalName, error) {
	return m.created, nil
}

func (m *memCanonicalNames) GetByRawNames(ctx context.Context, tx *gorm.DB, rawNames []string) ([]*types.PathwayCanonicalName, error) {
	want := map[string]bool{}
	for _, r := range rawNames {
		want[r] = true
	}
	var out []*types.PathwayCanonicalName
	for _, row := range m.created {
		if want[row.RawName] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memCanonicalNames) CreateMissing(ctx context.Context, tx *gorm.DB, rows []*types.PathwayCanonicalName) error {
	existing := map[string]bool{}
	for _, row := range m.created {
		existing[row.RawName] = true
	}
	for _, row := range rows {
		if !existing[row.RawName] {
			m.created = append(m.created, row)
			existing[row.RawName] = true
		}
	}
	return nil
}

type memPathways struct {
	rows map[string]*types.Pathway
}

func newMemPathways() *memPathways {
	return &memPathways{rows: map[string]*types.Pathway{}}
}

func (m *memPathways) Create(ctx context.Context, tx *gorm.DB, rows []*types.Pathway) ([]*types.Pathway, error) {
	for _, row := range rows {
		if row.ID == uuid.Nil {
			row.ID = uuid.New()
		}
		m.rows[row.Name] = row
	}
	return rows, nil
}

func (m *memPathways) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Pathway, error) {
	for _, row := range m.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, nil
}

func (m *memPathways) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Pathway, error) {
	var out []*types.Pathway
	for _, id := range ids {
		if row, _ := m.GetByID(ctx, tx, id); row != nil {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memPathways) GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Pathway, error) {
	return m.rows[name], nil
}

func (m *memPathways) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Pathway, error) {
	var out []*types.Pathway
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memPathways) GetOrCreateByName(ctx context.Context, tx *gorm.DB, row *types.Pathway) (*types.Pathway, error) {
	if existing, ok := m.rows[row.Name]; ok {
		return existing, nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	m.rows[row.Name] = row
	return row, nil
}

func (m *memPathways) Update(ctx context.Context, tx *gorm.DB, row *types.Pathway) error {
	m.rows[row.Name] = row
	return nil
}

func (m *memPathways) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	row, _ := m.GetByID(ctx, tx, id)
	if row == nil {
		return nil
	}
	if v, ok := updates["level"].(int); ok {
		row.Level = v
	}
	if v, ok := updates["provenance"].(string); ok {
		row.Provenance = v
	}
	return nil
}

func (m *memPathways) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	for _, id := range ids {
		for name, row := range m.rows {
			if row.ID == id {
				delete(m.rows, name)
			}
		}
	}
	return nil
}

type memParents struct {
	rows []*types.PathwayParent
}

func (m *memParents) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayParent, error) {
	return m.rows, nil
}

func (m *memParents) GetByChildIDs(ctx context.Context, tx *gorm.DB, childIDs []uuid.UUID) ([]*types.PathwayParent, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range childIDs {
		want[id] = true
	}
	var out []*types.PathwayParent
	for _, row := range m.rows {
		if want[row.ChildID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memParents) UpsertPairs(ctx context.Context, tx *gorm.DB, rows []*types.PathwayParent) error {
	for _, row := range rows {
		found := false
		for _, existing := range m.rows {
			if existing.ChildID == row.ChildID && existing.ParentID == row.ParentID {
				existing.IsPrimaryChain = existing.IsPrimaryChain || row.IsPrimaryChain
				if row.Confidence > existing.Confidence {
					existing.Confidence = row.Confidence
				}
				found = true
				break
			}
		}
		if !found {
			m.rows = append(m.rows, row)
		}
	}
	return nil
}

func (m *memParents) FullDeleteByNodeIDs(ctx context.Context, tx *gorm.DB, nodeIDs []uuid.UUID) error {
	drop := map[uuid.UUID]bool{}
	for _, id := range nodeIDs {
		drop[id] = true
	}
	var kept []*types.PathwayParent
	for _, row := range m.rows {
		if !drop[row.ChildID] && !drop[row.ParentID] {
			kept = append(kept, row)
		}
	}
	m.rows = kept
	return nil
}

type memAssignments struct {
	rows map[uuid.UUID]*types.PathwayInteraction
}

func newMemAssignments() *memAssignments {
	return &memAssignments{rows: map[uuid.UUID]*types.PathwayInteraction{}}
}

func (m *memAssignments) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayInteraction, error) {
	var out []*types.PathwayInteraction
	for _, row := range m.rows {
		out = append(out, row)
	}
	return out, nil
}

func (m *memAssignments) GetByInteractionIDs(ctx context.Context, tx *gorm.DB, interactionIDs []uuid.UUID) ([]*types.PathwayInteraction, error) {
	var out []*types.PathwayInteraction
	for _, id := range interactionIDs {
		if row, ok := m.rows[id]; ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memAssignments) UpsertByInteractionID(ctx context.Context, tx *gorm.DB, row *types.PathwayInteraction) error {
	m.rows[row.InteractionID] = row
	return nil
}

func (m *memAssignments) CountByPathwayID(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error) {
	out := map[uuid.UUID]int{}
	for _, row := range m.rows {
		out[row.PathwayID]++
	}
	return out, nil
}

type memInteractions struct {
	rows    []*types.Interaction
	updated map[uuid.UUID]datatypes.JSON
}

func newMemInteractions(rows []*types.Interaction) *memInteractions {
	return &memInteractions{rows: rows, updated: map[uuid.UUID]datatypes.JSON{}}
}

func (m *memInteractions) Create(ctx context.Context, tx *gorm.DB, rows []*types.Interaction) ([]*types.Interaction, error) {
	m.rows = append(m.rows, rows...)
	return rows, nil
}

func (m *memInteractions) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Interaction, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []*types.Interaction
	for _, row := range m.rows {
		if want[row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memInteractions) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Interaction, error) {
	return m.rows, nil
}

func (m *memInteractions) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	return int64(len(m.rows)), nil
}

func (m *memInteractions) UpdateMetadata(ctx context.Context, tx *gorm.DB, id uuid.UUID, metadata datatypes.JSON) error {
	m.updated[id] = metadata
	return nil
}

func TestEvidenceEnrichStepWritesVerdictsAndCitations(t *testing.T) {
	cfg := testConfig()
	rows := testInteractions(2)
	repo := newMemInteractions(rows)
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		if !opts.AllowSearch {
			t.Fatal("evidence checking must allow search grounding")
		}
		return map[string]any{
			"results": []any{
				map[string]any{
					"index": float64(0), "valid": true,
					"citations": []any{
						map[string]any{"title": "ATXN3 regulates VCP-mediated extraction", "journal": "Mol Cell", "year": float64(2013), "quote": "deubiquitinates K48-linked chains"},
					},
				},
				map[string]any{
					"index": float64(1), "valid": false,
					"mechanism": "transcriptional repression, not protein stabilization",
				},
			},
		}, nil
	}}

	out, err := EvidenceEnrichStep(context.Background(), EvidenceEnrichDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Interactions: repo,
	}, EvidenceEnrichInput{Interactions: rows})
	if err != nil {
		t.Fatalf("EvidenceEnrichStep: %v", err)
	}
	if out.Processed != 2 || out.Validated != 1 || out.Rejected != 1 {
		t.Fatalf("out = %+v", out)
	}

	var meta struct {
		Evidence struct {
			Valid     bool `json:"valid"`
			Citations []struct {
				Title string `json:"title"`
				Year  int    `json:"year"`
			} `json:"citations"`
			Mechanism string `json:"mechanism"`
		} `json:"evidence"`
	}
	if err := json.Unmarshal(repo.updated[rows[0].ID], &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if !meta.Evidence.Valid || len(meta.Evidence.Citations) != 1 || meta.Evidence.Citations[0].Year != 2013 {
		t.Fatalf("evidence = %+v", meta.Evidence)
	}
	if err := json.Unmarshal(repo.updated[rows[1].ID], &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Evidence.Valid || meta.Evidence.Mechanism == "" {
		t.Fatalf("rejected evidence = %+v", meta.Evidence)
	}
}

func TestEvidenceEnrichStepKeepsRowsOnShapeFailure(t *testing.T) {
	cfg := testConfig()
	rows := testInteractions(2)
	repo := newMemInteractions(rows)
	ai := &stubAI{fn: func(system, user string, opts gemini.CallOptions) (map[string]any, error) {
		// A validated claim with no citation is unusable output.
		return map[string]any{
			"results": []any{
				map[string]any{"index": float64(0), "valid": true},
			},
		}, nil
	}}

	out, err := EvidenceEnrichStep(context.Background(), EvidenceEnrichDeps{
		Log: testLogger(t), AI: ai, Cfg: cfg, Interactions: repo,
	}, EvidenceEnrichInput{Interactions: rows})
	if err != nil {
		t.Fatalf("EvidenceEnrichStep: %v", err)
	}
	if out.KeptPrior != 2 {
		t.Fatalf("kept = %d, want the whole batch untouched", out.KeptPrior)
	}
	if len(repo.updated) != 0 {
		t.Fatalf("updated = %d rows, want none after an unusable answer", len(repo.updated))
	}
}

func TestShortenPreservesMultibyteAnnotations(t *testing.T) {
	annotation := strings.Repeat("αβγδε", 40)
	got := shorten(annotation, 301)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated annotation is not valid UTF-8: %q", got)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("got = %q, want a truncation marker", got)
	}
}

func TestValidateCommitStepRepairsAndPersists(t *testing.T) {
	cfg := testConfig()
	g := newStepGraph(t, cfg)
	if _, err := g.MergeChain([]string{"Cell Death", "Apoptosis"}, 0.9); err != nil {
		t.Fatalf("MergeChain: %v", err)
	}
	// A node the chain builder never rooted.
	if _, err := g.EnsureNode("Floating Pathway", hierarchy.KindMain, hierarchy.ProvenanceOracle, 0.6); err != nil {
		t.Fatalf("EnsureNode: %v", err)
	}

	rows := testInteractions(3)
	run := NewRunContext()
	run.Assignments[rows[0].ID] = &Assignment{
		InteractionID: rows[0].ID, PathwayName: "Apoptosis",
		Confidence: 0.9, Source: types.AssignmentSourceCoarse,
	}
	run.Assignments[rows[1].ID] = &Assignment{
		InteractionID: rows[1].ID, PathwayName: "Floating Pathway",
		Confidence: 0.75, Source: types.AssignmentSourceCoarse,
	}

	pathways := newMemPathways()
	parents := &memParents{}
	assignments := newMemAssignments()

	out, err := ValidateCommitStep(context.Background(), ValidateCommitDeps{
		Log: testLogger(t), Cfg: cfg, Graph: g,
		Pathways: pathways, Parents: parents, Assignments: assignments,
	}, ValidateCommitInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("ValidateCommitStep: %v", err)
	}

	if len(out.Repaired) != 1 || out.Repaired[0] != "Floating Pathway" {
		t.Fatalf("repaired = %v, want the unrooted node", out.Repaired)
	}
	if !g.HasPrimaryEdge("Floating Pathway", cfg.FallbackRoot) {
		t.Fatal("repaired node not parented under the fallback root")
	}
	n, _ := g.NodeByName("Floating Pathway")
	if n.Provenance != hierarchy.ProvenanceOrphanRepair {
		t.Fatalf("provenance = %q after repair", n.Provenance)
	}

	// The third interaction never got an assignment.
	found := false
	for _, issue := range out.Report.Issues {
		if issue.Kind == hierarchy.IssueMissingAssignment && issue.Severity == hierarchy.SeverityError {
			found = true
		}
	}
	if !found {
		t.Fatal("missing-assignment issue not reported")
	}

	if len(out.Pruned) != 0 {
		t.Fatalf("pruned = %v, want none while every node carries interactions", out.Pruned)
	}
	if out.NodesPersisted != len(g.Nodes()) {
		t.Fatalf("nodes persisted = %d, graph has %d", out.NodesPersisted, len(g.Nodes()))
	}
	if out.AssignmentsPersisted != 2 {
		t.Fatalf("assignments persisted = %d, want 2", out.AssignmentsPersisted)
	}
	row := assignments.rows[rows[0].ID]
	if row == nil || row.RawName != "Apoptosis" {
		t.Fatalf("persisted assignment = %+v", row)
	}
	apoptosis := pathways.rows["Apoptosis"]
	if apoptosis == nil || row.PathwayID != apoptosis.ID {
		t.Fatal("assignment does not point at the persisted node")
	}
}

func TestValidateCommitStepFlagsDanglingAssignments(t *testing.T) {
	cfg := testConfig()
	g := newStepGraph(t, cfg)

	rows := testInteractions(1)
	run := NewRunContext()
	run.Assignments[rows[0].ID] = &Assignment{
		InteractionID: rows[0].ID, PathwayName: "Ghost Pathway",
		Confidence: 0.9, Source: types.AssignmentSourceRefinement,
	}

	assignments := newMemAssignments()
	out, err := ValidateCommitStep(context.Background(), ValidateCommitDeps{
		Log: testLogger(t), Cfg: cfg, Graph: g,
		Pathways: newMemPathways(), Parents: &memParents{}, Assignments: assignments,
	}, ValidateCommitInput{Run: run, Interactions: rows})
	if err != nil {
		t.Fatalf("ValidateCommitStep: %v", err)
	}

	found := false
	for _, issue := range out.Report.Issues {
		if issue.Kind == hierarchy.IssueDanglingAssignment && issue.Node == "Ghost Pathway" {
			found = true
		}
	}
	if !found {
		t.Fatal("dangling-assignment issue not reported")
	}
	if out.AssignmentsPersisted != 0 || len(assignments.rows) != 0 {
		t.Fatal("assignment to a nonexistent node must not be persisted")
	}
}
