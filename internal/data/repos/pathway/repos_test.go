package pathway

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/biopath-backend/internal/data/repos/testutil"
	types "github.com/yungbote/biopath-backend/internal/domain"
)

func TestPathwayGetOrCreateByName(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewPathwayRepo(db, testutil.Logger(t))
	ctx := context.Background()

	row, err := repo.GetOrCreateByName(ctx, tx, &types.Pathway{
		Name: "mTOR Signaling", Kind: types.PathwayKindMain, Level: 1, Confidence: 0.9,
	})
	if err != nil {
		t.Fatalf("GetOrCreateByName: %v", err)
	}
	if row.ID == uuid.Nil {
		t.Fatal("created row has no id")
	}

	again, err := repo.GetOrCreateByName(ctx, tx, &types.Pathway{Name: "mTOR Signaling"})
	if err != nil {
		t.Fatalf("GetOrCreateByName second call: %v", err)
	}
	if again.ID != row.ID {
		t.Fatalf("second call created a new row: %s vs %s", again.ID, row.ID)
	}
	if again.Kind != types.PathwayKindMain {
		t.Fatalf("existing row fields overwritten: kind = %q", again.Kind)
	}
}

func TestPathwayUpdateFieldsTouchesUpdatedAt(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewPathwayRepo(db, testutil.Logger(t))
	ctx := context.Background()

	row := testutil.SeedPathway(t, tx, "Apoptosis", types.PathwayKindMain, types.LevelPending)
	if err := repo.UpdateFields(ctx, tx, row.ID, map[string]interface{}{
		"level": 2, "is_leaf": false,
	}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	got, err := repo.GetByID(ctx, tx, row.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Level != 2 || got.IsLeaf {
		t.Fatalf("updates not applied: level=%d is_leaf=%v", got.Level, got.IsLeaf)
	}
	if !got.UpdatedAt.After(row.UpdatedAt) {
		t.Fatal("updated_at not advanced")
	}
}

func TestParentUpsertPairsNeverDowngradesPrimary(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewParentRepo(db, testutil.Logger(t))
	ctx := context.Background()

	parent := testutil.SeedPathway(t, tx, "Cell Death", types.PathwayKindRoot, 0)
	child := testutil.SeedPathway(t, tx, "Necroptosis", types.PathwayKindMain, 1)

	if err := repo.UpsertPairs(ctx, tx, []*types.PathwayParent{{
		ChildID: child.ID, ParentID: parent.ID, IsPrimaryChain: true, Confidence: 0.6,
	}}); err != nil {
		t.Fatalf("UpsertPairs: %v", err)
	}
	// A later non-primary write must not clear the flag, and confidence only
	// ever rises.
	if err := repo.UpsertPairs(ctx, tx, []*types.PathwayParent{{
		ChildID: child.ID, ParentID: parent.ID, IsPrimaryChain: false, Confidence: 0.9,
	}}); err != nil {
		t.Fatalf("UpsertPairs second write: %v", err)
	}

	edges, err := repo.GetByChildIDs(ctx, tx, []uuid.UUID{child.ID})
	if err != nil {
		t.Fatalf("GetByChildIDs: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("edges = %d, want the pair upserted in place", len(edges))
	}
	if !edges[0].IsPrimaryChain {
		t.Fatal("is_primary_chain was downgraded")
	}
	if edges[0].Confidence != 0.9 {
		t.Fatalf("confidence = %v, want the greater value", edges[0].Confidence)
	}
}

func TestAssignmentUpsertKeepsOneRowPerInteraction(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewAssignmentRepo(db, testutil.Logger(t))
	ctx := context.Background()

	interaction := testutil.SeedInteraction(t, tx, "TP53", "MDM2")
	first := testutil.SeedPathway(t, tx, "DNA Repair", types.PathwayKindMain, 1)
	second := testutil.SeedPathway(t, tx, "Nucleotide Excision Repair", types.PathwayKindMain, 2)

	if err := repo.UpsertByInteractionID(ctx, tx, &types.PathwayInteraction{
		InteractionID: interaction.ID, PathwayID: first.ID,
		RawName: "DNA Repair", Confidence: 0.7, Source: types.AssignmentSourceCoarse,
	}); err != nil {
		t.Fatalf("UpsertByInteractionID: %v", err)
	}
	if err := repo.UpsertByInteractionID(ctx, tx, &types.PathwayInteraction{
		InteractionID: interaction.ID, PathwayID: second.ID,
		RawName: "Nucleotide Excision Repair", Confidence: 0.9, Source: types.AssignmentSourceRefinement,
	}); err != nil {
		t.Fatalf("UpsertByInteractionID second write: %v", err)
	}

	rows, err := repo.GetByInteractionIDs(ctx, tx, []uuid.UUID{interaction.ID})
	if err != nil {
		t.Fatalf("GetByInteractionIDs: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want exactly one per interaction", len(rows))
	}
	if rows[0].PathwayID != second.ID || rows[0].Source != types.AssignmentSourceRefinement {
		t.Fatalf("row not updated in place: %+v", rows[0])
	}

	counts, err := repo.CountByPathwayID(ctx, tx)
	if err != nil {
		t.Fatalf("CountByPathwayID: %v", err)
	}
	if counts[second.ID] != 1 || counts[first.ID] != 0 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestCheckpointMarkDoneIsIdempotent(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewCheckpointRepo(db, testutil.Logger(t))
	ctx := context.Background()

	row := &types.PipelineCheckpoint{Stage: "coarse_assign", UnitKey: "batch:0000"}
	if err := repo.MarkDone(ctx, tx, row); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if err := repo.MarkDone(ctx, tx, &types.PipelineCheckpoint{
		Stage: "coarse_assign", UnitKey: "batch:0000",
	}); err != nil {
		t.Fatalf("MarkDone rerun: %v", err)
	}

	rows, err := repo.GetByStage(ctx, tx, "coarse_assign")
	if err != nil {
		t.Fatalf("GetByStage: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("ledger rows = %d, want 1", len(rows))
	}
	if rows[0].UnitKey != "batch:0000" || rows[0].Status != types.CheckpointStatusDone {
		t.Fatalf("ledger row = %+v", rows[0])
	}

	if err := repo.FullDeleteByStage(ctx, tx, "coarse_assign"); err != nil {
		t.Fatalf("FullDeleteByStage: %v", err)
	}
	rows, err = repo.GetByStage(ctx, tx, "coarse_assign")
	if err != nil {
		t.Fatalf("GetByStage after delete: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("ledger rows after delete = %d, want 0", len(rows))
	}
}

func TestCanonicalNameCreateMissingIsAppendOnly(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewCanonicalNameRepo(db, testutil.Logger(t))
	ctx := context.Background()

	if err := repo.CreateMissing(ctx, tx, []*types.PathwayCanonicalName{
		{RawName: "MTOR signalling pathway", CanonicalName: "mTOR Signaling"},
	}); err != nil {
		t.Fatalf("CreateMissing: %v", err)
	}
	// A later run proposing a different canonical must not rewrite the row.
	if err := repo.CreateMissing(ctx, tx, []*types.PathwayCanonicalName{
		{RawName: "MTOR signalling pathway", CanonicalName: "mTORC1 Signaling"},
		{RawName: "mTOR Signaling", CanonicalName: "mTOR Signaling"},
	}); err != nil {
		t.Fatalf("CreateMissing second call: %v", err)
	}

	rows, err := repo.GetByRawNames(ctx, tx, []string{"MTOR signalling pathway", "mTOR Signaling"})
	if err != nil {
		t.Fatalf("GetByRawNames: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	for _, row := range rows {
		if row.CanonicalName != "mTOR Signaling" {
			t.Fatalf("mapping rewritten: %s -> %s", row.RawName, row.CanonicalName)
		}
	}
}

func TestChainHistoryUpsertReplacesChain(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewChainHistoryRepo(db, testutil.Logger(t))
	ctx := context.Background()

	missing, err := repo.GetByCanonicalName(ctx, tx, "Apoptosis")
	if err != nil {
		t.Fatalf("GetByCanonicalName: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown name, got %+v", missing)
	}

	if err := repo.Upsert(ctx, tx, &types.PathwayChainHistory{
		CanonicalName: "Apoptosis",
		Chain:         []byte(`["Cell Death","Apoptosis"]`),
		Source:        types.ChainSourceOracle,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := repo.Upsert(ctx, tx, &types.PathwayChainHistory{
		CanonicalName: "Apoptosis",
		Chain:         []byte(`["Cell Death","Programmed Cell Death","Apoptosis"]`),
		Source:        types.ChainSourceOracle,
	}); err != nil {
		t.Fatalf("Upsert second write: %v", err)
	}

	row, err := repo.GetByCanonicalName(ctx, tx, "Apoptosis")
	if err != nil {
		t.Fatalf("GetByCanonicalName after upsert: %v", err)
	}
	if row == nil {
		t.Fatal("row missing after upsert")
	}
	if string(row.Chain) != `["Cell Death","Programmed Cell Death","Apoptosis"]` {
		t.Fatalf("chain = %s, want the replacement", row.Chain)
	}
}

func TestInteractionGetAllOrdersByCreation(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInteractionRepo(db, testutil.Logger(t))
	ctx := context.Background()

	a := testutil.SeedInteraction(t, tx, "EGFR", "GRB2")
	b := testutil.SeedInteraction(t, tx, "GRB2", "SOS1")

	rows, err := repo.GetAll(ctx, tx)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(rows) < 2 {
		t.Fatalf("rows = %d, want at least the two seeded", len(rows))
	}
	posA, posB := -1, -1
	for i, r := range rows {
		if r.ID == a.ID {
			posA = i
		}
		if r.ID == b.ID {
			posB = i
		}
	}
	if posA < 0 || posB < 0 || posA > posB {
		t.Fatalf("insertion order not preserved: a=%d b=%d", posA, posB)
	}

	n, err := repo.Count(ctx, tx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if int(n) != len(rows) {
		t.Fatalf("count = %d, rows = %d", n, len(rows))
	}
}

func TestInteractionUpdateMetadata(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewInteractionRepo(db, testutil.Logger(t))
	ctx := context.Background()

	row := testutil.SeedInteraction(t, tx, "ATXN3", "VCP")
	doc := datatypes.JSON(`{"evidence": {"valid": true}}`)
	if err := repo.UpdateMetadata(ctx, tx, row.ID, doc); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	got, err := repo.GetByIDs(ctx, tx, []uuid.UUID{row.ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(got) != 1 || string(got[0].Metadata) != string(doc) {
		t.Fatalf("metadata = %s", got[0].Metadata)
	}
}
