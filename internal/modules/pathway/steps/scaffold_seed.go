package steps

import (
	"context"
	"fmt"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/hierarchy"
	"github.com/yungbote/biopath-backend/internal/ontology"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type ScaffoldSeedDeps struct {
	Log      *logger.Logger
	Cfg      *app.Config
	Graph    *hierarchy.Graph
	Ontology ontology.Service
}

type ScaffoldSeedOutput struct {
	Seeded int
}

// seedScaffold lists curated second-level pathways per root category. These
// anchor chain building so early oracle answers land near well-known GO
// terms instead of inventing parallel vocabulary.
var seedScaffold = map[string][]ontology.Term{
	"Cellular Signaling": {
		{Name: "Receptor Tyrosine Kinase Signaling", ID: "GO:0007169"},
		{Name: "G Protein-Coupled Receptor Signaling", ID: "GO:0007186"},
		{Name: "Wnt Signaling", ID: "GO:0016055"},
		{Name: "Notch Signaling", ID: "GO:0007219"},
	},
	"Metabolism": {
		{Name: "Carbohydrate Metabolism", ID: "GO:0005975"},
		{Name: "Lipid Metabolism", ID: "GO:0006629"},
		{Name: "Amino Acid Metabolism", ID: "GO:0006520"},
	},
	"Protein Quality Control": {
		{Name: "Protein Folding", ID: "GO:0006457"},
		{Name: "Ubiquitin-Proteasome System", ID: "GO:0043161"},
		{Name: "Autophagy", ID: "GO:0006914"},
	},
	"Cell Death": {
		{Name: "Apoptosis", ID: "GO:0006915"},
		{Name: "Necroptosis", ID: "GO:0070266"},
	},
	"Cell Cycle": {
		{Name: "Mitotic Cell Cycle", ID: "GO:0000278"},
		{Name: "Cell Cycle Checkpoint", ID: "GO:0000075"},
	},
	"DNA Damage Response": {
		{Name: "DNA Repair", ID: "GO:0006281"},
		{Name: "Double-Strand Break Repair", ID: "GO:0006302"},
	},
	"Vesicle Transport": {
		{Name: "Endocytosis", ID: "GO:0006897"},
		{Name: "Exocytosis", ID: "GO:0006887"},
	},
	"Immune Response": {
		{Name: "Innate Immune Response", ID: "GO:0045087"},
		{Name: "Adaptive Immune Response", ID: "GO:0002250"},
	},
	"Neuronal Function": {
		{Name: "Synaptic Transmission", ID: "GO:0007268"},
		{Name: "Axon Guidance", ID: "GO:0007411"},
	},
	"Cytoskeleton Organization": {
		{Name: "Actin Cytoskeleton Organization", ID: "GO:0030036"},
		{Name: "Microtubule Cytoskeleton Organization", ID: "GO:0000226"},
	},
	"Transcriptional Regulation": {
		{Name: "RNA Polymerase II Transcription", ID: "GO:0006366"},
	},
	"Chromatin Organization": {
		{Name: "Histone Modification", ID: "GO:0016570"},
		{Name: "Chromatin Remodeling", ID: "GO:0006338"},
	},
}

// ScaffoldSeedStep plants the curated scaffold under each configured root.
// Roots without a curated entry stay bare. When an ontology service is
// wired, each seeded term's code is verified against it and the verified
// code wins over the curated one.
func ScaffoldSeedStep(ctx context.Context, deps ScaffoldSeedDeps, _ struct{}) (ScaffoldSeedOutput, error) {
	if deps.Log == nil || deps.Cfg == nil || deps.Graph == nil {
		return ScaffoldSeedOutput{}, fmt.Errorf("scaffold seed: missing deps")
	}
	log := deps.Log.With("step", "ScaffoldSeed")
	out := ScaffoldSeedOutput{}

	for _, root := range deps.Cfg.RootNames() {
		for _, term := range seedScaffold[root] {
			ontologyID := term.ID
			if deps.Ontology != nil {
				if resolved, err := deps.Ontology.GetTerm(ctx, term.ID); err == nil && resolved != nil {
					ontologyID = resolved.ID
				}
			}
			if _, err := deps.Graph.SeedChild(root, term.Name, ontologyID); err != nil {
				return out, fmt.Errorf("scaffold seed: %q under %q: %w", term.Name, root, err)
			}
			out.Seeded++
		}
	}

	log.Info("scaffold seeded", "nodes", out.Seeded)
	return out, nil
}
