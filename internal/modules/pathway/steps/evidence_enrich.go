package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/biopath-backend/internal/app"
	"github.com/yungbote/biopath-backend/internal/data/repos"
	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/modules/pathway/prompts"
	"github.com/yungbote/biopath-backend/internal/platform/gemini"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type EvidenceEnrichDeps struct {
	Log          *logger.Logger
	AI           gemini.Client
	Cfg          *app.Config
	Interactions repos.InteractionRepo
}

type EvidenceEnrichInput struct {
	Interactions []*types.Interaction
}

type EvidenceEnrichOutput struct {
	Processed int
	Validated int
	Rejected  int
	KeptPrior int
}

// evidenceDetail is the document written into interaction metadata under
// the "evidence" key.
type evidenceDetail struct {
	Valid     bool               `json:"valid"`
	Mechanism string             `json:"mechanism,omitempty"`
	Citations []evidenceCitation `json:"citations,omitempty"`
}

type evidenceCitation struct {
	Title   string `json:"title"`
	Journal string `json:"journal,omitempty"`
	Year    int    `json:"year,omitempty"`
	Quote   string `json:"quote,omitempty"`
}

// EvidenceEnrichStep fact-checks every stored interaction against primary
// literature via search-grounded oracle calls and writes the verdict with
// citations into the interaction's metadata. Batches carry no cross-batch
// dependency, so they run on a bounded worker pool; the oracle client still
// serializes the calls themselves. A batch the oracle answers unusably
// keeps its rows untouched for the next invocation.
func EvidenceEnrichStep(ctx context.Context, deps EvidenceEnrichDeps, in EvidenceEnrichInput) (EvidenceEnrichOutput, error) {
	if deps.Log == nil || deps.AI == nil || deps.Cfg == nil || deps.Interactions == nil {
		return EvidenceEnrichOutput{}, fmt.Errorf("evidence enrich: missing deps")
	}
	log := deps.Log.With("step", "EvidenceEnrich")

	var (
		mu  sync.Mutex
		out EvidenceEnrichOutput
	)

	g, gctx := errgroup.WithContext(ctx)
	workers := deps.Cfg.EvidenceWorkers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for _, batch := range batchSlices(in.Interactions, deps.Cfg.EvidenceBatchSize) {
		batch := batch
		g.Go(func() error {
			results, err := evidenceEnrichCall(gctx, deps, batch)
			if err != nil {
				if gemini.IsUnavailable(err) {
					return err
				}
				log.Warn("evidence batch failed, keeping rows unenriched",
					"batch_size", len(batch), "error", err)
				mu.Lock()
				out.Processed += len(batch)
				out.KeptPrior += len(batch)
				mu.Unlock()
				return nil
			}

			byIndex := map[int]EvidenceResult{}
			for _, res := range results {
				byIndex[res.Index] = res
			}
			var validated, rejected, kept int
			for i, row := range batch {
				res, ok := byIndex[i]
				if !ok {
					kept++
					continue
				}
				if err := persistEvidence(gctx, deps, row, res); err != nil {
					return fmt.Errorf("evidence enrich: persist %s: %w", row.ID, err)
				}
				if res.Valid {
					validated++
				} else {
					log.Warn("interaction claim not supported by the literature",
						"interaction_id", row.ID, "mechanism", res.Mechanism)
					rejected++
				}
			}
			mu.Lock()
			out.Processed += len(batch)
			out.Validated += validated
			out.Rejected += rejected
			out.KeptPrior += kept
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	log.Info("evidence enrichment complete",
		"processed", out.Processed, "validated", out.Validated,
		"rejected", out.Rejected, "kept_prior", out.KeptPrior)
	return out, nil
}

func evidenceEnrichCall(ctx context.Context, deps EvidenceEnrichDeps, batch []*types.Interaction) ([]EvidenceResult, error) {
	p, err := prompts.Build(prompts.PromptEvidenceEnrich, prompts.Input{
		Interactions: interactionContexts(batch, 300),
	})
	if err != nil {
		return nil, err
	}
	data, err := deps.AI.GenerateJSON(ctx, p.System, p.User, gemini.CallOptions{
		AllowSearch: true,
		Stage:       "evidence",
	})
	if err != nil {
		return nil, err
	}
	return parseEvidenceResults(data, len(batch))
}

// persistEvidence merges the verdict into the interaction's metadata
// document, preserving unrelated keys, and writes it back.
func persistEvidence(ctx context.Context, deps EvidenceEnrichDeps, row *types.Interaction, res EvidenceResult) error {
	detail := evidenceDetail{Valid: res.Valid, Mechanism: res.Mechanism}
	for _, c := range res.Citations {
		detail.Citations = append(detail.Citations, evidenceCitation{
			Title:   c.Title,
			Journal: c.Journal,
			Year:    c.Year,
			Quote:   c.Quote,
		})
	}

	meta := map[string]any{}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &meta); err != nil {
			meta = map[string]any{}
		}
	}
	meta["evidence"] = detail
	row.Metadata = mustJSON(meta)
	return deps.Interactions.UpdateMetadata(ctx, nil, row.ID, row.Metadata)
}
