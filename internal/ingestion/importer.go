package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/yungbote/biopath-backend/internal/data/repos"
	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

// Importer loads protein interaction records from delimited files into
// Postgres. Expected columns: protein_a, protein_b, annotation_a,
// annotation_b; the annotation columns may be empty.
type Importer struct {
	log          *logger.Logger
	interactions repos.InteractionRepo
	batchSize    int
}

func NewImporter(log *logger.Logger, interactions repos.InteractionRepo) *Importer {
	return &Importer{
		log:          log.With("service", "InteractionImporter"),
		interactions: interactions,
		batchSize:    500,
	}
}

// ImportFile reads a TSV (or CSV, by extension) file and inserts its rows.
// A header row is detected by the protein_a label and skipped. Returns the
// number of rows inserted.
func (im *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("ingestion: open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	if strings.HasSuffix(strings.ToLower(path), ".csv") {
		r.Comma = ','
	}
	r.FieldsPerRecord = -1

	total := 0
	var batch []*types.Interaction
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, fmt.Errorf("ingestion: read %s line %d: %w", path, line+1, err)
		}
		line++

		if line == 1 && len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "protein_a") {
			continue
		}
		row, err := parseRecord(record)
		if err != nil {
			im.log.Warn("skipping malformed row", "file", path, "line", line, "error", err)
			continue
		}
		batch = append(batch, row)

		if len(batch) >= im.batchSize {
			if _, err := im.interactions.Create(ctx, nil, batch); err != nil {
				return total, fmt.Errorf("ingestion: insert batch: %w", err)
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if _, err := im.interactions.Create(ctx, nil, batch); err != nil {
			return total, fmt.Errorf("ingestion: insert batch: %w", err)
		}
		total += len(batch)
	}

	im.log.Info("interaction import complete", "file", path, "rows", total)
	return total, nil
}

func parseRecord(record []string) (*types.Interaction, error) {
	if len(record) < 2 {
		return nil, fmt.Errorf("need at least protein_a and protein_b, got %d columns", len(record))
	}
	a := strings.TrimSpace(record[0])
	b := strings.TrimSpace(record[1])
	if a == "" || b == "" {
		return nil, fmt.Errorf("empty protein name")
	}
	row := &types.Interaction{ProteinA: a, ProteinB: b}
	if len(record) > 2 {
		row.AnnotationA = strings.TrimSpace(record[2])
	}
	if len(record) > 3 {
		row.AnnotationB = strings.TrimSpace(record[3])
	}
	return row, nil
}
