package testutil

import (
	"testing"

	"gorm.io/gorm"

	types "github.com/yungbote/biopath-backend/internal/domain"
)

// SeedInteraction inserts one interaction row for repo tests.
func SeedInteraction(tb testing.TB, tx *gorm.DB, proteinA, proteinB string) *types.Interaction {
	tb.Helper()
	row := &types.Interaction{
		ProteinA:    proteinA,
		ProteinB:    proteinB,
		AnnotationA: proteinA + " functional annotation",
		AnnotationB: proteinB + " functional annotation",
	}
	if err := tx.Create(row).Error; err != nil {
		tb.Fatalf("seed interaction: %v", err)
	}
	return row
}

// SeedPathway inserts one pathway node row for repo tests.
func SeedPathway(tb testing.TB, tx *gorm.DB, name, kind string, level int) *types.Pathway {
	tb.Helper()
	row := &types.Pathway{
		Name:       name,
		Kind:       kind,
		Level:      level,
		Confidence: 0.9,
		Provenance: types.ProvenanceOracle,
	}
	if err := tx.Create(row).Error; err != nil {
		tb.Fatalf("seed pathway: %v", err)
	}
	return row
}
