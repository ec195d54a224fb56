package db

import (
	"gorm.io/gorm"

	types "github.com/yungbote/biopath-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Interactions under classification
		&types.Interaction{},
		&types.PathwayInteraction{},

		// Pathway hierarchy
		&types.Pathway{},
		&types.PathwayParent{},
		&types.PathwayCanonicalName{},
		&types.PathwayChainHistory{},

		// Pipeline bookkeeping
		&types.PipelineCheckpoint{},
	)
}
