package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/biopath-backend/internal/data/repos/pathway"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type PathwayRepo = pathway.PathwayRepo
type PathwayParentRepo = pathway.ParentRepo
type CanonicalNameRepo = pathway.CanonicalNameRepo
type ChainHistoryRepo = pathway.ChainHistoryRepo
type InteractionRepo = pathway.InteractionRepo
type AssignmentRepo = pathway.AssignmentRepo
type CheckpointRepo = pathway.CheckpointRepo

func NewPathwayRepo(db *gorm.DB, baseLog *logger.Logger) PathwayRepo {
	return pathway.NewPathwayRepo(db, baseLog)
}
func NewPathwayParentRepo(db *gorm.DB, baseLog *logger.Logger) PathwayParentRepo {
	return pathway.NewParentRepo(db, baseLog)
}
func NewCanonicalNameRepo(db *gorm.DB, baseLog *logger.Logger) CanonicalNameRepo {
	return pathway.NewCanonicalNameRepo(db, baseLog)
}
func NewChainHistoryRepo(db *gorm.DB, baseLog *logger.Logger) ChainHistoryRepo {
	return pathway.NewChainHistoryRepo(db, baseLog)
}
func NewInteractionRepo(db *gorm.DB, baseLog *logger.Logger) InteractionRepo {
	return pathway.NewInteractionRepo(db, baseLog)
}
func NewAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) AssignmentRepo {
	return pathway.NewAssignmentRepo(db, baseLog)
}
func NewCheckpointRepo(db *gorm.DB, baseLog *logger.Logger) CheckpointRepo {
	return pathway.NewCheckpointRepo(db, baseLog)
}

// All bundles every repository over one database handle.
type All struct {
	Pathway       PathwayRepo
	PathwayParent PathwayParentRepo
	CanonicalName CanonicalNameRepo
	ChainHistory  ChainHistoryRepo
	Interaction   InteractionRepo
	Assignment    AssignmentRepo
	Checkpoint    CheckpointRepo
}

func NewAll(db *gorm.DB, baseLog *logger.Logger) *All {
	return &All{
		Pathway:       NewPathwayRepo(db, baseLog),
		PathwayParent: NewPathwayParentRepo(db, baseLog),
		CanonicalName: NewCanonicalNameRepo(db, baseLog),
		ChainHistory:  NewChainHistoryRepo(db, baseLog),
		Interaction:   NewInteractionRepo(db, baseLog),
		Assignment:    NewAssignmentRepo(db, baseLog),
		Checkpoint:    NewCheckpointRepo(db, baseLog),
	}
}
