package pathway

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type CheckpointRepo interface {
	// MarkDone upserts the ledger row for (stage, unit); reruns are no-ops.
	MarkDone(ctx context.Context, tx *gorm.DB, row *types.PipelineCheckpoint) error

	// GetByStage returns the full ledger rows for a stage, detail included.
	GetByStage(ctx context.Context, tx *gorm.DB, stage string) ([]*types.PipelineCheckpoint, error)

	FullDeleteByStage(ctx context.Context, tx *gorm.DB, stage string) error
}

type checkpointRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCheckpointRepo(db *gorm.DB, baseLog *logger.Logger) CheckpointRepo {
	return &checkpointRepo{db: db, log: baseLog.With("repo", "PipelineCheckpointRepo")}
}

func (r *checkpointRepo) MarkDone(ctx context.Context, tx *gorm.DB, row *types.PipelineCheckpoint) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.Stage == "" || row.UnitKey == "" {
		return nil
	}
	if row.Status == "" {
		row.Status = types.CheckpointStatusDone
	}
	return t.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stage"}, {Name: "unit_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "detail", "updated_at"}),
	}).Create(row).Error
}

func (r *checkpointRepo) GetByStage(ctx context.Context, tx *gorm.DB, stage string) ([]*types.PipelineCheckpoint, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PipelineCheckpoint
	if stage == "" {
		return out, nil
	}
	if err := t.WithContext(ctx).
		Where("stage = ?", stage).
		Order("unit_key ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *checkpointRepo) FullDeleteByStage(ctx context.Context, tx *gorm.DB, stage string) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if stage == "" {
		return nil
	}
	return t.WithContext(ctx).Unscoped().Where("stage = ?", stage).Delete(&types.PipelineCheckpoint{}).Error
}
