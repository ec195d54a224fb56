package pathway

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type ChainHistoryRepo interface {
	GetByCanonicalName(ctx context.Context, tx *gorm.DB, canonicalName string) (*types.PathwayChainHistory, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayChainHistory, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.PathwayChainHistory) error
}

type chainHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChainHistoryRepo(db *gorm.DB, baseLog *logger.Logger) ChainHistoryRepo {
	return &chainHistoryRepo{db: db, log: baseLog.With("repo", "PathwayChainHistoryRepo")}
}

func (r *chainHistoryRepo) GetByCanonicalName(ctx context.Context, tx *gorm.DB, canonicalName string) (*types.PathwayChainHistory, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if canonicalName == "" {
		return nil, nil
	}
	var row types.PathwayChainHistory
	err := t.WithContext(ctx).Where("canonical_name = ?", canonicalName).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *chainHistoryRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayChainHistory, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PathwayChainHistory
	if err := t.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chainHistoryRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.PathwayChainHistory) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.CanonicalName == "" {
		return nil
	}
	return t.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "canonical_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"chain", "source", "updated_at"}),
	}).Create(row).Error
}
