package pathway

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type CanonicalNameRepo interface {
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayCanonicalName, error)
	GetByRawNames(ctx context.Context, tx *gorm.DB, rawNames []string) ([]*types.PathwayCanonicalName, error)

	// CreateMissing inserts mappings for raw names not yet resolved.
	// Existing rows are never rewritten: normalization is append-only.
	CreateMissing(ctx context.Context, tx *gorm.DB, rows []*types.PathwayCanonicalName) error
}

type canonicalNameRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCanonicalNameRepo(db *gorm.DB, baseLog *logger.Logger) CanonicalNameRepo {
	return &canonicalNameRepo{db: db, log: baseLog.With("repo", "PathwayCanonicalNameRepo")}
}

func (r *canonicalNameRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayCanonicalName, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PathwayCanonicalName
	if err := t.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canonicalNameRepo) GetByRawNames(ctx context.Context, tx *gorm.DB, rawNames []string) ([]*types.PathwayCanonicalName, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PathwayCanonicalName
	if len(rawNames) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("raw_name IN ?", rawNames).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *canonicalNameRepo) CreateMissing(ctx context.Context, tx *gorm.DB, rows []*types.PathwayCanonicalName) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "raw_name"}},
		DoNothing: true,
	}).Create(&rows).Error
}
