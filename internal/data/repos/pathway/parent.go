package pathway

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type ParentRepo interface {
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayParent, error)
	GetByChildIDs(ctx context.Context, tx *gorm.DB, childIDs []uuid.UUID) ([]*types.PathwayParent, error)

	// UpsertPairs writes edges idempotently on the (child_id, parent_id)
	// unique index, upgrading is_primary_chain but never downgrading it.
	UpsertPairs(ctx context.Context, tx *gorm.DB, rows []*types.PathwayParent) error

	FullDeleteByNodeIDs(ctx context.Context, tx *gorm.DB, nodeIDs []uuid.UUID) error
}

type parentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParentRepo(db *gorm.DB, baseLog *logger.Logger) ParentRepo {
	return &parentRepo{db: db, log: baseLog.With("repo", "PathwayParentRepo")}
}

func (r *parentRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayParent, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PathwayParent
	if err := t.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *parentRepo) GetByChildIDs(ctx context.Context, tx *gorm.DB, childIDs []uuid.UUID) ([]*types.PathwayParent, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PathwayParent
	if len(childIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("child_id IN ?", childIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *parentRepo) UpsertPairs(ctx context.Context, tx *gorm.DB, rows []*types.PathwayParent) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return t.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "child_id"}, {Name: "parent_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"is_primary_chain": gorm.Expr(`"pathway_parent"."is_primary_chain" OR "excluded"."is_primary_chain"`),
			"confidence":       gorm.Expr(`GREATEST("pathway_parent"."confidence", "excluded"."confidence")`),
			"updated_at":       gorm.Expr("now()"),
		}),
	}).Create(&rows).Error
}

func (r *parentRepo) FullDeleteByNodeIDs(ctx context.Context, tx *gorm.DB, nodeIDs []uuid.UUID) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(nodeIDs) == 0 {
		return nil
	}
	return t.WithContext(ctx).
		Where("child_id IN ? OR parent_id IN ?", nodeIDs, nodeIDs).
		Delete(&types.PathwayParent{}).Error
}
