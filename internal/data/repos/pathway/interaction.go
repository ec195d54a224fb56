package pathway

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type InteractionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Interaction) ([]*types.Interaction, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Interaction, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Interaction, error)
	Count(ctx context.Context, tx *gorm.DB) (int64, error)

	// UpdateMetadata replaces the metadata document for one interaction.
	UpdateMetadata(ctx context.Context, tx *gorm.DB, id uuid.UUID, metadata datatypes.JSON) error
}

type interactionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInteractionRepo(db *gorm.DB, baseLog *logger.Logger) InteractionRepo {
	return &interactionRepo{db: db, log: baseLog.With("repo", "InteractionRepo")}
}

func (r *interactionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Interaction) ([]*types.Interaction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Interaction{}, nil
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *interactionRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Interaction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Interaction
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interactionRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Interaction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Interaction
	if err := t.WithContext(ctx).Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *interactionRepo) UpdateMetadata(ctx context.Context, tx *gorm.DB, id uuid.UUID, metadata datatypes.JSON) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	return t.WithContext(ctx).
		Model(&types.Interaction{}).
		Where("id = ?", id).
		Update("metadata", metadata).Error
}

func (r *interactionRepo) Count(ctx context.Context, tx *gorm.DB) (int64, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var n int64
	if err := t.WithContext(ctx).Model(&types.Interaction{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

type AssignmentRepo interface {
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayInteraction, error)
	GetByInteractionIDs(ctx context.Context, tx *gorm.DB, interactionIDs []uuid.UUID) ([]*types.PathwayInteraction, error)

	// UpsertByInteractionID keeps the one-row-per-interaction invariant on
	// the unique interaction_id index.
	UpsertByInteractionID(ctx context.Context, tx *gorm.DB, row *types.PathwayInteraction) error

	CountByPathwayID(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error)
}

type assignmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAssignmentRepo(db *gorm.DB, baseLog *logger.Logger) AssignmentRepo {
	return &assignmentRepo{db: db, log: baseLog.With("repo", "PathwayInteractionRepo")}
}

func (r *assignmentRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.PathwayInteraction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PathwayInteraction
	if err := t.WithContext(ctx).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assignmentRepo) GetByInteractionIDs(ctx context.Context, tx *gorm.DB, interactionIDs []uuid.UUID) ([]*types.PathwayInteraction, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.PathwayInteraction
	if len(interactionIDs) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("interaction_id IN ?", interactionIDs).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *assignmentRepo) UpsertByInteractionID(ctx context.Context, tx *gorm.DB, row *types.PathwayInteraction) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.InteractionID == uuid.Nil || row.PathwayID == uuid.Nil {
		return nil
	}
	return t.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "interaction_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"pathway_id", "raw_name", "confidence", "source", "updated_at"}),
	}).Create(row).Error
}

func (r *assignmentRepo) CountByPathwayID(ctx context.Context, tx *gorm.DB) (map[uuid.UUID]int, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	type row struct {
		PathwayID uuid.UUID
		N         int
	}
	var rows []row
	if err := t.WithContext(ctx).
		Model(&types.PathwayInteraction{}).
		Select("pathway_id, COUNT(*) AS n").
		Group("pathway_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]int, len(rows))
	for _, r := range rows {
		out[r.PathwayID] = r.N
	}
	return out, nil
}
