package pathway

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/yungbote/biopath-backend/internal/domain"
	"github.com/yungbote/biopath-backend/internal/platform/logger"
)

type PathwayRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Pathway) ([]*types.Pathway, error)

	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Pathway, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Pathway, error)
	GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Pathway, error)
	GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Pathway, error)

	// GetOrCreateByName relies on the unique index on name: a concurrent
	// insert of the same name loses the race and re-reads the winner.
	GetOrCreateByName(ctx context.Context, tx *gorm.DB, row *types.Pathway) (*types.Pathway, error)

	Update(ctx context.Context, tx *gorm.DB, row *types.Pathway) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error

	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type pathwayRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPathwayRepo(db *gorm.DB, baseLog *logger.Logger) PathwayRepo {
	return &pathwayRepo{db: db, log: baseLog.With("repo", "PathwayRepo")}
}

func (r *pathwayRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Pathway) ([]*types.Pathway, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(rows) == 0 {
		return []*types.Pathway{}, nil
	}
	if err := t.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *pathwayRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Pathway, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	rows, err := r.GetByIDs(ctx, tx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *pathwayRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.Pathway, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Pathway
	if len(ids) == 0 {
		return out, nil
	}
	if err := t.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *pathwayRepo) GetByName(ctx context.Context, tx *gorm.DB, name string) (*types.Pathway, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if name == "" {
		return nil, nil
	}
	var row types.Pathway
	err := t.WithContext(ctx).Where("name = ?", name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *pathwayRepo) GetAll(ctx context.Context, tx *gorm.DB) ([]*types.Pathway, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	var out []*types.Pathway
	if err := t.WithContext(ctx).Order("level ASC, name ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *pathwayRepo) GetOrCreateByName(ctx context.Context, tx *gorm.DB, row *types.Pathway) (*types.Pathway, error) {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil || row.Name == "" {
		return nil, nil
	}
	existing, err := r.GetByName(ctx, t, row.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if err := t.WithContext(ctx).Create(row).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return r.GetByName(ctx, t, row.Name)
		}
		return nil, err
	}
	return row, nil
}

func (r *pathwayRepo) Update(ctx context.Context, tx *gorm.DB, row *types.Pathway) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if row == nil {
		return nil
	}
	return t.WithContext(ctx).Save(row).Error
}

func (r *pathwayRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return t.WithContext(ctx).
		Model(&types.Pathway{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *pathwayRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	t := tx
	if t == nil {
		t = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return t.WithContext(ctx).Unscoped().Where("id IN ?", ids).Delete(&types.Pathway{}).Error
}
