package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reservoirai/reservoir/internal/model"
)

type DataPoolRepository struct {
	db *gorm.DB
}

func NewDataPoolRepository(db *gorm.DB) *DataPoolRepository {
	return &DataPoolRepository{db: db}
}

func (r *DataPoolRepository) Create(ctx context.Context, pool *model.DataPool) error {
	return r.db.WithContext(ctx).Create(pool).Error
}

func (r *DataPoolRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.DataPool, error) {
	var pool model.DataPool
	err := r.db.WithContext(ctx).First(&pool, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

func (r *DataPoolRepository) FindByOwnerID(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.DataPool, int64, error) {
	var pools []model.DataPool
	var total int64

	query := r.db.WithContext(ctx).Model(&model.DataPool{}).
		Where("owner_id = ?", ownerID)

	query.Count(&total)
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&pools).Error
	return pools, total, err
}

func (r *DataPoolRepository) Update(ctx context.Context, pool *model.DataPool) error {
	return r.db.WithContext(ctx).Save(pool).Error
}

func (r *DataPoolRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.DataPool{}, "id = ?", id).Error
}
