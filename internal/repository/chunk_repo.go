package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reservoirai/reservoir/internal/model"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&chunks).Error
}

func (r *ChunkRepository) FindByDocumentID(ctx context.Context, documentID uuid.UUID) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// IDsByDocumentID returns chunk ids only, for building vector delete batches.
func (r *ChunkRepository) IDsByDocumentID(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *ChunkRepository) DeleteByDocumentID(ctx context.Context, documentID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{})
	return res.RowsAffected, res.Error
}

func (r *ChunkRepository) DeleteByPoolID(ctx context.Context, poolID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("data_pool_id = ?", poolID).Delete(&model.Chunk{}).Error
}
