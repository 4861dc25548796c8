package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reservoirai/reservoir/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	return r.db.WithContext(ctx).Create(doc).Error
}

func (r *DocumentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepository) FindByPoolID(ctx context.Context, poolID uuid.UUID, limit, offset int) ([]model.Document, int64, error) {
	var docs []model.Document
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("data_pool_id = ?", poolID)

	query.Count(&total)
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&docs).Error
	return docs, total, err
}

// FindByTitle matches exactly on title, or by substring over title and tags
// when exact is false.
func (r *DocumentRepository) FindByTitle(ctx context.Context, poolIDs []uuid.UUID, title string, exact bool) ([]model.Document, error) {
	var docs []model.Document
	query := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("data_pool_id IN ?", poolIDs)

	if exact {
		query = query.Where("title = ?", title)
	} else {
		pattern := "%" + title + "%"
		query = query.Where("title ILIKE ? OR search_tags::text ILIKE ?", pattern, pattern)
	}

	err := query.Order("created_at DESC").Limit(50).Find(&docs).Error
	return docs, err
}

// Titles returns all document titles across the pools, for suggestion lists.
func (r *DocumentRepository) Titles(ctx context.Context, poolIDs []uuid.UUID, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	var titles []string
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("data_pool_id IN ?", poolIDs).
		Order("created_at DESC").
		Limit(limit).
		Pluck("title", &titles).Error
	return titles, err
}

func (r *DocumentRepository) CountByPoolID(ctx context.Context, poolID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("data_pool_id = ?", poolID).
		Count(&count).Error
	return count, err
}

func (r *DocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Document{}, "id = ?", id).Error
}

func (r *DocumentRepository) DeleteByPoolID(ctx context.Context, poolID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("data_pool_id = ?", poolID).Delete(&model.Document{}).Error
}

// FindImagesBySource returns image documents extracted from the given upload.
func (r *DocumentRepository) FindImagesBySource(ctx context.Context, sourceID uuid.UUID) ([]model.Document, error) {
	var docs []model.Document
	err := r.db.WithContext(ctx).
		Where("source_document_id = ? AND kind = ?", sourceID, model.DocumentKindImage).
		Find(&docs).Error
	return docs, err
}
