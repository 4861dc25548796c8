package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reservoirai/reservoir/internal/model"
	"github.com/reservoirai/reservoir/internal/repository"
	"github.com/reservoirai/reservoir/internal/vectorstore"
)

type DataPoolService struct {
	poolRepo     *repository.DataPoolRepository
	documentRepo *repository.DocumentRepository
	chunkRepo    *repository.ChunkRepository
	store        vectorstore.Store
	logger       *slog.Logger
}

func NewDataPoolService(
	poolRepo *repository.DataPoolRepository,
	documentRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	store vectorstore.Store,
	logger *slog.Logger,
) *DataPoolService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataPoolService{
		poolRepo:     poolRepo,
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		store:        store,
		logger:       logger.With("service", "datapool"),
	}
}

func (s *DataPoolService) Create(ctx context.Context, pool *model.DataPool) error {
	return s.poolRepo.Create(ctx, pool)
}

func (s *DataPoolService) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]model.DataPool, int64, error) {
	return s.poolRepo.FindByOwnerID(ctx, ownerID, limit, offset)
}

func (s *DataPoolService) GetByID(ctx context.Context, id uuid.UUID, includeStats bool) (*model.DataPool, error) {
	pool, err := s.poolRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if includeStats {
		count, _ := s.documentRepo.CountByPoolID(ctx, id)
		pool.DocumentCount = int(count)
	}
	return pool, nil
}

type PoolDeleteResult struct {
	DocumentsDeleted int64    `json:"documents_deleted"`
	NamespaceDropped bool     `json:"namespace_dropped"`
	Failures         []string `json:"failures,omitempty"`
}

// Delete removes a pool, its documents and chunks, and drops the pool's
// vector namespace. Relational deletion is authoritative; a namespace drop
// failure is reported, not rethrown.
func (s *DataPoolService) Delete(ctx context.Context, id uuid.UUID) (*PoolDeleteResult, error) {
	pool, err := s.poolRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("data pool %s: %w", id, err)
	}

	docCount, _ := s.documentRepo.CountByPoolID(ctx, id)

	if err := s.chunkRepo.DeleteByPoolID(ctx, id); err != nil {
		return nil, fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.documentRepo.DeleteByPoolID(ctx, id); err != nil {
		return nil, fmt.Errorf("delete documents: %w", err)
	}
	if err := s.poolRepo.Delete(ctx, id); err != nil {
		return nil, fmt.Errorf("delete pool: %w", err)
	}

	result := &PoolDeleteResult{DocumentsDeleted: docCount}
	if err := s.store.DropNamespace(ctx, pool.Namespace()); err != nil {
		s.logger.Warn("namespace drop failed", "pool_id", id, "err", err)
		result.Failures = append(result.Failures, "namespace:"+pool.Namespace())
	} else {
		result.NamespaceDropped = true
	}
	return result, nil
}
