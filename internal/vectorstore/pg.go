package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/reservoirai/reservoir/internal/model"
)

// Namespace tracks a logical partition and the embedding dimension it was
// created with. Mixing dimensions inside a namespace is rejected on write.
type Namespace struct {
	Name      string    `gorm:"primaryKey;size:120"`
	Dimension int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (Namespace) TableName() string {
	return "vector_namespaces"
}

type Record struct {
	EntryID   string          `gorm:"primaryKey;size:100"`
	Namespace string          `gorm:"primaryKey;size:120;index"`
	Kind      string          `gorm:"size:20;index"`
	// EMBEDDING_DIMENSIONS must match the column width; a mismatch fails at
	// the column, before the namespace dimension check.
	Embedding pgvector.Vector `gorm:"type:vector(1536)"`
	Metadata  model.JSONMap   `gorm:"type:jsonb"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (Record) TableName() string {
	return "vector_entries"
}

// PgStore implements Store on Postgres with pgvector cosine distance.
type PgStore struct {
	db    *gorm.DB
	cache *MetadataCache // optional
}

func NewPgStore(db *gorm.DB, cache *MetadataCache) *PgStore {
	return &PgStore{db: db, cache: cache}
}

var _ Store = (*PgStore)(nil)

// EnsureNamespace creates the namespace row if it does not exist. Two
// concurrent first writers both succeed: the insert is ON CONFLICT DO NOTHING.
func (s *PgStore) EnsureNamespace(ctx context.Context, namespace string, dimension int) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}
	ns := Namespace{Name: namespace, Dimension: dimension}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ns).Error
	if err != nil {
		return fmt.Errorf("ensure namespace %s: %w", namespace, err)
	}
	return nil
}

func (s *PgStore) namespaceDimension(ctx context.Context, namespace string) (int, bool, error) {
	var ns Namespace
	err := s.db.WithContext(ctx).First(&ns, "name = ?", namespace).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ns.Dimension, true, nil
}

func (s *PgStore) Upsert(ctx context.Context, namespace string, entry Entry) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}
	if len(entry.Embedding) == 0 {
		return ErrNilEmbedding
	}

	dim, ok, err := s.namespaceDimension(ctx, namespace)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", entry.ID, err)
	}
	if !ok {
		return fmt.Errorf("upsert %s: namespace %s does not exist", entry.ID, namespace)
	}
	if len(entry.Embedding) != dim {
		return fmt.Errorf("upsert %s: %w (got %d, namespace has %d)",
			entry.ID, ErrDimensionMismatch, len(entry.Embedding), dim)
	}

	rec := Record{
		EntryID:   entry.ID,
		Namespace: namespace,
		Kind:      string(entry.Kind),
		Embedding: pgvector.NewVector(entry.Embedding),
		Metadata:  model.JSONMap(entry.Metadata),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "entry_id"}, {Name: "namespace"}},
			UpdateAll: true,
		}).
		Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert %s: %w", entry.ID, err)
	}

	if s.cache != nil {
		// Best effort write-through; the row is authoritative
		_ = s.cache.SetMetadata(ctx, namespace, entry.ID, entry.Metadata)
		_ = s.cache.InvalidateCount(ctx, namespace)
	}
	return nil
}

// Delete removes an entry. Deleting a nonexistent id is not an error.
func (s *PgStore) Delete(ctx context.Context, namespace, id string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND entry_id = ?", namespace, id).
		Delete(&Record{}).Error
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, namespace, id)
		_ = s.cache.InvalidateCount(ctx, namespace)
	}
	return nil
}

// DeleteMany deletes ids one by one so a single failure cannot hide the
// others' success. The outcome lists both sides.
func (s *PgStore) DeleteMany(ctx context.Context, namespace string, ids []string) DeleteOutcome {
	var out DeleteOutcome
	for _, id := range ids {
		if err := s.Delete(ctx, namespace, id); err != nil {
			out.Failed = append(out.Failed, id)
			continue
		}
		out.Deleted = append(out.Deleted, id)
	}
	return out
}

func (s *PgStore) Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]ScoredEntry, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	// A namespace that was never written reads as empty, not as an error
	_, ok, err := s.namespaceDimension(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("query namespace %s: %w", namespace, err)
	}
	if !ok {
		return nil, nil
	}

	var rows []struct {
		Record
		Distance float64 `gorm:"column:distance"`
	}

	query := s.db.WithContext(ctx).
		Table("vector_entries").
		Select("*, embedding <=> ? as distance", pgvector.NewVector(vector)).
		Where("namespace = ?", namespace).
		Where("embedding IS NOT NULL").
		Order("distance ASC").
		Limit(opts.TopK)

	query = applyFilter(query, opts.Filter)

	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query namespace %s: %w", namespace, err)
	}

	results := make([]ScoredEntry, 0, len(rows))
	for _, r := range rows {
		entry := Entry{
			ID:        r.EntryID,
			Kind:      Kind(r.Kind),
			Embedding: r.Embedding.Slice(),
		}
		if opts.IncludeMetadata {
			entry.Metadata = map[string]interface{}(r.Metadata)
		}
		results = append(results, ScoredEntry{
			Entry: entry,
			Score: clampScore(1 - r.Distance),
		})
	}
	return results, nil
}

func applyFilter(query *gorm.DB, f *Filter) *gorm.DB {
	if f == nil {
		return query
	}
	for key, value := range f.Equals {
		query = query.Where("metadata->>? = ?", key, value)
	}
	for key, values := range f.AnyOf {
		query = query.Where("metadata->>? IN ?", key, values)
	}
	for _, tag := range f.Tags {
		member, _ := json.Marshal([]string{tag})
		query = query.Where("metadata->'search_tags' @> ?", string(member))
	}
	return query
}

func (s *PgStore) Range(ctx context.Context, namespace string, opts RangeOptions) (RangePage, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Cursor < 0 {
		opts.Cursor = 0
	}

	var rows []Record
	err := s.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Order("entry_id ASC").
		Offset(opts.Cursor).
		Limit(opts.Limit + 1).
		Find(&rows).Error
	if err != nil {
		return RangePage{}, fmt.Errorf("range namespace %s: %w", namespace, err)
	}

	page := RangePage{}
	if len(rows) > opts.Limit {
		rows = rows[:opts.Limit]
		page.HasMore = true
		page.NextCursor = opts.Cursor + opts.Limit
	}
	for _, r := range rows {
		page.Items = append(page.Items, Entry{
			ID:        r.EntryID,
			Kind:      Kind(r.Kind),
			Embedding: r.Embedding.Slice(),
			Metadata:  map[string]interface{}(r.Metadata),
		})
	}
	return page, nil
}

// Count is approximate under concurrent writes; used for UX and telemetry only.
func (s *PgStore) Count(ctx context.Context, namespace string) (int64, error) {
	if s.cache != nil {
		if n, ok, err := s.cache.GetCount(ctx, namespace); err == nil && ok {
			return n, nil
		}
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&Record{}).
		Where("namespace = ?", namespace).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count namespace %s: %w", namespace, err)
	}

	if s.cache != nil {
		_ = s.cache.SetCount(ctx, namespace, count)
	}
	return count, nil
}

func (s *PgStore) DropNamespace(ctx context.Context, namespace string) error {
	if err := s.db.WithContext(ctx).
		Where("namespace = ?", namespace).
		Delete(&Record{}).Error; err != nil {
		return fmt.Errorf("drop namespace %s: %w", namespace, err)
	}
	if err := s.db.WithContext(ctx).
		Where("name = ?", namespace).
		Delete(&Namespace{}).Error; err != nil {
		return fmt.Errorf("drop namespace %s: %w", namespace, err)
	}
	if s.cache != nil {
		_ = s.cache.InvalidateCount(ctx, namespace)
	}
	return nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
