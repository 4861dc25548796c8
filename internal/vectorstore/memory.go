package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force cosine-similarity store. It backs tests and
// single-process development setups.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]*memNamespace
}

type memNamespace struct {
	dimension int
	entries   map[string]Entry
	order     []string // insertion order, for stable Range enumeration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]*memNamespace)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) EnsureNamespace(ctx context.Context, namespace string, dimension int) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.namespaces[namespace]; ok {
		return nil
	}
	s.namespaces[namespace] = &memNamespace{
		dimension: dimension,
		entries:   make(map[string]Entry),
	}
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, namespace string, entry Entry) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}
	if len(entry.Embedding) == 0 {
		return ErrNilEmbedding
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return fmt.Errorf("upsert %s: namespace %s does not exist", entry.ID, namespace)
	}
	if len(entry.Embedding) != ns.dimension {
		return fmt.Errorf("upsert %s: %w (got %d, namespace has %d)",
			entry.ID, ErrDimensionMismatch, len(entry.Embedding), ns.dimension)
	}

	if _, exists := ns.entries[entry.ID]; !exists {
		ns.order = append(ns.order, entry.ID)
	}
	ns.entries[entry.ID] = entry
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, namespace, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil
	}
	if _, exists := ns.entries[id]; !exists {
		return nil
	}
	delete(ns.entries, id)
	for i, oid := range ns.order {
		if oid == id {
			ns.order = append(ns.order[:i], ns.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) DeleteMany(ctx context.Context, namespace string, ids []string) DeleteOutcome {
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

func (s *MemoryStore) Query(ctx context.Context, namespace string, vector []float32, opts QueryOptions) ([]ScoredEntry, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil, nil
	}

	scored := make([]ScoredEntry, 0, len(ns.entries))
	for _, entry := range ns.entries {
		if !opts.Filter.matches(entry) {
			continue
		}
		hit := ScoredEntry{Score: clampScore(cosineSimilarity(vector, entry.Embedding))}
		hit.ID = entry.ID
		hit.Kind = entry.Kind
		hit.Embedding = entry.Embedding
		if opts.IncludeMetadata {
			hit.Metadata = entry.Metadata
		}
		scored = append(scored, hit)
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > opts.TopK {
		scored = scored[:opts.TopK]
	}
	return scored, nil
}

func (s *MemoryStore) Range(ctx context.Context, namespace string, opts RangeOptions) (RangePage, error) {
	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Cursor < 0 {
		opts.Cursor = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return RangePage{}, nil
	}

	page := RangePage{}
	if opts.Cursor >= len(ns.order) {
		return page, nil
	}

	end := opts.Cursor + opts.Limit
	if end > len(ns.order) {
		end = len(ns.order)
	}
	for _, id := range ns.order[opts.Cursor:end] {
		page.Items = append(page.Items, ns.entries[id])
	}
	if end < len(ns.order) {
		page.HasMore = true
		page.NextCursor = end
	}
	return page, nil
}

func (s *MemoryStore) Count(ctx context.Context, namespace string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return 0, nil
	}
	return int64(len(ns.entries)), nil
}

func (s *MemoryStore) DropNamespace(ctx context.Context, namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.namespaces, namespace)
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
