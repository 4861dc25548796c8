package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEntry(id string, kind Kind, vec []float32, meta map[string]interface{}) Entry {
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["kind"] = string(kind)
	return Entry{ID: id, Kind: kind, Embedding: vec, Metadata: meta}
}

func TestMemoryStoreUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "datapool-a", 3))

	require.NoError(t, s.Upsert(ctx, "datapool-a", seedEntry("e1", KindChunk, []float32{1, 0, 0}, map[string]interface{}{"content": "aligned"})))
	require.NoError(t, s.Upsert(ctx, "datapool-a", seedEntry("e2", KindChunk, []float32{0, 1, 0}, map[string]interface{}{"content": "orthogonal"})))
	require.NoError(t, s.Upsert(ctx, "datapool-a", seedEntry("e3", KindChunk, []float32{-1, 0, 0}, map[string]interface{}{"content": "opposite"})))

	hits, err := s.Query(ctx, "datapool-a", []float32{1, 0, 0}, QueryOptions{TopK: 3, IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "e1", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "aligned", hits[0].Metadata["content"])
	for _, h := range hits {
		assert.GreaterOrEqual(t, h.Score, 0.0, "scores are clamped to [0,1]")
		assert.LessOrEqual(t, h.Score, 1.0)
	}
	// Descending by similarity
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	assert.GreaterOrEqual(t, hits[1].Score, hits[2].Score)
}

func TestMemoryStoreQueryTopK(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 2))
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Upsert(ctx, "ns", seedEntry(fmt.Sprintf("e%d", i), KindChunk, []float32{1, float32(i)}, nil)))
	}
	hits, err := s.Query(ctx, "ns", []float32{1, 0}, QueryOptions{TopK: 4})
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

func TestMemoryStoreUpsertValidation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 3))

	err := s.Upsert(ctx, "ns", Entry{ID: "x"})
	assert.ErrorIs(t, err, ErrNilEmbedding)

	err = s.Upsert(ctx, "ns", seedEntry("x", KindChunk, []float32{1, 2}, nil))
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = s.Upsert(ctx, "", seedEntry("x", KindChunk, []float32{1, 2, 3}, nil))
	assert.ErrorIs(t, err, ErrNamespaceRequired)
}

func TestMemoryStoreUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 2))

	require.NoError(t, s.Upsert(ctx, "ns", seedEntry("e1", KindChunk, []float32{1, 0}, map[string]interface{}{"v": "old"})))
	require.NoError(t, s.Upsert(ctx, "ns", seedEntry("e1", KindChunk, []float32{0, 1}, map[string]interface{}{"v": "new"})))

	count, err := s.Count(ctx, "ns")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	hits, err := s.Query(ctx, "ns", []float32{0, 1}, QueryOptions{TopK: 1, IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "new", hits[0].Metadata["v"])
}

func TestMemoryStoreLazyNamespaceReads(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Reads against a namespace that was never written are empty, not errors
	hits, err := s.Query(ctx, "never-written", []float32{1}, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	page, err := s.Range(ctx, "never-written", RangeOptions{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)

	count, err := s.Count(ctx, "never-written")
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.NoError(t, s.Delete(ctx, "never-written", "ghost"))
	assert.NoError(t, s.DropNamespace(ctx, "never-written"))
}

func TestMemoryStoreEnsureNamespaceIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.EnsureNamespace(ctx, "ns", 4))
	require.NoError(t, s.Upsert(ctx, "ns", seedEntry("e1", KindChunk, []float32{1, 2, 3, 4}, nil)))

	// Re-ensuring must not reset existing entries
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 4))
	count, err := s.Count(ctx, "ns")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	assert.ErrorIs(t, s.EnsureNamespace(ctx, "", 4), ErrNamespaceRequired)
}

func TestMemoryStoreConcurrentFirstWriters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.EnsureNamespace(ctx, "shared", 2))
			assert.NoError(t, s.Upsert(ctx, "shared", seedEntry(fmt.Sprintf("w%d", i), KindChunk, []float32{1, float32(i)}, nil)))
		}(i)
	}
	wg.Wait()

	count, err := s.Count(ctx, "shared")
	require.NoError(t, err)
	assert.EqualValues(t, 8, count)
}

func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 2))
	require.NoError(t, s.Upsert(ctx, "ns", seedEntry("e1", KindChunk, []float32{1, 0}, nil)))

	require.NoError(t, s.Delete(ctx, "ns", "e1"))
	require.NoError(t, s.Delete(ctx, "ns", "e1"))
	require.NoError(t, s.Delete(ctx, "ns", "never-existed"))

	count, err := s.Count(ctx, "ns")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestMemoryStoreDeleteMany(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 2))
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Upsert(ctx, "ns", seedEntry(id, KindChunk, []float32{1, 0}, nil)))
	}

	out := s.DeleteMany(ctx, "ns", []string{"a", "c", "missing"})
	assert.ElementsMatch(t, []string{"a", "c", "missing"}, out.Deleted)
	assert.Empty(t, out.Failed)

	count, err := s.Count(ctx, "ns")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestMemoryStoreRangePagination(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 1))
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Upsert(ctx, "ns", seedEntry(fmt.Sprintf("e%d", i), KindChunk, []float32{float32(i) + 1}, nil)))
	}

	page, err := s.Range(ctx, "ns", RangeOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "e0", page.Items[0].ID)
	assert.Equal(t, "e1", page.Items[1].ID)
	require.True(t, page.HasMore)

	page, err = s.Range(ctx, "ns", RangeOptions{Cursor: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "e2", page.Items[0].ID)
	require.True(t, page.HasMore)

	page, err = s.Range(ctx, "ns", RangeOptions{Cursor: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "e4", page.Items[0].ID)
	assert.False(t, page.HasMore)

	// Past-the-end cursor returns an empty page
	page, err = s.Range(ctx, "ns", RangeOptions{Cursor: 99, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 2))

	require.NoError(t, s.Upsert(ctx, "ns", seedEntry("doc1", KindDocument, []float32{1, 0}, map[string]interface{}{
		"document_id": "d-1",
		"search_tags": []interface{}{"type:legal", "lang:en"},
	})))
	require.NoError(t, s.Upsert(ctx, "ns", seedEntry("img1", KindImage, []float32{1, 0}, map[string]interface{}{
		"document_id": "d-1",
		"search_tags": []interface{}{"type:image"},
	})))
	require.NoError(t, s.Upsert(ctx, "ns", seedEntry("doc2", KindDocument, []float32{1, 0}, map[string]interface{}{
		"document_id": "d-2",
		"search_tags": []string{"type:legal"},
	})))

	q := []float32{1, 0}

	hits, err := s.Query(ctx, "ns", q, QueryOptions{TopK: 10, Filter: &Filter{Equals: map[string]string{"kind": "image"}}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "img1", hits[0].ID)

	hits, err = s.Query(ctx, "ns", q, QueryOptions{TopK: 10, Filter: &Filter{Equals: map[string]string{"document_id": "d-1"}}})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Query(ctx, "ns", q, QueryOptions{TopK: 10, Filter: &Filter{Tags: []string{"type:legal"}}})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Query(ctx, "ns", q, QueryOptions{TopK: 10, Filter: &Filter{Tags: []string{"type:legal", "lang:en"}}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc1", hits[0].ID)

	hits, err = s.Query(ctx, "ns", q, QueryOptions{TopK: 10, Filter: &Filter{AnyOf: map[string][]string{"document_id": {"d-2", "d-9"}}}})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc2", hits[0].ID)
}

func TestMemoryStoreDropNamespace(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.EnsureNamespace(ctx, "ns", 2))
	require.NoError(t, s.Upsert(ctx, "ns", seedEntry("e1", KindChunk, []float32{1, 0}, nil)))

	require.NoError(t, s.DropNamespace(ctx, "ns"))

	count, err := s.Count(ctx, "ns")
	require.NoError(t, err)
	assert.Zero(t, count)

	hits, err := s.Query(ctx, "ns", []float32{1, 0}, QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}
