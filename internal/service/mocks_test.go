package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/reservoirai/reservoir/internal/vectorstore"
)

// mockEmbedder returns a fixed query vector, with optional per-input
// failures.
type mockEmbedder struct {
	mu     sync.Mutex
	vector []float32
	failOn map[string]error
	calls  int
}

func newMockEmbedder(vector []float32) *mockEmbedder {
	return &mockEmbedder{vector: vector, failOn: map[string]error{}}
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err, ok := m.failOn[text]; ok {
		return nil, err
	}
	out := make([]float32, len(m.vector))
	copy(out, m.vector)
	return out, nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return len(m.vector) }

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// vectorWithSimilarity builds a 2-d unit vector whose cosine similarity with
// the query direction (1, 0) equals sim.
func vectorWithSimilarity(sim float64) []float32 {
	return []float32{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

// faultyStore wraps a real store and injects failures per namespace and per
// entry id.
type faultyStore struct {
	vectorstore.Store
	failQueryNamespaces map[string]bool
	failDeleteIDs       map[string]bool
}

func newFaultyStore(inner vectorstore.Store) *faultyStore {
	return &faultyStore{
		Store:               inner,
		failQueryNamespaces: map[string]bool{},
		failDeleteIDs:       map[string]bool{},
	}
}

func (f *faultyStore) Query(ctx context.Context, namespace string, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.ScoredEntry, error) {
	if f.failQueryNamespaces[namespace] {
		return nil, errors.New("injected query failure")
	}
	return f.Store.Query(ctx, namespace, vector, opts)
}

func (f *faultyStore) Delete(ctx context.Context, namespace, id string) error {
	if f.failDeleteIDs[id] {
		return fmt.Errorf("injected delete failure for %s", id)
	}
	return f.Store.Delete(ctx, namespace, id)
}

func (f *faultyStore) DeleteMany(ctx context.Context, namespace string, ids []string) vectorstore.DeleteOutcome {
	var out vectorstore.DeleteOutcome
	for _, id := range ids {
		if err := f.Delete(ctx, namespace, id); err != nil {
			out.Failed = append(out.Failed, id)
			continue
		}
		out.Deleted = append(out.Deleted, id)
	}
	return out
}

// blockingStore parks every Query until release is closed, so cancellation
// paths can be exercised deterministically.
type blockingStore struct {
	vectorstore.Store
	release chan struct{}
}

func newBlockingStore(inner vectorstore.Store) *blockingStore {
	return &blockingStore{Store: inner, release: make(chan struct{})}
}

func (b *blockingStore) Query(ctx context.Context, namespace string, vector []float32, opts vectorstore.QueryOptions) ([]vectorstore.ScoredEntry, error) {
	<-b.release
	return nil, ctx.Err()
}

// upsertFailingStore rejects upserts whose metadata content contains a
// trigger substring.
type upsertFailingStore struct {
	vectorstore.Store
	trigger string
}

func (u *upsertFailingStore) Upsert(ctx context.Context, namespace string, entry vectorstore.Entry) error {
	if content, _ := entry.Metadata["content"].(string); u.trigger != "" && strings.Contains(content, u.trigger) {
		return errors.New("injected upsert failure")
	}
	return u.Store.Upsert(ctx, namespace, entry)
}
