package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reservoirai/reservoir/internal/analyze"
	"github.com/reservoirai/reservoir/internal/chunker"
	"github.com/reservoirai/reservoir/internal/model"
	"github.com/reservoirai/reservoir/internal/vectorstore"
)

func newDocumentService(t *testing.T, store vectorstore.Store, embedder Embedder) *DocumentService {
	t.Helper()
	svc, err := NewDocumentService(nil, nil, nil, store, embedder, nil, chunker.Options{}, 2, testLogger)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc
}

func makeChunks(doc *model.Document, contents ...string) []chunker.Chunk {
	chunks := make([]chunker.Chunk, len(contents))
	pos := 0
	for i, content := range contents {
		chunks[i] = chunker.Chunk{
			ID:            uuid.New(),
			DocumentID:    doc.ID,
			Index:         i,
			TotalChunks:   len(contents),
			Content:       content,
			StartPosition: pos,
			EndPosition:   pos + len(content),
			EstimatedPage: 1,
			CharCount:     len(content),
		}
		pos += len(content)
	}
	return chunks
}

func TestNewDocumentServiceNormalizesOptions(t *testing.T) {
	svc := newDocumentService(t, vectorstore.NewMemoryStore(), newMockEmbedder([]float32{1, 0}))
	assert.Equal(t, chunker.DefaultMaxChars, svc.chunkOpts.MaxChars)
}

func TestEmbedChunksCollectsPartialFailures(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	embedder := newMockEmbedder([]float32{1, 0})
	embedder.failOn["second chunk body"] = errors.New("rate limited")
	svc := newDocumentService(t, store, embedder)

	require.NoError(t, store.EnsureNamespace(ctx, "datapool-test", 2))

	doc := &model.Document{Title: "Report"}
	doc.ID = uuid.New()
	record := analyze.Analyze("sample body text", "report.txt", "")
	chunks := makeChunks(doc, "first chunk body", "second chunk body", "third chunk body")

	report := svc.embedChunks(ctx, "datapool-test", doc, record, chunks)

	assert.Equal(t, 3, report.TotalChunks)
	assert.Equal(t, 2, report.SuccessfulChunks)
	require.Len(t, report.FailedChunks, 1)
	assert.Equal(t, 1, report.FailedChunks[0].Index)
	assert.Equal(t, chunks[1].ID.String(), report.FailedChunks[0].ChunkID)
	assert.Contains(t, report.FailedChunks[0].Reason, "rate limited")

	// The siblings of the failed chunk are indexed
	count, err := store.Count(ctx, "datapool-test")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestEmbedChunksFailedUpsertIsRecorded(t *testing.T) {
	ctx := context.Background()
	inner := vectorstore.NewMemoryStore()
	require.NoError(t, inner.EnsureNamespace(ctx, "datapool-test", 2))
	store := &upsertFailingStore{Store: inner, trigger: "poisoned"}
	svc := newDocumentService(t, store, newMockEmbedder([]float32{1, 0}))

	doc := &model.Document{Title: "Report"}
	doc.ID = uuid.New()
	record := analyze.Analyze("sample body text", "report.txt", "")
	chunks := makeChunks(doc, "fine body", "poisoned body", "fine again")

	report := svc.embedChunks(ctx, "datapool-test", doc, record, chunks)
	assert.Equal(t, 2, report.SuccessfulChunks)
	require.Len(t, report.FailedChunks, 1)
	assert.Equal(t, 1, report.FailedChunks[0].Index)
	assert.Contains(t, report.FailedChunks[0].Reason, "upsert")
}

func TestEmbedChunksCancellationStopsScheduling(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.EnsureNamespace(context.Background(), "datapool-test", 2))
	svc := newDocumentService(t, store, newMockEmbedder([]float32{1, 0}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := &model.Document{Title: "Report"}
	doc.ID = uuid.New()
	record := analyze.Analyze("sample body text", "report.txt", "")
	chunks := makeChunks(doc, "one", "two", "three", "four")

	report := svc.embedChunks(ctx, "datapool-test", doc, record, chunks)
	assert.Zero(t, report.SuccessfulChunks)
	require.Len(t, report.FailedChunks, 4)
	for i, f := range report.FailedChunks {
		assert.Equal(t, i, f.Index, "failures are reported in chunk order")
		assert.Contains(t, f.Reason, "canceled")
	}
}

func TestEmbedChunksWritesSearchableMetadata(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.EnsureNamespace(ctx, "datapool-test", 2))
	svc := newDocumentService(t, store, newMockEmbedder([]float32{1, 0}))

	doc := &model.Document{Title: "Handbook"}
	doc.ID = uuid.New()
	record := analyze.Analyze("sample body text", "handbook.txt", "")
	chunks := makeChunks(doc, "the only chunk")

	report := svc.embedChunks(ctx, "datapool-test", doc, record, chunks)
	require.Equal(t, 1, report.SuccessfulChunks)

	hits, err := store.Query(ctx, "datapool-test", []float32{1, 0}, vectorstore.QueryOptions{TopK: 1, IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, chunks[0].ID.String(), hits[0].ID)
	assert.Equal(t, vectorstore.KindChunk, hits[0].Kind)
	assert.Equal(t, "the only chunk", hits[0].Metadata["content"])
	assert.Equal(t, "Handbook", hits[0].Metadata["title"])
	assert.Equal(t, doc.ID.String(), hits[0].Metadata["document_id"])
	assert.Equal(t, "chunk", hits[0].Metadata["kind"])
}

func TestDeleteVectorEntriesReportsPerIDFailures(t *testing.T) {
	ctx := context.Background()
	inner := vectorstore.NewMemoryStore()
	require.NoError(t, inner.EnsureNamespace(ctx, "datapool-test", 2))

	docID := uuid.NewString()
	imgID := uuid.NewString()
	chunkIDs := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for _, id := range append([]string{docID, imgID}, chunkIDs...) {
		require.NoError(t, inner.Upsert(ctx, "datapool-test", vectorstore.Entry{
			ID: id, Kind: vectorstore.KindChunk, Embedding: []float32{1, 0},
		}))
	}

	store := newFaultyStore(inner)
	store.failDeleteIDs[chunkIDs[1]] = true
	svc := newDocumentService(t, store, newMockEmbedder([]float32{1, 0}))

	report := svc.deleteVectorEntries(ctx, "datapool-test", docID, chunkIDs, []string{imgID})

	assert.True(t, report.MainDocumentDeleted)
	assert.Equal(t, 2, report.ChunksDeleted)
	assert.Equal(t, []string{"chunk:" + chunkIDs[1]}, report.Failures)

	// Everything except the failed chunk is gone
	count, err := inner.Count(ctx, "datapool-test")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestDeleteVectorEntriesMainDocumentFailure(t *testing.T) {
	ctx := context.Background()
	inner := vectorstore.NewMemoryStore()
	require.NoError(t, inner.EnsureNamespace(ctx, "datapool-test", 2))

	docID := uuid.NewString()
	imgID := uuid.NewString()
	store := newFaultyStore(inner)
	store.failDeleteIDs[docID] = true
	store.failDeleteIDs[imgID] = true
	svc := newDocumentService(t, store, newMockEmbedder([]float32{1, 0}))

	report := svc.deleteVectorEntries(ctx, "datapool-test", docID, nil, []string{imgID})
	assert.False(t, report.MainDocumentDeleted)
	assert.ElementsMatch(t, []string{"document:" + docID, "image:" + imgID}, report.Failures)
}

func TestCursorRoundTrip(t *testing.T) {
	assert.Equal(t, 0, decodeCursor(""))
	assert.Equal(t, 0, decodeCursor("not base64 at all!!"))
	assert.Equal(t, 42, decodeCursor(encodeCursor(42)))
	assert.Equal(t, 0, decodeCursor(encodeCursor(0)))

	// An opaque cursor never exposes the raw offset
	assert.NotContains(t, encodeCursor(42), "42")
}

func TestPreview(t *testing.T) {
	short := "fits as is"
	assert.Equal(t, short, preview(short))

	long := strings.Repeat("é", contentPreviewChars) // 2 bytes per rune
	got := preview(long)
	assert.LessOrEqual(t, len(got), contentPreviewChars)
	assert.Equal(t, got, strings.ToValidUTF8(got, ""), "preview never splits a rune")
}
