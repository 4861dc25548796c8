package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/reservoirai/reservoir/internal/analyze"
	"github.com/reservoirai/reservoir/internal/chunker"
	"github.com/reservoirai/reservoir/internal/extract"
	"github.com/reservoirai/reservoir/internal/model"
	"github.com/reservoirai/reservoir/internal/repository"
	"github.com/reservoirai/reservoir/internal/vectorstore"
)

// Documents whose text fits 1.5x the chunk ceiling are stored standalone,
// without chunking.
const standaloneFactor = 3.0 / 2.0

// Stored document content is capped to a preview for chunked uploads; the
// chunks carry the full text.
const contentPreviewChars = 2000

type DocumentService struct {
	poolRepo     *repository.DataPoolRepository
	documentRepo *repository.DocumentRepository
	chunkRepo    *repository.ChunkRepository
	store        vectorstore.Store
	embedder     Embedder
	extractor    *extract.Extractor
	chunkOpts    chunker.Options
	workers      *ants.Pool
	logger       *slog.Logger
}

func NewDocumentService(
	poolRepo *repository.DataPoolRepository,
	documentRepo *repository.DocumentRepository,
	chunkRepo *repository.ChunkRepository,
	store vectorstore.Store,
	embedder Embedder,
	extractor *extract.Extractor,
	chunkOpts chunker.Options,
	workerCount int,
	logger *slog.Logger,
) (*DocumentService, error) {
	if workerCount < 1 {
		workerCount = 1
	}
	workers, err := ants.NewPool(workerCount)
	if err != nil {
		return nil, err
	}
	if chunkOpts.MaxChars <= 0 {
		chunkOpts = chunker.DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		poolRepo:     poolRepo,
		documentRepo: documentRepo,
		chunkRepo:    chunkRepo,
		store:        store,
		embedder:     embedder,
		extractor:    extractor,
		chunkOpts:    chunkOpts,
		workers:      workers,
		logger:       logger.With("service", "document"),
	}, nil
}

// Close releases the embedding worker pool.
func (s *DocumentService) Close() {
	s.workers.Release()
}

type ChunkFailure struct {
	ChunkID string `json:"chunk_id"`
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
}

type ChunkingReport struct {
	Strategy         string         `json:"strategy"` // standalone, text, pages
	TotalChunks      int            `json:"total_chunks"`
	SuccessfulChunks int            `json:"successful_chunks"`
	FailedChunks     []ChunkFailure `json:"failed_chunks"`
}

type IngestResult struct {
	DocumentID            uuid.UUID      `json:"document_id"`
	Chunking              ChunkingReport `json:"chunking"`
	ImageDocumentsCreated int            `json:"image_documents_created"`
}

// Ingest runs the full pipeline for one upload: extract, analyze, chunk,
// embed, persist. Individual chunk embedding failures are collected, never
// fatal; cancellation stops scheduling new embeddings while letting in-flight
// calls complete and persist.
func (s *DocumentService) Ingest(ctx context.Context, poolID uuid.UUID, filename, title string, contentType string, data []byte) (*IngestResult, error) {
	pool, err := s.poolRepo.FindByID(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("data pool %s: %w", poolID, err)
	}

	content, err := s.extractor.Extract(ctx, data, filename)
	if err != nil {
		return nil, err
	}

	if title == "" {
		title = filename
	}
	record := analyze.Analyze(content.Text, filename, contentType)
	namespace := pool.Namespace()

	// Namespace is created on first write; idempotent under racing writers
	if err := s.store.EnsureNamespace(ctx, namespace, s.embedder.Dimensions()); err != nil {
		return nil, err
	}

	doc := &model.Document{
		DataPoolID:  poolID,
		Title:       title,
		ContentType: contentType,
		Size:        int64(len(data)),
		Metadata:    model.JSONMap(record.Map()),
		SearchTags:  model.StringArray(record.SearchTags),
	}

	var chunks []chunker.Chunk
	var strategy string
	switch {
	case float64(len(content.Text)) <= float64(s.chunkOpts.MaxChars)*standaloneFactor:
		strategy = "standalone"
	case len(content.Pages) > 0:
		strategy = "pages"
	default:
		strategy = "text"
	}

	if strategy == "standalone" {
		doc.Kind = model.DocumentKindSmall
		doc.Content = content.Text
	} else {
		doc.Kind = model.DocumentKindMain
		doc.Content = preview(content.Text)
		doc.ID = uuid.New()
		if strategy == "pages" {
			pages := make([]chunker.Page, len(content.Pages))
			for i, p := range content.Pages {
				pages[i] = chunker.Page{PageNumber: p.PageNumber, Text: p.Text}
			}
			chunks, _ = chunker.SplitPages(pages, doc.ID, s.chunkOpts)
		} else {
			chunks = chunker.Split(content.Text, doc.ID, s.chunkOpts)
		}
		doc.TotalChunks = len(chunks)
	}

	if err := s.documentRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	result := &IngestResult{
		DocumentID: doc.ID,
		Chunking:   ChunkingReport{Strategy: strategy, TotalChunks: len(chunks)},
	}

	if strategy == "standalone" {
		result.Chunking.TotalChunks = 1
		if err := s.indexStandalone(ctx, namespace, doc, record); err != nil {
			s.logger.Warn("standalone document not indexed", "document_id", doc.ID, "err", err)
			result.Chunking.FailedChunks = append(result.Chunking.FailedChunks, ChunkFailure{
				ChunkID: doc.ID.String(),
				Reason:  err.Error(),
			})
		} else {
			result.Chunking.SuccessfulChunks = 1
		}
	} else {
		s.persistChunks(ctx, doc, chunks)
		result.Chunking = s.embedChunks(ctx, namespace, doc, record, chunks)
		result.Chunking.Strategy = strategy
	}

	result.ImageDocumentsCreated = s.createImageDocuments(ctx, namespace, pool, doc, content.Images)
	return result, nil
}

func (s *DocumentService) indexStandalone(ctx context.Context, namespace string, doc *model.Document, record *analyze.Record) error {
	vec, err := s.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return err
	}
	meta := record.Map()
	meta["content"] = doc.Content
	meta["title"] = doc.Title
	meta["document_id"] = doc.ID.String()
	meta["kind"] = string(vectorstore.KindDocument)
	return s.store.Upsert(ctx, namespace, vectorstore.Entry{
		ID:        doc.ID.String(),
		Kind:      vectorstore.KindDocument,
		Embedding: vec,
		Metadata:  meta,
	})
}

func (s *DocumentService) persistChunks(ctx context.Context, doc *model.Document, chunks []chunker.Chunk) {
	rows := make([]model.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = model.Chunk{
			DocumentID:    doc.ID,
			DataPoolID:    doc.DataPoolID,
			ChunkIndex:    c.Index,
			TotalChunks:   c.TotalChunks,
			Content:       c.Content,
			StartPosition: c.StartPosition,
			EndPosition:   c.EndPosition,
			EstimatedPage: c.EstimatedPage,
			WordCount:     c.WordCount,
			CharCount:     c.CharCount,
		}
		rows[i].ID = c.ID
	}
	if err := s.chunkRepo.CreateBatch(ctx, rows); err != nil {
		s.logger.Error("persisting chunk rows failed", "document_id", doc.ID, "err", err)
	}
}

// embedChunks fans chunk embeddings out on the worker pool. A failed chunk is
// recorded and skipped; its siblings proceed.
func (s *DocumentService) embedChunks(ctx context.Context, namespace string, doc *model.Document, record *analyze.Record, chunks []chunker.Chunk) ChunkingReport {
	report := ChunkingReport{TotalChunks: len(chunks)}

	// In-flight work survives caller cancellation so finished embeddings are
	// not wasted
	persistCtx := context.WithoutCancel(ctx)

	var mu sync.Mutex
	var wg sync.WaitGroup

	fail := func(c chunker.Chunk, reason string) {
		mu.Lock()
		report.FailedChunks = append(report.FailedChunks, ChunkFailure{
			ChunkID: c.ID.String(),
			Index:   c.Index,
			Reason:  reason,
		})
		mu.Unlock()
	}

	for i := range chunks {
		c := chunks[i]

		if ctx.Err() != nil {
			fail(c, "ingestion canceled before embedding")
			continue
		}

		wg.Add(1)
		submitErr := s.workers.Submit(func() {
			defer wg.Done()

			if ctx.Err() != nil {
				fail(c, "ingestion canceled before embedding")
				return
			}

			vec, err := s.embedder.Embed(persistCtx, c.Content)
			if err != nil {
				s.logger.Warn("chunk embedding failed", "chunk_id", c.ID, "index", c.Index, "err", err)
				fail(c, err.Error())
				return
			}

			meta := record.Map()
			meta["content"] = c.Content
			meta["title"] = doc.Title
			meta["document_id"] = doc.ID.String()
			meta["kind"] = string(vectorstore.KindChunk)
			meta["chunk_index"] = c.Index
			meta["total_chunks"] = c.TotalChunks
			meta["estimated_page"] = c.EstimatedPage

			err = s.store.Upsert(persistCtx, namespace, vectorstore.Entry{
				ID:        c.ID.String(),
				Kind:      vectorstore.KindChunk,
				Embedding: vec,
				Metadata:  meta,
			})
			if err != nil {
				s.logger.Warn("chunk upsert failed", "chunk_id", c.ID, "index", c.Index, "err", err)
				fail(c, err.Error())
				return
			}

			mu.Lock()
			report.SuccessfulChunks++
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			fail(c, "worker pool: "+submitErr.Error())
		}
	}

	wg.Wait()
	sort.Slice(report.FailedChunks, func(i, j int) bool {
		return report.FailedChunks[i].Index < report.FailedChunks[j].Index
	})
	return report
}

// createImageDocuments persists extracted images as their own documents. Ones
// with a usable caption are embedded and searchable; captionless images are
// retained but carry no vector entry.
func (s *DocumentService) createImageDocuments(ctx context.Context, namespace string, pool *model.DataPool, source *model.Document, images []extract.ImageCandidate) int {
	created := 0
	for i, img := range images {
		caption := strings.TrimSpace(img.Caption)
		title := fmt.Sprintf("%s (image %d)", source.Title, i+1)

		sourceID := source.ID
		imageDoc := &model.Document{
			DataPoolID:       pool.ID,
			Title:            title,
			Kind:             model.DocumentKindImage,
			Content:          caption,
			ContentType:      "image",
			Size:             int64(len(img.Data)),
			SourceDocumentID: &sourceID,
			SearchTags:       model.StringArray{"kind:image", "source:" + source.Title},
		}
		if err := s.documentRepo.Create(ctx, imageDoc); err != nil {
			s.logger.Warn("image document not created", "source_id", source.ID, "err", err)
			continue
		}
		created++

		if caption == "" {
			continue
		}
		vec, err := s.embedder.Embed(ctx, caption)
		if err != nil {
			s.logger.Warn("image caption embedding failed", "image_id", imageDoc.ID, "err", err)
			continue
		}
		err = s.store.Upsert(ctx, namespace, vectorstore.Entry{
			ID:        imageDoc.ID.String(),
			Kind:      vectorstore.KindImage,
			Embedding: vec,
			Metadata: map[string]interface{}{
				"content":     caption,
				"title":       title,
				"document_id": imageDoc.ID.String(),
				"source_id":   source.ID.String(),
				"kind":        string(vectorstore.KindImage),
			},
		})
		if err != nil {
			s.logger.Warn("image upsert failed", "image_id", imageDoc.ID, "err", err)
		}
	}
	return created
}

type VectorDeletionReport struct {
	MainDocumentDeleted bool     `json:"main_document_deleted"`
	ChunksDeleted       int      `json:"chunks_deleted"`
	Failures            []string `json:"failures"`
}

type DeleteResult struct {
	DocumentsDeleted int                  `json:"documents_deleted"`
	ChunksDeleted    int                  `json:"chunks_deleted"`
	VectorDeletion   VectorDeletionReport `json:"vector_deletion"`
}

// Delete removes a document and its descendants. The relational deletion is
// authoritative; vector store deletion is best effort and its failures are
// reported per id, never swallowed.
func (s *DocumentService) Delete(ctx context.Context, poolID, documentID uuid.UUID) (*DeleteResult, error) {
	doc, err := s.documentRepo.FindByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", documentID, err)
	}
	if doc.DataPoolID != poolID {
		return nil, fmt.Errorf("document %s does not belong to pool %s", documentID, poolID)
	}

	chunkIDs, err := s.chunkRepo.IDsByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	imageDocs, err := s.documentRepo.FindImagesBySource(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list image documents: %w", err)
	}

	// Authoritative relational deletes
	chunksDeleted, err := s.chunkRepo.DeleteByDocumentID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.documentRepo.Delete(ctx, documentID); err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}
	documentsDeleted := 1
	for _, img := range imageDocs {
		if err := s.documentRepo.Delete(ctx, img.ID); err != nil {
			return nil, fmt.Errorf("delete image document: %w", err)
		}
		documentsDeleted++
	}

	// Best-effort vector mirror; the failure list is the reconciliation hook
	ids := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		ids[i] = id.String()
	}
	imageIDs := make([]string, len(imageDocs))
	for i, img := range imageDocs {
		imageIDs[i] = img.ID.String()
	}
	report := s.deleteVectorEntries(ctx, model.NamespaceFor(poolID), documentID.String(), ids, imageIDs)

	return &DeleteResult{
		DocumentsDeleted: documentsDeleted,
		ChunksDeleted:    int(chunksDeleted),
		VectorDeletion:   report,
	}, nil
}

// deleteVectorEntries removes a document's index entries. Failures do not
// abort the pass; each failed entry is recorded so a later sweep can retry.
func (s *DocumentService) deleteVectorEntries(ctx context.Context, namespace, documentID string, chunkIDs, imageIDs []string) VectorDeletionReport {
	report := VectorDeletionReport{Failures: []string{}}

	outcome := s.store.DeleteMany(ctx, namespace, chunkIDs)
	report.ChunksDeleted = len(outcome.Deleted)
	for _, id := range outcome.Failed {
		report.Failures = append(report.Failures, "chunk:"+id)
	}

	if err := s.store.Delete(ctx, namespace, documentID); err != nil {
		s.logger.Warn("vector delete failed for document", "document_id", documentID, "err", err)
		report.Failures = append(report.Failures, "document:"+documentID)
	} else {
		report.MainDocumentDeleted = true
	}

	for _, id := range imageIDs {
		if err := s.store.Delete(ctx, namespace, id); err != nil {
			s.logger.Warn("vector delete failed for image", "image_id", id, "err", err)
			report.Failures = append(report.Failures, "image:"+id)
		}
	}

	return report
}

type Pagination struct {
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

type DocumentPage struct {
	Documents  []model.Document `json:"documents"`
	Pagination Pagination       `json:"pagination"`
}

// List pages through a pool's documents. The cursor is an opaque offset and
// is not stable across concurrent writes.
func (s *DocumentService) List(ctx context.Context, poolID uuid.UUID, cursor string, limit int) (*DocumentPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := decodeCursor(cursor)

	docs, total, err := s.documentRepo.FindByPoolID(ctx, poolID, limit, offset)
	if err != nil {
		return nil, err
	}

	page := &DocumentPage{Documents: docs}
	if int64(offset+len(docs)) < total {
		page.Pagination.HasMore = true
		page.Pagination.NextCursor = encodeCursor(offset + len(docs))
	}
	return page, nil
}

func encodeCursor(offset int) string {
	return base64.StdEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

func decodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	offset, err := strconv.Atoi(strings.TrimPrefix(string(raw), "o:"))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

func preview(text string) string {
	if len(text) <= contentPreviewChars {
		return text
	}
	cut := contentPreviewChars
	for cut > 0 && text[cut]&0xC0 == 0x80 {
		cut--
	}
	return text[:cut]
}
