package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/reservoirai/reservoir/internal/model"
	"github.com/reservoirai/reservoir/internal/repository"
	"github.com/reservoirai/reservoir/internal/vectorstore"
)

const (
	// Candidates requested per pool beyond the final limit, so threshold
	// filtering still leaves enough to rank from.
	candidateFactor = 3

	defaultLimitPerPool = 5
	defaultThreshold    = 0.3

	// Image captions score lower than text; the caller threshold may be
	// raised to this floor but never lowered below it.
	imageThresholdFloor = 0.15

	truncationMarker = " […]"
)

type RetrievalService struct {
	store        vectorstore.Store
	embedder     Embedder
	documentRepo *repository.DocumentRepository
	logger       *slog.Logger
}

func NewRetrievalService(store vectorstore.Store, embedder Embedder, documentRepo *repository.DocumentRepository, logger *slog.Logger) *RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		store:        store,
		embedder:     embedder,
		documentRepo: documentRepo,
		logger:       logger.With("service", "retrieval"),
	}
}

type SearchOptions struct {
	LimitPerPool int

	// Minimum similarity for a candidate to rank. 0 applies the default;
	// a negative value accepts every candidate.
	Threshold float64

	TokenBudget   int    // explicit override; 0 resolves from ModelID
	ModelID       string // model-name→budget lookup
	GlobalRanking bool   // single top-K across pools instead of per-pool
	Filter        *vectorstore.Filter
}

type SearchHit struct {
	ID              string    `json:"id"`
	PoolID          uuid.UUID `json:"pool_id"`
	DocumentID      string    `json:"document_id,omitempty"`
	Title           string    `json:"title,omitempty"`
	Kind            string    `json:"kind,omitempty"`
	Content         string    `json:"content"`
	Score           float64   `json:"score"`
	ChunkIndex      int       `json:"chunk_index,omitempty"`
	EstimatedPage   int       `json:"estimated_page,omitempty"`
	EstimatedTokens int       `json:"estimated_tokens"`
	Truncated       bool      `json:"truncated,omitempty"`
}

type RankedResult struct {
	Results         []SearchHit `json:"results"`
	TotalCandidates int         `json:"total_candidates"`
	FilteredCount   int         `json:"filtered_count"`
	ReturnedCount   int         `json:"returned_count"`
	SkippedCount    int         `json:"skipped_count"`
	TruncatedCount  int         `json:"truncated_count"`
	TokenBudget     int         `json:"token_budget"`
	TokensUsed      int         `json:"tokens_used"`
	Partial         bool        `json:"partial,omitempty"`
	Warnings        []string    `json:"warnings,omitempty"`
}

// Search embeds the query once, fans it out to every pool concurrently,
// filters by similarity threshold, ranks, and truncates to the token budget.
// A failing pool is isolated into a warning; only a failed query embedding is
// fatal.
func (s *RetrievalService) Search(ctx context.Context, query string, poolIDs []uuid.UUID, opts SearchOptions) (*RankedResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyEmbeddingInput
	}
	if opts.LimitPerPool <= 0 {
		opts.LimitPerPool = defaultLimitPerPool
	}
	if opts.Threshold == 0 {
		opts.Threshold = defaultThreshold
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query embedding: %w", err)
	}

	candidates, warnings, partial := s.fanOut(ctx, vector, poolIDs, opts)

	result := &RankedResult{
		TotalCandidates: len(candidates),
		TokenBudget:     ResolveTokenBudget(opts.TokenBudget, opts.ModelID),
		Partial:         partial,
		Warnings:        warnings,
	}

	// Threshold filter
	kept := candidates[:0]
	for _, c := range candidates {
		if c.Score >= opts.Threshold {
			kept = append(kept, c)
		}
	}
	result.FilteredCount = len(kept)

	ranked := rank(kept, opts)
	s.truncateToBudget(ranked, result)

	if result.TokenBudget > 0 && result.TokensUsed*5 >= result.TokenBudget*4 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("token budget utilization above 80%% (%d of %d)", result.TokensUsed, result.TokenBudget))
	}
	if result.TruncatedCount > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d result(s) truncated to fit the token budget", result.TruncatedCount))
	}
	if result.SkippedCount > 0 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("%d relevant result(s) skipped: token budget exhausted", result.SkippedCount))
	}
	return result, nil
}

// SearchImages is text search against image-caption entries, with the
// threshold floor applied.
func (s *RetrievalService) SearchImages(ctx context.Context, query string, poolIDs []uuid.UUID, opts SearchOptions) (*RankedResult, error) {
	if opts.Threshold < imageThresholdFloor {
		opts.Threshold = imageThresholdFloor
	}
	if opts.Filter == nil {
		opts.Filter = &vectorstore.Filter{}
	}
	if opts.Filter.Equals == nil {
		opts.Filter.Equals = map[string]string{}
	}
	opts.Filter.Equals["kind"] = string(vectorstore.KindImage)
	return s.Search(ctx, query, poolIDs, opts)
}

// SearchInDocument resolves a document id to its title, then runs an ordinary
// vector search scoped to that document.
func (s *RetrievalService) SearchInDocument(ctx context.Context, query string, documentID uuid.UUID, opts SearchOptions) (*RankedResult, error) {
	doc, err := s.documentRepo.FindByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", documentID, err)
	}

	if opts.Filter == nil {
		opts.Filter = &vectorstore.Filter{}
	}
	if opts.Filter.Equals == nil {
		opts.Filter.Equals = map[string]string{}
	}
	opts.Filter.Equals["document_id"] = doc.ID.String()
	opts.GlobalRanking = true

	result, err := s.Search(ctx, query, []uuid.UUID{doc.DataPoolID}, opts)
	if err != nil {
		return nil, err
	}
	for i := range result.Results {
		if result.Results[i].Title == "" {
			result.Results[i].Title = doc.Title
		}
	}
	return result, nil
}

type TitleSearchResult struct {
	Found       bool             `json:"found"`
	Documents   []model.Document `json:"documents,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
}

// FindByTitle matches on the title field instead of vector similarity. When
// nothing matches it returns title suggestions from the same pools.
func (s *RetrievalService) FindByTitle(ctx context.Context, poolIDs []uuid.UUID, title string, exactMatch bool) (*TitleSearchResult, error) {
	docs, err := s.documentRepo.FindByTitle(ctx, poolIDs, title, true)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 && !exactMatch {
		docs, err = s.documentRepo.FindByTitle(ctx, poolIDs, title, false)
		if err != nil {
			return nil, err
		}
	}
	if len(docs) > 0 {
		return &TitleSearchResult{Found: true, Documents: docs}, nil
	}

	suggestions, err := s.documentRepo.Titles(ctx, poolIDs, 10)
	if err != nil {
		return nil, err
	}
	return &TitleSearchResult{Found: false, Suggestions: suggestions}, nil
}

type poolCandidate struct {
	vectorstore.ScoredEntry
	poolID uuid.UUID
}

// fanOut queries every pool concurrently with the shared query vector.
// Per-pool failures become warnings; on cancellation the pools that already
// answered are kept and the result is marked partial.
func (s *RetrievalService) fanOut(ctx context.Context, vector []float32, poolIDs []uuid.UUID, opts SearchOptions) ([]poolCandidate, []string, bool) {
	type poolResult struct {
		poolID uuid.UUID
		hits   []vectorstore.ScoredEntry
		err    error
	}

	results := make(chan poolResult, len(poolIDs))
	var wg sync.WaitGroup
	for _, poolID := range poolIDs {
		wg.Add(1)
		go func(poolID uuid.UUID) {
			defer wg.Done()
			hits, err := s.store.Query(ctx, model.NamespaceFor(poolID), vector, vectorstore.QueryOptions{
				TopK:            opts.LimitPerPool * candidateFactor,
				Filter:          opts.Filter,
				IncludeMetadata: true,
			})
			results <- poolResult{poolID: poolID, hits: hits, err: err}
		}(poolID)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var candidates []poolCandidate
	var warnings []string
	received := 0
	partial := false

collect:
	for received < len(poolIDs) {
		select {
		case r, ok := <-results:
			if !ok {
				break collect
			}
			received++
			if r.err != nil {
				s.logger.Warn("pool query failed", "pool_id", r.poolID, "err", r.err)
				warnings = append(warnings, fmt.Sprintf("pool %s: query failed", r.poolID))
				continue
			}
			for _, h := range r.hits {
				candidates = append(candidates, poolCandidate{ScoredEntry: h, poolID: r.poolID})
			}
		case <-ctx.Done():
			partial = true
			warnings = append(warnings, fmt.Sprintf("search canceled: %d of %d pools answered", received, len(poolIDs)))
			break collect
		}
	}
	return candidates, warnings, partial
}

// rank sorts by score descending and applies the per-pool or global limit.
func rank(candidates []poolCandidate, opts SearchOptions) []poolCandidate {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if opts.GlobalRanking {
		if len(candidates) > opts.LimitPerPool {
			candidates = candidates[:opts.LimitPerPool]
		}
		return candidates
	}

	perPool := map[uuid.UUID]int{}
	out := candidates[:0]
	for _, c := range candidates {
		if perPool[c.poolID] >= opts.LimitPerPool {
			continue
		}
		perPool[c.poolID]++
		out = append(out, c)
	}
	return out
}

// truncateToBudget walks ranked candidates in score order, accumulating
// estimated tokens. A result that would overflow is truncated at a sentence,
// then word, then character boundary; one that cannot fit at all is skipped.
func (s *RetrievalService) truncateToBudget(ranked []poolCandidate, result *RankedResult) {
	remaining := result.TokenBudget
	for _, c := range ranked {
		hit := toHit(c)
		tokens := EstimateTokens(hit.Content)

		switch {
		case tokens <= remaining:
			hit.EstimatedTokens = tokens
		case remaining > EstimateTokens(truncationMarker):
			content, ok := truncateContent(hit.Content, remaining)
			if !ok {
				result.SkippedCount++
				continue
			}
			hit.Content = content
			hit.Truncated = true
			hit.EstimatedTokens = EstimateTokens(content)
			result.TruncatedCount++
		default:
			result.SkippedCount++
			continue
		}

		remaining -= hit.EstimatedTokens
		result.TokensUsed += hit.EstimatedTokens
		result.Results = append(result.Results, hit)
		result.ReturnedCount++
	}
}

func toHit(c poolCandidate) SearchHit {
	hit := SearchHit{
		ID:     c.ID,
		PoolID: c.poolID,
		Kind:   string(c.Kind),
		Score:  c.Score,
	}
	if c.Metadata != nil {
		hit.Content, _ = c.Metadata["content"].(string)
		hit.Title, _ = c.Metadata["title"].(string)
		hit.DocumentID, _ = c.Metadata["document_id"].(string)
		hit.ChunkIndex = metaInt(c.Metadata, "chunk_index")
		hit.EstimatedPage = metaInt(c.Metadata, "estimated_page")
	}
	return hit
}

// metaInt reads a numeric metadata field. JSONB round-trips deliver float64;
// the in-memory store keeps the Go int written at ingestion.
func metaInt(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// truncateContent cuts content so the marker-suffixed result stays within
// budget tokens, preferring a sentence boundary, then a word boundary.
func truncateContent(content string, budget int) (string, bool) {
	allowed := budget*charsPerToken - len(truncationMarker)
	if allowed <= 0 {
		return "", false
	}
	if allowed >= len(content) {
		return content, true
	}

	cut := allowed
	for cut > 0 && content[cut]&0xC0 == 0x80 {
		cut--
	}
	window := content[:cut]

	if idx := lastSentenceEnd(window); idx > 0 {
		return window[:idx] + truncationMarker, true
	}
	if idx := strings.LastIndexAny(window, " \t\n"); idx > 0 {
		return window[:idx] + truncationMarker, true
	}
	if cut == 0 {
		return "", false
	}
	return window + truncationMarker, true
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i > 0; i-- {
		if s[i] == '.' || s[i] == '!' || s[i] == '?' {
			return i + 1
		}
	}
	return 0
}
