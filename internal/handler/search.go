package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/reservoirai/reservoir/internal/service"
)

type SearchHandler struct {
	svc *service.RetrievalService
}

func NewSearchHandler(svc *service.RetrievalService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	DataPoolIDs []string `json:"data_pool_ids" binding:"required"`
	Query       string   `json:"query" binding:"required"`
	Limit       int      `json:"limit"`
	Threshold   float64  `json:"threshold"`
	TokenBudget int      `json:"token_budget"`
	ModelID     string   `json:"model_id"`
	Images      bool     `json:"images"`
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poolIDs, err := parsePoolIDs(req.DataPoolIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := service.SearchOptions{
		LimitPerPool: req.Limit,
		Threshold:    req.Threshold,
		TokenBudget:  req.TokenBudget,
		ModelID:      req.ModelID,
	}

	var result *service.RankedResult
	if req.Images {
		result, err = h.svc.SearchImages(c.Request.Context(), req.Query, poolIDs, opts)
	} else {
		result, err = h.svc.Search(c.Request.Context(), req.Query, poolIDs, opts)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type TitleSearchRequest struct {
	DataPoolIDs []string `json:"data_pool_ids" binding:"required"`
	Title       string   `json:"title" binding:"required"`
	ExactMatch  bool     `json:"exact_match"`
}

func (h *SearchHandler) FindByTitle(c *gin.Context) {
	var req TitleSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poolIDs, err := parsePoolIDs(req.DataPoolIDs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.svc.FindByTitle(c.Request.Context(), poolIDs, req.Title, req.ExactMatch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type DocumentSearchRequest struct {
	DocumentID  string  `json:"document_id" binding:"required"`
	Query       string  `json:"query" binding:"required"`
	Limit       int     `json:"limit"`
	Threshold   float64 `json:"threshold"`
	TokenBudget int     `json:"token_budget"`
	ModelID     string  `json:"model_id"`
}

func (h *SearchHandler) SearchInDocument(c *gin.Context) {
	var req DocumentSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	docID, err := uuid.Parse(req.DocumentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document_id"})
		return
	}

	result, err := h.svc.SearchInDocument(c.Request.Context(), req.Query, docID, service.SearchOptions{
		LimitPerPool: req.Limit,
		Threshold:    req.Threshold,
		TokenBudget:  req.TokenBudget,
		ModelID:      req.ModelID,
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Retrieve is the flat endpoint used by agent tool calls: one pool, default
// budget, plain document list shape.
type RetrieveRequest struct {
	DataPoolID string  `json:"data_pool_id" binding:"required"`
	Query      string  `json:"query" binding:"required"`
	TopK       int     `json:"top_k"`
	Threshold  float64 `json:"threshold"`
}

type RetrieveDocument struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Title   string  `json:"title,omitempty"`
	Score   float64 `json:"score"`
}

func (h *SearchHandler) Retrieve(c *gin.Context) {
	var req RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poolID, err := uuid.Parse(req.DataPoolID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data_pool_id"})
		return
	}

	result, err := h.svc.Search(c.Request.Context(), req.Query, []uuid.UUID{poolID}, service.SearchOptions{
		LimitPerPool: req.TopK,
		Threshold:    req.Threshold,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	docs := make([]RetrieveDocument, len(result.Results))
	for i, r := range result.Results {
		docs[i] = RetrieveDocument{
			ID:      r.ID,
			Content: r.Content,
			Title:   r.Title,
			Score:   r.Score,
		}
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "warnings": result.Warnings})
}

func parsePoolIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, errors.New("data_pool_ids is required")
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.New("invalid data pool id: " + s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
