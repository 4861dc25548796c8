package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/reservoirai/reservoir/internal/chunker"
	"github.com/reservoirai/reservoir/internal/config"
	"github.com/reservoirai/reservoir/internal/extract"
	"github.com/reservoirai/reservoir/internal/repository"
	"github.com/reservoirai/reservoir/internal/service"
	"github.com/reservoirai/reservoir/internal/vectorstore"
)

func SetupRouter(cfg *config.Config, db *gorm.DB, store vectorstore.Store, logger *slog.Logger) (*gin.Engine, error) {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// Health check endpoints
	r.GET("/health", healthCheck)
	r.GET("/ready", readinessCheck)
	r.GET("/live", livenessCheck)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":      "Reservoir Knowledge Service",
			"version":      "1.0.0",
			"status":       "running",
			"health_check": "/health",
		})
	})

	// Initialize repositories
	poolRepo := repository.NewDataPoolRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	chunkRepo := repository.NewChunkRepository(db)

	// Initialize providers
	embedder := service.NewEmbeddingService(
		cfg.EmbeddingAPIKey,
		cfg.EmbeddingBaseURL,
		cfg.EmbeddingModel,
		cfg.EmbeddingDimensions,
	)

	var ocr extract.OCRProvider
	if cfg.OCREnabled && cfg.OCRBaseURL != "" {
		ocr = service.NewOCRService(cfg.OCRBaseURL, cfg.OCRAPIKey)
	}
	extractor := extract.New(cfg.MaxUploadSize, cfg.AllowedFormats, ocr)

	chunkOpts := chunker.Options{
		MaxChars:          cfg.ChunkMaxChars,
		MinChars:          cfg.ChunkMinChars,
		OverlapChars:      cfg.ChunkOverlapChars,
		RespectParagraphs: true,
		RespectSentences:  true,
	}

	// Initialize services
	poolSvc := service.NewDataPoolService(poolRepo, documentRepo, chunkRepo, store, logger)
	documentSvc, err := service.NewDocumentService(
		poolRepo, documentRepo, chunkRepo,
		store, embedder, extractor,
		chunkOpts, cfg.EmbeddingWorkers, logger,
	)
	if err != nil {
		return nil, err
	}
	retrievalSvc := service.NewRetrievalService(store, embedder, documentRepo, logger)

	// Initialize handlers
	poolHandler := NewDataPoolHandler(poolSvc)
	documentHandler := NewDocumentHandler(documentSvc)
	searchHandler := NewSearchHandler(retrievalSvc)

	// API v1
	v1 := r.Group("/v1")
	{
		pools := v1.Group("/datapools")
		{
			pools.GET("", poolHandler.List)
			pools.POST("", poolHandler.Create)
			pools.GET("/:id", poolHandler.Get)
			pools.DELETE("/:id", poolHandler.Delete)
			pools.POST("/:id/documents", documentHandler.Ingest)
			pools.GET("/:id/documents", documentHandler.List)
			pools.DELETE("/:id/documents/:docId", documentHandler.Delete)
		}

		search := v1.Group("/search")
		{
			search.POST("", searchHandler.Search)
			search.POST("/title", searchHandler.FindByTitle)
			search.POST("/document", searchHandler.SearchInDocument)
		}
	}

	// Flat retrieve endpoint (for AI agent tool calls)
	r.POST("/retrieve", searchHandler.Retrieve)

	return r, nil
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "reservoir",
	})
}

func readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

func livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
