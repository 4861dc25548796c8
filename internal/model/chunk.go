package model

import (
	"github.com/google/uuid"
)

// Chunk is one bounded slice of a chunked document. It has its own id,
// independent from the parent document's, and is addressed directly in the
// vector store under that id.
type Chunk struct {
	BaseModel
	DocumentID    uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`
	DataPoolID    uuid.UUID `gorm:"type:uuid;not null;index" json:"data_pool_id"`
	ChunkIndex    int       `gorm:"not null" json:"chunk_index"`
	TotalChunks   int       `gorm:"not null" json:"total_chunks"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	StartPosition int       `gorm:"default:0" json:"start_position"`
	EndPosition   int       `gorm:"default:0" json:"end_position"`
	EstimatedPage int       `gorm:"default:1" json:"estimated_page"`
	WordCount     int       `gorm:"default:0" json:"word_count"`
	CharCount     int       `gorm:"default:0" json:"char_count"`

	// Relations
	Document *Document `gorm:"foreignKey:DocumentID" json:"document,omitempty"`
}

func (Chunk) TableName() string {
	return "chunks"
}
