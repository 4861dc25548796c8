package model

import (
	"github.com/google/uuid"
)

type DocumentKind string

const (
	DocumentKindMain  DocumentKind = "main"  // chunked upload
	DocumentKindSmall DocumentKind = "small" // standalone, unchunked
	DocumentKindImage DocumentKind = "image" // extracted from a parent upload
)

type Document struct {
	BaseModel
	DataPoolID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"data_pool_id"`
	Title       string       `gorm:"size:500;not null" json:"title"`
	Kind        DocumentKind `gorm:"size:20;not null;default:'main'" json:"kind"`
	Content     string       `gorm:"type:text" json:"content"`
	ContentType string       `gorm:"size:100" json:"content_type"`
	Size        int64        `gorm:"default:0" json:"size"`
	TotalChunks int          `gorm:"default:0" json:"total_chunks"`
	Metadata    JSONMap      `gorm:"type:jsonb" json:"metadata"`
	SearchTags  StringArray  `gorm:"type:jsonb" json:"search_tags"`

	// For image documents: the upload they were extracted from
	SourceDocumentID *uuid.UUID `gorm:"type:uuid;index" json:"source_document_id,omitempty"`

	// Relations
	DataPool *DataPool `gorm:"foreignKey:DataPoolID" json:"data_pool,omitempty"`
}

func (Document) TableName() string {
	return "documents"
}
