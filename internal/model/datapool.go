package model

import (
	"github.com/google/uuid"
)

type DataPool struct {
	BaseModel
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`

	// Stats (computed)
	DocumentCount int `gorm:"-" json:"document_count,omitempty"`
}

func (DataPool) TableName() string {
	return "data_pools"
}

// Namespace returns the vector store namespace for this pool.
func (p *DataPool) Namespace() string {
	return NamespaceFor(p.ID)
}

// NamespaceFor maps a pool id to its vector store namespace.
func NamespaceFor(poolID uuid.UUID) string {
	return "datapool-" + poolID.String()
}
