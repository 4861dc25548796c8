package database

import (
	"github.com/reservoirai/reservoir/internal/config"
	"github.com/reservoirai/reservoir/internal/model"
	"github.com/reservoirai/reservoir/internal/vectorstore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	logLevel := logger.Warn
	if cfg.IsDevelopment() {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, err
	}

	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	// pgvector extension must exist before the vector column migrates
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return err
	}

	return db.AutoMigrate(
		&model.DataPool{},
		&model.Document{},
		&model.Chunk{},
		&vectorstore.Namespace{},
		&vectorstore.Record{},
	)
}
