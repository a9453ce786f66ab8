package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"tunecrate/internal/models"
)

// MigrationManager manages database migrations
type MigrationManager struct {
	db     *gorm.DB
	logger *zerolog.Logger
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *gorm.DB, logger *zerolog.Logger) *MigrationManager {
	return &MigrationManager{
		db:     db,
		logger: logger,
	}
}

// Migrate runs database migrations
func (m *MigrationManager) Migrate() error {
	if m.db.Dialector.Name() == "postgres" {
		if err := m.createExtensions(); err != nil {
			return fmt.Errorf("failed to create extensions: %w", err)
		}
	}

	if err := m.migrateTables(); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	if m.logger != nil {
		m.logger.Info().Msg("Database migrations completed successfully")
	}
	return nil
}

// migrateTables creates the catalog tables from the models. Order matters:
// referenced tables first so foreign keys can be created inline.
func (m *MigrationManager) migrateTables() error {
	if err := m.db.AutoMigrate(
		&models.Album{},
		&models.Song{},
		&models.Playlist{},
		&models.PlaylistSong{},
	); err != nil {
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	return nil
}

// createExtensions creates PostgreSQL extensions needed by the application
func (m *MigrationManager) createExtensions() error {
	extensions := []string{"uuid-ossp"}

	for _, ext := range extensions {
		if err := m.db.Exec(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS \"%s\"", ext)).Error; err != nil {
			return fmt.Errorf("failed to create extension %s: %w", ext, err)
		}
	}

	return nil
}
