package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/playforge/internal/interfaces"
	"github.com/ternarybob/playforge/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// ArtifactStorage keeps artifact metadata keyed by file name
type ArtifactStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewArtifactStorage creates a new ArtifactStorage instance
func NewArtifactStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ArtifactStorage {
	return &ArtifactStorage{
		db:     db,
		logger: logger,
	}
}

// Save inserts or updates metadata, preserving the original CreatedAt
func (s *ArtifactStorage) Save(ctx context.Context, meta *models.ArtifactMetadata) error {
	if meta == nil || meta.Name == "" {
		return errors.New("artifact name is required")
	}

	var existing models.ArtifactMetadata
	err := s.db.Store().Get(meta.Name, &existing)
	switch {
	case err == nil:
		meta.CreatedAt = existing.CreatedAt
	case errors.Is(err, badgerhold.ErrNotFound):
		if meta.CreatedAt.IsZero() {
			meta.CreatedAt = time.Now()
		}
	default:
		return fmt.Errorf("failed to check artifact %s: %w", meta.Name, err)
	}

	if err := s.db.Store().Upsert(meta.Name, meta); err != nil {
		return fmt.Errorf("failed to save artifact %s: %w", meta.Name, err)
	}
	return nil
}

// Get retrieves metadata by file name
func (s *ArtifactStorage) Get(ctx context.Context, name string) (*models.ArtifactMetadata, error) {
	var meta models.ArtifactMetadata
	err := s.db.Store().Get(name, &meta)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, interfaces.ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", name, err)
	}
	return &meta, nil
}

// Delete removes metadata by file name
func (s *ArtifactStorage) Delete(ctx context.Context, name string) error {
	err := s.db.Store().Delete(name, &models.ArtifactMetadata{})
	if errors.Is(err, badgerhold.ErrNotFound) {
		return interfaces.ErrArtifactNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", name, err)
	}
	return nil
}

// List returns all metadata, newest first
func (s *ArtifactStorage) List(ctx context.Context) ([]models.ArtifactMetadata, error) {
	var metas []models.ArtifactMetadata
	if err := s.db.Store().Find(&metas, nil); err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}
