package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/playforge/internal/models"
)

// ErrArtifactNotFound is returned when no metadata exists for an artifact
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStorage persists metadata for generated documents, keyed by file name
type ArtifactStorage interface {
	Save(ctx context.Context, meta *models.ArtifactMetadata) error
	Get(ctx context.Context, name string) (*models.ArtifactMetadata, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]models.ArtifactMetadata, error)
}
