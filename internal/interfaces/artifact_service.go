package interfaces

import (
	"context"

	"github.com/ternarybob/playforge/internal/models"
)

// ArtifactService persists generated documents and lists them for the gallery
type ArtifactService interface {
	// Save writes document for job and returns its public reference
	Save(ctx context.Context, job models.Job, document string) (models.Artifact, error)

	// List returns stored artifacts, newest first
	List(ctx context.Context) ([]models.Artifact, error)

	// Prune keeps the newest keep artifacts and returns how many were removed
	Prune(ctx context.Context, keep int) (int, error)
}
