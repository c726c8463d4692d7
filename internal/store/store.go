package store

import (
	"context"

	"github.com/starford/evolve/internal/models"
)

// ClientStore is the record-source side of the database.
// Consumers depend on it rather than on *DB so tests can swap it out.
type ClientStore interface {
	ListClients(ctx context.Context) ([]models.Client, error)
	GetClient(ctx context.Context, clientID int64) (*models.Client, error)
	FindClients(ctx context.Context, q ClientQuery) ([]models.Client, error)
	UpsertClient(ctx context.Context, c models.Client) error
}

// ImageMap is the avatar-encoder side of the database.
type ImageMap interface {
	ImageMappings(ctx context.Context) (map[string]models.ImageMapping, error)
	PutImageMapping(ctx context.Context, m models.ImageMapping) error
	ApplyImageRefs(ctx context.Context) (int64, error)
}

// Verify *DB satisfies both interfaces at compile time.
var (
	_ ClientStore = (*DB)(nil)
	_ ImageMap    = (*DB)(nil)
)
