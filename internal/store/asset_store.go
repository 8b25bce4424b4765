package store

import (
	"context"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

// AssetStore is the ordered log of asset records. Each mutation is atomic with
// respect to the backing storage and serialised against other mutations.
type AssetStore interface {
	List(ctx context.Context) ([]domain.Asset, error)
	Get(ctx context.Context, id string) (domain.Asset, bool, error)
	Append(ctx context.Context, asset domain.Asset) error
	// Remove deletes the record with id. A missing id is not an error.
	Remove(ctx context.Context, id string) (bool, error)
}
