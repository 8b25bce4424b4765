package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

// Repository maps an asset id to its encoded bytes in a flat namespace.
type Repository interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// checkKey keeps ids inside the flat namespace.
func checkKey(id string) error {
	if strings.TrimSpace(id) == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: invalid asset id %q", domain.ErrNotFound, id)
	}
	return nil
}
