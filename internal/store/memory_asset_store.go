package store

import (
	"context"
	"sync"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

type MemoryAssetStore struct {
	mu     sync.RWMutex
	assets []domain.Asset
}

func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{}
}

func (s *MemoryAssetStore) List(_ context.Context) ([]domain.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Asset, len(s.assets))
	copy(out, s.assets)
	return out, nil
}

func (s *MemoryAssetStore) Get(_ context.Context, id string) (domain.Asset, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, asset := range s.assets {
		if asset.ID == id {
			return asset, true, nil
		}
	}
	return domain.Asset{}, false, nil
}

func (s *MemoryAssetStore) Append(_ context.Context, asset domain.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets = append(s.assets, asset)
	return nil
}

func (s *MemoryAssetStore) Remove(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept, removed := filterOut(s.assets, id)
	s.assets = kept
	return removed, nil
}

func filterOut(assets []domain.Asset, id string) ([]domain.Asset, bool) {
	kept := make([]domain.Asset, 0, len(assets))
	removed := false
	for _, asset := range assets {
		if asset.ID == id {
			removed = true
			continue
		}
		kept = append(kept, asset)
	}
	return kept, removed
}
