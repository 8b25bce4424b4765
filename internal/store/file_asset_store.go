package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

// FileAssetStore keeps every record in one JSON array document. The document
// is read in full on every call and replaced in full on every mutation; the
// replacement goes through a temp file and rename so the path always holds a
// well-formed document. Mutations hold mu for the whole read-modify-write
// cycle so concurrent appends cannot lose each other's records.
type FileAssetStore struct {
	path string
	mu   sync.RWMutex
}

// NewFileAssetStore opens the document at path, creating an empty array when
// it does not exist yet.
func NewFileAssetStore(path string) (*FileAssetStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("metadata file path is required")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create metadata dir: %v", domain.ErrStorage, err)
	}

	s := &FileAssetStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.saveLocked(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: stat metadata file: %v", domain.ErrStorage, err)
	}
	return s, nil
}

func (s *FileAssetStore) Path() string {
	return s.path
}

func (s *FileAssetStore) List(ctx context.Context) ([]domain.Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadLocked()
}

func (s *FileAssetStore) Get(ctx context.Context, id string) (domain.Asset, bool, error) {
	assets, err := s.List(ctx)
	if err != nil {
		return domain.Asset{}, false, err
	}
	for _, asset := range assets {
		if asset.ID == id {
			return asset, true, nil
		}
	}
	return domain.Asset{}, false, nil
}

func (s *FileAssetStore) Append(ctx context.Context, asset domain.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assets, err := s.loadLocked()
	if err != nil {
		return err
	}
	return s.saveLocked(append(assets, asset))
}

func (s *FileAssetStore) Remove(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	assets, err := s.loadLocked()
	if err != nil {
		return false, err
	}
	kept, removed := filterOut(assets, id)
	if !removed {
		return false, nil
	}
	if err := s.saveLocked(kept); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileAssetStore) loadLocked() ([]domain.Asset, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []domain.Asset{}, nil
		}
		return nil, fmt.Errorf("%w: read metadata file: %v", domain.ErrStorage, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []domain.Asset{}, nil
	}

	var assets []domain.Asset
	if err := json.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("%w: parse metadata file: %v", domain.ErrStorage, err)
	}
	if assets == nil {
		assets = []domain.Asset{}
	}
	return assets, nil
}

func (s *FileAssetStore) saveLocked(assets []domain.Asset) error {
	if assets == nil {
		assets = []domain.Asset{}
	}
	data, err := json.MarshalIndent(assets, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode metadata: %v", domain.ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp metadata file: %v", domain.ErrStorage, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write metadata: %v", domain.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync metadata: %v", domain.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close metadata: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("%w: replace metadata file: %v", domain.ErrStorage, err)
	}
	return nil
}
