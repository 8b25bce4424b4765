package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

// LocalRepository stores each asset as <dir>/<id>.<ext>.
type LocalRepository struct {
	dir string
	ext string
}

func NewLocalRepository(dir, ext string) (*LocalRepository, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("images directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create images dir: %v", domain.ErrStorage, err)
	}
	return &LocalRepository{dir: dir, ext: ext}, nil
}

func (r *LocalRepository) Path(id string) string {
	return filepath.Join(r.dir, domain.StoredName(id, r.ext))
}

func (r *LocalRepository) Put(ctx context.Context, id string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(id); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(r.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrStorage, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write asset %s: %v", domain.ErrStorage, id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close asset %s: %v", domain.ErrStorage, id, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod asset %s: %v", domain.ErrStorage, id, err)
	}
	if err := os.Rename(tmpPath, r.Path(id)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: store asset %s: %v", domain.ErrStorage, id, err)
	}
	return nil
}

func (r *LocalRepository) Get(ctx context.Context, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkKey(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(r.Path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: read asset %s: %v", domain.ErrStorage, id, err)
	}
	return data, nil
}

func (r *LocalRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkKey(id); err != nil {
		return err
	}

	if err := os.Remove(r.Path(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		return fmt.Errorf("%w: delete asset %s: %v", domain.ErrStorage, id, err)
	}
	return nil
}
