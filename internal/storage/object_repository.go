package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dunamismax/pixelshelf/internal/domain"
)

type objectClient interface {
	StatObject(ctx context.Context, objectKey string) (ObjectInfo, bool, error)
	ReadObject(ctx context.Context, objectKey string) ([]byte, bool, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, meta ObjectMeta) error
	RemoveObject(ctx context.Context, objectKey string) error
}

// ObjectRepository stores assets as <prefix>/<id>.<ext> in a MinIO/S3 bucket.
type ObjectRepository struct {
	client      objectClient
	prefix      string
	ext         string
	contentType string
}

func NewObjectRepository(client *Client, prefix, ext, contentType string) (*ObjectRepository, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	return newObjectRepository(client, prefix, ext, contentType), nil
}

func newObjectRepository(client objectClient, prefix, ext, contentType string) *ObjectRepository {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "images"
	}
	return &ObjectRepository{client: client, prefix: prefix, ext: ext, contentType: contentType}
}

func (r *ObjectRepository) ObjectKey(id string) string {
	return path.Join(r.prefix, domain.StoredName(id, r.ext))
}

func (r *ObjectRepository) Put(ctx context.Context, id string, data []byte) error {
	if err := checkKey(id); err != nil {
		return err
	}
	meta := ObjectMeta{AssetID: id, ContentType: r.contentType}
	if err := r.client.WriteObject(ctx, r.ObjectKey(id), data, meta); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *ObjectRepository) Get(ctx context.Context, id string) ([]byte, error) {
	if err := checkKey(id); err != nil {
		return nil, err
	}
	data, ok, err := r.client.ReadObject(ctx, r.ObjectKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return data, nil
}

// Delete reports ErrNotFound for missing keys; S3 itself treats that case as
// success.
func (r *ObjectRepository) Delete(ctx context.Context, id string) error {
	if err := checkKey(id); err != nil {
		return err
	}
	key := r.ObjectKey(id)

	_, exists, err := r.client.StatObject(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	if err := r.client.RemoveObject(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}
