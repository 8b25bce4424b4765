package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// assetIDMetaKey is stored as x-amz-meta-asset-id so a bucket listing can be
// matched back to metadata records without parsing keys.
const assetIDMetaKey = "Asset-Id"

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	Region   string
	UseSSL   bool
}

// Client is a thin MinIO/S3 wrapper scoped to one bucket.
type Client struct {
	minio  *minio.Client
	bucket string
	region string
}

// ObjectMeta travels with every object written for an asset.
type ObjectMeta struct {
	AssetID     string
	ContentType string
}

type ObjectInfo struct {
	Size        int64
	ContentType string
	AssetID     string
}

func NewClient(cfg Config) (*Client, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Client{minio: mc, bucket: bucket, region: cfg.Region}, nil
}

func (c *Client) Bucket() string {
	return c.bucket
}

// EnsureBucket creates the bucket on first start. Losing a creation race to
// another replica counts as success.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}

	err = c.minio.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: c.region})
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", c.bucket, err)
}

// StatObject returns ok=false when the key does not exist.
func (c *Client) StatObject(ctx context.Context, objectKey string) (ObjectInfo, bool, error) {
	info, err := c.minio.StatObject(ctx, c.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		if isMissingObject(err) {
			return ObjectInfo{}, false, nil
		}
		return ObjectInfo{}, false, fmt.Errorf("stat object %s: %w", objectKey, err)
	}
	return ObjectInfo{
		Size:        info.Size,
		ContentType: info.ContentType,
		AssetID:     info.UserMetadata[assetIDMetaKey],
	}, true, nil
}

// ReadObject returns ok=false when the key does not exist.
func (c *Client) ReadObject(ctx context.Context, objectKey string) ([]byte, bool, error) {
	obj, err := c.minio.GetObject(ctx, c.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		if isMissingObject(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get object %s: %w", objectKey, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isMissingObject(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read object %s: %w", objectKey, err)
	}
	return data, true, nil
}

func (c *Client) WriteObject(ctx context.Context, objectKey string, data []byte, meta ObjectMeta) error {
	opts := minio.PutObjectOptions{ContentType: meta.ContentType}
	if meta.AssetID != "" {
		opts.UserMetadata = map[string]string{assetIDMetaKey: meta.AssetID}
	}

	if _, err := c.minio.PutObject(ctx, c.bucket, objectKey, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return fmt.Errorf("put object %s: %w", objectKey, err)
	}
	return nil
}

func (c *Client) RemoveObject(ctx context.Context, objectKey string) error {
	if err := c.minio.RemoveObject(ctx, c.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", objectKey, err)
	}
	return nil
}

func isMissingObject(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return true
	default:
		return false
	}
}
