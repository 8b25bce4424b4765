package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dunamismax/pixelshelf/internal/domain"
	_ "github.com/lib/pq"
)

const assetSchemaSQL = `
CREATE TABLE IF NOT EXISTS assets (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	original_name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	size_bytes BIGINT NOT NULL,
	mime_type TEXT NOT NULL
);
`

// PostgresAssetStore keeps records in a table; seq preserves insertion order.
type PostgresAssetStore struct {
	db *sql.DB
}

func NewPostgresAssetStore(ctx context.Context, dsn string) (*PostgresAssetStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresAssetStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresAssetStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, assetSchemaSQL); err != nil {
		return fmt.Errorf("ensure assets schema: %w", err)
	}
	return nil
}

func (s *PostgresAssetStore) Close() error {
	return s.db.Close()
}

func (s *PostgresAssetStore) List(ctx context.Context) ([]domain.Asset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, filename, original_name, created_at, size_bytes, mime_type
		 FROM assets
		 ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query assets: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	assets := []domain.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate assets: %v", domain.ErrStorage, err)
	}
	return assets, nil
}

func (s *PostgresAssetStore) Get(ctx context.Context, id string) (domain.Asset, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, filename, original_name, created_at, size_bytes, mime_type
		 FROM assets
		 WHERE id = $1`,
		id,
	)

	asset, err := scanAsset(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Asset{}, false, nil
		}
		return domain.Asset{}, false, err
	}
	return asset, true, nil
}

func (s *PostgresAssetStore) Append(ctx context.Context, asset domain.Asset) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO assets (id, filename, original_name, created_at, size_bytes, mime_type)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		asset.ID,
		asset.StoredName,
		asset.OriginalName,
		asset.CreatedAt,
		asset.SizeBytes,
		asset.MimeType,
	)
	if err != nil {
		return fmt.Errorf("%w: insert asset: %v", domain.ErrStorage, err)
	}
	return nil
}

func (s *PostgresAssetStore) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("%w: delete asset: %v", domain.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: delete asset: %v", domain.ErrStorage, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (domain.Asset, error) {
	var asset domain.Asset
	if err := row.Scan(
		&asset.ID,
		&asset.StoredName,
		&asset.OriginalName,
		&asset.CreatedAt,
		&asset.SizeBytes,
		&asset.MimeType,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.Asset{}, err
		}
		return domain.Asset{}, fmt.Errorf("%w: scan asset: %v", domain.ErrStorage, err)
	}
	asset.CreatedAt = asset.CreatedAt.UTC()
	return asset, nil
}
