package assets

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/dunamismax/pixelshelf/internal/domain"
	"github.com/dunamismax/pixelshelf/internal/id"
	"github.com/dunamismax/pixelshelf/internal/pipeline"
	"github.com/dunamismax/pixelshelf/internal/storage"
	"github.com/dunamismax/pixelshelf/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Processor interface {
	Optimize(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
	Edit(ctx context.Context, in pipeline.Input, opts pipeline.Options) (pipeline.Result, error)
	Reencode(ctx context.Context, in pipeline.Input) (pipeline.Result, error)
	ContentType() string
	Extension() string
}

// Publisher hands work to the background worker. It is optional.
type Publisher interface {
	PublishAssetEvent(ctx context.Context, event string, asset domain.Asset) error
	SchedulePurge(ctx context.Context, assetID string) error
}

type Upload struct {
	Data         []byte
	MimeType     string
	OriginalName string
}

type Service struct {
	logger    *log.Logger
	processor Processor
	store     store.AssetStore
	repo      storage.Repository
	publisher Publisher
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

func NewService(logger *log.Logger, processor Processor, assetStore store.AssetStore, repo storage.Repository, publisher Publisher) (*Service, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if assetStore == nil {
		return nil, errors.New("asset store is required")
	}
	if repo == nil {
		return nil, errors.New("asset repository is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		logger:    logger,
		processor: processor,
		store:     assetStore,
		repo:      repo,
		publisher: publisher,
		tracer:    otel.Tracer("pixelshelf/assets"),
		now:       time.Now,
		newID:     id.New,
	}, nil
}

func (s *Service) ContentType() string {
	return s.processor.ContentType()
}

// Create optimises an upload to fit the configured box and stores it. The
// record keeps the size and content type of the upload itself.
func (s *Service) Create(ctx context.Context, up Upload) (asset domain.Asset, err error) {
	ctx, span := s.tracer.Start(ctx, "assets.create")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("upload.mime_type", up.MimeType),
		attribute.Int("upload.bytes", len(up.Data)),
	)

	result, err := s.processor.Optimize(ctx, pipeline.Input{Data: up.Data, MimeType: up.MimeType})
	if err != nil {
		return domain.Asset{}, fmt.Errorf("optimize upload: %w", err)
	}

	return s.persist(ctx, result, up.OriginalName, int64(len(up.Data)), up.MimeType)
}

// Save stores an already edited image at its own size. The record carries the
// output content type.
func (s *Service) Save(ctx context.Context, up Upload) (asset domain.Asset, err error) {
	ctx, span := s.tracer.Start(ctx, "assets.save")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("upload.mime_type", up.MimeType),
		attribute.Int("upload.bytes", len(up.Data)),
	)

	result, err := s.processor.Reencode(ctx, pipeline.Input{Data: up.Data, MimeType: up.MimeType})
	if err != nil {
		return domain.Asset{}, fmt.Errorf("encode upload: %w", err)
	}

	return s.persist(ctx, result, up.OriginalName, int64(len(up.Data)), s.processor.ContentType())
}

// Edit returns the transformed image without persisting anything.
func (s *Service) Edit(ctx context.Context, up Upload, opts pipeline.Options) (result pipeline.Result, err error) {
	ctx, span := s.tracer.Start(ctx, "assets.edit")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(
		attribute.String("upload.mime_type", up.MimeType),
		attribute.StringSlice("edit.steps", pipeline.Steps(opts)),
	)

	result, err = s.processor.Edit(ctx, pipeline.Input{Data: up.Data, MimeType: up.MimeType}, opts)
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("edit upload: %w", err)
	}
	return result, nil
}

func (s *Service) List(ctx context.Context) (assets []domain.Asset, err error) {
	ctx, span := s.tracer.Start(ctx, "assets.list")
	defer func() { endSpan(span, err) }()

	assets, err = s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	span.SetAttributes(attribute.Int("assets.count", len(assets)))
	return assets, nil
}

func (s *Service) Fetch(ctx context.Context, assetID string) (data []byte, err error) {
	ctx, span := s.tracer.Start(ctx, "assets.fetch")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("asset.id", assetID))

	if !id.Valid(assetID) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, assetID)
	}
	data, err = s.repo.Get(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}
	return data, nil
}

// Delete removes the bytes first and the record second. Nothing is touched
// unless the record can be read, and when the bytes cannot be removed the
// record stays.
func (s *Service) Delete(ctx context.Context, assetID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "assets.delete")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("asset.id", assetID))

	if !id.Valid(assetID) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, assetID)
	}

	asset, found, err := s.store.Get(ctx, assetID)
	if err != nil {
		return fmt.Errorf("look up asset: %w", err)
	}
	if !found {
		asset = domain.Asset{ID: assetID}
	}

	if err := s.repo.Delete(ctx, assetID); err != nil {
		if !found || !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete asset bytes: %w", err)
		}
		s.logger.Printf("asset bytes already missing asset_id=%s", assetID)
	}

	removed, err := s.store.Remove(ctx, assetID)
	if err != nil {
		s.logger.Printf("asset record removal failed after bytes were deleted asset_id=%s err=%v", assetID, err)
		return fmt.Errorf("delete asset record: %w", err)
	}
	if !removed {
		s.logger.Printf("deleted asset bytes without a metadata record asset_id=%s", assetID)
	}

	s.logger.Printf("asset deleted asset_id=%s", assetID)
	s.publish(ctx, domain.EventAssetDeleted, asset)
	return nil
}

func (s *Service) persist(ctx context.Context, result pipeline.Result, originalName string, size int64, mimeType string) (domain.Asset, error) {
	assetID := s.newID()
	ext := s.processor.Extension()

	if err := s.repo.Put(ctx, assetID, result.Data); err != nil {
		return domain.Asset{}, fmt.Errorf("store asset bytes: %w", err)
	}

	asset := domain.Asset{
		ID:           assetID,
		StoredName:   domain.StoredName(assetID, ext),
		OriginalName: domain.OriginalNameOrDefault(originalName, ext),
		CreatedAt:    s.now().UTC(),
		SizeBytes:    size,
		MimeType:     mimeType,
	}

	if err := s.store.Append(ctx, asset); err != nil {
		s.discardBytes(ctx, assetID)
		return domain.Asset{}, fmt.Errorf("record asset: %w", err)
	}

	s.logger.Printf(
		"asset stored asset_id=%s bytes=%d width=%d height=%d format=%s",
		asset.ID,
		len(result.Data),
		result.Width,
		result.Height,
		result.Format,
	)
	s.publish(ctx, domain.EventAssetCreated, asset)
	return asset, nil
}

// discardBytes undoes a Put whose record never made it to the store. If that
// fails too the purge is handed to the worker.
func (s *Service) discardBytes(ctx context.Context, assetID string) {
	ctx = context.WithoutCancel(ctx)

	err := s.repo.Delete(ctx, assetID)
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return
	}
	s.logger.Printf("orphaned asset bytes asset_id=%s err=%v", assetID, err)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.SchedulePurge(ctx, assetID); err != nil {
		s.logger.Printf("schedule orphan purge failed asset_id=%s err=%v", assetID, err)
	}
}

func (s *Service) publish(ctx context.Context, event string, asset domain.Asset) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishAssetEvent(context.WithoutCancel(ctx), event, asset); err != nil {
		s.logger.Printf("publish asset event failed event=%s asset_id=%s err=%v", event, asset.ID, err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.ErrorKind(err))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
