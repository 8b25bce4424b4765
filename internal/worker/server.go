package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/pixelshelf/internal/config"
	"github.com/dunamismax/pixelshelf/internal/domain"
	"github.com/dunamismax/pixelshelf/internal/queue"
	"github.com/dunamismax/pixelshelf/internal/storage"
	"github.com/dunamismax/pixelshelf/internal/store"
	"github.com/dunamismax/pixelshelf/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	outcomeSucceeded = "succeeded"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	webhookClient webhookSender
	webhookURL    string
	assetStore    store.AssetStore
	repo          storage.Repository
	metrics       *metrics
	tracer        trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event, deliveryID string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	webhookURL string,
	webhookClient webhookSender,
	assetStore store.AssetStore,
	repo storage.Repository,
) (*Server, error) {
	if assetStore == nil {
		return nil, fmt.Errorf("asset store is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("asset repository is required")
	}

	s := newServer(logger, workerCfg.MaxActiveJobs, webhookURL, webhookClient, assetStore, repo)
	s.server = asynq.NewServer(
		queueCfg.RedisClientOpt(),
		asynq.Config{
			Concurrency: workerCfg.Concurrency,
			Queues: map[string]int{
				queueCfg.Name: 1,
			},
			LogLevel: asynq.InfoLevel,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
			}),
		},
	)
	return s, nil
}

func newServer(logger *log.Logger, slots int, webhookURL string, webhookClient webhookSender, assetStore store.AssetStore, repo storage.Repository) *Server {
	return &Server{
		logger:        logger,
		sem:           make(chan struct{}, max(1, slots)),
		webhookClient: webhookClient,
		webhookURL:    strings.TrimSpace(webhookURL),
		assetStore:    assetStore,
		repo:          repo,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("pixelshelf/worker"),
	}
}

func (s *Server) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeAssetEvent, s.handleAssetEvent)
	mux.HandleFunc(queue.TypePurgeOrphan, s.handlePurgeOrphan)
	return mux
}

func (s *Server) Run() error {
	return s.server.Run(s.Mux())
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// handleAssetEvent forwards a lifecycle event to the configured webhook.
func (s *Server) handleAssetEvent(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := outcomeFailed

	payload, err := queue.ParseAssetEventPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.asset_event", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("asset.id", payload.Asset.ID),
		attribute.String("asset.event", payload.Event),
	)
	defer span.End()
	defer s.observe(queue.TypeAssetEvent, startedAt, &outcome)

	release := s.acquire()
	defer release()

	if s.webhookURL == "" || s.webhookClient == nil {
		outcome = outcomeSkipped
		span.SetStatus(codes.Ok, "no webhook configured")
		return nil
	}

	deliveryID, ok := asynq.GetTaskID(ctx)
	if !ok || deliveryID == "" {
		deliveryID = payload.Asset.ID + ":" + payload.Event
	}

	body := map[string]any{
		"event":       payload.Event,
		"asset":       payload.Asset,
		"occurred_at": payload.OccurredAt,
	}
	if err := s.webhookClient.Send(ctx, s.webhookURL, payload.Event, deliveryID, body); err != nil {
		s.logger.Printf("webhook delivery failed asset_id=%s event=%s err=%v", payload.Asset.ID, payload.Event, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook delivery failed")
		var delivery *webhook.DeliveryError
		if errors.As(err, &delivery) && delivery.Permanent() {
			return fmt.Errorf("dispatch webhook: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	s.logger.Printf("webhook delivered asset_id=%s event=%s delivery_id=%s", payload.Asset.ID, payload.Event, deliveryID)
	s.metrics.webhooksDeliveredTotal.WithLabelValues(payload.Event).Inc()
	outcome = outcomeSucceeded
	span.SetStatus(codes.Ok, "delivered")
	return nil
}

// handlePurgeOrphan removes bytes that were stored without a record. Bytes
// that gained a record in the meantime are left alone.
func (s *Server) handlePurgeOrphan(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := outcomeFailed

	payload, err := queue.ParsePurgeOrphanPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.purge_orphan", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(attribute.String("asset.id", payload.AssetID))
	defer span.End()
	defer s.observe(queue.TypePurgeOrphan, startedAt, &outcome)

	release := s.acquire()
	defer release()

	_, found, err := s.assetStore.Get(ctx, payload.AssetID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record lookup failed")
		return fmt.Errorf("look up asset record: %w", err)
	}
	if found {
		s.logger.Printf("skipping purge, record exists asset_id=%s", payload.AssetID)
		outcome = outcomeSkipped
		span.SetStatus(codes.Ok, "record exists")
		return nil
	}

	if err := s.repo.Delete(ctx, payload.AssetID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			outcome = outcomeSkipped
			span.SetStatus(codes.Ok, "already gone")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "purge failed")
		return fmt.Errorf("purge orphan bytes: %w", err)
	}

	s.logger.Printf("purged orphan asset_id=%s requested_at=%s", payload.AssetID, payload.RequestedAt.Format(time.RFC3339))
	s.metrics.orphansPurgedTotal.Inc()
	outcome = outcomeSucceeded
	span.SetStatus(codes.Ok, "purged")
	return nil
}

func (s *Server) acquire() func() {
	s.sem <- struct{}{}
	s.metrics.activeTasks.Inc()
	return func() {
		<-s.sem
		s.metrics.activeTasks.Dec()
	}
}

func (s *Server) observe(taskType string, startedAt time.Time, outcome *string) {
	s.metrics.taskDuration.WithLabelValues(taskType, *outcome).Observe(time.Since(startedAt).Seconds())
	s.metrics.tasksTotal.WithLabelValues(taskType, *outcome).Inc()
}
