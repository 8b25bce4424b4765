package queue

import (
	"context"
	"time"

	"github.com/dunamismax/pixelshelf/internal/domain"
	"github.com/hibiken/asynq"
)

// Orphans are purged after a grace period so an in-flight retry of the same
// write is never raced.
const purgeDelay = time.Minute

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

func (c *Client) EnqueueAssetEvent(ctx context.Context, payload AssetEventPayload) (*asynq.TaskInfo, error) {
	task, err := NewAssetEventTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
	)
}

func (c *Client) EnqueuePurgeOrphan(ctx context.Context, payload PurgeOrphanPayload) (*asynq.TaskInfo, error) {
	task, err := NewPurgeOrphanTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.MaxRetry(10),
		asynq.ProcessIn(purgeDelay),
		asynq.Timeout(time.Minute),
	)
}

// PublishAssetEvent and SchedulePurge let the asset service publish without
// knowing about asynq.
func (c *Client) PublishAssetEvent(ctx context.Context, event string, asset domain.Asset) error {
	_, err := c.EnqueueAssetEvent(ctx, AssetEventPayload{
		Event:      event,
		Asset:      asset,
		OccurredAt: time.Now().UTC(),
	})
	return err
}

func (c *Client) SchedulePurge(ctx context.Context, assetID string) error {
	_, err := c.EnqueuePurgeOrphan(ctx, PurgeOrphanPayload{
		AssetID:     assetID,
		RequestedAt: time.Now().UTC(),
	})
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
