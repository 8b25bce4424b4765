package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/pixelshelf/internal/domain"
	"github.com/hibiken/asynq"
)

const (
	TypeAssetEvent  = "asset:event"
	TypePurgeOrphan = "asset:purge_orphan"
)

type AssetEventPayload struct {
	Event      string       `json:"event"`
	Asset      domain.Asset `json:"asset"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// PurgeOrphanPayload names bytes that were written without a metadata record.
type PurgeOrphanPayload struct {
	AssetID     string    `json:"asset_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewAssetEventTask(payload AssetEventPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal asset event payload: %w", err)
	}
	return asynq.NewTask(TypeAssetEvent, body), nil
}

func ParseAssetEventPayload(task *asynq.Task) (AssetEventPayload, error) {
	var payload AssetEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AssetEventPayload{}, fmt.Errorf("unmarshal asset event payload: %w", err)
	}
	if payload.Event == "" || payload.Asset.ID == "" {
		return AssetEventPayload{}, fmt.Errorf("asset event payload is missing event or asset id")
	}
	return payload, nil
}

func NewPurgeOrphanTask(payload PurgeOrphanPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal purge payload: %w", err)
	}
	return asynq.NewTask(TypePurgeOrphan, body), nil
}

func ParsePurgeOrphanPayload(task *asynq.Task) (PurgeOrphanPayload, error) {
	var payload PurgeOrphanPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return PurgeOrphanPayload{}, fmt.Errorf("unmarshal purge payload: %w", err)
	}
	if payload.AssetID == "" {
		return PurgeOrphanPayload{}, fmt.Errorf("purge payload is missing asset_id")
	}
	return payload, nil
}
