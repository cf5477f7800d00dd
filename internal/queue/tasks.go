package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dunamismax/stickerflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeComposeSticker = "sticker:compose"

type ComposeStickerPayload struct {
	JobID       string                `json:"job_id"`
	SourceType  string                `json:"source_type"`
	WebhookURL  string                `json:"webhook_url,omitempty"`
	StickerKey  string                `json:"sticker_key"`
	BaseKey     string                `json:"base_key,omitempty"`
	Options     domain.ComposeOptions `json:"options"`
	RequestedAt time.Time             `json:"requested_at"`
}

func NewComposeStickerTask(payload ComposeStickerPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal compose payload: %w", err)
	}
	return asynq.NewTask(TypeComposeSticker, body), nil
}

func ParseComposeStickerPayload(task *asynq.Task) (ComposeStickerPayload, error) {
	var payload ComposeStickerPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ComposeStickerPayload{}, fmt.Errorf("unmarshal compose payload: %w", err)
	}
	return payload, nil
}
