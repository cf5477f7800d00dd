package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"
)

const (
	DefaultScale  = 0.25
	DefaultAnchor = "left_shoulder"
)

type CreateJobRequest struct {
	SourceType string         `json:"source_type"`
	WebhookURL string         `json:"webhook_url,omitempty"`
	StickerKey string         `json:"sticker_key,omitempty"`
	BaseKey    string         `json:"base_key,omitempty"`
	WithBase   bool           `json:"with_base,omitempty"`
	Options    ComposeOptions `json:"options"`
}

// ComposeOptions drive one pass through the sticker pipeline. A job without
// a base image stops after decoration and emits the standalone sticker.
type ComposeOptions struct {
	StrokePX int      `json:"stroke_px"`
	Shadow   bool     `json:"shadow"`
	Scale    float64  `json:"scale,omitempty"`
	Anchor   string   `json:"anchor,omitempty"`
	XPct     *float64 `json:"x_pct,omitempty"`
	YPct     *float64 `json:"y_pct,omitempty"`
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	StickerKey string
	BaseKey    string
	Options    ComposeOptions
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return errors.New("source_type is required")
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("unsupported source_type: %s", r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.StickerKey) == "" {
		return errors.New("sticker_key is required for source_type=local_file")
	}
	return r.Options.Validate(r.WithBase || strings.TrimSpace(r.BaseKey) != "")
}

func (o ComposeOptions) Validate(hasBase bool) error {
	if o.StrokePX < 0 {
		return errors.New("options.stroke_px must not be negative")
	}
	if (o.XPct == nil) != (o.YPct == nil) {
		return errors.New("options.x_pct and options.y_pct must be set together")
	}
	if o.XPct != nil {
		if *o.XPct < 0 || *o.XPct > 1 || *o.YPct < 0 || *o.YPct > 1 {
			return errors.New("options.x_pct and options.y_pct must be within [0, 1]")
		}
	}
	if hasBase && o.Scale <= 0 {
		return errors.New("options.scale must be positive when a base image is set")
	}
	return nil
}

// Normalized fills in the defaults the interactive endpoints use.
func (o ComposeOptions) Normalized() ComposeOptions {
	if o.Scale <= 0 {
		o.Scale = DefaultScale
	}
	if strings.TrimSpace(o.Anchor) == "" {
		o.Anchor = DefaultAnchor
	}
	return o
}
