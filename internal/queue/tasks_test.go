package queue

import (
	"testing"
	"time"

	"github.com/dunamismax/stickerflow/internal/domain"
)

func TestComposeStickerTaskRoundTrip(t *testing.T) {
	x, y := 0.4, 0.6
	payload := ComposeStickerPayload{
		JobID:      "job-123",
		SourceType: "s3_presigned",
		StickerKey: "uploads/job-123/sticker",
		BaseKey:    "uploads/job-123/base",
		Options: domain.ComposeOptions{
			StrokePX: 3,
			Shadow:   true,
			Scale:    0.25,
			Anchor:   "chest",
			XPct:     &x,
			YPct:     &y,
		},
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewComposeStickerTask(payload)
	if err != nil {
		t.Fatalf("NewComposeStickerTask returned error: %v", err)
	}
	if task.Type() != TypeComposeSticker {
		t.Fatalf("expected task type %q, got %q", TypeComposeSticker, task.Type())
	}

	parsed, err := ParseComposeStickerPayload(task)
	if err != nil {
		t.Fatalf("ParseComposeStickerPayload returned error: %v", err)
	}

	if parsed.JobID != payload.JobID {
		t.Fatalf("expected job_id %q, got %q", payload.JobID, parsed.JobID)
	}
	if parsed.Options.StrokePX != 3 || !parsed.Options.Shadow {
		t.Fatalf("expected decoration options preserved, got %+v", parsed.Options)
	}
	if parsed.Options.XPct == nil || *parsed.Options.XPct != x {
		t.Fatalf("expected x_pct preserved, got %v", parsed.Options.XPct)
	}
	if parsed.Options.YPct == nil || *parsed.Options.YPct != y {
		t.Fatalf("expected y_pct preserved, got %v", parsed.Options.YPct)
	}
}
