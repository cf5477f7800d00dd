package domain

import "time"

type UsageLog struct {
	UserID         string
	JobID          string
	PixelsComposed int64
	OutputBytes    int64
	ComputeTimeMS  int64
	CreatedAt      time.Time
}
