package segment

import (
	"context"
	"image"
)

// Options are passed through to the segmentation engine per call.
// ForegroundThreshold uses the engine's trimap scale, so values above 255
// are valid.
type Options struct {
	Matting             bool
	ForegroundThreshold int
	BackgroundThreshold int
	ErodeSize           int
	PostProcessMask     bool
}

// Segmenter separates the subject of an image from its background and
// returns an image whose alpha channel encodes the separation.
type Segmenter interface {
	Segment(ctx context.Context, img image.Image, opts Options) (image.Image, error)
}
