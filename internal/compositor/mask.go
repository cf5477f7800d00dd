package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/stickerflow/internal/segment"
)

// Profile carries the tuning parameters for mask acquisition and cleanup.
// A FringeCutoff of 0 disables the edge-fringe pass.
type Profile struct {
	Matting             bool
	ForegroundThreshold int
	BackgroundThreshold int
	ErodeSize           int
	PostProcessMask     bool
	FringeCutoff        uint8
}

// StrictProfile biases the segmenter toward keeping subject detail while
// discarding background aggressively, then strips near-transparent halo
// pixels left along cutout edges.
func StrictProfile() Profile {
	return Profile{
		Matting:             true,
		ForegroundThreshold: 270,
		BackgroundThreshold: 0,
		ErodeSize:           0,
		PostProcessMask:     true,
		FringeCutoff:        30,
	}
}

// PassthroughProfile runs the segmenter with its defaults and no cleanup.
func PassthroughProfile() Profile {
	return Profile{}
}

type Normalizer struct {
	segmenter segment.Segmenter
	profile   Profile
}

func NewNormalizer(segmenter segment.Segmenter, profile Profile) (*Normalizer, error) {
	if segmenter == nil {
		return nil, errors.New("segmenter is required")
	}
	return &Normalizer{segmenter: segmenter, profile: profile}, nil
}

// Normalize returns an NRGBA copy of img whose alpha channel isolates the
// subject. Images that already carry transparency are returned as-is, with
// no segmentation call; this keeps already-cut assets from being processed
// twice.
func (n *Normalizer) Normalize(ctx context.Context, img image.Image) (*image.NRGBA, error) {
	src := imaging.Clone(img)
	if hasTransparency(src) {
		return src, nil
	}

	cut, err := n.segmenter.Segment(ctx, src, segment.Options{
		Matting:             n.profile.Matting,
		ForegroundThreshold: n.profile.ForegroundThreshold,
		BackgroundThreshold: n.profile.BackgroundThreshold,
		ErodeSize:           n.profile.ErodeSize,
		PostProcessMask:     n.profile.PostProcessMask,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSegmentationFailed, err)
	}
	if cut == nil {
		return nil, fmt.Errorf("%w: segmenter returned no image", ErrSegmentationFailed)
	}

	out := imaging.Clone(cut)
	if n.profile.FringeCutoff > 0 {
		cleanFringe(out, n.profile.FringeCutoff)
	}
	return out, nil
}

func hasTransparency(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] < 0xff {
			return true
		}
	}
	return false
}

// cleanFringe zeroes the alpha of any pixel below cutoff; color bytes are
// left alone since zero alpha makes them moot. Alpha never increases.
func cleanFringe(img *image.NRGBA, cutoff uint8) {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] < cutoff {
			img.Pix[i] = 0
		}
	}
}
