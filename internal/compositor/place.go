package compositor

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	AnchorLeftShoulder  = "left_shoulder"
	AnchorRightShoulder = "right_shoulder"
	AnchorChest         = "chest"
	AnchorLowerLeft     = "lower_left"
	AnchorLowerRight    = "lower_right"
)

// XYPct is an explicit placement override: the sticker is centered on the
// point (x_pct, y_pct) of the base canvas, both fractions in [0, 1].
type XYPct struct {
	X float64
	Y float64
}

type anchorPoint struct {
	x float64
	y float64
}

var anchorPoints = map[string]anchorPoint{
	AnchorLeftShoulder:  {0.33, 0.62},
	AnchorRightShoulder: {0.67, 0.62},
	AnchorChest:         {0.50, 0.70},
	AnchorLowerLeft:     {0.25, 0.78},
	AnchorLowerRight:    {0.75, 0.78},
}

// Place resizes the sticker to scale×base-width and composites it over a
// copy of the base, centered on the anchor point (or the explicit xy
// override). Regions falling outside the base are silently clipped; the
// caller's base is never written to.
func Place(base, sticker image.Image, scale float64, anchor string, xy *XYPct) (*image.NRGBA, error) {
	baseW := base.Bounds().Dx()
	baseH := base.Bounds().Dy()
	if baseW == 0 || baseH == 0 {
		return nil, fmt.Errorf("%w: empty base canvas", ErrDegenerateGeometry)
	}

	stickerW := sticker.Bounds().Dx()
	stickerH := sticker.Bounds().Dy()
	if stickerW == 0 || stickerH == 0 {
		return nil, fmt.Errorf("%w: empty sticker", ErrDegenerateGeometry)
	}

	targetW := int(float64(baseW) * scale)
	if targetW < 1 {
		return nil, fmt.Errorf("%w: scale %.4f of base width %d leaves no pixels", ErrDegenerateGeometry, scale, baseW)
	}
	targetH := stickerH * targetW / stickerW
	if targetH < 1 {
		return nil, fmt.Errorf("%w: resized sticker has no height", ErrDegenerateGeometry)
	}

	resized := imaging.Resize(sticker, targetW, targetH, imaging.Lanczos)

	var x, y int
	if xy != nil {
		x = int(float64(baseW)*xy.X) - targetW/2
		y = int(float64(baseH)*xy.Y) - targetH/2
	} else {
		point, ok := anchorPoints[anchor]
		if !ok {
			point = anchorPoints[AnchorLeftShoulder]
		}
		x = int(float64(baseW)*point.x) - targetW/2
		y = int(float64(baseH)*point.y) - targetH/2
	}

	return imaging.Overlay(base, resized, image.Pt(x, y), 1.0), nil
}
