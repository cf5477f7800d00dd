package compositor

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

const (
	strokeBlurSigma = 1
	shadowBlurSigma = 4
)

// Decorate wraps a cutout with a solid white sticker outline and, when
// requested, a soft drop shadow. The returned canvas grows by 2×strokePX
// per axis, or 4×strokePX when the shadow expansion dominates, and the
// original cutout stays centered within it.
func Decorate(img image.Image, strokePX int, addShadow bool) (*image.NRGBA, error) {
	if strokePX < 0 {
		return nil, fmt.Errorf("%w: stroke_px must not be negative", ErrDegenerateGeometry)
	}

	cut := imaging.Clone(img)
	bounds := cut.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty cutout", ErrDegenerateGeometry)
	}

	silhouette := alphaPlane(cut)

	stroke := expandMask(silhouette, strokePX)
	stroke = blurMask(stroke, strokeBlurSigma)
	strokeLayer := tintMask(stroke, color.NRGBA{R: 0xff, G: 0xff, B: 0xff})

	var shadowLayer *image.NRGBA
	if addShadow {
		shadow := expandMask(silhouette, 2*strokePX)
		shadow = blurMask(shadow, shadowBlurSigma)
		shadowLayer = tintMask(shadow, color.NRGBA{})
	}

	margin := strokePX
	if addShadow {
		margin = 2 * strokePX
	}
	canvas := imaging.New(bounds.Dx()+2*margin, bounds.Dy()+2*margin, color.NRGBA{})

	if shadowLayer != nil {
		canvas = imaging.Overlay(canvas, shadowLayer, centerOffset(canvas, shadowLayer), 1.0)
	}
	canvas = imaging.Overlay(canvas, strokeLayer, centerOffset(canvas, strokeLayer), 1.0)
	canvas = imaging.Overlay(canvas, cut, centerOffset(canvas, cut), 1.0)
	return canvas, nil
}

func centerOffset(canvas, layer *image.NRGBA) image.Point {
	return image.Pt(
		(canvas.Bounds().Dx()-layer.Bounds().Dx())/2,
		(canvas.Bounds().Dy()-layer.Bounds().Dy())/2,
	)
}

func alphaPlane(img *image.NRGBA) *image.Gray {
	bounds := img.Bounds()
	mask := image.NewGray(bounds)
	for i, j := 3, 0; i < len(img.Pix); i, j = i+4, j+1 {
		mask.Pix[j] = img.Pix[i]
	}
	return mask
}

// expandMask grows the mask canvas by border pixels on every side, with the
// new border region fully opaque.
func expandMask(mask *image.Gray, border int) *image.Gray {
	if border == 0 {
		return mask
	}

	w := mask.Bounds().Dx()
	h := mask.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w+2*border, h+2*border))
	for i := range out.Pix {
		out.Pix[i] = 0xff
	}
	for y := 0; y < h; y++ {
		copy(
			out.Pix[(y+border)*out.Stride+border:(y+border)*out.Stride+border+w],
			mask.Pix[y*mask.Stride:y*mask.Stride+w],
		)
	}
	return out
}

func blurMask(mask *image.Gray, sigma float64) *image.Gray {
	blurred := imaging.Blur(mask, sigma)
	out := image.NewGray(mask.Bounds())
	for i, j := 0, 0; i < len(blurred.Pix); i, j = i+4, j+1 {
		out.Pix[j] = blurred.Pix[i]
	}
	return out
}

// tintMask renders the mask as a solid-color layer whose alpha channel is
// the mask itself.
func tintMask(mask *image.Gray, c color.NRGBA) *image.NRGBA {
	out := imaging.New(mask.Bounds().Dx(), mask.Bounds().Dy(), c)
	for i, j := 3, 0; i < len(out.Pix); i, j = i+4, j+1 {
		out.Pix[i] = mask.Pix[j]
	}
	return out
}
