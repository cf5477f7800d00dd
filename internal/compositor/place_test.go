package compositor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"testing"
)

var blue = color.NRGBA{B: 0xff, A: 0xff}

func TestPlaceChestAnchor(t *testing.T) {
	base := solidCutout(200, 200, blue)
	sticker := solidCutout(50, 50, red)

	out, err := Place(base, sticker, 0.25, AnchorChest, nil)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if got := out.Bounds(); got.Dx() != 200 || got.Dy() != 200 {
		t.Fatalf("expected base-sized output, got %dx%d", got.Dx(), got.Dy())
	}

	// 50px sticker centered on (100, 140) pastes at (75, 115).
	if got := out.NRGBAAt(75, 115); got != red {
		t.Fatalf("expected sticker at top-left corner, got %+v", got)
	}
	if got := out.NRGBAAt(124, 164); got != red {
		t.Fatalf("expected sticker at bottom-right corner, got %+v", got)
	}
	if got := out.NRGBAAt(74, 115); got != blue {
		t.Fatalf("expected base left of sticker, got %+v", got)
	}
	if got := out.NRGBAAt(125, 164); got != blue {
		t.Fatalf("expected base right of sticker, got %+v", got)
	}
	if got := out.NRGBAAt(75, 114); got != blue {
		t.Fatalf("expected base above sticker, got %+v", got)
	}
}

func TestPlaceScaleFlooring(t *testing.T) {
	base := solidCutout(200, 200, blue)
	sticker := solidCutout(50, 30, red)
	xy := &XYPct{X: 0.5, Y: 0.5}

	out, err := Place(base, sticker, 0.333, "", xy)
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	// 200*0.333 truncates to 66 wide; 30*66/50 floors to 39 tall.
	var redCount int
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			if out.NRGBAAt(x, y) == red {
				redCount++
			}
		}
	}
	if want := 66 * 39; redCount != want {
		t.Fatalf("expected %d sticker pixels, got %d", want, redCount)
	}
}

func TestPlaceUnknownAnchorFallsBack(t *testing.T) {
	base := solidCutout(120, 120, blue)
	sticker := solidCutout(40, 40, red)

	fallback, err := Place(base, sticker, 0.25, "floating_ear", nil)
	if err != nil {
		t.Fatalf("place with unknown anchor: %v", err)
	}
	reference, err := Place(base, sticker, 0.25, AnchorLeftShoulder, nil)
	if err != nil {
		t.Fatalf("place with left_shoulder: %v", err)
	}
	if !bytes.Equal(fallback.Pix, reference.Pix) {
		t.Fatal("expected unknown anchor to render as left_shoulder")
	}
}

func TestPlaceClipsOffCanvas(t *testing.T) {
	base := solidCutout(200, 200, blue)
	sticker := solidCutout(50, 50, red)
	xy := &XYPct{X: 0, Y: 0}

	out, err := Place(base, sticker, 0.25, "", xy)
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if got := out.Bounds(); got.Dx() != 200 || got.Dy() != 200 {
		t.Fatalf("expected base-sized output, got %dx%d", got.Dx(), got.Dy())
	}
	if got := out.NRGBAAt(0, 0); got != red {
		t.Fatalf("expected clipped sticker at origin, got %+v", got)
	}
	if got := out.NRGBAAt(199, 199); got != blue {
		t.Fatalf("expected base at far corner, got %+v", got)
	}
}

func TestPlaceLeavesBaseUntouched(t *testing.T) {
	base := solidCutout(200, 200, blue)
	sticker := solidCutout(50, 50, red)

	if _, err := Place(base, sticker, 0.25, AnchorChest, nil); err != nil {
		t.Fatalf("place: %v", err)
	}
	if got := base.NRGBAAt(75, 115); got != blue {
		t.Fatalf("expected base unchanged, got %+v", got)
	}
}

func TestPlaceDegenerateGeometry(t *testing.T) {
	base := solidCutout(200, 200, blue)
	sticker := solidCutout(50, 50, red)

	if _, err := Place(base, sticker, 0.001, AnchorChest, nil); !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("expected ErrDegenerateGeometry for tiny scale, got %v", err)
	}
	if _, err := Place(base, image.NewNRGBA(image.Rect(0, 0, 0, 0)), 0.25, AnchorChest, nil); !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("expected ErrDegenerateGeometry for empty sticker, got %v", err)
	}
	if _, err := Place(image.NewNRGBA(image.Rect(0, 0, 0, 0)), sticker, 0.25, AnchorChest, nil); !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("expected ErrDegenerateGeometry for empty base, got %v", err)
	}
}

func TestPlaceWideStickerCollapsesToNoHeight(t *testing.T) {
	base := solidCutout(100, 100, blue)
	sticker := solidCutout(400, 2, red)

	// 100*0.1 → 10 wide, 2*10/400 floors to zero rows.
	if _, err := Place(base, sticker, 0.1, AnchorChest, nil); !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("expected ErrDegenerateGeometry for zero-height resize, got %v", err)
	}
}
