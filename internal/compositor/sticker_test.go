package compositor

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
)

func solidCutout(w, h int, c color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, c)
}

var (
	red   = color.NRGBA{R: 0xff, A: 0xff}
	white = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	black = color.NRGBA{A: 0xff}
)

func TestDecorateStrokeGrowsCanvas(t *testing.T) {
	out, err := Decorate(solidCutout(100, 100, red), 3, false)
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}

	if got := out.Bounds(); got.Dx() != 106 || got.Dy() != 106 {
		t.Fatalf("expected 106x106 canvas, got %dx%d", got.Dx(), got.Dy())
	}

	// The cutout sits centered at (3,3); interior pixels keep their color.
	if got := out.NRGBAAt(53, 53); got != red {
		t.Fatalf("expected cutout color at center, got %+v", got)
	}
	// The margin carries the solid white outline.
	if got := out.NRGBAAt(1, 1); got != white {
		t.Fatalf("expected white outline in margin, got %+v", got)
	}
	if got := out.NRGBAAt(104, 104); got != white {
		t.Fatalf("expected white outline in margin, got %+v", got)
	}
}

func TestDecorateShadowDoublesMargin(t *testing.T) {
	out, err := Decorate(solidCutout(100, 100, red), 3, true)
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}

	if got := out.Bounds(); got.Dx() != 112 || got.Dy() != 112 {
		t.Fatalf("expected 112x112 canvas, got %dx%d", got.Dx(), got.Dy())
	}
	if got := out.NRGBAAt(56, 56); got != red {
		t.Fatalf("expected cutout color at center, got %+v", got)
	}
	// Outer margin shows the shadow, inner margin the outline.
	if got := out.NRGBAAt(0, 0); got != black {
		t.Fatalf("expected shadow in outer margin, got %+v", got)
	}
	if got := out.NRGBAAt(4, 4); got != white {
		t.Fatalf("expected white outline in inner margin, got %+v", got)
	}
}

func TestDecorateZeroStrokeKeepsSize(t *testing.T) {
	out, err := Decorate(solidCutout(40, 60, red), 0, false)
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}
	if got := out.Bounds(); got.Dx() != 40 || got.Dy() != 60 {
		t.Fatalf("expected 40x60 canvas, got %dx%d", got.Dx(), got.Dy())
	}
	if got := out.NRGBAAt(20, 30); got != red {
		t.Fatalf("expected cutout color, got %+v", got)
	}
}

func TestDecorateOutlinesTransparentEdges(t *testing.T) {
	cut := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 5; y < 15; y++ {
		for x := 5; x < 15; x++ {
			cut.SetNRGBA(x, y, red)
		}
	}

	out, err := Decorate(cut, 3, false)
	if err != nil {
		t.Fatalf("decorate: %v", err)
	}
	if got := out.Bounds(); got.Dx() != 26 || got.Dy() != 26 {
		t.Fatalf("expected 26x26 canvas, got %dx%d", got.Dx(), got.Dy())
	}
	if got := out.NRGBAAt(13, 13); got != red {
		t.Fatalf("expected cutout color at center, got %+v", got)
	}
	if got := out.NRGBAAt(0, 0); got.A == 0 {
		t.Fatal("expected the opaque outline border to reach the canvas corner")
	}
}

func TestDecorateNegativeStroke(t *testing.T) {
	_, err := Decorate(solidCutout(10, 10, red), -1, false)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("expected ErrDegenerateGeometry, got %v", err)
	}
}

func TestDecorateEmptyCutout(t *testing.T) {
	_, err := Decorate(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 3, false)
	if !errors.Is(err, ErrDegenerateGeometry) {
		t.Fatalf("expected ErrDegenerateGeometry, got %v", err)
	}
}
