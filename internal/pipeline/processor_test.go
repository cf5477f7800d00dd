package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/dunamismax/stickerflow/internal/compositor"
	"github.com/dunamismax/stickerflow/internal/domain"
	"github.com/dunamismax/stickerflow/internal/segment"
)

// fixedSegmenter hands back a canned cutout regardless of input.
type fixedSegmenter struct {
	cutout image.Image
}

func (s fixedSegmenter) Segment(context.Context, image.Image, segment.Options) (image.Image, error) {
	return s.cutout, nil
}

func testNormalizer(t *testing.T, cutout image.Image) *compositor.Normalizer {
	t.Helper()
	normalizer, err := compositor.NewNormalizer(fixedSegmenter{cutout: cutout}, compositor.StrictProfile())
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return normalizer
}

func writeSolidPNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, imaging.New(w, h, c)); err != nil {
		t.Fatalf("encode fixture png: %v", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write fixture png: %v", err)
	}
}

func decodeOutput(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output %s: %v", path, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode output %s: %v", path, err)
	}
	return imaging.Clone(img)
}

var (
	testRed  = color.NRGBA{R: 0xff, A: 0xff}
	testBlue = color.NRGBA{B: 0xff, A: 0xff}
	testGray = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

func TestLocalProcessorCutout(t *testing.T) {
	tmp := t.TempDir()
	stickerPath := filepath.Join(tmp, "sticker.png")
	outputDir := filepath.Join(tmp, "out")
	writeSolidPNG(t, stickerPath, 100, 100, testGray)

	processor, err := NewLocalProcessor(testNormalizer(t, imaging.New(100, 100, testRed)), outputDir)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-cutout-1",
		SourceType: SourceTypeLocalFile,
		StickerKey: stickerPath,
		Options:    domain.ComposeOptions{StrokePX: 3, Shadow: false},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if result.Output.Mode != ModeCutout {
		t.Fatalf("expected cutout mode, got %s", result.Output.Mode)
	}
	if result.Output.Format != "png" || !result.Output.Success {
		t.Fatalf("unexpected output: %+v", result.Output)
	}
	if result.Output.Width != 106 || result.Output.Height != 106 {
		t.Fatalf("expected 106x106 output, got %dx%d", result.Output.Width, result.Output.Height)
	}
	if result.SourceBytes == 0 {
		t.Fatal("expected source byte accounting")
	}

	wantPath := filepath.Join(outputDir, "job-cutout-1", "cutout.png")
	if result.Output.Path != wantPath {
		t.Fatalf("expected output path %s, got %s", wantPath, result.Output.Path)
	}

	out := decodeOutput(t, result.Output.Path)
	if got := out.NRGBAAt(53, 53); got != testRed {
		t.Fatalf("expected cutout color at center, got %+v", got)
	}
}

func TestLocalProcessorCompose(t *testing.T) {
	tmp := t.TempDir()
	stickerPath := filepath.Join(tmp, "sticker.png")
	basePath := filepath.Join(tmp, "base.png")
	outputDir := filepath.Join(tmp, "out")
	writeSolidPNG(t, stickerPath, 100, 100, testGray)
	writeSolidPNG(t, basePath, 200, 200, testBlue)

	processor, err := NewLocalProcessor(testNormalizer(t, imaging.New(100, 100, testRed)), outputDir)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-compose-1",
		SourceType: SourceTypeLocalFile,
		StickerKey: stickerPath,
		BaseKey:    basePath,
		Options: domain.ComposeOptions{
			StrokePX: 0,
			Shadow:   false,
			Scale:    0.25,
			Anchor:   "chest",
		},
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if result.Output.Mode != ModeCompose {
		t.Fatalf("expected compose mode, got %s", result.Output.Mode)
	}
	if result.Output.Width != 200 || result.Output.Height != 200 {
		t.Fatalf("expected base-sized output, got %dx%d", result.Output.Width, result.Output.Height)
	}

	out := decodeOutput(t, result.Output.Path)
	if got := out.NRGBAAt(75, 115); got != testRed {
		t.Fatalf("expected sticker at chest anchor, got %+v", got)
	}
	if got := out.NRGBAAt(74, 115); got != testBlue {
		t.Fatalf("expected base beside sticker, got %+v", got)
	}
}

func TestProcessorUnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor(testNormalizer(t, imaging.New(10, 10, testRed)), t.TempDir())
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-unsupported",
		SourceType: "s3_presigned",
		StickerKey: "uploads/job/sticker",
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected ErrUnsupportedSourceType, got %v", err)
	}
}

func TestProcessorRejectsInvalidImage(t *testing.T) {
	tmp := t.TempDir()
	stickerPath := filepath.Join(tmp, "garbage.bin")
	if err := os.WriteFile(stickerPath, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	processor, err := NewLocalProcessor(testNormalizer(t, imaging.New(10, 10, testRed)), filepath.Join(tmp, "out"))
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-invalid",
		SourceType: SourceTypeLocalFile,
		StickerKey: stickerPath,
	})
	if !errors.Is(err, compositor.ErrInvalidImage) {
		t.Fatalf("expected ErrInvalidImage, got %v", err)
	}
}
