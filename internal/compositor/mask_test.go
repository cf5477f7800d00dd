package compositor

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/dunamismax/stickerflow/internal/segment"
)

type stubSegmenter struct {
	calls    int
	lastOpts segment.Options
	result   image.Image
	err      error
}

func (s *stubSegmenter) Segment(_ context.Context, img image.Image, opts segment.Options) (image.Image, error) {
	s.calls++
	s.lastOpts = opts
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return img, nil
}

func opaqueImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xc0
		img.Pix[i+3] = 0xff
	}
	return img
}

func TestNormalizeSkipsSegmentationForTransparentInput(t *testing.T) {
	seg := &stubSegmenter{}
	normalizer, err := NewNormalizer(seg, StrictProfile())
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	src := opaqueImage(8, 8)
	src.Pix[(2*src.Stride)+(2*4)+3] = 0

	out, err := normalizer.Normalize(context.Background(), src)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if seg.calls != 0 {
		t.Fatalf("expected no segmenter calls, got %d", seg.calls)
	}
	for i := 3; i < len(src.Pix); i += 4 {
		if out.Pix[i] != src.Pix[i] {
			t.Fatalf("alpha changed at offset %d: got %d want %d", i, out.Pix[i], src.Pix[i])
		}
	}

	// The returned image is a copy, not the caller's buffer.
	out.Pix[3] = 0
	if src.Pix[3] != 0xff {
		t.Fatal("normalize mutated the input image")
	}

	again, err := normalizer.Normalize(context.Background(), out)
	if err != nil {
		t.Fatalf("normalize second pass: %v", err)
	}
	if seg.calls != 0 {
		t.Fatalf("expected second pass to skip segmentation, got %d calls", seg.calls)
	}
	for i := 3; i < len(out.Pix); i += 4 {
		if again.Pix[i] != out.Pix[i] {
			t.Fatalf("second pass changed alpha at offset %d", i)
		}
	}
}

func TestNormalizeSegmentsOpaqueInputAndCleansFringe(t *testing.T) {
	cut := opaqueImage(4, 1)
	cut.Pix[3] = 0
	cut.Pix[7] = 29
	cut.Pix[11] = 30
	cut.Pix[15] = 200

	seg := &stubSegmenter{result: cut}
	normalizer, err := NewNormalizer(seg, StrictProfile())
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	out, err := normalizer.Normalize(context.Background(), opaqueImage(4, 1))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if seg.calls != 1 {
		t.Fatalf("expected one segmenter call, got %d", seg.calls)
	}

	wantAlpha := []uint8{0, 0, 30, 200}
	for i, want := range wantAlpha {
		if got := out.Pix[i*4+3]; got != want {
			t.Fatalf("pixel %d: got alpha %d, want %d", i, got, want)
		}
	}

	// Cleanup only ever removes alpha.
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] > cut.Pix[i] {
			t.Fatalf("alpha increased at offset %d: %d > %d", i, out.Pix[i], cut.Pix[i])
		}
	}

	if !seg.lastOpts.Matting {
		t.Fatal("expected alpha matting enabled")
	}
	if seg.lastOpts.ForegroundThreshold != 270 || seg.lastOpts.BackgroundThreshold != 0 || seg.lastOpts.ErodeSize != 0 {
		t.Fatalf("unexpected matting thresholds: %+v", seg.lastOpts)
	}
	if !seg.lastOpts.PostProcessMask {
		t.Fatal("expected mask post-processing enabled")
	}
}

func TestNormalizePassthroughProfileKeepsFringe(t *testing.T) {
	cut := opaqueImage(2, 1)
	cut.Pix[3] = 10
	cut.Pix[7] = 255

	seg := &stubSegmenter{result: cut}
	normalizer, err := NewNormalizer(seg, PassthroughProfile())
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	out, err := normalizer.Normalize(context.Background(), opaqueImage(2, 1))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Pix[3] != 10 {
		t.Fatalf("expected fringe alpha preserved, got %d", out.Pix[3])
	}
	if seg.lastOpts.Matting {
		t.Fatal("expected matting disabled for passthrough profile")
	}
}

func TestNormalizeSegmenterFailure(t *testing.T) {
	seg := &stubSegmenter{err: errors.New("model not loaded")}
	normalizer, err := NewNormalizer(seg, StrictProfile())
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}

	_, err = normalizer.Normalize(context.Background(), opaqueImage(4, 4))
	if !errors.Is(err, ErrSegmentationFailed) {
		t.Fatalf("expected ErrSegmentationFailed, got %v", err)
	}
	if seg.calls != 1 {
		t.Fatalf("expected exactly one attempt, got %d", seg.calls)
	}
}

func TestNewNormalizerRequiresSegmenter(t *testing.T) {
	if _, err := NewNormalizer(nil, StrictProfile()); err == nil {
		t.Fatal("expected error for nil segmenter")
	}
}
