//go:build govips && cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

// decodeImage routes input bytes through libvips so formats the std
// decoders cannot read (heif, avif, tiff) still enter the pipeline, then
// hands a normalized PNG to image.Decode.
func decodeImage(data []byte) (image.Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	defer ref.Close()

	normalized, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("normalize source image: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(normalized))
	if err != nil {
		return nil, fmt.Errorf("decode normalized image: %w", err)
	}
	return img, nil
}

// encodePNG re-exports through libvips, whose pngsave compresses far
// better than the std encoder.
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("reopen png for export: %w", err)
	}
	defer ref.Close()

	params := vips.NewPngExportParams()
	params.Compression = 9
	data, _, err := ref.ExportPng(params)
	if err != nil {
		return nil, fmt.Errorf("export png: %w", err)
	}
	return data, nil
}
