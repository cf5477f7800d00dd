package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/stickerflow/internal/compositor"
	"github.com/dunamismax/stickerflow/internal/domain"
)

const (
	SourceTypeLocalFile = domain.SourceTypeLocalFile

	ModeCutout  = "cutout"
	ModeCompose = "compose"
)

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

type Request struct {
	JobID      string
	SourceType string
	StickerKey string
	BaseKey    string
	Options    domain.ComposeOptions
}

type Output struct {
	Mode    string
	Format  string
	Path    string
	Bytes   int
	Width   int
	Height  int
	Success bool
}

type Result struct {
	Output      Output
	SourceBytes int
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request, objectKey string) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, mode string, data []byte, width, height int) (Output, error)
}

// Renderer is the in-memory sticker pipeline: mask normalization,
// outline/shadow decoration and, when a base is given, anchor placement.
type Renderer struct {
	normalizer *compositor.Normalizer
}

func NewRenderer(normalizer *compositor.Normalizer) (*Renderer, error) {
	if normalizer == nil {
		return nil, errors.New("mask normalizer is required")
	}
	return &Renderer{normalizer: normalizer}, nil
}

// Processor wraps a Renderer with byte-level fetch, PNG encode and emit
// stages for the async job path.
type Processor struct {
	fetcher  Fetcher
	emitter  Emitter
	renderer *Renderer
}

func NewLocalProcessor(normalizer *compositor.Normalizer, outputDir string) (*Processor, error) {
	return NewProcessor(normalizer, LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir})
}

func NewProcessor(normalizer *compositor.Normalizer, fetcher Fetcher, emitter Emitter) (*Processor, error) {
	renderer, err := NewRenderer(normalizer)
	if err != nil {
		return nil, err
	}
	if fetcher == nil || emitter == nil {
		return nil, errors.New("fetcher and emitter are required")
	}
	return &Processor{
		fetcher:  fetcher,
		emitter:  emitter,
		renderer: renderer,
	}, nil
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if strings.TrimSpace(req.StickerKey) == "" {
		return Result{}, errors.New("sticker_key is required")
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	stickerBytes, err := p.fetcher.Fetch(ctx, req, req.StickerKey)
	if err != nil {
		return Result{}, fmt.Errorf("fetch sticker: %w", err)
	}
	sourceBytes := len(stickerBytes)

	src, err := decodeImage(stickerBytes)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", compositor.ErrInvalidImage, err)
	}

	mode := ModeCutout
	var base image.Image
	if strings.TrimSpace(req.BaseKey) != "" {
		baseBytes, err := p.fetcher.Fetch(ctx, req, req.BaseKey)
		if err != nil {
			return Result{}, fmt.Errorf("fetch base: %w", err)
		}
		sourceBytes += len(baseBytes)

		base, err = decodeImage(baseBytes)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", compositor.ErrInvalidImage, err)
		}
		mode = ModeCompose
	}

	final, err := p.renderer.Render(ctx, src, base, req.Options)
	if err != nil {
		return Result{}, err
	}

	data, err := encodePNG(final)
	if err != nil {
		return Result{}, fmt.Errorf("encode output: %w", err)
	}

	bounds := final.Bounds()
	out, err := p.emitter.Emit(ctx, req, mode, data, bounds.Dx(), bounds.Dy())
	if err != nil {
		return Result{}, fmt.Errorf("emit output: %w", err)
	}

	return Result{Output: out, SourceBytes: sourceBytes}, nil
}

// Render is the in-memory pipeline: normalize the mask, decorate, and
// place onto base when one is given. Both inputs stay untouched.
func (r *Renderer) Render(ctx context.Context, sticker, base image.Image, opts domain.ComposeOptions) (image.Image, error) {
	cut, err := r.normalizer.Normalize(ctx, sticker)
	if err != nil {
		return nil, fmt.Errorf("normalize mask: %w", err)
	}

	decorated, err := compositor.Decorate(cut, opts.StrokePX, opts.Shadow)
	if err != nil {
		return nil, fmt.Errorf("decorate sticker: %w", err)
	}
	if base == nil {
		return decorated, nil
	}

	opts = opts.Normalized()
	var xy *compositor.XYPct
	if opts.XPct != nil && opts.YPct != nil {
		xy = &compositor.XYPct{X: *opts.XPct, Y: *opts.YPct}
	}

	placed, err := compositor.Place(base, decorated, opts.Scale, opts.Anchor, xy)
	if err != nil {
		return nil, fmt.Errorf("place sticker: %w", err)
	}
	return placed, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request, objectKey string) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(objectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", objectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, mode string, data []byte, width, height int) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, mode+".png")
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return Output{
		Mode:    mode,
		Format:  "png",
		Path:    fullPath,
		Bytes:   len(data),
		Width:   width,
		Height:  height,
		Success: true,
	}, nil
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
