package segment

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// HTTPClient talks to a rembg-compatible removal service. Calls are never
// retried: a failed segmentation surfaces to the caller immediately.
type HTTPClient struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("segmenter endpoint is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		model:      strings.TrimSpace(cfg.Model),
	}, nil
}

func (c *HTTPClient) Segment(ctx context.Context, img image.Image, opts Options) (image.Image, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "source.png")
	if err != nil {
		return nil, fmt.Errorf("build segment request: %w", err)
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("encode segment source: %w", err)
	}

	fields := map[string]string{
		"a":   strconv.FormatBool(opts.Matting),
		"af":  strconv.Itoa(opts.ForegroundThreshold),
		"ab":  strconv.Itoa(opts.BackgroundThreshold),
		"ae":  strconv.Itoa(opts.ErodeSize),
		"ppm": strconv.FormatBool(opts.PostProcessMask),
	}
	if c.model != "" {
		fields["model"] = c.model
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("build segment request: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("build segment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build segment request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call segmenter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("segmenter returned status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	out, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode segmenter response: %w", err)
	}
	return out, nil
}

// Warm issues a tiny throwaway segmentation so the engine's first real call
// does not pay the model load cost. Best effort.
func Warm(ctx context.Context, segmenter Segmenter) error {
	tiny := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := 0; i < len(tiny.Pix); i += 4 {
		tiny.Pix[i+3] = 0xff
	}
	_, err := segmenter.Segment(ctx, tiny, Options{})
	return err
}
