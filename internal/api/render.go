package api

import (
	"fmt"
	"image"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/stickerflow/internal/domain"
	"github.com/dunamismax/stickerflow/internal/pipeline"
)

// handleCutout removes the background from the uploaded image, applies the
// sticker outline and optional shadow, and streams the result back as PNG.
// Interactive clients call this once and do placement on their own canvas.
func (s *Server) handleCutout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer cleanupMultipart(r)

	sticker, err := decodeFormImage(r, "sticker")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	opts := domain.ComposeOptions{StrokePX: 3, Shadow: true}
	if opts.StrokePX, err = formInt(r, "stroke_px", opts.StrokePX); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if opts.Shadow, err = formBool(r, "shadow", opts.Shadow); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := opts.Validate(false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.renderAndReply(w, r, "cutout", sticker, nil, opts)
}

// handleCompose runs the full pipeline: cut out the sticker, decorate it,
// and place it on the uploaded base image.
func (s *Server) handleCompose(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer cleanupMultipart(r)

	base, err := decodeFormImage(r, "pfp")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sticker, err := decodeFormImage(r, "sticker")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	opts, err := composeOptionsFromForm(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := opts.Validate(true); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.renderAndReply(w, r, "compose", sticker, base, opts)
}

func (s *Server) renderAndReply(w http.ResponseWriter, r *http.Request, mode string, sticker, base image.Image, opts domain.ComposeOptions) {
	out, err := s.renderer.Render(r.Context(), sticker, base, opts)
	if err != nil {
		s.logger.Printf("render failed mode=%s err=%v", mode, err)
		s.metrics.renderFailures.WithLabelValues(mode).Inc()
		writeJSON(w, statusForError(err), map[string]string{"error": err.Error()})
		return
	}

	data, err := pipeline.EncodePNG(out)
	if err != nil {
		s.logger.Printf("encode failed mode=%s err=%v", mode, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to encode output"})
		return
	}

	s.metrics.rendersTotal.WithLabelValues(mode).Inc()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func composeOptionsFromForm(r *http.Request) (domain.ComposeOptions, error) {
	opts := domain.ComposeOptions{
		StrokePX: 0,
		Shadow:   true,
		Scale:    domain.DefaultScale,
		Anchor:   domain.DefaultAnchor,
	}

	var err error
	if opts.StrokePX, err = formInt(r, "stroke_px", opts.StrokePX); err != nil {
		return domain.ComposeOptions{}, err
	}
	if opts.Shadow, err = formBool(r, "shadow", opts.Shadow); err != nil {
		return domain.ComposeOptions{}, err
	}
	if opts.Scale, err = formFloat(r, "scale", opts.Scale); err != nil {
		return domain.ComposeOptions{}, err
	}
	if anchor := strings.TrimSpace(r.FormValue("anchor")); anchor != "" {
		opts.Anchor = anchor
	}

	xRaw := strings.TrimSpace(r.FormValue("x_pct"))
	yRaw := strings.TrimSpace(r.FormValue("y_pct"))
	if xRaw != "" && yRaw != "" {
		x, err := strconv.ParseFloat(xRaw, 64)
		if err != nil {
			return domain.ComposeOptions{}, fmt.Errorf("invalid x_pct: %s", xRaw)
		}
		y, err := strconv.ParseFloat(yRaw, 64)
		if err != nil {
			return domain.ComposeOptions{}, fmt.Errorf("invalid y_pct: %s", yRaw)
		}
		opts.XPct = &x
		opts.YPct = &y
	} else if xRaw != "" || yRaw != "" {
		return domain.ComposeOptions{}, fmt.Errorf("x_pct and y_pct must be provided together")
	}

	return opts, nil
}

func decodeFormImage(r *http.Request, field string) (image.Image, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("missing %s upload", field)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read %s upload: %w", field, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty %s upload", field)
	}

	img, err := pipeline.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s upload: %w", field, err)
	}
	return img, nil
}

func formInt(r *http.Request, field string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", field, raw)
	}
	return parsed, nil
}

func formFloat(r *http.Request, field string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", field, raw)
	}
	return parsed, nil
}

func formBool(r *http.Request, field string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(field))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %s", field, raw)
	}
	return parsed, nil
}

func cleanupMultipart(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}
