package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/dunamismax/stickerflow/internal/compositor"
	"github.com/dunamismax/stickerflow/internal/domain"
	"github.com/dunamismax/stickerflow/internal/id"
	"github.com/dunamismax/stickerflow/internal/queue"
	"github.com/dunamismax/stickerflow/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type Renderer interface {
	Render(ctx context.Context, sticker, base image.Image, opts domain.ComposeOptions) (image.Image, error)
}

type queueEnqueuer interface {
	EnqueueComposeSticker(ctx context.Context, payload queue.ComposeStickerPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

type ServerConfig struct {
	Logger           *log.Logger
	Renderer         Renderer
	QueueClient      queueEnqueuer
	JobStore         store.JobStore
	Storage          objectStorage
	RateLimiter      RateLimiter
	PresignTTL       time.Duration
	MaxUploadBytes   int64
	CORSOrigins      []string
	CORSOriginSuffix string
	UserIDHeader     string
}

type Server struct {
	logger         *log.Logger
	renderer       Renderer
	queueClient    queueEnqueuer
	jobStore       store.JobStore
	storage        objectStorage
	rateLimiter    RateLimiter
	userIDHeader   string
	presignTTL     time.Duration
	maxUploadBytes int64
	corsOrigins    map[string]struct{}
	corsSuffix     string
	metrics        *metrics
	tracer         trace.Tracer
	mux            *http.ServeMux
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = 15 * time.Minute
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 20 << 20
	}
	if cfg.Storage == nil {
		cfg.Storage = unavailableObjectStorage{}
	}
	if strings.TrimSpace(cfg.UserIDHeader) == "" {
		cfg.UserIDHeader = "X-User-ID"
	}

	origins := make(map[string]struct{}, len(cfg.CORSOrigins))
	for _, origin := range cfg.CORSOrigins {
		origins[origin] = struct{}{}
	}

	s := &Server{
		logger:         cfg.Logger,
		renderer:       cfg.Renderer,
		queueClient:    cfg.QueueClient,
		jobStore:       cfg.JobStore,
		storage:        cfg.Storage,
		rateLimiter:    cfg.RateLimiter,
		userIDHeader:   cfg.UserIDHeader,
		presignTTL:     cfg.PresignTTL,
		maxUploadBytes: cfg.MaxUploadBytes,
		corsOrigins:    origins,
		corsSuffix:     strings.TrimSpace(cfg.CORSOriginSuffix),
		metrics:        newMetrics(),
		tracer:         otel.Tracer("stickerflow/api"),
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PresignedGetURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(context.Context, string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withRateLimit(h)
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	h = s.withCORS(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/cutout", s.handleCutout)
	s.mux.HandleFunc("POST /v1/compose", s.handleCompose)
	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("POST /v1/jobs/", s.handleStartJob)
	s.mux.HandleFunc("GET /v1/jobs/", s.handleGetJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	stickerKey := strings.TrimSpace(req.StickerKey)
	baseKey := strings.TrimSpace(req.BaseKey)
	upload := map[string]string{"state": "not_required"}

	if sourceType == domain.SourceTypeS3Presigned {
		stickerKey = path.Join("uploads", jobID, "sticker")
		stickerURL, err := s.storage.PresignedPutURL(r.Context(), stickerKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed for job %s: %v", jobID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		upload = map[string]string{
			"state":                 "ready",
			"sticker_key":           stickerKey,
			"sticker_presigned_url": stickerURL,
		}

		if req.WithBase {
			baseKey = path.Join("uploads", jobID, "base")
			baseURL, err := s.storage.PresignedPutURL(r.Context(), baseKey, s.presignTTL)
			if err != nil {
				s.logger.Printf("generate presigned url failed for job %s: %v", jobID, err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
				return
			}
			upload["base_key"] = baseKey
			upload["base_presigned_url"] = baseURL
		}
	}

	job := domain.Job{
		ID:         jobID,
		UserID:     strings.TrimSpace(r.Header.Get(s.userIDHeader)),
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		StickerKey: stickerKey,
		BaseKey:    baseKey,
		Options:    req.Options,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create job"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":    job.ID,
		"status":    job.Status,
		"upload":    upload,
		"start_url": fmt.Sprintf("/v1/jobs/%s/start", job.ID),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := extractJobIDFromStartPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	if err := s.verifySourcesExist(r.Context(), job); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.ComposeStickerPayload{
		JobID:       job.ID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		StickerKey:  job.StickerKey,
		BaseKey:     job.BaseKey,
		Options:     job.Options,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueComposeSticker(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue job"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed for job %s: %v", job.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := extractJobIDFromPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}

	body := map[string]any{
		"job_id":     job.ID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}

	if job.Status == domain.JobStatusSucceeded && job.SourceType == domain.SourceTypeS3Presigned {
		mode := "cutout"
		if job.BaseKey != "" {
			mode = "compose"
		}
		outputKey := path.Join("outputs", job.ID, mode+".png")
		if url, err := s.storage.PresignedGetURL(r.Context(), outputKey, s.presignTTL); err == nil {
			body["output_url"] = url
		} else {
			s.logger.Printf("presign output failed for job %s: %v", job.ID, err)
		}
	}

	writeJSON(w, http.StatusOK, body)
}

func (s *Server) verifySourcesExist(ctx context.Context, job domain.Job) error {
	keys := []string{job.StickerKey}
	if job.BaseKey != "" {
		keys = append(keys, job.BaseKey)
	}

	for _, key := range keys {
		switch job.SourceType {
		case domain.SourceTypeLocalFile:
			if _, err := os.Stat(key); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("source object is missing: %s", key)
				}
				return fmt.Errorf("source object check failed: %w", err)
			}
		default:
			exists, err := s.storage.ObjectExists(ctx, key)
			if err != nil {
				return fmt.Errorf("source object check failed: %w", err)
			}
			if !exists {
				return fmt.Errorf("source object is missing: %s", key)
			}
		}
	}
	return nil
}

func extractJobIDFromStartPath(p string) (string, error) {
	trimmed := strings.TrimPrefix(p, "/v1/jobs/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "start" {
		return "", errors.New("expected path format /v1/jobs/{id}/start")
	}
	return parts[0], nil
}

func extractJobIDFromPath(p string) (string, error) {
	trimmed := strings.Trim(strings.TrimPrefix(p, "/v1/jobs/"), "/")
	if trimmed == "" || strings.Contains(trimmed, "/") {
		return "", errors.New("expected path format /v1/jobs/{id}")
	}
	return trimmed, nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, compositor.ErrInvalidImage):
		return http.StatusBadRequest
	case errors.Is(err, compositor.ErrDegenerateGeometry):
		return http.StatusUnprocessableEntity
	case errors.Is(err, compositor.ErrSegmentationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
