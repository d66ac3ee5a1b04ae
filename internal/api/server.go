package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/AlessioGiambrone/stackistry/internal/domain"
	"github.com/AlessioGiambrone/stackistry/internal/export"
	"github.com/AlessioGiambrone/stackistry/internal/id"
	"github.com/AlessioGiambrone/stackistry/internal/queue"
	"github.com/AlessioGiambrone/stackistry/internal/store"
)

type Server struct {
	logger       *log.Logger
	queueClient  queueEnqueuer
	jobStore     store.JobStore
	storage      objectStorage
	catalog      *export.Catalog
	presignTTL   time.Duration
	rateLimiter  RateLimiter
	userIDHeader string
	metrics      *metrics
	tracer       trace.Tracer
	mux          *http.ServeMux
}

type Options struct {
	PresignTTL   time.Duration
	UserIDHeader string
	RateLimiter  RateLimiter
	Tracing      bool
}

type queueEnqueuer interface {
	EnqueueExportFrame(ctx context.Context, payload queue.ExportFramePayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignFrameUpload(ctx context.Context, jobID string, ttl time.Duration) (objectKey, url string, err error)
	FrameExists(ctx context.Context, objectKey string) (bool, error)
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, jobStore store.JobStore, storage objectStorage, catalog *export.Catalog, opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.UserIDHeader == "" {
		opts.UserIDHeader = "X-Stackistry-User"
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}
	if catalog == nil {
		catalog = export.NewCatalog()
	}

	s := &Server{
		logger:       logger,
		queueClient:  queueClient,
		jobStore:     jobStore,
		storage:      storage,
		catalog:      catalog,
		presignTTL:   opts.PresignTTL,
		rateLimiter:  opts.RateLimiter,
		userIDHeader: opts.UserIDHeader,
		metrics:      newMetrics(),
		mux:          http.NewServeMux(),
	}
	if opts.Tracing {
		s.tracer = otel.Tracer("stackistry/api")
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignFrameUpload(context.Context, string, time.Duration) (string, string, error) {
	return "", "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) FrameExists(context.Context, string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.mux))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /v1/formats", s.handleListFormats)
	s.mux.HandleFunc("POST /v1/exports", s.handleCreateExport)
	s.mux.HandleFunc("POST /v1/exports/{id}/start", s.handleStartExport)
	s.mux.HandleFunc("GET /v1/exports/{id}", s.handleGetExport)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListFormats serves the output format catalog so clients can build
// their save dialogs: display name, glob patterns, default extension and
// the format id used when creating an export.
func (s *Server) handleListFormats(w http.ResponseWriter, _ *http.Request) {
	descriptors := s.catalog.Enumerate()
	formats := make([]map[string]any, 0, len(descriptors))
	for _, descr := range descriptors {
		formats = append(formats, map[string]any{
			"id":                descr.Format.String(),
			"name":              descr.Name,
			"patterns":          descr.Patterns,
			"default_extension": descr.DefaultExtension,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"formats": formats})
}

func (s *Server) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateExportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	// Creating a job only records metadata; charge a single token. The
	// per-output cost is charged at start, where rendering work is queued.
	if !s.allowRequest(w, r, 1) {
		return
	}

	now := time.Now().UTC()
	jobID := id.NewJob()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = strings.TrimSpace(r.Header.Get(s.userIDHeader))
	}

	if sourceType == domain.SourceTypeS3Presigned {
		key, url, err := s.storage.PresignFrameUpload(r.Context(), jobID, s.presignTTL)
		if err != nil {
			s.logger.Printf("presign frame upload failed for job %s: %v", jobID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
			return
		}
		objectKey = key
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.ExportJob{
		ID:         jobID,
		UserID:     userID,
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		Outputs:    req.Outputs,
		ObjectKey:  objectKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create export job"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url": fmt.Sprintf("/v1/exports/%s/start", job.ID),
	})
}

func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if strings.TrimSpace(jobID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "export job id is required"})
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load export job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "export job not found"})
		return
	}

	// Starting queues the rendering work: one token per requested output.
	if !s.allowRequest(w, r, int64(len(job.Outputs))) {
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.ExportFramePayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Outputs:     job.Outputs,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueExportFrame(r.Context(), payload)
	if err != nil {
		if errors.Is(err, queue.ErrJobAlreadyQueued) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":  "export job is already queued",
				"job_id": job.ID,
				"status": job.Status,
			})
			return
		}
		s.logger.Printf("enqueue failed for job %s: %v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue export job"})
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

func (s *Server) handleGetExport(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed for job %s: %v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load export job"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "export job not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":      job.ID,
		"status":      job.Status,
		"source_type": job.SourceType,
		"object_key":  job.ObjectKey,
		"outputs":     job.Outputs,
		"created_at":  job.CreatedAt,
		"updated_at":  job.UpdatedAt,
	})
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.ExportJob) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := os.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source frame is missing: %s", job.ObjectKey)
			}
			return fmt.Errorf("source frame check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.FrameExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source frame check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source frame is missing: %s", job.ObjectKey)
		}
		return nil
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
