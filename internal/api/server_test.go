package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/AlessioGiambrone/stackistry/internal/queue"
	"github.com/AlessioGiambrone/stackistry/internal/ratelimit"
	"github.com/AlessioGiambrone/stackistry/internal/store"
)

type fakeEnqueuer struct {
	payloads []queue.ExportFramePayload
}

func (f *fakeEnqueuer) EnqueueExportFrame(_ context.Context, payload queue.ExportFramePayload) (*asynq.TaskInfo, error) {
	f.payloads = append(f.payloads, payload)
	return &asynq.TaskInfo{
		ID:    fmt.Sprintf("task-%d", len(f.payloads)),
		Queue: "exports",
		State: asynq.TaskStatePending,
	}, nil
}

type fakeStorage struct {
	objects map[string]bool
}

func (f *fakeStorage) PresignFrameUpload(_ context.Context, jobID string, _ time.Duration) (string, string, error) {
	key := "uploads/" + jobID + "/source"
	return key, "https://storage.example/" + key, nil
}

func (f *fakeStorage) FrameExists(_ context.Context, objectKey string) (bool, error) {
	return f.objects[objectKey], nil
}

func newTestServer(t *testing.T) (*Server, *fakeEnqueuer, *fakeStorage) {
	t.Helper()
	enqueuer := &fakeEnqueuer{}
	storage := &fakeStorage{objects: map[string]bool{}}
	server := NewServer(
		log.New(io.Discard, "", 0),
		enqueuer,
		store.NewMemoryJobStore(),
		storage,
		nil,
		Options{},
	)
	return server, enqueuer, storage
}

func TestListFormats(t *testing.T) {
	server, _, _ := newTestServer(t)

	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/formats", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var body struct {
		Formats []struct {
			ID               string   `json:"id"`
			Name             string   `json:"name"`
			Patterns         []string `json:"patterns"`
			DefaultExtension string   `json:"default_extension"`
		} `json:"formats"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Formats) != 3 {
		t.Fatalf("expected 3 formats, got %d", len(body.Formats))
	}
	if body.Formats[0].ID != "bmp8" || body.Formats[1].ID != "tiff16" || body.Formats[2].ID != "png8" {
		t.Fatalf("unexpected format order: %+v", body.Formats)
	}
	for _, f := range body.Formats {
		if f.Name == "" || len(f.Patterns) == 0 || f.DefaultExtension == "" {
			t.Fatalf("incomplete descriptor: %+v", f)
		}
	}
}

func TestCreateStartGetLocalExport(t *testing.T) {
	server, enqueuer, _ := newTestServer(t)

	sourcePath := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(sourcePath, []byte("not-a-real-png"), 0o600); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	createBody, _ := json.Marshal(map[string]any{
		"source_type": "local_file",
		"object_key":  sourcePath,
		"outputs": []map[string]any{
			{"id": "main", "action": "export", "format": "tiff16"},
		},
	})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports", bytes.NewReader(createBody)))
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var created struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.JobID == "" || created.Status != "created" {
		t.Fatalf("unexpected create response: %+v", created)
	}

	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports/"+created.JobID+"/start", nil))
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if len(enqueuer.payloads) != 1 {
		t.Fatalf("expected 1 enqueued payload, got %d", len(enqueuer.payloads))
	}
	if enqueuer.payloads[0].JobID != created.JobID {
		t.Fatalf("enqueued wrong job: %s", enqueuer.payloads[0].JobID)
	}

	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/v1/exports/"+created.JobID, nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var fetched struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode get response: %v", err)
	}
	if fetched.Status != "queued" {
		t.Fatalf("expected queued after start, got %s", fetched.Status)
	}
}

func TestCreateExportPresignsUpload(t *testing.T) {
	server, _, _ := newTestServer(t)

	createBody, _ := json.Marshal(map[string]any{
		"source_type": "s3_presigned",
		"outputs": []map[string]any{
			{"id": "main", "action": "export", "format": "png8"},
		},
	})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports", bytes.NewReader(createBody)))
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var created struct {
		Upload struct {
			ObjectKey         string `json:"object_key"`
			PresignedPutURL   string `json:"presigned_put_url"`
			PresignedURLState string `json:"presigned_url_state"`
		} `json:"upload"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.Upload.PresignedURLState != "ready" {
		t.Fatalf("expected ready upload state, got %s", created.Upload.PresignedURLState)
	}
	if created.Upload.PresignedPutURL == "" || created.Upload.ObjectKey == "" {
		t.Fatalf("missing presigned upload fields: %+v", created.Upload)
	}
}

func TestCreateExportRejectsInvalidRequest(t *testing.T) {
	server, _, _ := newTestServer(t)

	createBody, _ := json.Marshal(map[string]any{
		"source_type": "local_file",
		"object_key":  "/tmp/frame.png",
		"outputs": []map[string]any{
			{"id": "main", "action": "export", "format": "gif"},
		},
	})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports", bytes.NewReader(createBody)))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestStartExportMissingSource(t *testing.T) {
	server, enqueuer, _ := newTestServer(t)

	createBody, _ := json.Marshal(map[string]any{
		"source_type": "local_file",
		"object_key":  "/nonexistent/frame.png",
		"outputs": []map[string]any{
			{"id": "main", "action": "export", "format": "bmp8"},
		},
	})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports", bytes.NewReader(createBody)))
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d", recorder.Code)
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports/"+created.JobID+"/start", nil))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for missing source, got %d", recorder.Code)
	}
	if len(enqueuer.payloads) != 0 {
		t.Fatalf("expected nothing enqueued, got %d payloads", len(enqueuer.payloads))
	}
}

type conflictEnqueuer struct{}

func (conflictEnqueuer) EnqueueExportFrame(context.Context, queue.ExportFramePayload) (*asynq.TaskInfo, error) {
	return nil, queue.ErrJobAlreadyQueued
}

func TestStartExportAlreadyQueued(t *testing.T) {
	storage := &fakeStorage{objects: map[string]bool{}}
	server := NewServer(
		log.New(io.Discard, "", 0),
		conflictEnqueuer{},
		store.NewMemoryJobStore(),
		storage,
		nil,
		Options{},
	)

	sourcePath := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(sourcePath, []byte("not-a-real-png"), 0o600); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	createBody, _ := json.Marshal(map[string]any{
		"source_type": "local_file",
		"object_key":  sourcePath,
		"outputs": []map[string]any{
			{"id": "main", "action": "export", "format": "png8"},
		},
	})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports", bytes.NewReader(createBody)))
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d", recorder.Code)
	}
	var created struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports/"+created.JobID+"/start", nil))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate start, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var conflict struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("decode conflict response: %v", err)
	}
	if conflict.Error != "export job is already queued" {
		t.Fatalf("unexpected conflict error: %q", conflict.Error)
	}
}

type recordingLimiter struct {
	subjects []string
	costs    []int64
	decision ratelimit.Decision
}

func (l *recordingLimiter) Allow(_ context.Context, subject string, cost int64) (ratelimit.Decision, error) {
	l.subjects = append(l.subjects, subject)
	l.costs = append(l.costs, cost)
	return l.decision, nil
}

func TestRateLimitChargesPerOutputStep(t *testing.T) {
	limiter := &recordingLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 7}}
	storage := &fakeStorage{objects: map[string]bool{}}
	server := NewServer(
		log.New(io.Discard, "", 0),
		&fakeEnqueuer{},
		store.NewMemoryJobStore(),
		storage,
		nil,
		Options{RateLimiter: limiter},
	)

	sourcePath := filepath.Join(t.TempDir(), "frame.png")
	if err := os.WriteFile(sourcePath, []byte("not-a-real-png"), 0o600); err != nil {
		t.Fatalf("write source file: %v", err)
	}

	createBody, _ := json.Marshal(map[string]any{
		"source_type": "local_file",
		"object_key":  sourcePath,
		"outputs": []map[string]any{
			{"id": "stack", "action": "export", "format": "tiff16"},
			{"id": "thumb", "action": "export", "format": "png8"},
			{"id": "check", "action": "preview"},
		},
	})
	createReq := httptest.NewRequest(http.MethodPost, "/v1/exports", bytes.NewReader(createBody))
	createReq.Header.Set("X-Stackistry-User", "user-42")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, createReq)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Header().Get("X-RateLimit-Remaining") != "7" {
		t.Fatalf("missing remaining header: %q", recorder.Header().Get("X-RateLimit-Remaining"))
	}

	var created struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	startReq := httptest.NewRequest(http.MethodPost, "/v1/exports/"+created.JobID+"/start", nil)
	startReq.Header.Set("X-Stackistry-User", "user-42")
	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, startReq)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// Creating the job records metadata only, so it costs a single token;
	// starting it charges one token per requested output step.
	wantCosts := []int64{1, 3}
	if len(limiter.costs) != len(wantCosts) {
		t.Fatalf("expected %d limiter calls, got %d", len(wantCosts), len(limiter.costs))
	}
	for i, want := range wantCosts {
		if limiter.costs[i] != want {
			t.Errorf("call %d: cost = %d, want %d", i, limiter.costs[i], want)
		}
		if limiter.subjects[i] != "user-42" {
			t.Errorf("call %d: subject = %q, want user-42", i, limiter.subjects[i])
		}
	}
}

func TestRateLimitRejectsWithRetryAfter(t *testing.T) {
	limiter := &recordingLimiter{decision: ratelimit.Decision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: 42 * time.Second,
	}}
	server := NewServer(
		log.New(io.Discard, "", 0),
		&fakeEnqueuer{},
		store.NewMemoryJobStore(),
		&fakeStorage{objects: map[string]bool{}},
		nil,
		Options{RateLimiter: limiter},
	)

	createBody, _ := json.Marshal(map[string]any{
		"source_type": "s3_presigned",
		"outputs": []map[string]any{
			{"id": "main", "action": "export", "format": "png8"},
		},
	})
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/exports", bytes.NewReader(createBody)))
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if recorder.Header().Get("Retry-After") != "42" {
		t.Fatalf("Retry-After = %q, want 42", recorder.Header().Get("Retry-After"))
	}
	if recorder.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("X-RateLimit-Remaining = %q, want 0", recorder.Header().Get("X-RateLimit-Remaining"))
	}
	if limiter.subjects[0] != "anonymous" {
		t.Fatalf("subject = %q, want anonymous", limiter.subjects[0])
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/exports":              "/v1/exports",
		"/v1/exports/abc123":       "/v1/exports/{id}",
		"/v1/exports/abc123/start": "/v1/exports/{id}/start",
		"/v1/formats":              "/v1/formats",
		"/healthz":                 "/healthz",
		"/other":                   "/other",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
