package httptransport

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"transcode-service/internal/cleanup"
	"transcode-service/internal/entity"
	"transcode-service/internal/events"
	"transcode-service/internal/service"
)

// Sweeper runs an on-demand cleanup pass (cleanup.Sweeper).
type Sweeper interface {
	Sweep(ctx context.Context) cleanup.Report
}

type Handler struct {
	jobSvc         *service.JobService
	hub            *events.Hub
	sweeper        Sweeper
	maxUploadBytes int64
	multipartMem   int64
}

func NewHandler(jobSvc *service.JobService, hub *events.Hub, sweeper Sweeper, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 512 << 20
	}
	return &Handler{
		jobSvc:         jobSvc,
		hub:            hub,
		sweeper:        sweeper,
		maxUploadBytes: maxUploadBytes,
		multipartMem:   32 << 20,
	}
}

// progressResp is the poll and websocket payload.
type progressResp struct {
	JobID    string           `json:"jobId"`
	Status   entity.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	Error    string           `json:"error,omitempty"`
}

func toProgress(j entity.Job) progressResp {
	return progressResp{JobID: j.ID, Status: j.Status, Progress: j.Progress, Error: j.Error}
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// formFile returns the first of the named multipart file fields that is present.
func formFile(r *http.Request, fields ...string) (multipart.File, *multipart.FileHeader, error) {
	for _, f := range fields {
		file, hdr, err := r.FormFile(f)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		return file, hdr, err
	}
	return nil, nil, http.ErrMissingFile
}

func formValue(r *http.Request, fields ...string) string {
	for _, f := range fields {
		if v := r.FormValue(f); v != "" {
			return v
		}
	}
	return ""
}

// SubmitJob godoc
// @Summary Submit a media file for transcoding
// @Description Stores the upload, queues a transcode and returns immediately.
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "media file (mp4, mov, avi, mkv); the field may also be named video"
// @Param preset formData string false "low | medium | high (default medium); alias level"
// @Success 202 {object} service.Submission
// @Failure 400 {object} apiError
// @Failure 413 {object} apiError
// @Failure 429 {object} apiError
// @Failure 503 {object} apiError
// @Router /jobs [post]
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.multipartMem); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErr(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeErr(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := service.SubmitRequest{Preset: formValue(r, "preset", "level")}
	file, hdr, err := formFile(r, "file", "video")
	switch {
	case err == nil:
		defer file.Close()
		req.Filename = hdr.Filename
		req.Body = file
	case !errors.Is(err, http.ErrMissingFile):
		writeErr(w, http.StatusBadRequest, "invalid file field")
		return
	}

	sub, err := h.jobSvc.Submit(r.Context(), req)
	if err != nil {
		writeErr(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

// ListJobs godoc
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Param status query string false "queued | processing | done | failed"
// @Success 200 {array} entity.Job
// @Failure 400 {object} apiError
// @Router /jobs [get]
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobSvc.List(r.URL.Query().Get("status"))
	if err != nil {
		writeErr(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// GetProgress godoc
// @Summary Get job progress
// @Tags jobs
// @Produce json
// @Param id path string true "job id"
// @Success 200 {object} progressResp
// @Failure 404 {object} apiError
// @Router /jobs/{id}/progress [get]
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobSvc.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, errorStatus(err), "job not found")
		return
	}
	writeJSON(w, http.StatusOK, toProgress(job))
}

// GetResult godoc
// @Summary Download the transcoded file
// @Tags jobs
// @Produce octet-stream
// @Param id path string true "job id"
// @Success 200 {file} binary
// @Failure 404 {object} apiError
// @Failure 409 {object} apiError
// @Failure 500 {object} apiError
// @Router /jobs/{id}/result [get]
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	art, err := h.jobSvc.Artifact(id)
	if err != nil {
		var failed *service.JobFailedError
		if errors.As(err, &failed) {
			writeJSON(w, http.StatusInternalServerError, apiError{Message: "job failed", Error: failed.Message})
			return
		}
		writeErr(w, errorStatus(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": art.Name}))

	sw := &statusWriter{ResponseWriter: w}
	http.ServeContent(sw, r, art.Name, art.ModTime, art.File)
	_ = art.Close()

	if r.Method == http.MethodGet && sw.status == http.StatusOK && sw.bytes == art.Size {
		h.jobSvc.Downloaded(id)
	}
}

// Sweep godoc
// @Summary Run a cleanup pass now
// @Tags maintenance
// @Produce json
// @Success 200 {object} cleanup.Report
// @Router /maintenance/sweep [post]
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		writeErr(w, http.StatusServiceUnavailable, "cleanup is disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.sweeper.Sweep(r.Context()))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	_, _ = io.WriteString(w, "ok")
}
