package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"transcode-service/internal/entity"
)

// JobStore is the progress store as seen by the dispatcher and the query side.
type JobStore interface {
	Create(job entity.Job) error
	Get(id string) (entity.Job, bool)
	List() []entity.Job
	Remove(id string)
}

// Dispatcher hands a registered job to a worker without blocking (worker.Pool).
type Dispatcher interface {
	Submit(jobID string) error
}

// Reclaimer forgets a terminal job and removes its files (cleanup.Sweeper).
type Reclaimer interface {
	Reclaim(jobID string) error
}

type Options struct {
	UploadDir         string
	OutputDir         string
	PublicBaseURL     string
	AllowedExtensions []string

	// DeleteAfterDownload reclaims the artifact once it was served in full.
	DeleteAfterDownload bool
	Reclaimer           Reclaimer
}

type JobService struct {
	store      JobStore
	dispatcher Dispatcher
	opts       Options
	allowed    map[string]struct{}
}

func NewJobService(store JobStore, dispatcher Dispatcher, opts Options) *JobService {
	if opts.UploadDir == "" {
		opts.UploadDir = filepath.Join("data", "uploads")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join("data", "outputs")
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	exts := opts.AllowedExtensions
	if len(exts) == 0 {
		exts = DefaultAllowedExtensions
	}
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))] = struct{}{}
	}
	return &JobService{store: store, dispatcher: dispatcher, opts: opts, allowed: allowed}
}

type SubmitRequest struct {
	Filename string
	Preset   string
	Body     io.Reader
}

type Submission struct {
	JobID       string `json:"jobId"`
	ProgressURL string `json:"progressUrl"`
	DownloadURL string `json:"downloadUrl"`
}

// Submit stores the upload, registers a queued job and hands it to a worker.
// It returns as soon as the job is queued.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (Submission, error) {
	if req.Body == nil {
		return Submission{}, invalid("no file provided")
	}
	name := SanitizeFilename(req.Filename)
	if name == "" {
		return Submission{}, invalid("file name is required")
	}
	ext := extension(name)
	if _, ok := s.allowed[ext]; !ok {
		return Submission{}, invalid("file type %q is not allowed", ext)
	}
	preset, err := entity.ParsePreset(req.Preset)
	if err != nil {
		return Submission{}, invalid("%v", err)
	}

	id := uuid.NewString()
	inPath, size, err := s.saveUpload(id, name, req.Body)
	if err != nil {
		return Submission{}, err
	}
	if err := ctx.Err(); err != nil {
		_ = os.Remove(inPath)
		return Submission{}, err
	}
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		_ = os.Remove(inPath)
		return Submission{}, fmt.Errorf("%w: create output dir: %v", ErrStorage, err)
	}

	job := entity.Job{
		ID:         id,
		Preset:     preset,
		Filename:   name,
		InputPath:  inPath,
		OutputPath: filepath.Join(s.opts.OutputDir, id+".mp4"),
		InputBytes: size,
	}
	if err := s.store.Create(job); err != nil {
		_ = os.Remove(inPath)
		return Submission{}, fmt.Errorf("%w: register job: %v", ErrStorage, err)
	}
	if err := s.dispatcher.Submit(id); err != nil {
		s.store.Remove(id)
		_ = os.Remove(inPath)
		log.Printf("[dispatcher] job_id=%s rejected error=%v", id, err)
		return Submission{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	log.Printf("[dispatcher] job_id=%s preset=%s file=%s bytes=%d status=queued", id, preset, name, size)

	return Submission{
		JobID:       id,
		ProgressURL: s.opts.PublicBaseURL + "/jobs/" + id + "/progress",
		DownloadURL: s.opts.PublicBaseURL + "/jobs/" + id + "/result",
	}, nil
}

func (s *JobService) saveUpload(id, name string, body io.Reader) (string, int64, error) {
	if err := os.MkdirAll(s.opts.UploadDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("%w: create upload dir: %v", ErrStorage, err)
	}
	path := filepath.Join(s.opts.UploadDir, id+"_"+name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("%w: create upload: %v", ErrStorage, err)
	}

	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(copyErr, &tooLarge):
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, tooLarge.Limit)
	case copyErr != nil:
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("%w: write upload: %v", ErrStorage, copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("%w: write upload: %v", ErrStorage, closeErr)
	case n == 0:
		_ = os.Remove(path)
		return "", 0, invalid("uploaded file is empty")
	}
	return path, n, nil
}

// Status returns the current snapshot of a job.
func (s *JobService) Status(id string) (entity.Job, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return entity.Job{}, ErrNotFound
	}
	return job, nil
}

// List returns every known job, optionally only those in status.
func (s *JobService) List(status string) ([]entity.Job, error) {
	var want entity.JobStatus
	if status != "" {
		want = entity.JobStatus(strings.ToLower(status))
		if !want.Valid() {
			return nil, invalid("unknown status %q", status)
		}
	}
	jobs := s.store.List()
	if want == "" {
		return jobs, nil
	}
	out := make([]entity.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == want {
			out = append(out, j)
		}
	}
	return out, nil
}

// Artifact is an opened transcode result. The caller must Close it.
type Artifact struct {
	JobID   string
	Name    string
	Size    int64
	ModTime time.Time
	File    *os.File
}

func (a *Artifact) Close() error {
	return a.File.Close()
}

// Artifact opens the output of a finished job.
func (s *JobService) Artifact(id string) (*Artifact, error) {
	job, ok := s.store.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	switch job.Status {
	case entity.StatusFailed:
		return nil, &JobFailedError{JobID: id, Message: job.Error}
	case entity.StatusDone:
	default:
		return nil, ErrNotReady
	}

	f, err := os.Open(job.OutputPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: artifact was removed", ErrNotFound)
		}
		return nil, fmt.Errorf("%w: open artifact: %v", ErrStorage, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat artifact: %v", ErrStorage, err)
	}
	return &Artifact{
		JobID:   id,
		Name:    downloadName(job.Filename),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		File:    f,
	}, nil
}

// Downloaded is called after an artifact was served in full.
func (s *JobService) Downloaded(id string) {
	if !s.opts.DeleteAfterDownload || s.opts.Reclaimer == nil {
		return
	}
	if err := s.opts.Reclaimer.Reclaim(id); err != nil {
		log.Printf("[dispatcher] job_id=%s reclaim after download error=%v", id, err)
	}
}
