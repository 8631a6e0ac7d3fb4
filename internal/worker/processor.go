package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"transcode-service/internal/entity"
	"transcode-service/internal/events"
	"transcode-service/internal/progress"
	"transcode-service/internal/transcoder"
)

var ErrAlreadyRunning = errors.New("job is already being processed")

// JobStore is the part of the progress store a worker writes to.
type JobStore interface {
	Get(id string) (entity.Job, bool)
	Claim(id string) (entity.Job, error)
	Update(id string, mutate func(job *entity.Job)) (entity.Job, error)
}

type Engine interface {
	Transcode(ctx context.Context, req transcoder.Request, onProgress transcoder.ProgressFunc) error
}

// CompletionRecorder receives one record per successful transcode (postgresql or sqlite).
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, rec entity.CompletionRecord) error
}

type Processor struct {
	store    JobStore
	engine   Engine
	recorder CompletionRecorder
	notifier events.Notifier

	recordTimeout time.Duration
	notifyTimeout time.Duration
}

func NewProcessor(store JobStore, engine Engine, recorder CompletionRecorder, notifier events.Notifier) *Processor {
	return &Processor{
		store:         store,
		engine:        engine,
		recorder:      recorder,
		notifier:      notifier,
		recordTimeout: 10 * time.Second,
		notifyTimeout: 2 * time.Second,
	}
}

// Process owns the job from queued to a terminal state. The returned error is
// informational; the outcome is always recorded on the job itself.
func (p *Processor) Process(ctx context.Context, jobID string) (err error) {
	start := time.Now()

	// queued -> processing атомарно, второй воркер сюда не пройдёт
	job, err := p.store.Claim(jobID)
	if errors.Is(err, progress.ErrNotQueued) {
		return ErrAlreadyRunning
	}
	if err != nil {
		log.Printf("[worker] job_id=%s update_status=processing error=%v", jobID, err)
		return err
	}
	p.notify(job)

	log.Printf("[worker] job_id=%s preset=%s file=%s status=processing", jobID, job.Preset, job.Filename)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
			removeFile(job.InputPath)
			p.fail(jobID, err.Error())
			log.Printf("[worker] job_id=%s status=failed panic=%v", jobID, r)
		}
	}()

	req := transcoder.Request{
		InputPath:  job.InputPath,
		OutputPath: job.OutputPath,
		Params:     job.Preset.Params(),
	}
	engErr := p.engine.Transcode(ctx, req, func(pct int) {
		snap, err := p.store.Update(jobID, func(j *entity.Job) { j.Progress = pct })
		if err == nil {
			p.notify(snap)
		}
	})

	removeFile(job.InputPath)

	if engErr != nil {
		msg := engErr.Error()
		p.fail(jobID, msg)
		log.Printf("[worker] job_id=%s preset=%s status=failed duration_ms=%d error=%s",
			jobID, job.Preset, time.Since(start).Milliseconds(), msg,
		)
		return engErr
	}

	var outBytes int64
	if info, statErr := os.Stat(job.OutputPath); statErr == nil {
		outBytes = info.Size()
	}
	done, err := p.store.Update(jobID, func(j *entity.Job) {
		j.Status = entity.StatusDone
		j.Progress = 100
		j.OutputBytes = outBytes
	})
	if err != nil {
		log.Printf("[worker] job_id=%s set_done error=%v", jobID, err)
		return err
	}
	p.notify(done)
	p.record(done, time.Since(start))

	log.Printf("[worker] job_id=%s preset=%s status=done duration_ms=%d output_bytes=%d",
		jobID, job.Preset, time.Since(start).Milliseconds(), outBytes,
	)
	return nil
}

// Abort fails a job that never reached the engine.
func (p *Processor) Abort(jobID, reason string) {
	if job, ok := p.store.Get(jobID); ok {
		removeFile(job.InputPath)
	}
	p.fail(jobID, reason)
	log.Printf("[worker] job_id=%s status=failed error=%s", jobID, reason)
}

func (p *Processor) fail(jobID, msg string) {
	job, err := p.store.Update(jobID, func(j *entity.Job) {
		j.Status = entity.StatusFailed
		j.Error = msg
	})
	if err != nil {
		if !errors.Is(err, progress.ErrTerminal) {
			log.Printf("[worker] job_id=%s set_failed error=%v", jobID, err)
		}
		return
	}
	p.notify(job)
}

func (p *Processor) notify(job entity.Job) {
	if p.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.notifyTimeout)
	defer cancel()
	if err := p.notifier.Notify(ctx, job); err != nil {
		log.Printf("[events] job_id=%s status=%s notify error=%v", job.ID, job.Status, err)
	}
}

// record runs in the background; a slow or broken store never delays the job.
func (p *Processor) record(job entity.Job, took time.Duration) {
	if p.recorder == nil {
		return
	}
	rec := entity.CompletionRecord{
		JobID:       job.ID,
		Filename:    job.Filename,
		Preset:      job.Preset,
		InputBytes:  job.InputBytes,
		OutputBytes: job.OutputBytes,
		Duration:    took,
		CompletedAt: job.FinishedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.recordTimeout)
		defer cancel()
		if err := p.recorder.RecordCompletion(ctx, rec); err != nil {
			log.Printf("[worker] job_id=%s record_completion error=%v", rec.JobID, err)
		}
	}()
}

func removeFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[worker] remove file=%s error=%v", path, err)
	}
}
