package service_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"transcode-service/internal/entity"
	"transcode-service/internal/progress"
	"transcode-service/internal/service"
	"transcode-service/internal/transcoder"
	"transcode-service/internal/worker"
)

// ---- fakes ----

type dispatchStub struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *dispatchStub) Submit(jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, jobID)
	return nil
}

type reclaimStub struct {
	ids []string
}

func (r *reclaimStub) Reclaim(jobID string) error {
	r.ids = append(r.ids, jobID)
	return nil
}

// engineStub writes a fixed payload, or fails with exit code 1 when fail is set.
type engineStub struct {
	payload string
	fail    bool
	gate    chan struct{}
}

func (e *engineStub) Transcode(ctx context.Context, req transcoder.Request, onProgress transcoder.ProgressFunc) error {
	onProgress(40)
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.fail {
		return &transcoder.EngineError{Command: "ffmpeg", ExitCode: 1, Stderr: "moov atom not found"}
	}
	onProgress(90)
	return os.WriteFile(req.OutputPath, []byte(e.payload), 0o644)
}

// splitEngine fails uploads named broken* right away and holds everything else
// at 40% until gate is closed.
type splitEngine struct {
	gate chan struct{}
}

func (e *splitEngine) Transcode(ctx context.Context, req transcoder.Request, onProgress transcoder.ProgressFunc) error {
	if strings.Contains(filepath.Base(req.InputPath), "broken") {
		onProgress(10)
		return &transcoder.EngineError{Command: "ffmpeg", ExitCode: 1, Stderr: "Invalid data found"}
	}
	onProgress(40)
	select {
	case <-e.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	onProgress(90)
	return os.WriteFile(req.OutputPath, []byte("ok"), 0o644)
}

// ---- helpers ----

func newService(t *testing.T, d service.Dispatcher) (*service.JobService, *progress.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store := progress.NewStore()
	svc := service.NewJobService(store, d, service.Options{
		UploadDir:     filepath.Join(dir, "uploads"),
		OutputDir:     filepath.Join(dir, "outputs"),
		PublicBaseURL: "http://localhost:8080/",
	})
	return svc, store, dir
}

// runningService wires the service to a real pool and processor around engine.
func runningService(t *testing.T, engine worker.Engine) (*service.JobService, *progress.Store) {
	t.Helper()
	dir := t.TempDir()
	store := progress.NewStore()
	pool := worker.NewPool(worker.NewProcessor(store, engine, nil, nil), 2, 8)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		pool.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	svc := service.NewJobService(store, pool, service.Options{
		UploadDir: filepath.Join(dir, "uploads"),
		OutputDir: filepath.Join(dir, "outputs"),
	})
	return svc, store
}

func waitStatus(t *testing.T, svc *service.JobService, id string, want entity.JobStatus) entity.Job {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		job, err := svc.Status(id)
		if err != nil {
			t.Fatalf("status %s: %v", id, err)
		}
		if job.Status == want {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s: expected status %s, got %s (progress=%d err=%q)", id, want, job.Status, job.Progress, job.Error)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func waitProgress(t *testing.T, svc *service.JobService, id string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		job, err := svc.Status(id)
		if err != nil {
			t.Fatalf("status %s: %v", id, err)
		}
		if job.Progress == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s: expected progress %d, got %d (status=%s)", id, want, job.Progress, job.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func submit(t *testing.T, svc *service.JobService, name, preset, body string) service.Submission {
	t.Helper()
	sub, err := svc.Submit(context.Background(), service.SubmitRequest{
		Filename: name,
		Preset:   preset,
		Body:     strings.NewReader(body),
	})
	if err != nil {
		t.Fatalf("submit %s: %v", name, err)
	}
	return sub
}

// ---- tests ----

func TestJobService_Submit_RegistersQueuedJob(t *testing.T) {
	d := &dispatchStub{}
	svc, store, dir := newService(t, d)

	sub := submit(t, svc, "My Holiday.MOV", "HIGH", "frames")

	if len(d.ids) != 1 || d.ids[0] != sub.JobID {
		t.Fatalf("expected dispatch of %s, got %#v", sub.JobID, d.ids)
	}
	if sub.ProgressURL != "http://localhost:8080/jobs/"+sub.JobID+"/progress" {
		t.Fatalf("unexpected progress url %s", sub.ProgressURL)
	}

	job, ok := store.Get(sub.JobID)
	if !ok {
		t.Fatalf("job %s not registered", sub.JobID)
	}
	if job.Status != entity.StatusQueued || job.Progress != 0 {
		t.Fatalf("expected queued/0, got %s/%d", job.Status, job.Progress)
	}
	if job.Preset != entity.PresetHigh {
		t.Fatalf("expected preset high, got %s", job.Preset)
	}
	if job.Filename != "My_Holiday.MOV" {
		t.Fatalf("expected sanitized filename, got %q", job.Filename)
	}
	want := filepath.Join(dir, "uploads", sub.JobID+"_My_Holiday.MOV")
	if job.InputPath != want {
		t.Fatalf("expected input path %s, got %s", want, job.InputPath)
	}
	if data, err := os.ReadFile(want); err != nil || string(data) != "frames" {
		t.Fatalf("upload not written: %q, %v", data, err)
	}
}

func TestJobService_Submit_DefaultPresetIsMedium(t *testing.T) {
	svc, store, _ := newService(t, &dispatchStub{})

	sub := submit(t, svc, "clip.mp4", "", "x")

	job, _ := store.Get(sub.JobID)
	if job.Preset != entity.PresetMedium {
		t.Fatalf("expected medium, got %s", job.Preset)
	}
}

func TestJobService_Submit_InvalidInputAllocatesNothing(t *testing.T) {
	cases := []struct {
		name string
		req  service.SubmitRequest
	}{
		{"no file", service.SubmitRequest{Filename: "a.mp4"}},
		{"blank name", service.SubmitRequest{Filename: "  ", Body: strings.NewReader("x")}},
		{"bad extension", service.SubmitRequest{Filename: "notes.txt", Body: strings.NewReader("x")}},
		{"bad preset", service.SubmitRequest{Filename: "a.mp4", Preset: "ultra", Body: strings.NewReader("x")}},
		{"empty file", service.SubmitRequest{Filename: "a.mp4", Body: strings.NewReader("")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := &dispatchStub{}
			svc, store, dir := newService(t, d)

			_, err := svc.Submit(context.Background(), tc.req)
			if !errors.Is(err, service.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if n := len(store.List()); n != 0 {
				t.Fatalf("expected no jobs, got %d", n)
			}
			if len(d.ids) != 0 {
				t.Fatalf("expected no dispatch, got %#v", d.ids)
			}
			entries, _ := os.ReadDir(filepath.Join(dir, "uploads"))
			if len(entries) != 0 {
				t.Fatalf("expected no upload files, got %d", len(entries))
			}
		})
	}
}

func TestJobService_Submit_RollsBackWhenPoolRejects(t *testing.T) {
	d := &dispatchStub{err: worker.ErrQueueFull}
	svc, store, dir := newService(t, d)

	_, err := svc.Submit(context.Background(), service.SubmitRequest{Filename: "a.mp4", Body: strings.NewReader("x")})
	if !errors.Is(err, service.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if n := len(store.List()); n != 0 {
		t.Fatalf("expected rollback of store entry, got %d jobs", n)
	}
	entries, _ := os.ReadDir(filepath.Join(dir, "uploads"))
	if len(entries) != 0 {
		t.Fatalf("expected rollback of upload, got %d files", len(entries))
	}
}

func TestJobService_ConcurrentSubmitsGetDistinctIDs(t *testing.T) {
	svc, _, _ := newService(t, &dispatchStub{})

	const n = 16
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sub, err := svc.Submit(context.Background(), service.SubmitRequest{Filename: "a.mp4", Body: bytes.NewReader([]byte("x"))})
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			ids <- sub.JobID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d ids, got %d", n, len(seen))
	}
}

func TestJobService_Status_UnknownID(t *testing.T) {
	svc, _, _ := newService(t, &dispatchStub{})

	if _, err := svc.Status("does-not-exist"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Artifact("does-not-exist"); !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobService_List_FiltersByStatus(t *testing.T) {
	svc, _, _ := newService(t, &dispatchStub{})
	submit(t, svc, "a.mp4", "", "x")
	submit(t, svc, "b.mkv", "", "x")

	all, err := svc.List("")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d (%v)", len(all), err)
	}
	done, err := svc.List("done")
	if err != nil || len(done) != 0 {
		t.Fatalf("expected 0 done jobs, got %d (%v)", len(done), err)
	}
	if _, err := svc.List("sleeping"); !errors.Is(err, service.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestScenario_LowPresetCompletes(t *testing.T) {
	svc, _ := runningService(t, &engineStub{payload: "tiny-mp4"})

	sub := submit(t, svc, "talk.mp4", "low", "big-raw-video")
	job := waitStatus(t, svc, sub.JobID, entity.StatusDone)

	if job.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", job.Progress)
	}
	if _, err := os.Stat(job.InputPath); !os.IsNotExist(err) {
		t.Fatalf("expected input removed, stat err=%v", err)
	}

	art, err := svc.Artifact(sub.JobID)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	defer art.Close()
	data, _ := io.ReadAll(art.File)
	if string(data) != "tiny-mp4" {
		t.Fatalf("unexpected artifact %q", data)
	}
	if art.Name != "compressed_talk.mp4" {
		t.Fatalf("unexpected download name %q", art.Name)
	}
}

func TestScenario_EngineFailureIsReported(t *testing.T) {
	svc, _ := runningService(t, &engineStub{fail: true})

	sub := submit(t, svc, "broken.avi", "medium", "garbage")
	job := waitStatus(t, svc, sub.JobID, entity.StatusFailed)

	if job.Error == "" || !strings.Contains(job.Error, "exit=1") {
		t.Fatalf("expected engine diagnostic, got %q", job.Error)
	}
	if job.Progress == 100 {
		t.Fatalf("failed job must not report 100")
	}

	_, err := svc.Artifact(sub.JobID)
	var failed *service.JobFailedError
	if !errors.As(err, &failed) || !errors.Is(err, service.ErrJobFailed) {
		t.Fatalf("expected JobFailedError, got %v", err)
	}
	if !strings.Contains(failed.Message, "moov atom not found") {
		t.Fatalf("expected stderr in message, got %q", failed.Message)
	}
}

func TestScenario_ArtifactNotReadyWhileProcessing(t *testing.T) {
	gate := make(chan struct{})
	svc, _ := runningService(t, &engineStub{payload: "x", gate: gate})

	sub := submit(t, svc, "long.mkv", "", "raw")
	job := waitStatus(t, svc, sub.JobID, entity.StatusProcessing)

	if _, err := svc.Artifact(sub.JobID); !errors.Is(err, service.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if job.Progress < 1 || job.Progress > 99 {
		t.Fatalf("processing progress out of range: %d", job.Progress)
	}

	close(gate)
	waitStatus(t, svc, sub.JobID, entity.StatusDone)
}

func TestScenario_FailedJobLeavesOthersAlone(t *testing.T) {
	gate := make(chan struct{})
	svc, _ := runningService(t, &splitEngine{gate: gate})

	long := submit(t, svc, "long.mp4", "high", "raw")
	waitProgress(t, svc, long.JobID, 40)

	broken := submit(t, svc, "broken.mp4", "low", "garbage")
	failed := waitStatus(t, svc, broken.JobID, entity.StatusFailed)
	if !strings.Contains(failed.Error, "Invalid data found") {
		t.Fatalf("unexpected error %q", failed.Error)
	}

	other, err := svc.Status(long.JobID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if other.Status != entity.StatusProcessing || other.Progress != 40 || other.Error != "" {
		t.Fatalf("running job disturbed: status=%s progress=%d err=%q", other.Status, other.Progress, other.Error)
	}

	close(gate)
	done := waitStatus(t, svc, long.JobID, entity.StatusDone)
	if done.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", done.Progress)
	}
	if failed, _ := svc.Status(broken.JobID); failed.Status != entity.StatusFailed {
		t.Fatalf("failed job changed to %s", failed.Status)
	}
}

func TestJobService_DownloadedReclaimsWhenConfigured(t *testing.T) {
	rec := &reclaimStub{}
	dir := t.TempDir()
	svc := service.NewJobService(progress.NewStore(), &dispatchStub{}, service.Options{
		UploadDir:           filepath.Join(dir, "uploads"),
		OutputDir:           filepath.Join(dir, "outputs"),
		DeleteAfterDownload: true,
		Reclaimer:           rec,
	})

	svc.Downloaded("abc")
	if len(rec.ids) != 1 || rec.ids[0] != "abc" {
		t.Fatalf("expected reclaim of abc, got %#v", rec.ids)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"clip.mp4":             "clip.mp4",
		"../../etc/passwd.mp4": "passwd.mp4",
		`C:\Users\me\a b.mov`:  "a_b.mov",
		"..":                   "",
		"  ":                   "",
		"ünïcode.mkv":          "n_code.mkv",
	}
	for in, want := range cases {
		if got := service.SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
