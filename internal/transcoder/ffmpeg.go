package transcoder

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"transcode-service/internal/entity"
)

// Request is one engine invocation.
type Request struct {
	InputPath  string
	OutputPath string
	Params     entity.EncoderParams
}

// ProgressFunc receives monotonically increasing estimates in [1,99].
type ProgressFunc func(percent int)

// FFmpeg runs the ffmpeg binary as a child process and follows its
// machine-readable progress stream on stdout.
type FFmpeg struct {
	ffmpegPath   string
	ffprobePath  string
	timeout      time.Duration
	probeTimeout time.Duration
	waitDelay    time.Duration
}

func NewFFmpeg(ffmpegPath, ffprobePath string, timeout time.Duration) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{
		ffmpegPath:   ffmpegPath,
		ffprobePath:  ffprobePath,
		timeout:      timeout,
		probeTimeout: 30 * time.Second,
		waitDelay:    5 * time.Second,
	}
}

// Transcode blocks until the engine exits, the timeout elapses, or ctx is
// cancelled. The process is killed in the latter two cases.
func (f *FFmpeg) Transcode(ctx context.Context, req Request, onProgress ProgressFunc) error {
	parent := ctx
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	duration, err := f.Probe(ctx, req.InputPath)
	if err != nil {
		// not fatal: ffmpeg may still decode it, progress just stays low
		log.Printf("[engine] input=%s probe error=%v", req.InputPath, err)
	}

	args := BuildArgs(req)
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	cmd.WaitDelay = f.waitDelay
	stderr := newTailBuffer(2048)
	cmd.Stderr = stderr

	// The pipe is fed by exec's copy goroutine so WaitDelay still bounds Wait
	// when a stray grandchild keeps stdout open.
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return &EngineError{Command: f.ffmpegPath, ExitCode: -1, Err: err}
	}

	parser := NewProgressParser(duration)
	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			if pct, ok := parser.Feed(scanner.Text()); ok && onProgress != nil {
				onProgress(pct)
			}
		}
		_, _ = io.Copy(io.Discard, pr)
	}()

	waitErr := cmd.Wait()
	_ = pw.Close()
	<-scanned

	if waitErr != nil {
		engErr := &EngineError{Command: f.ffmpegPath, ExitCode: -1, Stderr: stderr.String(), Err: waitErr}
		switch {
		case parent.Err() != nil:
			engErr.Err = parent.Err()
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			engErr.Err = fmt.Errorf("%w after %s", ErrTimeout, f.timeout)
		default:
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				engErr.ExitCode = exitErr.ExitCode()
			}
		}
		return engErr
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil || info.Size() == 0 {
		return &EngineError{
			Command:  f.ffmpegPath,
			ExitCode: 0,
			Stderr:   "engine exited cleanly but produced no output",
			Err:      err,
		}
	}
	return nil
}

// Probe returns the container duration reported by ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, f.probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var probe struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &probe); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("ffprobe reported no duration")
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// BuildArgs maps a request to ffmpeg CLI arguments. The output path is last.
func BuildArgs(req Request) []string {
	p := req.Params
	return []string{
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-v", "error",
		"-y",
		"-i", req.InputPath,
		"-c:v", "libx264",
		"-crf", strconv.Itoa(p.CRF),
		"-preset", p.Speed,
		"-c:a", p.AudioCodec,
		"-b:a", p.AudioBitrate,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		req.OutputPath,
	}
}
