package transcoder

import (
	"errors"
	"fmt"
	"strings"
)

var ErrTimeout = errors.New("transcode timed out")

// EngineError describes a failed engine run.
type EngineError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *EngineError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s exit=%d", e.Command, e.ExitCode)
	if e.Err != nil && e.ExitCode < 0 {
		msg += ": " + e.Err.Error()
	}
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append([]byte(nil), b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }
