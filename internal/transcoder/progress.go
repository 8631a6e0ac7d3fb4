package transcoder

import (
	"strconv"
	"strings"
	"time"
)

// ProgressParser turns ffmpeg "-progress" key=value lines into a percentage.
//
// Estimates stay within [1,99]; 100 is reserved for a successful exit.
// Lines it cannot use are ignored.
type ProgressParser struct {
	duration time.Duration
	elapsed  time.Duration
	last     int
	ended    bool
}

func NewProgressParser(duration time.Duration) *ProgressParser {
	return &ProgressParser{duration: duration, last: 1}
}

// Feed consumes one line and reports a new estimate when it moved forward.
func (p *ProgressParser) Feed(line string) (int, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return p.last, false
	}

	var at time.Duration
	switch strings.TrimSpace(key) {
	case "out_time_us", "out_time_ms":
		// ffmpeg reports microseconds under both keys.
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return p.last, false
		}
		at = time.Duration(us) * time.Microsecond
	case "out_time":
		d, ok := parseClock(value)
		if !ok {
			return p.last, false
		}
		at = d
	case "progress":
		if strings.TrimSpace(value) == "end" {
			p.ended = true
			return p.advance(99)
		}
		return p.last, false
	default:
		return p.last, false
	}

	if at <= p.elapsed {
		return p.last, false
	}
	p.elapsed = at
	if p.duration <= 0 {
		return p.last, false
	}
	pct := int(float64(p.elapsed) / float64(p.duration) * 100)
	return p.advance(pct)
}

func (p *ProgressParser) advance(pct int) (int, bool) {
	if pct < 1 {
		pct = 1
	}
	if pct > 99 {
		pct = 99
	}
	if pct <= p.last {
		return p.last, false
	}
	p.last = pct
	return pct, true
}

func (p *ProgressParser) Percent() int { return p.last }

// Ended reports whether the engine announced the end of its progress stream.
func (p *ProgressParser) Ended() bool { return p.ended }

// parseClock parses HH:MM:SS[.frac].
func parseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec < 0 {
		return 0, false
	}
	total := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return total + time.Duration(sec*float64(time.Second)), true
}
