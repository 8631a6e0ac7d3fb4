package transcoder

import (
	"testing"
	"time"
)

func TestProgressParser_Feed(t *testing.T) {
	p := NewProgressParser(10 * time.Second)

	steps := []struct {
		line    string
		want    int
		changed bool
	}{
		{"frame=12", 1, false},
		{"out_time_us=1000000", 10, true},
		{"out_time_ms=2500000", 25, true},
		{"out_time=00:00:05.000000", 50, true},
		{"out_time=00:00:04.000000", 50, false}, // going backwards is ignored
		{"out_time_us=N/A", 50, false},
		{"not a progress line", 50, false},
		{"progress=continue", 50, false},
		{"out_time_us=20000000", 99, true}, // past the probed duration clamps below 100
		{"progress=end", 99, false},
	}

	for i, s := range steps {
		got, changed := p.Feed(s.line)
		if got != s.want || changed != s.changed {
			t.Fatalf("step %d %q: got (%d,%v), want (%d,%v)", i, s.line, got, changed, s.want, s.changed)
		}
	}
	if !p.Ended() {
		t.Fatalf("expected parser to record progress=end")
	}
}

func TestProgressParser_UnknownDuration(t *testing.T) {
	p := NewProgressParser(0)

	if got, changed := p.Feed("out_time_us=5000000"); changed || got != 1 {
		t.Fatalf("expected no estimate without duration, got (%d,%v)", got, changed)
	}
	if got, changed := p.Feed("progress=end"); !changed || got != 99 {
		t.Fatalf("expected end marker to move to 99, got (%d,%v)", got, changed)
	}
}

func TestParseClock(t *testing.T) {
	cases := map[string]time.Duration{
		"00:00:01.5":     1500 * time.Millisecond,
		"01:02:03":       time.Hour + 2*time.Minute + 3*time.Second,
		" 00:10:00.000 ": 10 * time.Minute,
	}
	for in, want := range cases {
		got, ok := parseClock(in)
		if !ok || got != want {
			t.Fatalf("parseClock(%q) = %v,%v want %v", in, got, ok, want)
		}
	}

	for _, bad := range []string{"", "12", "-00:00:01.0", "00:61:00", "aa:bb:cc"} {
		if _, ok := parseClock(bad); ok {
			t.Fatalf("parseClock(%q) should fail", bad)
		}
	}
}
