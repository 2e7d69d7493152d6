package annotate

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"logt/internal/config"
	"logt/pkg/stream"
)

// fakeClock advances by step on every call.
type fakeClock struct {
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

var base = time.Date(2025, 1, 7, 12, 34, 56, 789123000, time.UTC)

func TestFormat_Absolute(t *testing.T) {
	clock := &fakeClock{now: base}
	f := New(config.Format{UTC: true}, WithClock(clock.Now))

	require.Equal(t, "[2025-01-07 12:34:56.789123 +00:00] hello", f.Format(stream.Stdout, "hello"))
}

func TestFormat_AbsoluteLocal(t *testing.T) {
	clock := &fakeClock{now: base}
	f := New(config.Format{}, WithClock(clock.Now))

	want := "[" + base.Local().Format(config.DefaultTimeFormat) + "] x"
	require.Equal(t, want, f.Format(stream.Stdout, "x"))
}

func TestFormat_CustomTimeFormat(t *testing.T) {
	clock := &fakeClock{now: base}
	f := New(config.Format{UTC: true, TimeFormat: time.RFC3339}, WithClock(clock.Now))

	require.Equal(t, "[2025-01-07T12:34:56Z] x", f.Format(stream.Stderr, "x"))
}

func TestFormat_TimestampAtFormatTime(t *testing.T) {
	clock := &fakeClock{now: base, step: time.Second}
	f := New(config.Format{UTC: true, TimeFormat: "15:04:05"}, WithClock(clock.Now))

	require.Equal(t, "[12:34:56] a", f.Format(stream.Stdout, "a"))
	require.Equal(t, "[12:34:57] b", f.Format(stream.Stdout, "b"))
}

func TestFormat_Relative(t *testing.T) {
	clock := &fakeClock{now: base, step: 250 * time.Millisecond}
	f := New(config.Format{Relative: true}, WithClock(clock.Now))

	f.Start()
	require.Equal(t, "[+0.25s] a", f.Format(stream.Stdout, "a"))
	require.Equal(t, "[+0.5s] b", f.Format(stream.Stdout, "b"))
	require.Equal(t, "[+0.75s] c", f.Format(stream.Stderr, "c"))
}

func TestFormat_RelativeWithStart(t *testing.T) {
	clock := &fakeClock{now: base.Add(1500 * time.Microsecond)}
	f := New(config.Format{Relative: true}, WithClock(clock.Now), WithStart(base))

	require.Equal(t, base, f.Start())
	require.Equal(t, "[+0.0015s] x", f.Format(stream.Stdout, "x"))
}

func TestFormat_RelativeNeverNegative(t *testing.T) {
	clock := &fakeClock{now: base}
	f := New(config.Format{Relative: true}, WithClock(clock.Now), WithStart(base.Add(time.Hour)))

	require.Equal(t, "[+0s] x", f.Format(stream.Stdout, "x"))
}

func TestFormat_RelativeMonotonic(t *testing.T) {
	f := New(config.Format{Relative: true})
	f.Start()

	offset := regexp.MustCompile(`^\[\+([0-9.e-]+)s\] `)
	last := -1.0
	for i := 0; i < 200; i++ {
		m := offset.FindStringSubmatch(f.Format(stream.Stdout, strconv.Itoa(i)))
		require.Len(t, m, 2)
		value, err := strconv.ParseFloat(m[1], 64)
		require.NoError(t, err)
		require.GreaterOrEqual(t, value, last)
		last = value
	}
}

func TestStart_FixedOnce(t *testing.T) {
	clock := &fakeClock{now: base, step: time.Second}
	f := New(config.Format{Relative: true}, WithClock(clock.Now))

	first := f.Start()
	require.Equal(t, first, f.Start())
}

func TestFormat_ShowStream(t *testing.T) {
	clock := &fakeClock{now: base}
	f := New(config.Format{Relative: true, ShowStream: true}, WithClock(clock.Now), WithStart(base))

	require.Equal(t, "[stdout +0s] out", f.Format(stream.Stdout, "out"))
	require.Equal(t, "[stderr +0s] err", f.Format(stream.Stderr, "err"))
}

func TestFormat_LinePassesThrough(t *testing.T) {
	clock := &fakeClock{now: base}
	f := New(config.Format{Relative: true}, WithClock(clock.Now), WithStart(base))

	for _, line := range []string{"", "  padded  ", "\x1b[31mred\x1b[0m", "tab\there", "[not] an annotation"} {
		require.Equal(t, "[+0s] "+line, f.Format(stream.Stdout, line))
	}
}

func TestFormatError(t *testing.T) {
	clock := &fakeClock{now: base}
	f := New(config.Format{Relative: true, ShowStream: true}, WithClock(clock.Now), WithStart(base))

	got := f.FormatError(stream.Stderr, errors.New("stream did not contain valid UTF-8"))
	require.Equal(t, "[stderr +0s] Err reading stderr: stream did not contain valid UTF-8", got)
}

func TestFormat_Color(t *testing.T) {
	clock := &fakeClock{now: base}
	f := New(config.Format{Relative: true, ShowStream: true}, WithClock(clock.Now), WithStart(base), WithColor(stream.Stderr))

	colored := f.Format(stream.Stderr, "boom")
	require.Contains(t, colored, "\x1b[")
	require.True(t, strings.HasSuffix(colored, "] boom"))
	require.Contains(t, colored, "stderr")

	// stdout was not enabled and stays plain.
	require.Equal(t, "[stdout +0s] fine", f.Format(stream.Stdout, "fine"))
}
