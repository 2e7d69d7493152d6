package dispatch

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"logt/internal/annotate"
	"logt/internal/config"
	"logt/pkg/stream"
)

var start = time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC)

func newFormatter(showStream bool) *annotate.Formatter {
	return annotate.New(
		config.Format{Relative: true, ShowStream: showStream},
		annotate.WithClock(func() time.Time { return start }),
		annotate.WithStart(start),
	)
}

func send(events ...stream.Event) <-chan stream.Event {
	ch := make(chan stream.Event, len(events))
	for _, event := range events {
		ch <- event
	}
	close(ch)
	return ch
}

func TestDrain_RoutesByOrigin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := New(&stdout, &stderr, newFormatter(false))

	stats, err := d.Drain(send(
		stream.Event{Origin: stream.Stdout, Line: "1"},
		stream.Event{Origin: stream.Stderr, Line: "oops"},
		stream.Event{Origin: stream.Stdout, Line: ""},
		stream.Event{Origin: stream.Stdout, Line: "2"},
	))
	require.NoError(t, err)

	require.Equal(t, "[+0s] 1\n[+0s] \n[+0s] 2\n", stdout.String())
	require.Equal(t, "[+0s] oops\n", stderr.String())
	require.Equal(t, 3, stats.Lines[stream.Stdout])
	require.Equal(t, 1, stats.Lines[stream.Stderr])
	require.Zero(t, stats.Errors[stream.Stdout])
}

func TestDrain_StdoutOnly(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := New(&stdout, &stderr, newFormatter(true))

	_, err := d.Drain(send(
		stream.Event{Origin: stream.Stdout, Line: "a"},
		stream.Event{Origin: stream.Stdout, Line: "b"},
	))
	require.NoError(t, err)

	require.Equal(t, "[stdout +0s] a\n[stdout +0s] b\n", stdout.String())
	require.Empty(t, stderr.String())
}

func TestDrain_ReadErrorOnSameStream(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := New(&stdout, &stderr, newFormatter(false))

	stats, err := d.Drain(send(
		stream.Event{Origin: stream.Stderr, Err: stream.ErrInvalidUTF8},
		stream.Event{Origin: stream.Stdout, Err: errors.New("input/output error")},
	))
	require.NoError(t, err)

	require.Equal(t, "[+0s] Err reading stderr: stream did not contain valid UTF-8\n", stderr.String())
	require.Equal(t, "[+0s] Err reading stdout: input/output error\n", stdout.String())
	require.Equal(t, 1, stats.Errors[stream.Stderr])
	require.Equal(t, 1, stats.Errors[stream.Stdout])
}

func TestDrain_EmptyChannel(t *testing.T) {
	var stdout, stderr bytes.Buffer
	d := New(&stdout, &stderr, newFormatter(false))

	stats, err := d.Drain(send())
	require.NoError(t, err)
	require.Empty(t, stdout.String())
	require.Empty(t, stderr.String())
	require.Empty(t, stats.Lines)
}

// countingWriter records each Write call separately.
type countingWriter struct {
	writes []string
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, string(p))
	return len(p), nil
}

func TestDrain_OneWritePerLine(t *testing.T) {
	stdout := &countingWriter{}
	d := New(stdout, &bytes.Buffer{}, newFormatter(false))

	_, err := d.Drain(send(
		stream.Event{Origin: stream.Stdout, Line: "first"},
		stream.Event{Origin: stream.Stdout, Line: "second"},
	))
	require.NoError(t, err)
	require.Equal(t, []string{"[+0s] first\n", "[+0s] second\n"}, stdout.writes)
}

type failingWriter struct {
	calls int
}

func (w *failingWriter) Write([]byte) (int, error) {
	w.calls++
	return 0, errors.New("disk full")
}

func TestDrain_WriteErrorKeepsDraining(t *testing.T) {
	stdout := &failingWriter{}
	var stderr bytes.Buffer
	d := New(stdout, &stderr, newFormatter(false))

	events := make([]stream.Event, 0, 20)
	for i := 0; i < 10; i++ {
		events = append(events,
			stream.Event{Origin: stream.Stdout, Line: "out"},
			stream.Event{Origin: stream.Stderr, Line: "err"},
		)
	}

	stats, err := d.Drain(send(events...))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to write to stdout")
	require.Contains(t, err.Error(), "disk full")

	require.Equal(t, 1, stdout.calls)
	require.Equal(t, 10, strings.Count(stderr.String(), "[+0s] err\n"))
	require.Equal(t, 10, stats.Lines[stream.Stdout])
}
