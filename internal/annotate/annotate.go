// Package annotate renders captured lines with their timestamp annotation.
package annotate

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"logt/internal/config"
	"logt/pkg/stream"
)

// Formatter turns a line into "[<annotation>] <line>". The annotation is
// computed when Format is called, not when the line was read, so it
// reflects the time the line actually reaches the output.
//
// A Formatter is not safe for concurrent use. Only the dispatcher calls it.
type Formatter struct {
	cfg    config.Format
	now    func() time.Time
	start  time.Time
	styles map[stream.Origin]styles
}

type styles struct {
	label lipgloss.Style
	stamp lipgloss.Style
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) {
		f.now = now
	}
}

// WithStart fixes the start instant for relative mode.
func WithStart(start time.Time) Option {
	return func(f *Formatter) {
		f.start = start
	}
}

// WithColor colours annotations of lines from the given origins.
func WithColor(origins ...stream.Origin) Option {
	return func(f *Formatter) {
		for _, origin := range origins {
			f.styles[origin] = newStyles(origin)
		}
	}
}

// renderer forces ANSI colours. Whether colour is wanted at all is decided
// by the caller through WithColor.
var renderer = func() *lipgloss.Renderer {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(termenv.ANSI256)
	return r
}()

func newStyles(origin stream.Origin) styles {
	label := renderer.NewStyle().Foreground(lipgloss.Color("39")) // cyan
	if origin == stream.Stderr {
		label = renderer.NewStyle().Foreground(lipgloss.Color("196")) // red
	}
	return styles{
		label: label,
		stamp: renderer.NewStyle().Faint(true),
	}
}

// New creates a Formatter for the annotation policy cfg.
func New(cfg config.Format, opts ...Option) *Formatter {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = config.DefaultTimeFormat
	}
	f := &Formatter{
		cfg:    cfg,
		now:    time.Now,
		styles: map[stream.Origin]styles{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start records the start instant used by relative mode and returns it. The
// instant is fixed by the first call; later calls return the same value.
func (f *Formatter) Start() time.Time {
	if f.start.IsZero() {
		f.start = f.now()
	}
	return f.start
}

// Format returns the annotated line. line is not modified.
func (f *Formatter) Format(origin stream.Origin, line string) string {
	return "[" + f.annotation(origin) + "] " + line
}

// FormatError returns the annotated diagnostic for a failed read.
func (f *Formatter) FormatError(origin stream.Origin, err error) string {
	return f.Format(origin, fmt.Sprintf("Err reading %s: %v", origin, err))
}

func (f *Formatter) annotation(origin stream.Origin) string {
	stamp := f.stamp()
	style, colored := f.styles[origin]
	if colored {
		stamp = style.stamp.Render(stamp)
	}
	if !f.cfg.ShowStream {
		return stamp
	}

	label := origin.String()
	if colored {
		label = style.label.Render(label)
	}
	return label + " " + stamp
}

func (f *Formatter) stamp() string {
	now := f.now()
	if f.cfg.Relative {
		return "+" + strconv.FormatFloat(elapsed(f.Start(), now).Seconds(), 'f', -1, 64) + "s"
	}
	if f.cfg.UTC {
		return now.UTC().Format(f.cfg.TimeFormat)
	}
	return now.Local().Format(f.cfg.TimeFormat)
}

// elapsed never goes below zero, so offsets never run backwards past the start.
func elapsed(start, now time.Time) time.Duration {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
