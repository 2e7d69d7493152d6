// Package dispatch writes annotated events to the stream they came from.
package dispatch

import (
	"errors"
	"fmt"
	"io"

	"logt/internal/annotate"
	"logt/pkg/stream"
)

// Stats counts what a Dispatcher wrote per origin.
type Stats struct {
	Lines  map[stream.Origin]int
	Errors map[stream.Origin]int
}

func newStats() Stats {
	return Stats{
		Lines:  map[stream.Origin]int{},
		Errors: map[stream.Origin]int{},
	}
}

// Dispatcher is the single consumer of a merge channel.
type Dispatcher struct {
	stdout    io.Writer
	stderr    io.Writer
	formatter *annotate.Formatter
}

// New creates a Dispatcher writing stdout events to stdout and stderr
// events to stderr.
func New(stdout, stderr io.Writer, formatter *annotate.Formatter) *Dispatcher {
	return &Dispatcher{
		stdout:    stdout,
		stderr:    stderr,
		formatter: formatter,
	}
}

// Drain consumes events until the channel is closed. Every event becomes
// one write of a complete line, so each line is visible as soon as it was
// dispatched. After a write to one destination fails, its events are still
// consumed but no longer written, so the producers never block. The other
// destination keeps working. All write errors are returned at the end.
func (d *Dispatcher) Drain(events <-chan stream.Event) (Stats, error) {
	stats := newStats()
	failed := map[stream.Origin]error{}

	for event := range events {
		var line string
		if event.Err != nil {
			line = d.formatter.FormatError(event.Origin, event.Err)
			stats.Errors[event.Origin]++
		} else {
			line = d.formatter.Format(event.Origin, event.Line)
			stats.Lines[event.Origin]++
		}

		if failed[event.Origin] != nil {
			continue
		}
		if err := d.write(event.Origin, line); err != nil {
			failed[event.Origin] = err
		}
	}

	return stats, errors.Join(failed[stream.Stdout], failed[stream.Stderr])
}

func (d *Dispatcher) write(origin stream.Origin, line string) error {
	w := d.stdout
	if origin == stream.Stderr {
		w = d.stderr
	}
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return fmt.Errorf("failed to write to %s: %w", origin, err)
	}
	return nil
}
