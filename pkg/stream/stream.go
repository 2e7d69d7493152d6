package stream

import (
	"errors"
	"fmt"
)

// Origin names the child stream a line was read from.
type Origin string

const (
	Stdout Origin = "stdout"
	Stderr Origin = "stderr"
)

func (o Origin) String() string {
	return string(o)
}

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	return o == Stdout || o == Stderr
}

// ErrInvalidUTF8 is wrapped by the error of a line that is not valid UTF-8.
var ErrInvalidUTF8 = errors.New("stream did not contain valid UTF-8")

// Event is a single line, or a read error, from one origin.
type Event struct {
	Origin Origin
	Line   string // Line content without the trailing newline. May be empty.
	Err    error  // Set when reading or decoding failed. Line is empty then.
}

// IsError reports whether the event carries a read error instead of a line.
func (e Event) IsError() bool {
	return e.Err != nil
}

func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error: %v", e.Origin, e.Err)
	}
	return fmt.Sprintf("%s: %q", e.Origin, e.Line)
}
