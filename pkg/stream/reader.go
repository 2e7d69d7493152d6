package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// DefaultMaxConsecutiveErrors is used when ReadOptions.MaxConsecutiveErrors is not set.
const DefaultMaxConsecutiveErrors = 3

// ReadOptions controls how ReadLines decodes a stream.
type ReadOptions struct {
	// Lossy replaces invalid UTF-8 sequences with U+FFFD instead of
	// reporting the line as an error.
	Lossy bool

	// MaxConsecutiveErrors stops the reader after this many read errors in
	// a row. Decode errors do not count.
	MaxConsecutiveErrors int
}

// ReadLines reads lines from reader and sends one Event per line to out.
// It returns when reader reaches EOF. out is not closed.
func ReadLines(reader io.Reader, origin Origin, out chan<- Event, opts ReadOptions) {
	maxErrors := opts.MaxConsecutiveErrors
	if maxErrors <= 0 {
		maxErrors = DefaultMaxConsecutiveErrors
	}

	br := bufio.NewReader(reader)
	failures := 0
	for {
		// Read up to and including the next newline, a final line may lack it
		data, err := br.ReadBytes('\n')
		if len(data) > 0 {
			out <- decodeLine(origin, data, opts.Lossy)
		}
		// A successful read ends a run of failures
		if err == nil {
			failures = 0
			continue
		}
		// EOF: the writer closed the pipe
		if errors.Is(err, io.EOF) {
			return
		}

		// Report the failure and keep reading unless the stream is gone
		out <- Event{Origin: origin, Err: err}
		failures++
		if failures >= maxErrors || closed(err) {
			return
		}
	}
}

// decodeLine strips the line terminator and validates the encoding.
func decodeLine(origin Origin, data []byte, lossy bool) Event {
	data = bytes.TrimSuffix(data, []byte{'\n'})
	data = bytes.TrimSuffix(data, []byte{'\r'})

	if utf8.Valid(data) {
		return Event{Origin: origin, Line: string(data)}
	}
	if lossy {
		return Event{Origin: origin, Line: strings.ToValidUTF8(string(data), string(utf8.RuneError))}
	}
	return Event{Origin: origin, Err: ErrInvalidUTF8}
}

// closed reports errors after which reading again can never succeed.
func closed(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
