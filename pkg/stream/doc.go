// Package stream turns the output pipes of a child process into one ordered
// sequence of line events.
//
// # Overview
//
// Every pipe gets its own reader goroutine (see ReadLines). All readers push
// into one Merge, and a single consumer ranges over Merge.Events:
//
//	stdout pipe --ReadLines--\
//	                          +--> Merge --> consumer
//	stderr pipe --ReadLines--/
//
// # Ordering
//
// Events from the same origin arrive in the order the bytes appeared on the
// pipe. Events from different origins interleave in the order they were
// sent, which is whatever order the operating system delivered the bytes.
//
// # Lines
//
// A line is the text up to a newline, without the newline itself and without
// one trailing carriage return. An empty line is a valid value. A final
// fragment without newline is delivered as a line when the pipe closes.
//
// # Errors
//
// A line that cannot be decoded, or a failing read, produces one Event with
// Err set. The reader keeps going afterwards, so a single bad line never
// ends the capture of the whole stream.
//
// # Closing
//
// No end marker is sent. The events channel is closed once the Merge is
// sealed and all of its producers returned.
package stream
