package stream

import (
	"io"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the number of events a Merge buffers when no capacity is given.
const DefaultBuffer = 100

// Merge is a multi-producer, single-consumer queue of Events.
//
// Producers are started with Go or Read. Once Seal was called and every
// producer returned, the channel returned by Events is closed.
type Merge struct {
	events   chan Event
	wg       sync.WaitGroup
	sealed   atomic.Bool
	sealOnce sync.Once
}

// NewMerge creates a Merge whose channel buffers capacity events. A capacity
// of zero or less selects DefaultBuffer.
func NewMerge(capacity int) *Merge {
	if capacity <= 0 {
		capacity = DefaultBuffer
	}
	return &Merge{
		events: make(chan Event, capacity),
	}
}

// Go runs producer in its own goroutine. producer must not close out.
func (m *Merge) Go(producer func(out chan<- Event)) {
	if m.sealed.Load() {
		panic("stream: Merge.Go called after Seal")
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		producer(m.events)
	}()
}

// Read starts a producer that runs ReadLines on reader.
func (m *Merge) Read(reader io.Reader, origin Origin, opts ReadOptions) {
	m.Go(func(out chan<- Event) {
		ReadLines(reader, origin, out, opts)
	})
}

// Seal declares that no more producers will be added. It is safe to call
// Seal more than once.
func (m *Merge) Seal() {
	m.sealOnce.Do(func() {
		m.sealed.Store(true)
		go func() {
			m.wg.Wait()
			close(m.events)
		}()
	})
}

// Events returns the channel the consumer ranges over.
// Do not close the returned channel. It is closed after Seal once all producers are done.
func (m *Merge) Events() <-chan Event {
	return m.events
}
