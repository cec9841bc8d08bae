// Package events implements the per-job event bus: an append-only event
// log with monotonic ids, a bounded ring buffer for reconnect replay,
// and live fan-out to any number of subscribers.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrBusClosed is returned by Emit after the bus has been closed.
var ErrBusClosed = errors.New("event bus closed")

// Event is a single record in a job's event log.
type Event struct {
	ID   int64          `json:"id"`
	Name string         `json:"event"`
	Data map[string]any `json:"data"`
}

// Encode renders the event as an SSE record.
func (e Event) Encode() string {
	data, err := json.Marshal(e.Data)
	if err != nil {
		// Data is always built from JSON-safe values; a marshal failure
		// here is a programming error, surface it in-band.
		data = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}
	return fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", e.ID, e.Name, data)
}

// Bus is a per-job event bus. Emitted events get strictly increasing
// ids starting at 1 and are kept in a bounded ring buffer so that a
// reconnecting subscriber can replay what it missed.
type Bus struct {
	mu      sync.Mutex
	size    int
	buf     []Event
	nextID  int64
	subs    map[int64]chan Event
	nextSub int64
	closed  bool
	done    chan struct{}
}

// NewBus creates a bus with the given ring buffer capacity.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 1
	}
	return &Bus{
		size: size,
		subs: make(map[int64]chan Event),
		done: make(chan struct{}),
	}
}

// Emit assigns the next event id, appends the event to the ring buffer
// (evicting the oldest entry on overflow), and delivers it to every
// live subscriber. A subscriber whose channel is full is evicted; it
// can reconnect and resume from its last seen id.
func (b *Bus) Emit(name string, data map[string]any) (Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return Event{}, ErrBusClosed
	}

	b.nextID++
	evt := Event{ID: b.nextID, Name: name, Data: data}

	b.buf = append(b.buf, evt)
	if len(b.buf) > b.size {
		b.buf = b.buf[len(b.buf)-b.size:]
	}

	for key, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Slow consumer: drop it rather than block the pipeline.
			delete(b.subs, key)
			close(ch)
		}
	}

	return evt, nil
}

// Subscribe registers a live subscriber. It returns all buffered events
// with id > afterID (pass 0 for the full buffer) in ascending id order,
// a channel carrying every subsequent emit, and a cancel function.
//
// If afterID predates the oldest buffered event, replay starts from the
// oldest buffered id; the gap is unrecoverable and callers must
// tolerate it. On a closed bus the returned channel is already closed,
// so readers see the replay followed immediately by termination.
func (b *Bus) Subscribe(afterID int64) ([]Event, <-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var replay []Event
	for _, evt := range b.buf {
		if evt.ID > afterID {
			replay = append(replay, evt)
		}
	}

	ch := make(chan Event, b.size)
	if b.closed {
		close(ch)
		return replay, ch, func() {}
	}

	b.nextSub++
	key := b.nextSub
	b.subs[key] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[key]; ok {
			delete(b.subs, key)
			close(c)
		}
	}
	return replay, ch, cancel
}

// Close marks the bus terminated and signals every live subscriber by
// closing its channel. Subsequent subscribes still replay the buffer.
// Further emits fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for key, ch := range b.subs {
		delete(b.subs, key)
		close(ch)
	}
	close(b.done)
}

// Closed reports whether the bus has been terminated.
func (b *Bus) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Done returns a channel closed when the bus is terminated.
func (b *Bus) Done() <-chan struct{} {
	return b.done
}

// LastID returns the id of the most recently emitted event.
func (b *Bus) LastID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextID
}
