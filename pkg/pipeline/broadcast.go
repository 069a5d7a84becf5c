package pipeline

import (
	"sync"

	"github.com/everspan/cognita/pkg/model"
)

const defaultSubscriberBuffer = 64

// Broadcaster fans one run's events out to any number of subscribers.
// Delivery is lossy: a subscriber that stops draining loses its oldest
// events rather than blocking the pipeline.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan model.Event
	nextID      int
	buffer      int
	closed      bool
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broadcaster{
		subscribers: make(map[int]chan model.Event),
		buffer:      buffer,
	}
}

// Subscribe returns a receive channel and an unsubscribe function. The
// channel closes on unsubscribe or when the broadcaster closes.
func (b *Broadcaster) Subscribe() (<-chan model.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan model.Event, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}
}

// Publish delivers the event to every subscriber, dropping the oldest queued
// event of any subscriber whose buffer is full.
func (b *Broadcaster) Publish(event model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		for {
			select {
			case sub <- event:
			default:
				select {
				case <-sub:
				default:
				}
				continue
			}
			break
		}
	}
}

// Close closes every subscriber channel. Further publishes are no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		close(sub)
	}
}

// Hub tracks one broadcaster per live run.
type Hub struct {
	mu   sync.Mutex
	runs map[string]*Broadcaster
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{runs: make(map[string]*Broadcaster)}
}

// ForRun returns the run's broadcaster, creating it if needed.
func (h *Hub) ForRun(runID string) *Broadcaster {
	h.mu.Lock()
	defer h.mu.Unlock()
	b, ok := h.runs[runID]
	if !ok {
		b = NewBroadcaster(0)
		h.runs[runID] = b
	}
	return b
}

// Finish closes and removes the run's broadcaster.
func (h *Hub) Finish(runID string) {
	h.mu.Lock()
	b := h.runs[runID]
	delete(h.runs, runID)
	h.mu.Unlock()
	if b != nil {
		b.Close()
	}
}
