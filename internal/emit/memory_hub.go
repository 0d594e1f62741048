package emit

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rendis/stepwise/pkg/schema"
)

const defaultChannelBuffer = 64

// Filter specifies which events a subscriber wants to receive.
type Filter struct {
	RunID  string             `json:"run_id,omitempty"`
	Events []schema.EventType `json:"events,omitempty"`
}

type subscriber struct {
	ch     chan schema.Event
	filter Filter
}

// MemoryHub is an in-memory pub/sub Emitter using channels.
type MemoryHub struct {
	mu   sync.RWMutex
	subs map[uint64]*subscriber
	seq  atomic.Uint64
}

// NewMemoryHub creates a new MemoryHub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		subs: make(map[uint64]*subscriber),
	}
}

// Emit sends an event to all matching subscribers.
// Non-blocking: if a subscriber's channel is full the event is dropped.
func (h *MemoryHub) Emit(ctx context.Context, ev schema.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if !matchFilter(sub.filter, ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// slow subscriber
		}
	}
	return nil
}

// Subscribe creates a new subscription filtered by the given Filter.
// Returns a receive-only channel and a cancel function that closes it.
func (h *MemoryHub) Subscribe(ctx context.Context, filter Filter) (<-chan schema.Event, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	id := h.seq.Add(1)
	ch := make(chan schema.Event, defaultChannelBuffer)

	h.mu.Lock()
	h.subs[id] = &subscriber{ch: ch, filter: filter}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}

	return ch, cancel, nil
}

// Subscribers returns the number of active subscriptions.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func matchFilter(f Filter, ev schema.Event) bool {
	if f.RunID != "" && f.RunID != ev.RunID {
		return false
	}
	if len(f.Events) == 0 {
		return true
	}
	for _, t := range f.Events {
		if t == ev.Event {
			return true
		}
	}
	return false
}
