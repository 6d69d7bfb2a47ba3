// Package events fans workspace events out to subscribers. Publishing is
// synchronous under one mutex, which is what gives events about a single
// agent their in-order delivery; cross-agent ordering is unspecified.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Type enumerates workspace events.
type Type string

const (
	AgentCreated        Type = "agentCreated"
	AgentNavigated      Type = "agentNavigated"
	AgentLoaded         Type = "agentLoaded"
	AgentStatus         Type = "agentStatus"
	AgentDestroyed      Type = "agentDestroyed"
	RequestBlocked      Type = "requestBlocked"
	TranscriptAvailable Type = "transcriptAvailable"
)

// Event is one workspace occurrence. Fields beyond Type and AgentID are
// populated per type: URL for navigations and blocks, Detail for status
// text, rule ids, and video ids.
type Event struct {
	Type      Type
	AgentID   string
	Slot      int
	URL       string
	Detail    string
	Timestamp time.Time
}

// Bus is the fan-out point. Slow subscribers lose events rather than stall
// the publisher; losses are counted.
type Bus struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a buffered subscription. The cancel func detaches it
// and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber. A full subscriber buffer
// drops the event for that subscriber only.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped reports how many deliveries were lost to full buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount reports attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
