package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight, in-memory signal used to decouple the pipeline
// from its observers (metrics, status, logs).
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers MUST use buffered channels.
//   - Slow subscribers may drop events (bounded backpressure).
//   - Observers run inline and never miss an event; they must be quick and
//     must not Publish.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns a simple in-memory fanout bus. It owns no goroutines.
func New() *MemBus {
	return &MemBus{subs: map[uint64]chan Event{}, obs: map[uint64]func(Event){}}
}

type MemBus struct {
	// mu is held for reading while sending so unsubscribe (write lock)
	// cannot close a channel mid-send.
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	obs     map[uint64]func(Event)
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *MemBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fn := range b.obs {
		fn(e)
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *MemBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}

// Observe registers fn to be called synchronously for every published
// event. Use it for counters that must stay exact.
func (b *MemBus) Observe(fn func(Event)) (remove func()) {
	id := b.seq.Add(1)
	b.mu.Lock()
	b.obs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.obs, id)
		b.mu.Unlock()
	}
}

// Dropped reports events not delivered because a subscriber was full.
func (b *MemBus) Dropped() uint64 { return b.dropped.Load() }

// Nop discards everything; used when a component is built without a bus.
type Nop struct{}

func (Nop) Publish(Event) {}

func (Nop) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
