// Package eventbus decouples the schedule cache from the components that
// react to it (admin alerting, bot status). In-memory fanout only.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the cache.
const (
	// TypeSourceUnreachable fires once per failed refresh cycle. Data is the
	// aggregated error string.
	TypeSourceUnreachable = "source.unreachable"
	// TypeScheduleUpdated fires after a successful refresh swapped in a new
	// snapshot. Data is the list of day dates that changed.
	TypeScheduleUpdated = "schedule.updated"
	// TypeSourceRecovered fires on the first success after failures.
	TypeSourceRecovered = "source.recovered"
)

// Event is a small in-memory signal. Publish never blocks; a subscriber that
// cannot keep up loses events rather than stalling the publisher.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A concurrent unsubscribe may close the channel under us.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
			}
		}()
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
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
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}
