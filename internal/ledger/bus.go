package ledger

import (
	"sync"

	"go.uber.org/zap"
)

// DefaultSubscriptionBuffer is the channel capacity used when Subscribe is
// given a non-positive buffer.
const DefaultSubscriptionBuffer = 64

// Bus fans committed events out to in-process subscribers. Publish never
// blocks: a subscriber whose buffer is full is dropped and its channel closed.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
	logger *zap.Logger
}

// NewBus creates a Bus.
//
// Precondition: logger is non-nil.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{subs: make(map[*Subscription]struct{}), logger: logger}
}

// Subscription receives events on C until closed.
type Subscription struct {
	C    <-chan Event
	ch   chan Event
	bus  *Bus
	once sync.Once
}

// Subscribe registers a new subscriber.
//
// Postcondition: The returned subscription receives every event published
// after this call, in publish order, until Close or overflow.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	ch := make(chan Event, buffer)
	sub := &Subscription{C: ch, ch: ch, bus: b}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Close unregisters the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	s.bus.remove(s)
}

// remove requires b.mu held.
func (b *Bus) remove(s *Subscription) {
	s.once.Do(func() {
		delete(b.subs, s)
		close(s.ch)
	})
}

// Publish delivers events to every subscriber.
func (b *Bus) Publish(events ...Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range events {
		for sub := range b.subs {
			select {
			case sub.ch <- e:
			default:
				b.logger.Warn("dropping slow event subscriber",
					zap.Uint64("seq", e.Seq),
					zap.Int("buffer", cap(sub.ch)),
				)
				b.remove(sub)
			}
		}
	}
}

// Len returns the number of live subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close ends every subscription. Later subscriptions start closed and
// Publish becomes a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for sub := range b.subs {
		b.remove(sub)
	}
}
