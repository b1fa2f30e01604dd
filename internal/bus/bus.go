package bus

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrClosed            = errors.New("bus: closed")
	ErrSubscriberExists  = errors.New("bus: subscriber already exists")
	ErrUnknownSubscriber = errors.New("bus: unknown subscriber")
)

// SubscriberStats counts events delivered to and dropped for one subscriber.
type SubscriberStats struct {
	Sent    uint64
	Dropped uint64
}

type subscriber struct {
	ch      chan Event
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus fans session events out to named subscribers. Publish never blocks:
// a subscriber whose buffer is full misses the event and has its drop
// counter incremented. Events reach each subscriber in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string]*subscriber)}
}

// Subscribe registers a subscriber with the given channel capacity and
// returns its receive channel. The channel is closed on Unsubscribe or Close.
func (b *Bus) Subscribe(id string, capacity int) (<-chan Event, error) {
	if capacity <= 0 {
		capacity = 16
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, exists := b.subs[id]; exists {
		return nil, ErrSubscriberExists
	}

	sub := &subscriber{ch: make(chan Event, capacity)}
	b.subs[id] = sub
	return sub.ch, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[id]
	if !ok {
		return ErrUnknownSubscriber
	}
	delete(b.subs, id)
	close(sub.ch)
	return nil
}

// Publish delivers ev to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
		}
	}
}

// Stats returns delivery counters for a subscriber.
func (b *Bus) Stats(id string) (SubscriberStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.subs[id]
	if !ok {
		return SubscriberStats{}, ErrUnknownSubscriber
	}
	return SubscriberStats{Sent: sub.sent.Load(), Dropped: sub.dropped.Load()}, nil
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
