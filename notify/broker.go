// Package notify distributes committed board changes to local subscribers
// and to other instances of the board server.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"kanban-board/domain"
)

const subscriberBuffer = 16

// Broker fans changes out to in-process subscribers such as SSE streams. A
// subscriber that falls behind loses changes instead of blocking the
// publisher; views treat every change as a hint to refresh anyway.
type Broker struct {
	mu      sync.Mutex
	subs    map[chan domain.Change]struct{}
	closed  bool
	dropped atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[chan domain.Change]struct{})}
}

// Subscribe registers a subscriber. The returned function unsubscribes and
// closes the channel.
func (b *Broker) Subscribe() (<-chan domain.Change, func()) {
	ch := make(chan domain.Change, subscriberBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[ch]; ok {
				delete(b.subs, ch)
				close(ch)
			}
		})
	}
}

// Publish implements domain.Notifier. It never blocks.
func (b *Broker) Publish(_ context.Context, c domain.Change) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- c:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broker) Dropped() int64 { return b.dropped.Load() }

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}
