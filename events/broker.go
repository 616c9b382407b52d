// Package events fans CourseCreated notifications out to live subscribers.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/warp/course-ledger/ledger"
)

// SubscriberBuffer is the per-subscriber channel capacity.
const SubscriberBuffer = 16

// Broker fan-outs course events to all active subscribers (SSE clients,
// tests). It implements ledger.EventSink.
type Broker struct {
	mu      sync.RWMutex
	subs    map[int]chan ledger.CourseCreated
	next    int
	closed  bool
	done    chan struct{}
	dropped atomic.Uint64
}

var _ ledger.EventSink = (*Broker)(nil)

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[int]chan ledger.CourseCreated),
		done: make(chan struct{}),
	}
}

// Subscribe registers a subscriber and returns a channel which will receive events.
// The channel is closed when the provided context ends or the broker is
// closed, whichever comes first.
func (b *Broker) Subscribe(ctx context.Context) <-chan ledger.CourseCreated {
	ch := make(chan ledger.CourseCreated, SubscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		// Close may have raced us to it.
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}()

	return ch
}

// Close ends every live subscription and turns later Subscribe calls into
// already-closed channels. It is meant for server shutdown, where streaming
// handlers would otherwise hold their connections open. Safe to call twice.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fan-outs the event to all subscribers. It never blocks: a
// subscriber whose buffer is full misses the event.
func (b *Broker) Publish(evt ledger.CourseCreated) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (b *Broker) Dropped() uint64 { return b.dropped.Load() }
