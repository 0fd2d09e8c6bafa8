// Package dispatch delivers events from the hook thread to subscribers.
//
// Broadcaster delivers synchronously on the publishing goroutine over a
// snapshot of its subscriber list, so listeners may subscribe or unsubscribe
// while a delivery is in progress. Queue moves listener work off the hook
// thread.
package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Subscription is the token returned by Subscribe.
type Subscription struct {
	id uint64
}

type subscriber[E any] struct {
	sub *Subscription
	fn  func(E)
}

// Broadcaster is an ordered multicast of events of type E. The zero value is
// ready to use.
type Broadcaster[E any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   atomic.Pointer[[]subscriber[E]]
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster[E any]() *Broadcaster[E] {
	return &Broadcaster[E]{}
}

// Subscribe appends fn to the subscriber list. Subscribing the same function
// twice delivers to it twice.
func (b *Broadcaster[E]) Subscribe(fn func(E)) *Subscription {
	if fn == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{id: b.nextID}

	old := b.snapshot()
	next := make([]subscriber[E], len(old), len(old)+1)
	copy(next, old)
	next = append(next, subscriber[E]{sub: sub, fn: fn})
	b.subs.Store(&next)
	return sub
}

// Unsubscribe removes a subscription. Unknown or nil subscriptions are ignored.
func (b *Broadcaster[E]) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	old := b.snapshot()
	for i, s := range old {
		if s.sub != sub {
			continue
		}
		next := make([]subscriber[E], 0, len(old)-1)
		next = append(next, old[:i]...)
		next = append(next, old[i+1:]...)
		b.subs.Store(&next)
		return
	}
}

// Len returns the number of subscribers without locking.
func (b *Broadcaster[E]) Len() int {
	return len(b.snapshot())
}

// Publish calls every subscriber in registration order. A panicking
// subscriber does not stop delivery to the rest; its panic is returned as an
// error joined with any others.
func (b *Broadcaster[E]) Publish(ev E) error {
	subs := b.snapshot()
	if len(subs) == 0 {
		return nil
	}
	var errs []error
	for _, s := range subs {
		if err := call(s.fn, ev); err != nil {
			errs = append(errs, fmt.Errorf("subscriber %d: %w", s.sub.id, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Broadcaster[E]) snapshot() []subscriber[E] {
	p := b.subs.Load()
	if p == nil {
		return nil
	}
	return *p
}

// ErrSubscriberPanic wraps a panic raised by a subscriber.
var ErrSubscriberPanic = errors.New("subscriber panicked")

func call[E any](fn func(E), ev E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSubscriberPanic, r)
		}
	}()
	fn(ev)
	return nil
}
