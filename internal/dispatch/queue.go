package dispatch

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is used when a Queue is created with a non-positive size.
const DefaultQueueSize = 1024

// Queue hands events to a single worker goroutine through a bounded buffer.
// Handle never blocks: when the buffer is full the event is dropped and
// counted.
type Queue[E any] struct {
	events  chan E
	handler func(E)
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64

	// OnDrop, when set before the first Handle, is called for every dropped
	// event on the publishing goroutine.
	OnDrop func(E)
}

// NewQueue starts a worker that calls handler for every queued event.
func NewQueue[E any](size int, handler func(E), logger *slog.Logger) *Queue[E] {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue[E]{
		events:  make(chan E, size),
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue[E]) run() {
	defer close(q.done)
	for ev := range q.events {
		if err := call(q.handler, ev); err != nil {
			q.panics.Add(1)
			q.logger.Error("queued handler panicked", "error", err)
			continue
		}
		q.delivered.Add(1)
	}
}

// Handle enqueues ev without blocking. It reports false when the event was
// dropped because the queue is full or closed.
func (q *Queue[E]) Handle(ev E) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.drop(ev)
		return false
	}
	select {
	case q.events <- ev:
		return true
	default:
		q.drop(ev)
		return false
	}
}

func (q *Queue[E]) drop(ev E) {
	q.dropped.Add(1)
	if q.OnDrop != nil {
		q.OnDrop(ev)
	}
}

// Close stops accepting events, drains the buffer and waits for the worker.
func (q *Queue[E]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.events)
	}
	q.mu.Unlock()
	<-q.done
}

// Len returns the number of buffered events.
func (q *Queue[E]) Len() int { return len(q.events) }

// Cap returns the buffer size.
func (q *Queue[E]) Cap() int { return cap(q.events) }

// Delivered returns the number of events the handler completed.
func (q *Queue[E]) Delivered() uint64 { return q.delivered.Load() }

// Dropped returns the number of events rejected by Handle.
func (q *Queue[E]) Dropped() uint64 { return q.dropped.Load() }

// Panics returns the number of handler invocations that panicked.
func (q *Queue[E]) Panics() uint64 { return q.panics.Load() }
