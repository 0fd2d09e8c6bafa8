// Package msgloop runs functions on a single OS thread that pumps the
// platform message queue.
//
// Low-level hooks deliver their callbacks on the thread that installed them,
// and only while that thread is waiting for messages. Loop owns such a thread:
// Start locks a goroutine to it and Do runs work there.
package msgloop

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned by Do and Start once the loop has been closed.
	ErrClosed = errors.New("message loop closed")

	// ErrJobPanicked wraps a panic raised by a function passed to Do.
	ErrJobPanicked = errors.New("message loop job panicked")
)

type job struct {
	fn   func()
	err  error
	done chan struct{}
}

// Loop is a thread-affine executor. The zero value is not usable; call New.
type Loop struct {
	// Logger defaults to slog.Default(). Set it before Start.
	Logger *slog.Logger

	mu      sync.Mutex
	pending []*job
	started bool
	closed  bool
	pump    pump

	threadID atomic.Uint64
	done     chan struct{}
}

// New returns a loop that has not been started.
func New() *Loop {
	return &Loop{
		done: make(chan struct{}),
		pump: newPump(),
	}
}

// Start launches the loop thread and waits until it is ready to run work.
// Calling Start on a running loop does nothing.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.started {
		return nil
	}
	if l.Logger == nil {
		l.Logger = slog.Default()
	}

	ready := make(chan error, 1)
	go l.run(ready)
	if err := <-ready; err != nil {
		return fmt.Errorf("start message loop: %w", err)
	}
	l.started = true
	return nil
}

func (l *Loop) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := l.pump.init(); err != nil {
		ready <- err
		return
	}
	l.threadID.Store(currentThreadID())
	l.Logger.Debug("message loop started", "thread", l.threadID.Load())
	ready <- nil

	l.pump.run(l.drain)

	// Work queued while the loop was quitting still runs on this thread.
	l.drain()
	l.threadID.Store(0)
	close(l.done)
	l.Logger.Debug("message loop stopped")
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		jobs := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(jobs) == 0 {
			return
		}
		for _, j := range jobs {
			j.err = runJob(j.fn)
			close(j.done)
		}
	}
}

func runJob(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrJobPanicked, r)
		}
	}()
	fn()
	return nil
}

// Do runs fn on the loop thread and waits for it to return. Called from the
// loop thread itself, for example from a hook callback, fn runs inline.
func (l *Loop) Do(fn func()) error {
	if l.OnLoop() {
		return runJob(fn)
	}

	j := &job{fn: fn, done: make(chan struct{})}
	l.mu.Lock()
	if l.closed || !l.started {
		l.mu.Unlock()
		return ErrClosed
	}
	l.pending = append(l.pending, j)
	l.mu.Unlock()

	if err := l.pump.wake(); err != nil {
		l.Logger.Warn("wake message loop", "error", err)
	}

	select {
	case <-j.done:
		return j.err
	case <-l.done:
		select {
		case <-j.done:
			return j.err
		default:
			return ErrClosed
		}
	}
}

// OnLoop reports whether the caller is running on the loop thread. It is
// always false on platforms without a thread id query.
func (l *Loop) OnLoop() bool {
	id := currentThreadID()
	return id != 0 && id == l.threadID.Load()
}

// Close stops the loop and waits for its thread to exit. Pending work runs
// before Close returns.
func (l *Loop) Close() error {
	if l.OnLoop() {
		return errors.New("msgloop: Close called from the loop thread")
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	started := l.started
	l.mu.Unlock()

	if !started {
		return nil
	}
	if err := l.pump.quit(); err != nil {
		return fmt.Errorf("stop message loop: %w", err)
	}
	<-l.done
	return nil
}

// pump is the platform message queue.
type pump interface {
	// init runs on the locked loop thread before any work.
	init() error
	// run blocks until quit, calling drain whenever wake was signalled.
	run(drain func())
	wake() error
	quit() error
}
