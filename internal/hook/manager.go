package hook

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"mousewatch/internal/dispatch"
)

// Options configures a Manager.
type Options struct {
	// Platform is the OS backend. Defaults to NewPlatform().
	Platform Platform

	// Executor runs registration and removal on the thread that pumps the
	// hook's messages. With no executor they run on the calling goroutine,
	// which is only correct for backends without thread affinity.
	Executor Executor

	Logger   *slog.Logger
	Observer Observer
}

// Manager owns one low-level mouse hook and the subscribers that receive its
// events.
type Manager struct {
	platform Platform
	exec     Executor
	logger   *slog.Logger
	observer Observer
	events   *dispatch.Broadcaster[MouseEvent]

	mu     sync.Mutex
	slot   int
	handle atomic.Uintptr
}

// NewManager creates an uninstalled manager.
func NewManager(opts Options) *Manager {
	if opts.Platform == nil {
		opts.Platform = NewPlatform()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	return &Manager{
		platform: opts.Platform,
		exec:     opts.Executor,
		logger:   opts.Logger.With("component", "hook"),
		observer: opts.Observer,
		events:   dispatch.NewBroadcaster[MouseEvent](),
		slot:     -1,
	}
}

// Events returns the broadcaster mouse events are published on.
func (m *Manager) Events() *dispatch.Broadcaster[MouseEvent] {
	return m.events
}

// Subscribe registers fn for every translated mouse event. fn runs on the
// hook thread and must return quickly.
func (m *Manager) Subscribe(fn func(MouseEvent)) *dispatch.Subscription {
	return m.events.Subscribe(fn)
}

// Unsubscribe removes a subscription made with Subscribe.
func (m *Manager) Unsubscribe(sub *dispatch.Subscription) {
	m.events.Unsubscribe(sub)
}

// Start installs the mouse hook.
func (m *Manager) Start() error {
	return m.StartMouse(true)
}

// StartMouse installs the mouse hook when installMouse is set. It does
// nothing if the hook is already installed.
func (m *Manager) StartMouse(installMouse bool) error {
	if !installMouse {
		return nil
	}
	var (
		ran bool
		err error
	)
	doErr := m.serialize(func() {
		ran = true
		err = m.install()
	})
	if !ran {
		ierr := &InstallationError{Kind: KindMouse, Code: codeOf(doErr)}
		m.observer.HookInstallFailed(KindMouse, ierr)
		m.logger.Error("install mouse hook", "error", ierr, "cause", doErr)
		return ierr
	}
	return err
}

// install runs with m.mu held on the executor thread.
func (m *Manager) install() error {
	if m.handle.Load() != 0 {
		return nil
	}

	slot, err := bindings.acquire(m)
	if err != nil {
		ierr := &InstallationError{Kind: KindMouse, Code: ErrnoBusy}
		m.observer.HookInstallFailed(KindMouse, ierr)
		return fmt.Errorf("%w: %w", ierr, err)
	}

	var h Handle
	regErr := guard(func() (err error) {
		h, err = m.platform.Register(KindMouse, slot)
		return err
	})
	if regErr != nil || h == NoHandle {
		bindings.release(slot)
		ierr := &InstallationError{Kind: KindMouse, Code: codeOf(regErr)}
		m.observer.HookInstallFailed(KindMouse, ierr)
		m.logger.Error("install mouse hook", "error", ierr)
		return ierr
	}

	m.slot = slot
	m.handle.Store(uintptr(h))
	m.observer.HookInstalled(KindMouse)
	m.logger.Info("mouse hook installed", "slot", slot, "handle", fmt.Sprintf("%#x", uintptr(h)))
	return nil
}

// Stop removes the mouse hook and reports a failed removal.
func (m *Manager) Stop() error {
	return m.StopMouse(true, true)
}

// StopMouse removes the mouse hook when uninstallMouse is set. The manager is
// uninstalled afterwards whatever the outcome; a failure is returned only
// when throwOnError is set.
//
// StopMouse may be called from a subscriber while another goroutine is
// stopping the same manager: the removal runs inline on the hook thread and
// the other call finds the hook already gone.
func (m *Manager) StopMouse(uninstallMouse, throwOnError bool) error {
	if !uninstallMouse {
		return nil
	}
	var (
		ran bool
		err error
	)
	doErr := m.serialize(func() {
		ran = true
		err = m.uninstall(throwOnError, func(h Handle) error {
			return guard(func() error { return m.platform.Unregister(h) })
		})
	})
	if ran {
		return err
	}

	// The executor is gone and the hook went with its thread.
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uninstall(throwOnError, func(Handle) error {
		return fmt.Errorf("run unregister: %w", doErr)
	})
}

// uninstall runs with m.mu held.
func (m *Manager) uninstall(throwOnError bool, unregister func(Handle) error) error {
	h := Handle(m.handle.Load())
	if h == NoHandle {
		return nil
	}

	unregErr := unregister(h)

	m.handle.Store(0)
	if unregErr == nil {
		bindings.release(m.slot)
	} else {
		bindings.retire(m.slot)
	}
	m.slot = -1

	if unregErr == nil {
		m.observer.HookRemoved(KindMouse, nil)
		m.logger.Info("mouse hook removed")
		return nil
	}

	uerr := &UninstallationError{Kind: KindMouse, Code: codeOf(unregErr)}
	m.observer.HookRemoved(KindMouse, uerr)
	if !throwOnError {
		m.logger.Debug("mouse hook removal failed", "error", unregErr)
		return nil
	}
	m.logger.Error("remove mouse hook", "error", unregErr)
	return uerr
}

// Close removes the hook if installed and discards removal errors. It is
// safe to call more than once.
func (m *Manager) Close() error {
	return m.StopMouse(true, false)
}

// Handle returns the installed hook handle, or NoHandle.
func (m *Manager) Handle() Handle {
	return Handle(m.handle.Load())
}

// Installed reports whether the mouse hook is installed.
func (m *Manager) Installed() bool {
	return m.handle.Load() != 0
}

// serialize runs fn under m.mu on the executor thread. The lock is taken
// there rather than around the hop, so a hook callback that stops the
// manager never waits on a caller that is itself waiting for the thread.
func (m *Manager) serialize(fn func()) error {
	locked := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		fn()
	}
	if m.exec == nil {
		locked()
		return nil
	}
	return m.exec.Do(locked)
}

// guard converts a panicking platform call into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("platform call panicked: %v", r)
		}
	}()
	return fn()
}
