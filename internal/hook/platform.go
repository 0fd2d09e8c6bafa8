package hook

// Platform is the OS hook boundary. Implementations must return an Errno (or
// a syscall.Errno) so failures carry the platform code.
type Platform interface {
	// Register installs a hook of the given kind whose OS callback routes
	// through binding slot. A NoHandle result is a failure.
	Register(kind HookKind, slot int) (Handle, error)

	// Unregister removes a hook installed by Register.
	Unregister(h Handle) error

	// Forward passes the event to the next hook in the chain. It is called
	// exactly once per callback.
	Forward(h Handle, code int32, wParam uintptr, rec *RawMouseRecord) uintptr

	// CursorPosition reads the current pointer location.
	CursorPosition() (Point, error)
}

// Executor runs fn on the thread that owns the hook's message loop and waits
// for it to return. Called from that thread, Do must run fn inline.
// *msgloop.Loop implements it.
type Executor interface {
	Do(fn func()) error
}

// Observer receives routing notifications. Implementations run on the hook
// thread and must not block.
type Observer interface {
	HookInstalled(kind HookKind)
	HookInstallFailed(kind HookKind, err error)
	HookRemoved(kind HookKind, err error)
	Callback(code int32, translated bool)
	DeliveryFailed(err error)
}

type nopObserver struct{}

func (nopObserver) HookInstalled(HookKind)           {}
func (nopObserver) HookInstallFailed(HookKind, error) {}
func (nopObserver) HookRemoved(HookKind, error)      {}
func (nopObserver) Callback(int32, bool)             {}
func (nopObserver) DeliveryFailed(error)             {}
