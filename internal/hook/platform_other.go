//go:build !windows && !(cgo && (linux || darwin))

package hook

type unsupportedPlatform struct{}

// NewPlatform returns a backend whose every call fails with
// ErrnoNotSupported. Use SimulatedPlatform on these builds.
func NewPlatform() Platform {
	return unsupportedPlatform{}
}

func (unsupportedPlatform) Register(HookKind, int) (Handle, error) {
	return NoHandle, ErrnoNotSupported
}

func (unsupportedPlatform) Unregister(Handle) error {
	return ErrnoNotSupported
}

func (unsupportedPlatform) Forward(Handle, int32, uintptr, *RawMouseRecord) uintptr {
	return 0
}

func (unsupportedPlatform) CursorPosition() (Point, error) {
	return Point{}, ErrnoNotSupported
}
