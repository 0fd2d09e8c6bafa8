package hook

import (
	"errors"
	"fmt"
	"syscall"
)

// Errno is a platform error code as reported by the OS last-error query.
type Errno uint32

// Codes used by non-Windows backends. Values follow the Win32 numbering so
// callers see one code space on every platform.
const (
	ErrnoSuccess       Errno = 0
	ErrnoInvalidHandle Errno = 6
	ErrnoNotSupported  Errno = 50
	ErrnoBusy          Errno = 170
	ErrnoUnknown       Errno = 0xFFFFFFFF
)

func (e Errno) Error() string {
	switch e {
	case ErrnoSuccess:
		return "platform error 0 (no last-error set)"
	case ErrnoInvalidHandle:
		return "invalid handle"
	case ErrnoNotSupported:
		return "not supported on this platform"
	case ErrnoBusy:
		return "hook backend busy"
	default:
		return fmt.Sprintf("platform error %d", uint32(e))
	}
}

// Sentinels matched by the typed errors below through errors.Is.
var (
	ErrInstall     = errors.New("hook installation failed")
	ErrUninstall   = errors.New("hook uninstallation failed")
	ErrCursorQuery = errors.New("cursor position query failed")
)

// ErrNoBindings is returned when every binding slot is in use.
var ErrNoBindings = errors.New("no free hook binding slots")

// InstallationError reports that the OS rejected hook registration.
type InstallationError struct {
	Kind HookKind
	Code Errno
}

func (e *InstallationError) Error() string {
	return fmt.Sprintf("install %s hook: %v (code %d)", e.Kind, e.Code, uint32(e.Code))
}

func (e *InstallationError) Unwrap() error { return e.Code }

func (e *InstallationError) Is(target error) bool { return target == ErrInstall }

// UninstallationError reports that the OS rejected hook removal.
type UninstallationError struct {
	Kind HookKind
	Code Errno
}

func (e *UninstallationError) Error() string {
	return fmt.Sprintf("uninstall %s hook: %v (code %d)", e.Kind, e.Code, uint32(e.Code))
}

func (e *UninstallationError) Unwrap() error { return e.Code }

func (e *UninstallationError) Is(target error) bool { return target == ErrUninstall }

// CursorQueryError reports that the pointer position could not be read.
type CursorQueryError struct {
	Code Errno
}

func (e *CursorQueryError) Error() string {
	return fmt.Sprintf("query cursor position: %v (code %d)", e.Code, uint32(e.Code))
}

func (e *CursorQueryError) Unwrap() error { return e.Code }

func (e *CursorQueryError) Is(target error) bool { return target == ErrCursorQuery }

// codeOf extracts a platform code from an error returned by a Platform.
func codeOf(err error) Errno {
	if err == nil {
		return ErrnoSuccess
	}
	var code Errno
	if errors.As(err, &code) {
		return code
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return Errno(errno)
	}
	return ErrnoUnknown
}
