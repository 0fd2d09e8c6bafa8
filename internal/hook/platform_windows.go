//go:build windows

package hook

import (
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procGetCursorPos        = user32.NewProc("GetCursorPos")
	procGetModuleHandleW    = kernel32.NewProc("GetModuleHandleW")
)

// windowsPlatform registers hooks with user32. Register must run on a thread
// that pumps messages; the OS delivers callbacks on that thread.
type windowsPlatform struct{}

// NewPlatform returns the user32 backend.
func NewPlatform() Platform {
	return windowsPlatform{}
}

// trampolines holds one OS-callable callback per binding slot. Callbacks made
// with windows.NewCallback are never freed, so each slot's is created once
// and reused by every manager that later holds the slot.
var trampolines struct {
	mu  sync.Mutex
	ptr [maxBindings]uintptr
}

func trampoline(slot int) uintptr {
	trampolines.mu.Lock()
	defer trampolines.mu.Unlock()

	if trampolines.ptr[slot] == 0 {
		trampolines.ptr[slot] = windows.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
			code := int32(nCode)
			rec := (*RawMouseRecord)(unsafe.Pointer(lParam))
			if ret, ok := invoke(slot, code, wParam, rec); ok {
				return ret
			}
			ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
			return ret
		})
	}
	return trampolines.ptr[slot]
}

func (windowsPlatform) Register(kind HookKind, slot int) (Handle, error) {
	if slot < 0 || slot >= maxBindings {
		return NoHandle, ErrnoInvalidHandle
	}
	if kind != KindMouse {
		return NoHandle, ErrnoNotSupported
	}
	cb := trampoline(slot)
	hmod, _, _ := procGetModuleHandleW.Call(0)
	h, _, err := procSetWindowsHookExW.Call(uintptr(kind), cb, hmod, 0)
	if h == 0 {
		return NoHandle, lastError(err)
	}
	return Handle(h), nil
}

func (windowsPlatform) Unregister(h Handle) error {
	ok, _, err := procUnhookWindowsHookEx.Call(uintptr(h))
	if ok == 0 {
		return lastError(err)
	}
	return nil
}

func (windowsPlatform) Forward(h Handle, code int32, wParam uintptr, rec *RawMouseRecord) uintptr {
	ret, _, _ := procCallNextHookEx.Call(uintptr(h), uintptr(code), wParam, uintptr(unsafe.Pointer(rec)))
	return ret
}

func (windowsPlatform) CursorPosition() (Point, error) {
	var pt Point
	ok, _, err := procGetCursorPos.Call(uintptr(unsafe.Pointer(&pt)))
	if ok == 0 {
		return Point{}, lastError(err)
	}
	return pt, nil
}

func lastError(err error) Errno {
	if errno, ok := err.(syscall.Errno); ok {
		return Errno(errno)
	}
	return ErrnoUnknown
}
