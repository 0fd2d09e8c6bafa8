//go:build windows

package msgloop

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"
)

const (
	wmQuit = 0x0012
	wmUser = 0x0400

	// wmRunJobs asks the loop thread to drain pending work.
	wmRunJobs = wmUser + 0x4D57

	pmNoRemove = 0x0000
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procGetMessageW        = user32.NewProc("GetMessageW")
	procPeekMessageW       = user32.NewProc("PeekMessageW")
	procTranslateMessage   = user32.NewProc("TranslateMessage")
	procDispatchMessageW   = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
)

type msg struct {
	Hwnd    windows.HWND
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

type windowsPump struct {
	tid atomic.Uint32
}

func newPump() pump {
	return &windowsPump{}
}

func (p *windowsPump) init() error {
	// A thread has no message queue until it calls a message function;
	// PostThreadMessageW to it would fail before this.
	var m msg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, wmUser, wmUser, pmNoRemove)
	p.tid.Store(windows.GetCurrentThreadId())
	return nil
}

func (p *windowsPump) run(drain func()) {
	var m msg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		// 0 is WM_QUIT, -1 an error; both end the loop.
		if int32(ret) <= 0 {
			return
		}
		if m.Message == wmRunJobs && m.Hwnd == 0 {
			drain()
			continue
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (p *windowsPump) wake() error {
	return p.post(wmRunJobs)
}

func (p *windowsPump) quit() error {
	return p.post(wmQuit)
}

func (p *windowsPump) post(message uint32) error {
	tid := p.tid.Load()
	if tid == 0 {
		return fmt.Errorf("post message %#x: loop thread not started", message)
	}
	ok, _, err := procPostThreadMessageW.Call(uintptr(tid), uintptr(message), 0, 0)
	if ok == 0 {
		return fmt.Errorf("post message %#x: %w", message, err)
	}
	return nil
}
