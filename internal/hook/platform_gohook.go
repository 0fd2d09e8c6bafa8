//go:build !windows && cgo && (linux || darwin)

package hook

import (
	"sync"
	"time"

	"github.com/go-vgo/robotgo"
	gohook "github.com/robotn/gohook"
)

// libuiohook wheel directions.
const (
	wheelVertical   = 3
	wheelHorizontal = 4
)

// gohookPlatform adapts libuiohook's event stream to the hook contract.
// Events are observed, never intercepted, so forwarding is a no-op.
type gohookPlatform struct{}

// libuiohook runs one process-wide hook behind a package-global channel, so
// the registration state is shared by every gohookPlatform.
var uiohook = struct {
	mu      sync.Mutex
	active  Handle
	next    Handle
	stopped chan struct{}
}{next: 1}

var (
	startHook = gohook.Start
	endHook   = gohook.End
	locate    = robotgo.Location
)

// NewPlatform returns the libuiohook backend.
func NewPlatform() Platform {
	return gohookPlatform{}
}

func (gohookPlatform) Register(kind HookKind, slot int) (Handle, error) {
	if kind != KindMouse {
		return NoHandle, ErrnoNotSupported
	}
	uiohook.mu.Lock()
	defer uiohook.mu.Unlock()

	if uiohook.active != NoHandle {
		return NoHandle, ErrnoBusy
	}
	events := startHook()
	if events == nil {
		return NoHandle, ErrnoUnknown
	}

	h := uiohook.next
	uiohook.next++
	uiohook.active = h
	uiohook.stopped = make(chan struct{})
	go pump(events, slot, uiohook.stopped)
	return h, nil
}

func pump(events chan gohook.Event, slot int, stopped chan struct{}) {
	defer close(stopped)
	for ev := range events {
		msg, rec, ok := recordFromEvent(ev)
		if !ok {
			continue
		}
		invoke(slot, 0, uintptr(msg), &rec)
	}
}

func (gohookPlatform) Unregister(h Handle) error {
	uiohook.mu.Lock()
	defer uiohook.mu.Unlock()

	if h == NoHandle || h != uiohook.active {
		return ErrnoInvalidHandle
	}
	endHook()
	select {
	case <-uiohook.stopped:
	case <-time.After(2 * time.Second):
	}
	uiohook.active = NoHandle
	return nil
}

func (gohookPlatform) Forward(Handle, int32, uintptr, *RawMouseRecord) uintptr {
	return 0
}

func (gohookPlatform) CursorPosition() (pt Point, err error) {
	defer func() {
		if r := recover(); r != nil {
			pt, err = Point{}, ErrnoUnknown
		}
	}()
	x, y := locate()
	return Point{X: int32(x), Y: int32(y)}, nil
}

// recordFromEvent converts a libuiohook mouse event. gohook names its kinds
// after libuiohook's: MouseHold is a press, MouseDown a release and MouseUp a
// synthesized click, which has no low-level counterpart.
func recordFromEvent(ev gohook.Event) (Message, RawMouseRecord, bool) {
	rec := RawMouseRecord{
		Pt:   Point{X: int32(ev.X), Y: int32(ev.Y)},
		Time: uint32(ev.When.UnixMilli()),
	}
	var msg Message
	switch ev.Kind {
	case gohook.MouseMove, gohook.MouseDrag:
		msg = MsgMove
	case gohook.MouseHold:
		msg = buttonMessage(ev.Button, true)
	case gohook.MouseDown:
		msg = buttonMessage(ev.Button, false)
	case gohook.MouseWheel:
		// libuiohook reports rotation with the opposite sign to WM_MOUSEWHEEL.
		delta := int16(-ev.Rotation * WheelDelta)
		rec.MouseData = uint32(uint16(delta)) << 16
		msg = MsgWheel
		if ev.Direction == wheelHorizontal {
			msg = MsgHWheel
		}
	default:
		return 0, RawMouseRecord{}, false
	}
	if msg == 0 {
		return 0, RawMouseRecord{}, false
	}
	if msg.IsXButton() {
		x := XButton1
		if ev.Button == 5 {
			x = XButton2
		}
		rec.MouseData = uint32(x) << 16
	}
	return msg, rec, true
}

func buttonMessage(button uint16, down bool) Message {
	pick := func(d, u Message) Message {
		if down {
			return d
		}
		return u
	}
	switch button {
	case 1:
		return pick(MsgLeftDown, MsgLeftUp)
	case 2:
		return pick(MsgRightDown, MsgRightUp)
	case 3:
		return pick(MsgMiddleDown, MsgMiddleUp)
	case 4, 5:
		return pick(MsgXDown, MsgXUp)
	default:
		return 0
	}
}
