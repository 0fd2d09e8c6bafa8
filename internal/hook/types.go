// Package hook installs a system-wide low-level mouse hook and routes every
// callback the OS delivers to subscribers.
//
// The hook is observational: the router never consumes an event and always
// passes it down the hook chain, even when a subscriber fails.
//
// Platform support:
//   - Windows: SetWindowsHookExW(WH_MOUSE_LL) on a message-loop thread
//   - Linux/macOS (cgo): libuiohook through github.com/robotn/gohook
//   - Everywhere: SimulatedPlatform for tests and dry runs
package hook

import "fmt"

// Handle identifies an installed hook. NoHandle means nothing is installed.
type Handle uintptr

// NoHandle is the zero handle.
const NoHandle Handle = 0

// HookKind is the OS hook type passed to registration.
type HookKind int32

const (
	// KindKeyboard is WH_KEYBOARD_LL. Declared for completeness; the manager
	// never installs it.
	KindKeyboard HookKind = 13
	// KindMouse is WH_MOUSE_LL.
	KindMouse HookKind = 14
)

func (k HookKind) String() string {
	switch k {
	case KindKeyboard:
		return "keyboard"
	case KindMouse:
		return "mouse"
	default:
		return fmt.Sprintf("hook(%d)", int32(k))
	}
}

// Point is a screen-space position in physical pixels.
type Point struct {
	X int32
	Y int32
}

// RawMouseRecord matches MSLLHOOKSTRUCT bit for bit.
type RawMouseRecord struct {
	Pt        Point
	MouseData uint32 // high word: wheel delta or X button id
	Flags     uint32
	Time      uint32
	ExtraInfo uintptr
}

// Low-level mouse flags carried in RawMouseRecord.Flags.
const (
	FlagInjected        uint32 = 0x01
	FlagLowerILInjected uint32 = 0x02
)

// Message is the wParam of a low-level mouse callback.
type Message uintptr

// Mouse messages delivered to WH_MOUSE_LL.
const (
	MsgMove       Message = 0x0200
	MsgLeftDown   Message = 0x0201
	MsgLeftUp     Message = 0x0202
	MsgRightDown  Message = 0x0204
	MsgRightUp    Message = 0x0205
	MsgMiddleDown Message = 0x0207
	MsgMiddleUp   Message = 0x0208
	MsgWheel      Message = 0x020A
	MsgXDown      Message = 0x020B
	MsgXUp        Message = 0x020C
	MsgHWheel     Message = 0x020E
)

var messageNames = map[Message]string{
	MsgMove:       "move",
	MsgLeftDown:   "left_down",
	MsgLeftUp:     "left_up",
	MsgRightDown:  "right_down",
	MsgRightUp:    "right_up",
	MsgMiddleDown: "middle_down",
	MsgMiddleUp:   "middle_up",
	MsgWheel:      "wheel",
	MsgXDown:      "x_down",
	MsgXUp:        "x_up",
	MsgHWheel:     "hwheel",
}

func (m Message) String() string {
	if name, ok := messageNames[m]; ok {
		return name
	}
	return fmt.Sprintf("msg(0x%04x)", uintptr(m))
}

// IsWheel reports whether the message carries a wheel delta.
func (m Message) IsWheel() bool {
	return m == MsgWheel || m == MsgHWheel
}

// IsXButton reports whether the message carries an X button id.
func (m Message) IsXButton() bool {
	return m == MsgXDown || m == MsgXUp
}

// WheelDelta is the delta of one wheel notch.
const WheelDelta = 120

// X button ids carried in the high word of MouseData.
const (
	XButton1 uint16 = 0x0001
	XButton2 uint16 = 0x0002
)

// Device is the physical source of a mouse event.
type Device uint8

const (
	DeviceMouse Device = iota
	DevicePen
	DeviceTouch
)

func (d Device) String() string {
	switch d {
	case DevicePen:
		return "pen"
	case DeviceTouch:
		return "touch"
	default:
		return "mouse"
	}
}

// Pen and touch input is promoted to mouse messages with a signature in
// dwExtraInfo (MI_WP_SIGNATURE); bit 7 distinguishes touch from pen.
const (
	extraInfoSignatureMask uint32 = 0xFFFFFF00
	extraInfoSignature     uint32 = 0xFF515700
	extraInfoTouchBit      uint32 = 0x80
)

// MouseEvent is the translated form of one low-level mouse callback.
type MouseEvent struct {
	Message         Message
	Position        Point
	WheelDelta      int16
	XButton         uint16
	Injected        bool
	LowerILInjected bool
	Device          Device
	Timestamp       uint32 // milliseconds since boot
	ExtraInfo       uintptr
}

// Translate converts a raw record into a MouseEvent. Positions are copied
// unchanged.
func Translate(msg Message, rec *RawMouseRecord) MouseEvent {
	ev := MouseEvent{
		Message:         msg,
		Position:        rec.Pt,
		Injected:        rec.Flags&FlagInjected != 0,
		LowerILInjected: rec.Flags&FlagLowerILInjected != 0,
		Device:          deviceFromExtraInfo(rec.ExtraInfo),
		Timestamp:       rec.Time,
		ExtraInfo:       rec.ExtraInfo,
	}
	hi := uint16(rec.MouseData >> 16)
	switch {
	case msg.IsWheel():
		ev.WheelDelta = int16(hi)
	case msg.IsXButton():
		ev.XButton = hi
	}
	return ev
}

func deviceFromExtraInfo(info uintptr) Device {
	extra := uint32(info)
	if extra&extraInfoSignatureMask != extraInfoSignature {
		return DeviceMouse
	}
	if extra&extraInfoTouchBit != 0 {
		return DeviceTouch
	}
	return DevicePen
}
