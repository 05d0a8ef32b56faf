// input_state.go - Virtual controller state fed by keyboard, mouse and gamepad

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// =============================================================================
// BUTTON BITS
// =============================================================================

const (
	PAD_BUTTON_SHARE    = 0x00000001
	PAD_BUTTON_L3       = 0x00000002
	PAD_BUTTON_R3       = 0x00000004
	PAD_BUTTON_OPTIONS  = 0x00000008
	PAD_BUTTON_UP       = 0x00000010
	PAD_BUTTON_RIGHT    = 0x00000020
	PAD_BUTTON_DOWN     = 0x00000040
	PAD_BUTTON_LEFT     = 0x00000080
	PAD_BUTTON_L2       = 0x00000100
	PAD_BUTTON_R2       = 0x00000200
	PAD_BUTTON_L1       = 0x00000400
	PAD_BUTTON_R1       = 0x00000800
	PAD_BUTTON_TRIANGLE = 0x00001000
	PAD_BUTTON_CIRCLE   = 0x00002000
	PAD_BUTTON_CROSS    = 0x00004000
	PAD_BUTTON_SQUARE   = 0x00008000
	PAD_BUTTON_TOUCHPAD = 0x00100000
)

// Stick and trigger deadzones for the host gamepad path, in raw signed
// 16-bit units.
const (
	STICK_DEADZONE   = 8000
	TRIGGER_DEADZONE = 30
)

// PadDataSize is the packed size of the guest-visible pad buffer.
const PadDataSize = 0x68

// =============================================================================
// PAD STATE
// =============================================================================

// PadState is the virtual controller as the guest sees it. Sticks rest at
// center (128); triggers rest at 0. Touch coordinates and the gravity
// vector are fixed placeholders until real sensors exist.
type PadState struct {
	Buttons uint32

	LX, LY uint8
	RX, RY uint8
	L2, R2 uint8

	TouchX, TouchY uint16

	AccelX, AccelY, AccelZ float32
	GyroX, GyroY, GyroZ    float32
}

func defaultPadState() PadState {
	return PadState{
		LX: 128, LY: 128,
		RX: 128, RY: 128,
		TouchX: 960, TouchY: 470,
		AccelY: -1.0, // resting flat, gravity down
	}
}

// =============================================================================
// KEYBOARD LAYOUTS
// =============================================================================

// Key identifies a host key in a backend-neutral way. The video frontend
// translates ebiten key codes into these before calling HandleKey.
type Key int

const (
	KeyNone Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyW
	KeyA
	KeyS
	KeyD
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyZ
	KeyX
	KeyC
	KeyV
	KeyQ
	KeyE
	Key1
	Key3
	KeyEnter
	KeyBackspace
	KeyT
	KeyF
	KeyG
)

// KeyboardLayout selects which host keys drive the four face buttons.
type KeyboardLayout int

const (
	LayoutIJKL KeyboardLayout = iota // K=Cross L=Circle J=Square I=Triangle
	LayoutZXCV                       // Z=Cross X=Circle C=Square V=Triangle
)

func ParseKeyboardLayout(s string) KeyboardLayout {
	if s == "zxcv" {
		return LayoutZXCV
	}
	return LayoutIJKL
}

// faceButton maps a key to a face-button bit under the active layout,
// returning 0 for keys that are not face buttons.
func (l KeyboardLayout) faceButton(key Key) uint32 {
	switch l {
	case LayoutZXCV:
		switch key {
		case KeyZ:
			return PAD_BUTTON_CROSS
		case KeyX:
			return PAD_BUTTON_CIRCLE
		case KeyC:
			return PAD_BUTTON_SQUARE
		case KeyV:
			return PAD_BUTTON_TRIANGLE
		}
	default:
		switch key {
		case KeyK:
			return PAD_BUTTON_CROSS
		case KeyL:
			return PAD_BUTTON_CIRCLE
		case KeyJ:
			return PAD_BUTTON_SQUARE
		case KeyI:
			return PAD_BUTTON_TRIANGLE
		}
	}
	return 0
}

// =============================================================================
// INPUT MANAGER
// =============================================================================

// InputManager owns the virtual pad. The frontend thread updates it; the
// CPU thread snapshots it from the pad-read syscall. All methods lock.
type InputManager struct {
	mu     sync.Mutex
	pad    PadState
	layout KeyboardLayout

	mouseLook        bool
	mouseSensitivity float64

	events uint64
	log    *Logger
}

func NewInputManager(log *Logger) *InputManager {
	return &InputManager{
		pad:              defaultPadState(),
		mouseSensitivity: 2.0,
		log:              log,
	}
}

func (im *InputManager) SetLayout(layout KeyboardLayout) {
	im.mu.Lock()
	im.layout = layout
	im.mu.Unlock()
}

func (im *InputManager) SetMouseLook(enabled bool, sensitivity float64) {
	im.mu.Lock()
	im.mouseLook = enabled
	if sensitivity > 0 {
		im.mouseSensitivity = sensitivity
	}
	im.mu.Unlock()
}

func (im *InputManager) setButton(bit uint32, pressed bool) {
	if pressed {
		im.pad.Buttons |= bit
	} else {
		im.pad.Buttons &^= bit
	}
}

// HandleKey applies one host key transition to the pad. Unmapped keys are
// ignored.
func (im *InputManager) HandleKey(key Key, pressed bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.events++

	if bit := im.layout.faceButton(key); bit != 0 {
		im.setButton(bit, pressed)
		return
	}

	switch key {
	case KeyUp:
		im.setButton(PAD_BUTTON_UP, pressed)
	case KeyDown:
		im.setButton(PAD_BUTTON_DOWN, pressed)
	case KeyLeft:
		im.setButton(PAD_BUTTON_LEFT, pressed)
	case KeyRight:
		im.setButton(PAD_BUTTON_RIGHT, pressed)

	// WASD drives the left stick to its extremes; release recenters.
	case KeyW:
		if pressed {
			im.pad.LY = 0
		} else {
			im.pad.LY = 128
		}
	case KeyS:
		if pressed {
			im.pad.LY = 255
		} else {
			im.pad.LY = 128
		}
	case KeyA:
		if pressed {
			im.pad.LX = 0
		} else {
			im.pad.LX = 128
		}
	case KeyD:
		if pressed {
			im.pad.LX = 255
		} else {
			im.pad.LX = 128
		}

	case KeyQ:
		im.setButton(PAD_BUTTON_L1, pressed)
	case KeyE:
		im.setButton(PAD_BUTTON_R1, pressed)
	case Key1:
		im.setButton(PAD_BUTTON_L2, pressed)
		if pressed {
			im.pad.L2 = 255
		} else {
			im.pad.L2 = 0
		}
	case Key3:
		im.setButton(PAD_BUTTON_R2, pressed)
		if pressed {
			im.pad.R2 = 255
		} else {
			im.pad.R2 = 0
		}

	case KeyEnter:
		im.setButton(PAD_BUTTON_OPTIONS, pressed)
	case KeyBackspace:
		im.setButton(PAD_BUTTON_SHARE, pressed)
	case KeyT:
		im.setButton(PAD_BUTTON_TOUCHPAD, pressed)
	case KeyF:
		im.setButton(PAD_BUTTON_L3, pressed)
	case KeyG:
		im.setButton(PAD_BUTTON_R3, pressed)
	}
}

// HandleMouseButton maps mouse buttons onto the triggers: left fires L2,
// right fires R2, both with full analog travel.
func (im *InputManager) HandleMouseButton(left bool, pressed bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.events++
	if left {
		im.setButton(PAD_BUTTON_L2, pressed)
		if pressed {
			im.pad.L2 = 255
		} else {
			im.pad.L2 = 0
		}
	} else {
		im.setButton(PAD_BUTTON_R2, pressed)
		if pressed {
			im.pad.R2 = 255
		} else {
			im.pad.R2 = 0
		}
	}
}

// HandleMouseMove drives the right stick from relative mouse motion when
// mouse-look is enabled. Deltas are scaled by the sensitivity and clamped
// to the stick range.
func (im *InputManager) HandleMouseMove(dx, dy float64) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if !im.mouseLook {
		return
	}
	im.events++
	im.pad.RX = clampAxis(float64(im.pad.RX) + dx*im.mouseSensitivity)
	im.pad.RY = clampAxis(float64(im.pad.RY) + dy*im.mouseSensitivity)
}

func clampAxis(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// =============================================================================
// GAMEPAD PATH
// =============================================================================

// RescaleStickAxis converts a signed 16-bit host axis into the pad's
// unsigned 8-bit range, snapping anything inside the deadzone to center.
// invert flips the axis to match console vertical-stick polarity.
func RescaleStickAxis(v int16, invert bool) uint8 {
	if v > -STICK_DEADZONE && v < STICK_DEADZONE {
		return 128
	}
	if invert {
		if v == math.MinInt16 {
			v = math.MaxInt16
		} else {
			v = -v
		}
	}
	return uint8((int32(v) + 32768) >> 8)
}

// RescaleTrigger converts a signed 16-bit host trigger (0..32767 range in
// practice) into 0..255 with a small deadzone.
func RescaleTrigger(v int16) uint8 {
	if v < TRIGGER_DEADZONE {
		return 0
	}
	return uint8(int32(v) >> 7)
}

// ApplyGamepad replaces the pad state from a polled host gamepad. The
// keyboard path is ignored while a gamepad drives the state; the frontend
// falls back to keys when the pad disconnects.
func (im *InputManager) ApplyGamepad(buttons uint32, lx, ly, rx, ry, l2, r2 int16) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.events++
	im.pad.Buttons = buttons
	im.pad.LX = RescaleStickAxis(lx, false)
	im.pad.LY = RescaleStickAxis(ly, true)
	im.pad.RX = RescaleStickAxis(rx, false)
	im.pad.RY = RescaleStickAxis(ry, true)
	im.pad.L2 = RescaleTrigger(l2)
	im.pad.R2 = RescaleTrigger(r2)
}

// =============================================================================
// SNAPSHOT AND GUEST ENCODING
// =============================================================================

// Snapshot returns a by-value copy of the current pad state.
func (im *InputManager) Snapshot() PadState {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.pad
}

// HasInput reports whether anything deviates from the resting state.
func (im *InputManager) HasInput() bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	d := defaultPadState()
	return im.pad.Buttons != 0 ||
		im.pad.LX != d.LX || im.pad.LY != d.LY ||
		im.pad.RX != d.RX || im.pad.RY != d.RY ||
		im.pad.L2 != 0 || im.pad.R2 != 0
}

// Reset returns the pad to its resting state.
func (im *InputManager) Reset() {
	im.mu.Lock()
	im.pad = defaultPadState()
	im.mu.Unlock()
}

func (im *InputManager) EventCount() uint64 {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.events
}

// EncodePadData packs the pad state into the fixed 104-byte guest layout:
//
//	0x00 buttons u32          0x1C accel f32 x3
//	0x04 lx ly rx ry          0x28 gyro f32 x3
//	0x08 l2 r2, pad u16       0x34 touch data [24]
//	0x0C orientation f32 x4   0x4C connected u8, pad [3]
//	                          0x50 timestamp u64 (µs)
//	                          0x58 extension [12]
//	                          0x64 connected_count u8, pad [3]
func EncodePadData(pad PadState) [PadDataSize]byte {
	var buf [PadDataSize]byte
	le := binary.LittleEndian

	le.PutUint32(buf[0x00:], pad.Buttons)
	buf[0x04] = pad.LX
	buf[0x05] = pad.LY
	buf[0x06] = pad.RX
	buf[0x07] = pad.RY
	buf[0x08] = pad.L2
	buf[0x09] = pad.R2

	// Identity orientation quaternion.
	le.PutUint32(buf[0x18:], math.Float32bits(1.0))

	le.PutUint32(buf[0x1C:], math.Float32bits(pad.AccelX))
	le.PutUint32(buf[0x20:], math.Float32bits(pad.AccelY))
	le.PutUint32(buf[0x24:], math.Float32bits(pad.AccelZ))
	le.PutUint32(buf[0x28:], math.Float32bits(pad.GyroX))
	le.PutUint32(buf[0x2C:], math.Float32bits(pad.GyroY))
	le.PutUint32(buf[0x30:], math.Float32bits(pad.GyroZ))

	// One resting touch point, no contact.
	le.PutUint16(buf[0x34:], pad.TouchX)
	le.PutUint16(buf[0x36:], pad.TouchY)

	buf[0x4C] = 1 // connected
	le.PutUint64(buf[0x50:], uint64(time.Now().UnixMicro()))
	buf[0x64] = 1 // connected count

	return buf
}
