// input_state_test.go - Pad defaults, key mapping and gamepad rescale tests

package main

import (
	"encoding/binary"
	"io"
	"testing"
)

func newTestInput() *InputManager {
	return NewInputManager(NewLogger(io.Discard))
}

func TestInputManager_Defaults(t *testing.T) {
	im := newTestInput()
	pad := im.Snapshot()

	if pad.Buttons != 0 {
		t.Errorf("buttons: got 0x%X, want 0", pad.Buttons)
	}
	if pad.LX != 128 || pad.LY != 128 || pad.RX != 128 || pad.RY != 128 {
		t.Errorf("sticks: got (%d,%d,%d,%d), want all 128",
			pad.LX, pad.LY, pad.RX, pad.RY)
	}
	if pad.L2 != 0 || pad.R2 != 0 {
		t.Errorf("triggers: got (%d,%d), want (0,0)", pad.L2, pad.R2)
	}
	if pad.TouchX != 960 || pad.TouchY != 470 {
		t.Errorf("touch rest: got (%d,%d), want (960,470)", pad.TouchX, pad.TouchY)
	}
	if pad.AccelY != -1.0 {
		t.Errorf("gravity: got %v, want -1.0", pad.AccelY)
	}
	if im.HasInput() {
		t.Error("HasInput on resting pad: got true, want false")
	}
}

func TestInputManager_IJKLLayout(t *testing.T) {
	im := newTestInput()

	cases := []struct {
		key  Key
		want uint32
	}{
		{KeyK, PAD_BUTTON_CROSS},
		{KeyL, PAD_BUTTON_CIRCLE},
		{KeyJ, PAD_BUTTON_SQUARE},
		{KeyI, PAD_BUTTON_TRIANGLE},
		{KeyUp, PAD_BUTTON_UP},
		{KeyDown, PAD_BUTTON_DOWN},
		{KeyLeft, PAD_BUTTON_LEFT},
		{KeyRight, PAD_BUTTON_RIGHT},
		{KeyQ, PAD_BUTTON_L1},
		{KeyE, PAD_BUTTON_R1},
		{KeyEnter, PAD_BUTTON_OPTIONS},
		{KeyBackspace, PAD_BUTTON_SHARE},
		{KeyT, PAD_BUTTON_TOUCHPAD},
		{KeyF, PAD_BUTTON_L3},
		{KeyG, PAD_BUTTON_R3},
	}
	for _, c := range cases {
		im.HandleKey(c.key, true)
		if got := im.Snapshot().Buttons & c.want; got == 0 {
			t.Errorf("key %d press: bit 0x%X not set", c.key, c.want)
		}
		im.HandleKey(c.key, false)
		if got := im.Snapshot().Buttons & c.want; got != 0 {
			t.Errorf("key %d release: bit 0x%X still set", c.key, c.want)
		}
	}
}

func TestInputManager_ZXCVLayout(t *testing.T) {
	im := newTestInput()
	im.SetLayout(LayoutZXCV)

	im.HandleKey(KeyZ, true)
	if im.Snapshot().Buttons&PAD_BUTTON_CROSS == 0 {
		t.Error("Z under zxcv layout: CROSS not set")
	}
	im.HandleKey(KeyZ, false)

	// K no longer maps to a face button.
	im.HandleKey(KeyK, true)
	if im.Snapshot().Buttons != 0 {
		t.Errorf("K under zxcv layout: got buttons 0x%X, want 0",
			im.Snapshot().Buttons)
	}
}

func TestInputManager_WASDAxes(t *testing.T) {
	im := newTestInput()

	im.HandleKey(KeyW, true)
	if got := im.Snapshot().LY; got != 0 {
		t.Errorf("W press LY: got %d, want 0", got)
	}
	im.HandleKey(KeyW, false)
	if got := im.Snapshot().LY; got != 128 {
		t.Errorf("W release LY: got %d, want 128", got)
	}

	im.HandleKey(KeyS, true)
	if got := im.Snapshot().LY; got != 255 {
		t.Errorf("S press LY: got %d, want 255", got)
	}
	im.HandleKey(KeyS, false)

	im.HandleKey(KeyA, true)
	if got := im.Snapshot().LX; got != 0 {
		t.Errorf("A press LX: got %d, want 0", got)
	}
	im.HandleKey(KeyA, false)

	im.HandleKey(KeyD, true)
	if got := im.Snapshot().LX; got != 255 {
		t.Errorf("D press LX: got %d, want 255", got)
	}
}

func TestInputManager_AnalogTriggerKeys(t *testing.T) {
	im := newTestInput()

	im.HandleKey(Key1, true)
	pad := im.Snapshot()
	if pad.Buttons&PAD_BUTTON_L2 == 0 || pad.L2 != 255 {
		t.Errorf("1 press: buttons 0x%X L2 %d, want L2 bit + 255", pad.Buttons, pad.L2)
	}
	im.HandleKey(Key1, false)
	if pad := im.Snapshot(); pad.L2 != 0 {
		t.Errorf("1 release L2: got %d, want 0", pad.L2)
	}
}

func TestRescaleStickAxis(t *testing.T) {
	cases := []struct {
		in     int16
		invert bool
		want   uint8
	}{
		{0, false, 128},
		{7999, false, 128},   // inside deadzone
		{-7999, false, 128},  // inside deadzone
		{32767, false, 255},  // full deflection
		{-32768, false, 0},   // full deflection
		{32767, true, 0},     // inverted
		{-32768, true, 255},  // inverted, MinInt16 handled
	}
	for _, c := range cases {
		if got := RescaleStickAxis(c.in, c.invert); got != c.want {
			t.Errorf("RescaleStickAxis(%d, %v): got %d, want %d",
				c.in, c.invert, got, c.want)
		}
	}
}

func TestRescaleTrigger(t *testing.T) {
	if got := RescaleTrigger(0); got != 0 {
		t.Errorf("trigger 0: got %d, want 0", got)
	}
	if got := RescaleTrigger(29); got != 0 {
		t.Errorf("trigger inside deadzone: got %d, want 0", got)
	}
	if got := RescaleTrigger(32767); got != 255 {
		t.Errorf("trigger full: got %d, want 255", got)
	}
}

func TestInputManager_ApplyGamepad(t *testing.T) {
	im := newTestInput()
	im.ApplyGamepad(PAD_BUTTON_CROSS|PAD_BUTTON_L1, 32767, 32767, 0, 0, 32767, 0)
	pad := im.Snapshot()

	if pad.Buttons != PAD_BUTTON_CROSS|PAD_BUTTON_L1 {
		t.Errorf("buttons: got 0x%X, want 0x%X",
			pad.Buttons, PAD_BUTTON_CROSS|PAD_BUTTON_L1)
	}
	if pad.LX != 255 {
		t.Errorf("LX: got %d, want 255", pad.LX)
	}
	if pad.LY != 0 {
		t.Errorf("LY inverted: got %d, want 0", pad.LY)
	}
	if pad.RX != 128 || pad.RY != 128 {
		t.Errorf("right stick at rest: got (%d,%d), want (128,128)", pad.RX, pad.RY)
	}
	if pad.L2 != 255 || pad.R2 != 0 {
		t.Errorf("triggers: got (%d,%d), want (255,0)", pad.L2, pad.R2)
	}
	if !im.HasInput() {
		t.Error("HasInput after gamepad: got false, want true")
	}

	im.Reset()
	if im.HasInput() {
		t.Error("HasInput after Reset: got true, want false")
	}
}

func TestEncodePadData_Layout(t *testing.T) {
	im := newTestInput()
	im.HandleKey(KeyK, true) // CROSS under the default layout
	buf := EncodePadData(im.Snapshot())
	le := binary.LittleEndian

	if got := le.Uint32(buf[0x00:]); got != PAD_BUTTON_CROSS {
		t.Errorf("buttons at 0x00: got 0x%X, want 0x%X", got, PAD_BUTTON_CROSS)
	}
	if buf[0x04] != 128 || buf[0x05] != 128 || buf[0x06] != 128 || buf[0x07] != 128 {
		t.Error("stick bytes at 0x04..0x07 not centered")
	}
	if buf[0x08] != 0 || buf[0x09] != 0 {
		t.Error("trigger bytes at 0x08..0x09 not zero")
	}
	// Identity quaternion w at 0x18 (1.0f little-endian = 00 00 80 3F).
	if got := le.Uint32(buf[0x18:]); got != 0x3F800000 {
		t.Errorf("orientation w: got 0x%08X, want 0x3F800000", got)
	}
	if got := le.Uint16(buf[0x34:]); got != 960 {
		t.Errorf("touch x: got %d, want 960", got)
	}
	if buf[0x4C] != 1 {
		t.Errorf("connected byte: got %d, want 1", buf[0x4C])
	}
	if buf[0x64] != 1 {
		t.Errorf("connected count: got %d, want 1", buf[0x64])
	}
	if got := le.Uint64(buf[0x50:]); got == 0 {
		t.Error("timestamp: got 0, want non-zero")
	}
}
