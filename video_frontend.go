//go:build !headless

// video_frontend.go - Ebiten host window, input capture and diagnostic view

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.design/x/clipboard"
	"golang.org/x/image/font/basicfont"
)

// keyBindings maps host keys onto the backend-neutral pad keys. Held-key
// transitions are detected per frame with inpututil.
var keyBindings = map[ebiten.Key]Key{
	ebiten.KeyArrowUp:    KeyUp,
	ebiten.KeyArrowDown:  KeyDown,
	ebiten.KeyArrowLeft:  KeyLeft,
	ebiten.KeyArrowRight: KeyRight,
	ebiten.KeyW:          KeyW,
	ebiten.KeyA:          KeyA,
	ebiten.KeyS:          KeyS,
	ebiten.KeyD:          KeyD,
	ebiten.KeyI:          KeyI,
	ebiten.KeyJ:          KeyJ,
	ebiten.KeyK:          KeyK,
	ebiten.KeyL:          KeyL,
	ebiten.KeyZ:          KeyZ,
	ebiten.KeyX:          KeyX,
	ebiten.KeyC:          KeyC,
	ebiten.KeyV:          KeyV,
	ebiten.KeyQ:          KeyQ,
	ebiten.KeyE:          KeyE,
	ebiten.KeyDigit1:     Key1,
	ebiten.KeyDigit3:     Key3,
	ebiten.KeyEnter:      KeyEnter,
	ebiten.KeyBackspace:  KeyBackspace,
	ebiten.KeyT:          KeyT,
	ebiten.KeyF:          KeyF,
	ebiten.KeyG:          KeyG,
}

// standardButtons pairs ebiten's standard gamepad layout with pad bits.
var standardButtons = []struct {
	btn ebiten.StandardGamepadButton
	bit uint32
}{
	{ebiten.StandardGamepadButtonRightBottom, PAD_BUTTON_CROSS},
	{ebiten.StandardGamepadButtonRightRight, PAD_BUTTON_CIRCLE},
	{ebiten.StandardGamepadButtonRightLeft, PAD_BUTTON_SQUARE},
	{ebiten.StandardGamepadButtonRightTop, PAD_BUTTON_TRIANGLE},
	{ebiten.StandardGamepadButtonLeftTop, PAD_BUTTON_UP},
	{ebiten.StandardGamepadButtonLeftBottom, PAD_BUTTON_DOWN},
	{ebiten.StandardGamepadButtonLeftLeft, PAD_BUTTON_LEFT},
	{ebiten.StandardGamepadButtonLeftRight, PAD_BUTTON_RIGHT},
	{ebiten.StandardGamepadButtonFrontTopLeft, PAD_BUTTON_L1},
	{ebiten.StandardGamepadButtonFrontTopRight, PAD_BUTTON_R1},
	{ebiten.StandardGamepadButtonFrontBottomLeft, PAD_BUTTON_L2},
	{ebiten.StandardGamepadButtonFrontBottomRight, PAD_BUTTON_R2},
	{ebiten.StandardGamepadButtonCenterLeft, PAD_BUTTON_SHARE},
	{ebiten.StandardGamepadButtonCenterRight, PAD_BUTTON_OPTIONS},
	{ebiten.StandardGamepadButtonLeftStick, PAD_BUTTON_L3},
	{ebiten.StandardGamepadButtonRightStick, PAD_BUTTON_R3},
	{ebiten.StandardGamepadButtonCenterCenter, PAD_BUTTON_TOUCHPAD},
}

// VideoFrontend is the host window. It drains the render queue each frame
// and draws a diagnostic command view until a real rasterizer exists.
type VideoFrontend struct {
	core *EmulatorCore

	mu            sync.RWMutex
	running       bool
	fullscreen    bool
	showStatusBar bool
	done          chan struct{}
	vsyncChan     chan struct{}

	frameCount   uint64
	lastCommands []RenderCommand
	lastDraws    int
	lastCompute  int

	gamepadID  ebiten.GamepadID
	hasGamepad bool
}

var (
	clipboardOnce sync.Once
	clipboardOK   bool
)

// copyTextToClipboard initializes the clipboard on first use and
// reports whether the write happened.
func copyTextToClipboard(data []byte) bool {
	clipboardOnce.Do(func() {
		clipboardOK = clipboard.Init() == nil
	})
	if !clipboardOK {
		return false
	}
	clipboard.Write(clipboard.FmtText, data)
	return true
}

func NewVideoFrontend(core *EmulatorCore, fullscreen bool) *VideoFrontend {
	return &VideoFrontend{
		core:          core,
		fullscreen:    fullscreen,
		showStatusBar: true,
		done:          make(chan struct{}),
		vsyncChan:     make(chan struct{}, 1),
	}
}

// Start opens the window on its own goroutine and blocks until the first
// frame has been drawn, so callers know the display is live.
func (vf *VideoFrontend) Start() error {
	vf.mu.Lock()
	if vf.running {
		vf.mu.Unlock()
		return nil
	}
	vf.running = true
	vf.mu.Unlock()

	ebiten.SetWindowSize(FRONTEND_WIDTH, FRONTEND_HEIGHT)
	ebiten.SetWindowTitle("WeaR-emu (c) 2025 - 2026 WeaR Team")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetRunnableOnUnfocused(true)
	ebiten.SetVsyncEnabled(true)
	if vf.fullscreen {
		ebiten.SetFullscreen(true)
	}

	go func() {
		defer func() {
			vf.mu.Lock()
			vf.running = false
			select {
			case <-vf.done:
			default:
				close(vf.done)
			}
			vf.mu.Unlock()
		}()
		if err := ebiten.RunGame(vf); err != nil && err != ebiten.Termination {
			vf.core.Logger().Errorf("Video", "frontend exited: %v", err)
		}
	}()

	<-vf.vsyncChan
	return nil
}

// Done closes when the window has shut down.
func (vf *VideoFrontend) Done() <-chan struct{} {
	vf.mu.RLock()
	defer vf.mu.RUnlock()
	return vf.done
}

// Shutdown asks the window loop to terminate on its next update.
func (vf *VideoFrontend) Shutdown() {
	vf.mu.Lock()
	vf.running = false
	vf.mu.Unlock()
}

func (vf *VideoFrontend) Update() error {
	if ebiten.IsWindowBeingClosed() {
		vf.core.Stop()
		return ebiten.Termination
	}
	vf.mu.RLock()
	running := vf.running
	vf.mu.RUnlock()
	if !running {
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		vf.core.Stop()
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF10) {
		vf.core.TogglePause()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		vf.mu.Lock()
		vf.fullscreen = !vf.fullscreen
		ebiten.SetFullscreen(vf.fullscreen)
		if !vf.fullscreen {
			ebiten.SetWindowSize(FRONTEND_WIDTH, FRONTEND_HEIGHT)
		}
		vf.mu.Unlock()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		vf.mu.Lock()
		vf.showStatusBar = !vf.showStatusBar
		vf.mu.Unlock()
	}

	ctrl := ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight)
	shift := ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight)
	if ctrl && shift && inpututil.IsKeyJustPressed(ebiten.KeyC) {
		vf.copySnapshotToClipboard()
	}

	if !vf.pollGamepad() {
		vf.pollKeyboard(ctrl, shift)
	}
	return nil
}

// pollKeyboard forwards held-key transitions to the input manager. Skipped
// while a chord is held so Ctrl+Shift+C does not leak a circle press.
func (vf *VideoFrontend) pollKeyboard(ctrl, shift bool) {
	if ctrl || shift {
		return
	}
	input := vf.core.Input()
	for hostKey, padKey := range keyBindings {
		if inpututil.IsKeyJustPressed(hostKey) {
			input.HandleKey(padKey, true)
		}
		if inpututil.IsKeyJustReleased(hostKey) {
			input.HandleKey(padKey, false)
		}
	}
}

// pollGamepad drives the pad from the first connected standard-layout
// gamepad. Reports whether a gamepad owns the input this frame.
func (vf *VideoFrontend) pollGamepad() bool {
	if vf.hasGamepad {
		for _, id := range inpututil.AppendJustDisconnectedGamepadIDs(nil) {
			if id == vf.gamepadID {
				vf.hasGamepad = false
				vf.core.Input().Reset()
				vf.core.Logger().Infof("Input", "gamepad disconnected, keyboard active")
			}
		}
	}
	if !vf.hasGamepad {
		ids := ebiten.AppendGamepadIDs(nil)
		for _, id := range ids {
			if ebiten.IsStandardGamepadLayoutAvailable(id) {
				vf.gamepadID = id
				vf.hasGamepad = true
				vf.core.Logger().Infof("Input", "gamepad %q active", ebiten.GamepadName(id))
				break
			}
		}
	}
	if !vf.hasGamepad {
		return false
	}

	id := vf.gamepadID
	var buttons uint32
	for _, b := range standardButtons {
		if ebiten.IsStandardGamepadButtonPressed(id, b.btn) {
			buttons |= b.bit
		}
	}
	axis := func(a ebiten.StandardGamepadAxis) int16 {
		return int16(ebiten.StandardGamepadAxisValue(id, a) * 32767)
	}
	trigger := func(b ebiten.StandardGamepadButton) int16 {
		return int16(ebiten.StandardGamepadButtonValue(id, b) * 32767)
	}
	vf.core.Input().ApplyGamepad(buttons,
		axis(ebiten.StandardGamepadAxisLeftStickHorizontal),
		axis(ebiten.StandardGamepadAxisLeftStickVertical),
		axis(ebiten.StandardGamepadAxisRightStickHorizontal),
		axis(ebiten.StandardGamepadAxisRightStickVertical),
		trigger(ebiten.StandardGamepadButtonFrontBottomLeft),
		trigger(ebiten.StandardGamepadButtonFrontBottomRight))
	return true
}

func (vf *VideoFrontend) copySnapshotToClipboard() {
	if copyTextToClipboard([]byte(formatCpuSnapshot(vf.core.CpuSnapshot()))) {
		vf.core.Logger().Infof("Video", "CPU snapshot copied to clipboard")
	}
}

func (vf *VideoFrontend) Draw(screen *ebiten.Image) {
	cmds := vf.core.Queue().PopAll()
	if len(cmds) > 0 {
		draws, compute := 0, 0
		for i := range cmds {
			switch cmds[i].Kind {
			case CmdDraw, CmdDrawIndexed:
				draws++
			case CmdComputeDispatch:
				compute++
			}
		}
		vf.mu.Lock()
		vf.lastCommands = cmds
		vf.lastDraws = draws
		vf.lastCompute = compute
		vf.mu.Unlock()
	}

	screen.Fill(color.RGBA{12, 12, 24, 255})
	vf.drawCommandView(screen)

	vf.mu.RLock()
	showBar := vf.showStatusBar
	vf.mu.RUnlock()
	if showBar {
		vf.drawStatusBar(screen)
	}

	vf.frameCount++
	select {
	case vf.vsyncChan <- struct{}{}:
	default:
	}
}

// drawCommandView lists the most recent frame's commands, a diagnostic
// stand-in for actual rasterization.
func (vf *VideoFrontend) drawCommandView(screen *ebiten.Image) {
	face := basicfont.Face7x13
	headColor := color.RGBA{120, 200, 255, 255}
	cmdColor := color.RGBA{200, 200, 200, 255}

	vf.mu.RLock()
	cmds := vf.lastCommands
	draws := vf.lastDraws
	compute := vf.lastCompute
	vf.mu.RUnlock()

	header := fmt.Sprintf("frame commands: %d (%d draws, %d dispatches)", len(cmds), draws, compute)
	text.Draw(screen, header, face, 10, 24, headColor)

	y := 44
	shown := 0
	for i := range cmds {
		if shown >= 40 {
			text.Draw(screen, fmt.Sprintf("... %d more", len(cmds)-shown), face, 10, y, cmdColor)
			break
		}
		c := &cmds[i]
		var line string
		switch c.Kind {
		case CmdDraw:
			line = fmt.Sprintf("Draw          vertices=%d instances=%d", c.VertexCount, c.InstanceCount)
		case CmdDrawIndexed:
			line = fmt.Sprintf("DrawIndexed   indices=%d base=0x%X type=%d", c.IndexCount, c.IndexBufferAddr, c.IndexType)
		case CmdComputeDispatch:
			line = fmt.Sprintf("Dispatch      groups=(%d,%d,%d)", c.GroupCountX, c.GroupCountY, c.GroupCountZ)
		case CmdEndFrame:
			line = "EndFrame      ----------------"
		default:
			line = c.Kind.String()
		}
		text.Draw(screen, line, face, 10, y, cmdColor)
		y += 14
		shown++
	}
}

func (vf *VideoFrontend) drawStatusBar(screen *ebiten.Image) {
	face := basicfont.Face7x13
	barHeight := 20
	w, h := screen.Bounds().Dx(), screen.Bounds().Dy()
	y := h - barHeight
	ebitenutil.DrawRect(screen, 0, float64(y), float64(w), float64(barHeight), color.RGBA{0, 0, 0, 200})

	stats := vf.core.Queue().Stats()
	status := fmt.Sprintf("%s | instr %d | frames %d | draws %d | %.0f fps",
		EmuStateName(vf.core.State()),
		vf.core.InstructionCount(),
		stats.FrameCount,
		stats.DrawCalls,
		ebiten.ActualFPS())
	text.Draw(screen, status, face, 6, y+14, color.RGBA{0, 220, 90, 255})

	legend := "F10 Pause  F11 Fullscreen  F12 Status  Esc Stop"
	legendW := text.BoundString(face, legend).Dx()
	x := w - legendW - 6
	if x < 6 {
		x = 6
	}
	text.Draw(screen, legend, face, x, y+14, color.RGBA{160, 160, 160, 255})
}

func (vf *VideoFrontend) Layout(_, _ int) (int, int) {
	return FRONTEND_WIDTH, FRONTEND_HEIGHT
}
