// emulator_core.go - Top-level emulator state machine and subsystem wiring

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// =============================================================================
// EMULATOR STATES
// =============================================================================

type EmuState int32

const (
	EmuIdle EmuState = iota
	EmuBooting
	EmuRunning
	EmuPaused
	EmuStopping
	EmuError
)

func EmuStateName(s EmuState) string {
	switch s {
	case EmuIdle:
		return "Idle"
	case EmuBooting:
		return "Booting"
	case EmuRunning:
		return "Running"
	case EmuPaused:
		return "Paused"
	case EmuStopping:
		return "Stopping"
	case EmuError:
		return "Error"
	default:
		return "Unknown"
	}
}

// CoreOptions selects what Initialize brings up. Audio stays off for
// tests and -mute runs; the host device is then never touched.
type CoreOptions struct {
	EnableAudio    bool
	KeyboardLayout KeyboardLayout
	MouseLook      bool
	MouseSens      float64
	Specs          Specs
}

// =============================================================================
// EMULATOR CORE
// =============================================================================

// EmulatorCore owns every subsystem and sequences them through the
// Idle/Booting/Running/Paused/Stopping/Error machine. All public methods
// are safe to call from the UI and monitor threads.
type EmulatorCore struct {
	log *Logger

	mem        *GuestMemory
	cpu        *CPU
	dispatcher *SyscallDispatcher
	vfs        *VFS
	audio      *AudioManager
	input      *InputManager
	queue      *RenderQueue
	parser     *GnmParser
	kernel     *kernelState

	specs Specs

	state atomic.Int32

	mu         sync.Mutex
	gamePath   string
	gameLoaded bool
	running    bool
	stateCb    func(EmuState)
	wg         sync.WaitGroup
}

func NewEmulatorCore(log *Logger) *EmulatorCore {
	return &EmulatorCore{log: log}
}

func (c *EmulatorCore) State() EmuState { return EmuState(c.state.Load()) }

// SetStateCallback installs the UI's transition observer. The callback
// runs on whichever thread caused the transition.
func (c *EmulatorCore) SetStateCallback(fn func(EmuState)) {
	c.mu.Lock()
	c.stateCb = fn
	c.mu.Unlock()
}

func (c *EmulatorCore) setState(s EmuState) {
	old := EmuState(c.state.Swap(int32(s)))
	if old == s {
		return
	}
	c.log.Infof("Core", "state %s -> %s", EmuStateName(old), EmuStateName(s))
	c.mu.Lock()
	cb := c.stateCb
	c.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// Initialize brings up the subsystems in dependency order: memory, CPU,
// dispatcher wiring, HLE registration, audio, input. Any failure lands
// in the Error state.
func (c *EmulatorCore) Initialize(opts CoreOptions) error {
	if c.State() != EmuIdle {
		return fmt.Errorf("initialize from %s state", EmuStateName(c.State()))
	}
	c.setState(EmuBooting)

	mem, err := NewGuestMemory(c.log)
	if err != nil {
		c.setState(EmuError)
		return fmt.Errorf("guest memory: %w", err)
	}
	c.mem = mem
	c.cpu = NewCPU(mem, c.log)

	c.dispatcher = NewSyscallDispatcher(c.log)
	c.cpu.SetSyscallHandler(c.dispatcher.Dispatch)

	c.vfs = NewVFS(c.log)
	c.input = NewInputManager(c.log)
	c.input.SetLayout(opts.KeyboardLayout)
	if opts.MouseLook {
		c.input.SetMouseLook(true, opts.MouseSens)
	}
	c.audio = NewAudioManager(c.log)
	c.queue = NewRenderQueue()
	c.parser = NewGnmParser(mem, c.queue, c.log)

	registerFSHandlers(c.dispatcher, c.vfs, c.log)
	c.kernel = registerKernelHandlers(c.dispatcher, c.onGuestExit, c.log)
	registerPadHandlers(c.dispatcher, c.input, c.log)
	registerAudioHandlers(c.dispatcher, c.audio, c.log)
	registerGnmHandlers(c.dispatcher, c.parser, c.queue, c.log)

	if opts.EnableAudio {
		c.audio.Init()
	}
	c.input.Reset()

	c.specs = opts.Specs
	c.setState(EmuIdle)
	c.log.Infof("Core", "initialized: %d syscall handlers, arena %d MiB",
		c.dispatcher.HandlerCount(), mem.Size()>>20)
	return nil
}

// onGuestExit runs on the CPU goroutine when the guest calls exit. It
// only flags the stop; the run goroutine's epilogue does the cleanup.
func (c *EmulatorCore) onGuestExit(status int32) {
	c.log.Infof("Core", "guest requested exit with status %d", status)
	c.cpu.Stop()
}

// =============================================================================
// GAME LOADING
// =============================================================================

// LoadGame loads a package or raw executable, mounts its directory and
// points the CPU at the entry. A panic anywhere in the parse chain lands
// in the Error state rather than taking the process down.
func (c *EmulatorCore) LoadGame(path string) (err error) {
	if c.mem == nil {
		return fmt.Errorf("core not initialized")
	}
	s := c.State()
	if s != EmuIdle {
		return fmt.Errorf("load from %s state", EmuStateName(s))
	}
	c.setState(EmuBooting)

	defer func() {
		if r := recover(); r != nil {
			c.setState(EmuError)
			err = fmt.Errorf("loader panic: %v", r)
		}
	}()

	abs, err := filepath.Abs(path)
	if err != nil {
		c.setState(EmuError)
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	dir := filepath.Dir(abs)
	if err := c.vfs.Mount("/app0", dir); err != nil {
		c.setState(EmuError)
		return fmt.Errorf("mount /app0: %w", err)
	}
	if err := c.vfs.Mount("/hostapp", dir); err != nil {
		c.setState(EmuError)
		return fmt.Errorf("mount /hostapp: %w", err)
	}

	var result ElfLoadResult
	pkg := NewPkgLoader(c.log)
	if info, perr := pkg.LoadPackage(abs); perr == nil {
		c.log.Infof("Core", "package %q (%d entries)", info.ContentID, info.EntryCount)
		eboot, eerr := pkg.ExtractEboot()
		if eerr != nil {
			c.setState(EmuError)
			return fmt.Errorf("extract executable: %w", eerr)
		}
		result, err = LoadELFFromBytes(eboot, c.mem, c.log)
	} else {
		result, err = LoadELF(abs, c.mem, c.log)
	}
	if err != nil {
		c.setState(EmuError)
		return fmt.Errorf("load executable: %w", err)
	}

	c.cpu.Reset()
	c.cpu.WithContext(func(ctx *Context) {
		ctx.RIP = result.EntryPoint
		ctx.GPR[RSP] = STACK_TOP - 0x1000
		ctx.GPR[RBP] = ctx.GPR[RSP]
	})

	c.mu.Lock()
	c.gamePath = abs
	c.gameLoaded = true
	c.mu.Unlock()

	c.setState(EmuIdle)
	c.log.Infof("Core", "game ready: entry=0x%X", result.EntryPoint)
	return nil
}

// LoadInternalBios installs the built-in boot program instead of a game.
func (c *EmulatorCore) LoadInternalBios() error {
	if c.mem == nil {
		return fmt.Errorf("core not initialized")
	}
	if s := c.State(); s != EmuIdle {
		return fmt.Errorf("load from %s state", EmuStateName(s))
	}

	c.cpu.Reset()
	entry, err := LoadInternalBios(c.mem, c.cpu, c.log)
	if err != nil {
		c.setState(EmuError)
		return err
	}

	c.mu.Lock()
	c.gamePath = "<internal bios>"
	c.gameLoaded = true
	c.mu.Unlock()
	c.log.Infof("Core", "internal BIOS ready: entry=0x%X", entry)
	return nil
}

// =============================================================================
// RUN CONTROL
// =============================================================================

// Run starts (or resumes) guest execution on a dedicated goroutine.
func (c *EmulatorCore) Run() error {
	c.mu.Lock()
	loaded := c.gameLoaded
	live := c.running
	c.mu.Unlock()

	if !loaded {
		return fmt.Errorf("nothing loaded")
	}

	switch c.State() {
	case EmuPaused:
		if live {
			c.cpu.Resume()
			c.setState(EmuRunning)
			return nil
		}
	case EmuIdle:
	default:
		return fmt.Errorf("run from %s state", EmuStateName(c.State()))
	}

	c.mu.Lock()
	c.running = true
	c.wg.Add(1)
	c.mu.Unlock()

	c.setState(EmuRunning)
	go func() {
		defer c.wg.Done()
		c.cpu.RunLoop()

		c.mu.Lock()
		c.running = false
		c.mu.Unlock()

		switch c.cpu.State() {
		case CpuFaulted:
			c.setState(EmuError)
		default:
			// Guest exit or halt while nobody called Stop.
			if c.State() == EmuRunning || c.State() == EmuPaused {
				c.setState(EmuIdle)
			}
		}
	}()
	return nil
}

func (c *EmulatorCore) Pause() {
	if c.State() != EmuRunning {
		return
	}
	c.cpu.Pause()
	c.setState(EmuPaused)
}

func (c *EmulatorCore) TogglePause() {
	switch c.State() {
	case EmuRunning:
		c.Pause()
	case EmuPaused:
		_ = c.Run()
	}
}

// Stop halts the CPU goroutine, waits for it, and returns to Idle with
// the machine reset. Safe to call repeatedly.
func (c *EmulatorCore) Stop() {
	c.mu.Lock()
	live := c.running
	c.mu.Unlock()

	if live {
		c.setState(EmuStopping)
		c.cpu.Resume() // a paused loop must wake to see the stop flag
		c.cpu.Stop()
	}
	c.wg.Wait()

	if c.cpu != nil {
		c.cpu.Reset()
	}
	if c.input != nil {
		c.input.Reset()
	}
	if c.queue != nil {
		c.queue.Clear()
	}

	c.mu.Lock()
	c.gamePath = ""
	c.gameLoaded = false
	c.mu.Unlock()
	c.setState(EmuIdle)
}

// Shutdown tears the core down for process exit.
func (c *EmulatorCore) Shutdown() {
	c.Stop()
	if c.audio != nil {
		c.audio.Shutdown()
	}
	if c.vfs != nil {
		c.vfs.CloseAll()
	}
	if c.mem != nil {
		c.mem.Close()
		c.mem = nil
	}
	c.log.Infof("Core", "shutdown complete")
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (c *EmulatorCore) CpuSnapshot() Context { return c.cpu.Snapshot() }

func (c *EmulatorCore) InstructionCount() uint64 {
	if c.cpu == nil {
		return 0
	}
	return c.cpu.InstructionCount()
}

func (c *EmulatorCore) GamePath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gamePath
}

func (c *EmulatorCore) IsGameLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameLoaded
}

func (c *EmulatorCore) Specs() Specs { return c.specs }

// Subsystem handles for the monitor and the frontend.
func (c *EmulatorCore) CPU() *CPU                      { return c.cpu }
func (c *EmulatorCore) Memory() *GuestMemory           { return c.mem }
func (c *EmulatorCore) Dispatcher() *SyscallDispatcher { return c.dispatcher }
func (c *EmulatorCore) VFS() *VFS                      { return c.vfs }
func (c *EmulatorCore) Audio() *AudioManager           { return c.audio }
func (c *EmulatorCore) Input() *InputManager           { return c.input }
func (c *EmulatorCore) Queue() *RenderQueue            { return c.queue }
func (c *EmulatorCore) Kernel() *kernelState           { return c.kernel }
func (c *EmulatorCore) Logger() *Logger                { return c.log }
