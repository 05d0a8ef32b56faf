// debug_monitor.go - Interactive machine monitor on raw stdin

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
)

const MONITOR_PROMPT = "wear> "

// DebugMonitor is the interactive debugger. It owns raw stdin while
// active; command execution is separated from terminal handling so the
// command set works without a TTY.
type DebugMonitor struct {
	core *EmulatorCore
	out  io.Writer

	fd          int
	oldState    *term.State
	nonblockSet bool

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	line []byte
}

func NewDebugMonitor(core *EmulatorCore, out io.Writer) *DebugMonitor {
	if out == nil {
		out = os.Stdout
	}
	return &DebugMonitor{
		core:   core,
		out:    out,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start switches stdin to raw non-blocking mode and begins the read
// loop. Stop restores the terminal.
func (m *DebugMonitor) Start() error {
	m.fd = int(os.Stdin.Fd())

	oldState, err := term.MakeRaw(m.fd)
	if err != nil {
		close(m.done)
		return fmt.Errorf("monitor: raw mode: %w", err)
	}
	m.oldState = oldState

	if err := syscall.SetNonblock(m.fd, true); err != nil {
		_ = term.Restore(m.fd, m.oldState)
		m.oldState = nil
		close(m.done)
		return fmt.Errorf("monitor: nonblocking stdin: %w", err)
	}
	m.nonblockSet = true

	fmt.Fprintf(m.out, "WeaR-emu monitor, 'help' for commands\r\n%s", MONITOR_PROMPT)

	go func() {
		defer close(m.done)
		buf := make([]byte, 1)

		for {
			select {
			case <-m.stopCh:
				return
			default:
			}

			n, err := syscall.Read(m.fd, buf)
			if n > 0 {
				if m.handleByte(buf[0]) {
					return
				}
				continue
			}
			if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if err != nil {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	return nil
}

// Stop ends the read loop and restores the terminal. Safe to call more
// than once.
func (m *DebugMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.done
	if m.nonblockSet {
		_ = syscall.SetNonblock(m.fd, false)
		m.nonblockSet = false
	}
	if m.oldState != nil {
		_ = term.Restore(m.fd, m.oldState)
		m.oldState = nil
	}
}

func (m *DebugMonitor) Done() <-chan struct{} { return m.done }

// handleByte applies one raw input byte: echo, backspace, CR to LF
// translation. Returns true when the session should end.
func (m *DebugMonitor) handleByte(b byte) bool {
	switch b {
	case '\r', '\n':
		fmt.Fprint(m.out, "\r\n")
		line := strings.TrimSpace(string(m.line))
		m.line = m.line[:0]
		if line != "" {
			output, quit := m.Execute(line)
			if output != "" {
				fmt.Fprint(m.out, strings.ReplaceAll(output, "\n", "\r\n"))
			}
			if quit {
				return true
			}
		}
		fmt.Fprint(m.out, MONITOR_PROMPT)
	case 0x7F, 0x08:
		if len(m.line) > 0 {
			m.line = m.line[:len(m.line)-1]
			fmt.Fprint(m.out, "\b \b")
		}
	default:
		if b >= 0x20 && b < 0x7F {
			m.line = append(m.line, b)
			fmt.Fprintf(m.out, "%c", b)
		}
	}
	return false
}

// =============================================================================
// COMMAND EXECUTION
// =============================================================================

// Execute runs one monitor command line and returns its output plus
// whether the monitor should exit.
func (m *DebugMonitor) Execute(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help", "?":
		return monitorHelpText, false
	case "regs":
		return formatCpuSnapshot(m.core.CpuSnapshot()), false
	case "peek":
		return m.cmdPeek(args), false
	case "poke":
		return m.cmdPoke(args), false
	case "disasm":
		return m.cmdDisasm(args), false
	case "step":
		return m.cmdStep(args), false
	case "pause":
		m.core.Pause()
		return "paused\n", false
	case "resume":
		if err := m.core.Run(); err != nil {
			return fmt.Sprintf("resume: %v\n", err), false
		}
		return "running\n", false
	case "stop":
		m.core.Stop()
		return "stopped\n", false
	case "state":
		return fmt.Sprintf("%s (cpu %s)\n",
			EmuStateName(m.core.State()), CpuStateName(m.core.CPU().State())), false
	case "stats":
		return m.cmdStats(), false
	case "mounts":
		return m.cmdMounts(), false
	case "log":
		return m.cmdLog(args), false
	case "copy":
		if copyTextToClipboard([]byte(formatCpuSnapshot(m.core.CpuSnapshot()))) {
			return "snapshot copied\n", false
		}
		return "clipboard unavailable\n", false
	case "script":
		if len(args) != 1 {
			return "usage: script file.lua\n", false
		}
		return m.runScript(args[0]), false
	case "quit", "exit":
		return "bye\n", true
	default:
		return fmt.Sprintf("unknown command %q, try 'help'\n", cmd), false
	}
}

const monitorHelpText = `commands:
  regs                 dump CPU context
  peek addr [n]        hex dump n bytes (default 64)
  poke addr b [b...]   write bytes
  disasm [addr] [n]    opcode names from addr (default RIP)
  step [n]             single-step n instructions (default 1)
  pause / resume       freeze or continue the guest
  stop                 stop the guest and reset
  state                emulator and CPU state
  stats                instruction, syscall, queue, VFS and audio counters
  mounts               VFS mount table
  log level            set log level (debug/info/warning/error)
  copy                 copy CPU snapshot to clipboard
  script file.lua      run a Lua script against the machine
  quit                 leave the monitor
`

func parseGuestAddr(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

func (m *DebugMonitor) cmdPeek(args []string) string {
	if len(args) < 1 {
		return "usage: peek addr [n]\n"
	}
	addr, err := parseGuestAddr(args[0])
	if err != nil {
		return fmt.Sprintf("bad address %q\n", args[0])
	}
	count := 64
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 && n <= 4096 {
			count = n
		}
	}

	buf := make([]byte, count)
	if err := m.core.Memory().ReadBlock(addr, buf); err != nil {
		return fmt.Sprintf("read failed: %v\n", err)
	}

	var sb strings.Builder
	for off := 0; off < count; off += 16 {
		end := off + 16
		if end > count {
			end = count
		}
		fmt.Fprintf(&sb, "%016X  ", addr+uint64(off))
		for i := off; i < end; i++ {
			fmt.Fprintf(&sb, "%02X ", buf[i])
		}
		for i := end; i < off+16; i++ {
			sb.WriteString("   ")
		}
		sb.WriteString(" ")
		for i := off; i < end; i++ {
			c := buf[i]
			if c < 0x20 || c >= 0x7F {
				c = '.'
			}
			sb.WriteByte(c)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *DebugMonitor) cmdPoke(args []string) string {
	if len(args) < 2 {
		return "usage: poke addr byte [byte...]\n"
	}
	addr, err := parseGuestAddr(args[0])
	if err != nil {
		return fmt.Sprintf("bad address %q\n", args[0])
	}
	data := make([]byte, 0, len(args)-1)
	for _, a := range args[1:] {
		v, err := strconv.ParseUint(a, 0, 8)
		if err != nil {
			return fmt.Sprintf("bad byte %q\n", a)
		}
		data = append(data, byte(v))
	}
	if err := m.core.Memory().WriteBlock(addr, data); err != nil {
		return fmt.Sprintf("write failed: %v\n", err)
	}
	return fmt.Sprintf("wrote %d bytes at 0x%X\n", len(data), addr)
}

func (m *DebugMonitor) cmdDisasm(args []string) string {
	addr := m.core.CpuSnapshot().RIP
	if len(args) > 0 {
		a, err := parseGuestAddr(args[0])
		if err != nil {
			return fmt.Sprintf("bad address %q\n", args[0])
		}
		addr = a
	}
	count := 16
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[1]); err == nil && n > 0 && n <= 256 {
			count = n
		}
	}

	var sb strings.Builder
	for i := 0; i < count; i++ {
		b, err := m.core.Memory().ReadU8(addr)
		if err != nil {
			fmt.Fprintf(&sb, "%016X  <fault>\n", addr)
			break
		}
		fmt.Fprintf(&sb, "%016X  %02X  %s\n", addr, b, opcodeMnemonic(b))
		addr++
	}
	return sb.String()
}

func (m *DebugMonitor) cmdStep(args []string) string {
	n := 1
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 && v <= 1_000_000 {
			n = v
		}
	}
	if m.core.State() == EmuRunning {
		return "pause first\n"
	}
	cpu := m.core.CPU()
	executed := 0
	for i := 0; i < n; i++ {
		if cpu.Step() == 0 {
			break
		}
		executed++
	}
	ctx := cpu.Snapshot()
	return fmt.Sprintf("stepped %d, RIP=0x%X (%s)\n",
		executed, ctx.RIP, CpuStateName(cpu.State()))
}

func (m *DebugMonitor) cmdStats() string {
	qs := m.core.Queue().Stats()
	var sb strings.Builder
	fmt.Fprintf(&sb, "instructions : %d\n", m.core.InstructionCount())
	fmt.Fprintf(&sb, "syscalls     : %d (%d unimplemented)\n",
		m.core.Dispatcher().TotalCalls(), m.core.Dispatcher().UnimplementedCount())
	fmt.Fprintf(&sb, "queue        : %d frames, %d draws, %d dispatches\n",
		qs.FrameCount, qs.DrawCalls, qs.DispatchCalls)
	fmt.Fprintf(&sb, "vfs          : %d open files\n", m.core.VFS().OpenFileCount())
	fmt.Fprintf(&sb, "audio        : %d ports, %d grains output\n",
		m.core.Audio().OpenPortCount(), m.core.Audio().TotalFramesOutput())
	if k := m.core.Kernel(); k != nil {
		fmt.Fprintf(&sb, "guest heap   : %d KiB\n", k.HeapUsed()>>10)
	}
	return sb.String()
}

func (m *DebugMonitor) cmdMounts() string {
	mounts := m.core.VFS().Mounts()
	if len(mounts) == 0 {
		return "no mounts\n"
	}
	prefixes := make([]string, 0, len(mounts))
	for p := range mounts {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	var sb strings.Builder
	for _, p := range prefixes {
		fmt.Fprintf(&sb, "%-12s -> %s\n", p, mounts[p])
	}
	return sb.String()
}

func (m *DebugMonitor) cmdLog(args []string) string {
	if len(args) != 1 {
		return "usage: log debug|info|warning|error\n"
	}
	m.core.Logger().SetMinLevel(ParseLogLevel(args[0]))
	return fmt.Sprintf("log level %s\n", args[0])
}

// =============================================================================
// FORMATTING
// =============================================================================

// formatCpuSnapshot renders the context dump shared by regs, copy and
// the frontend clipboard chord.
func formatCpuSnapshot(ctx Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "RIP=0x%016X RFLAGS=0x%08X\n", ctx.RIP, ctx.RFLAGS)
	for i := 0; i < 16; i++ {
		fmt.Fprintf(&sb, "%-3s=0x%016X", RegisterName(i), ctx.GPR[i])
		if i%2 == 1 {
			sb.WriteString("\n")
		} else {
			sb.WriteString("  ")
		}
	}
	return sb.String()
}

// opcodeMnemonic names the single-byte opcodes the interpreter handles.
// Anything else shows as a raw data byte.
func opcodeMnemonic(op byte) string {
	switch {
	case op == 0x90:
		return "NOP"
	case op == 0xC3:
		return "RET"
	case op == 0xC7:
		return "MOV rm, imm32"
	case op == 0xE8:
		return "CALL rel32"
	case op == 0xE9:
		return "JMP rel32"
	case op == 0xEB:
		return "JMP rel8"
	case op == 0x74:
		return "JE rel8"
	case op == 0x75:
		return "JNE rel8"
	case op == 0xF4:
		return "HLT"
	case op == 0xF3:
		return "REP/PAUSE prefix"
	case op == 0x0F:
		return "two-byte escape"
	case op == 0x89:
		return "MOV rm, r"
	case op == 0x8B:
		return "MOV r, rm"
	case op == 0x01:
		return "ADD rm, r"
	case op == 0x29:
		return "SUB rm, r"
	case op == 0x31:
		return "XOR rm, r"
	case op == 0x39:
		return "CMP rm, r"
	case op == 0x85:
		return "TEST rm, r"
	case op >= 0x50 && op <= 0x57:
		return "PUSH " + RegisterName(int(op-0x50))
	case op >= 0x58 && op <= 0x5F:
		return "POP " + RegisterName(int(op-0x58))
	case op >= 0xB8 && op <= 0xBF:
		return "MOV " + RegisterName(int(op-0xB8)) + ", imm"
	case op >= 0x40 && op <= 0x4F:
		return "REX prefix"
	default:
		return fmt.Sprintf("db 0x%02X", op)
	}
}
