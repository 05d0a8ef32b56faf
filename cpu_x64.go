// cpu_x64.go - x86-64 guest interpreter
//
// Decode-and-dispatch interpreter for the subset of x86-64 the guest
// boot paths exercise. Unknown opcodes are logged once and skipped; the
// decode surface grows as guests demand it.

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// REGISTERS AND FLAGS
// =============================================================================

// GPR indices in hardware encoding order, so REX.B/R extensions are a
// plain +8.
const (
	RAX = 0
	RCX = 1
	RDX = 2
	RBX = 3
	RSP = 4
	RBP = 5
	RSI = 6
	RDI = 7
	R8  = 8
	R9  = 9
	R10 = 10
	R11 = 11
	R12 = 12
	R13 = 13
	R14 = 14
	R15 = 15
)

var registerNames = [16]string{
	"RAX", "RCX", "RDX", "RBX", "RSP", "RBP", "RSI", "RDI",
	"R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15",
}

func RegisterName(i int) string {
	if i < 0 || i > 15 {
		return "R??"
	}
	return registerNames[i]
}

const (
	FLAG_CF = 1 << 0
	FLAG_PF = 1 << 2
	FLAG_AF = 1 << 4
	FLAG_ZF = 1 << 6
	FLAG_SF = 1 << 7
	FLAG_IF = 1 << 9
	FLAG_DF = 1 << 10
	FLAG_OF = 1 << 11
)

const (
	RFLAGS_RESET = 0x202
	MXCSR_RESET  = 0x1F80
)

// Context is the full architectural state. Snapshot returns it by value;
// nothing outside the CPU holds a live pointer across a step.
type Context struct {
	GPR    [16]uint64
	RIP    uint64
	RFLAGS uint64
	XMM    [16][16]byte
	MXCSR  uint32

	CS, SS, DS, ES, FS, GS uint16
}

func (c *Context) Reset() {
	*c = Context{}
	c.RFLAGS = RFLAGS_RESET
	c.MXCSR = MXCSR_RESET
}

// =============================================================================
// CPU STATES
// =============================================================================

type CpuState int32

const (
	CpuStopped CpuState = iota
	CpuRunning
	CpuPaused
	CpuHalted
	CpuFaulted
)

func CpuStateName(s CpuState) string {
	switch s {
	case CpuStopped:
		return "Stopped"
	case CpuRunning:
		return "Running"
	case CpuPaused:
		return "Paused"
	case CpuHalted:
		return "Halted"
	case CpuFaulted:
		return "Faulted"
	default:
		return "Unknown"
	}
}

// =============================================================================
// CPU
// =============================================================================

// SyscallHook runs on the CPU goroutine with the context locked. The
// dispatcher reads the number from RAX and writes the result back.
type SyscallHook func(ctx *Context, mem *GuestMemory)

type CPU struct {
	mem *GuestMemory
	log *Logger

	mu  sync.Mutex // guards ctx and per-instruction decode state
	ctx Context

	state   atomic.Int32
	stopReq atomic.Bool

	instructions atomic.Uint64
	lastOpcode   atomic.Uint32

	syscall SyscallHook

	// Per-instruction decode state, valid only inside execOne.
	rex    byte
	hasRex bool
	repF3  bool

	unknownMu   sync.Mutex
	unknownSeen map[uint16]bool

	ops [256]func(*CPU) error
}

func NewCPU(mem *GuestMemory, log *Logger) *CPU {
	c := &CPU{
		mem:         mem,
		log:         log,
		unknownSeen: make(map[uint16]bool),
	}
	c.ctx.Reset()
	c.initDispatch()
	return c
}

func (c *CPU) SetSyscallHandler(fn SyscallHook) { c.syscall = fn }

func (c *CPU) State() CpuState { return CpuState(c.state.Load()) }

func (c *CPU) InstructionCount() uint64 { return c.instructions.Load() }

func (c *CPU) LastOpcode() uint32 { return c.lastOpcode.Load() }

// Snapshot returns the architectural state by value, safe from any thread.
func (c *CPU) Snapshot() Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// WithContext runs fn with exclusive access to the live context. Loaders
// use it to install RIP/RSP; never call it from a syscall handler.
func (c *CPU) WithContext(fn func(*Context)) {
	c.mu.Lock()
	fn(&c.ctx)
	c.mu.Unlock()
}

// Reset returns the CPU to power-on state. Only valid while not running.
func (c *CPU) Reset() {
	c.mu.Lock()
	c.ctx.Reset()
	c.mu.Unlock()
	c.instructions.Store(0)
	c.lastOpcode.Store(0)
	c.stopReq.Store(false)
	c.state.Store(int32(CpuStopped))
}

// =============================================================================
// RUN CONTROL (lock-free, callable from any thread)
// =============================================================================

func (c *CPU) Pause() {
	c.state.CompareAndSwap(int32(CpuRunning), int32(CpuPaused))
}

func (c *CPU) Resume() {
	c.state.CompareAndSwap(int32(CpuPaused), int32(CpuRunning))
}

func (c *CPU) Stop() {
	c.stopReq.Store(true)
}

// RunLoop drives Step until stop is requested or a step returns 0. It
// refuses to start from Halted or Faulted; Reset first.
func (c *CPU) RunLoop() {
	s := c.State()
	if s == CpuHalted || s == CpuFaulted {
		c.log.Warnf("CPU", "run refused from %s state", CpuStateName(s))
		return
	}
	c.state.Store(int32(CpuRunning))
	c.log.Infof("CPU", "run loop entered at RIP=0x%X", c.Snapshot().RIP)

	for !c.stopReq.Load() {
		if c.State() == CpuPaused {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if c.Step() == 0 {
			break
		}
	}

	if c.State() == CpuRunning {
		c.state.Store(int32(CpuStopped))
	}
	c.stopReq.Store(false)
	c.log.Infof("CPU", "run loop exited after %d instructions (%s)",
		c.instructions.Load(), CpuStateName(c.State()))
}

// Step executes one instruction. Returns the cycle estimate (1), or 0 on
// halt or fault.
func (c *CPU) Step() uint32 {
	s := c.State()
	if s == CpuHalted || s == CpuFaulted {
		return 0
	}

	c.mu.Lock()
	rip := c.ctx.RIP
	err := c.execOne()
	c.mu.Unlock()

	if err != nil {
		c.log.Errorf("CPU", "fault at RIP=0x%X: %v", rip, err)
		c.state.Store(int32(CpuFaulted))
		return 0
	}
	c.instructions.Add(1)
	if c.State() == CpuHalted {
		return 0
	}
	return 1
}

// =============================================================================
// FETCH HELPERS
// =============================================================================

func (c *CPU) fetch8() (byte, error) {
	b, err := c.mem.ReadU8(c.ctx.RIP)
	if err != nil {
		return 0, err
	}
	c.ctx.RIP++
	return b, nil
}

func (c *CPU) fetch32() (uint32, error) {
	v, err := c.mem.ReadU32(c.ctx.RIP)
	if err != nil {
		return 0, err
	}
	c.ctx.RIP += 4
	return v, nil
}

func (c *CPU) fetch64() (uint64, error) {
	v, err := c.mem.ReadU64(c.ctx.RIP)
	if err != nil {
		return 0, err
	}
	c.ctx.RIP += 8
	return v, nil
}

func (c *CPU) rexW() bool { return c.hasRex && c.rex&0x08 != 0 }
func (c *CPU) rexR() byte { return (c.rex >> 2) & 1 }
func (c *CPU) rexX() byte { return (c.rex >> 1) & 1 }
func (c *CPU) rexB() byte { return c.rex & 1 }

// =============================================================================
// EXECUTION
// =============================================================================

func (c *CPU) execOne() error {
	c.rex = 0
	c.hasRex = false
	c.repF3 = false

	op, err := c.fetch8()
	if err != nil {
		return err
	}
	if op == 0xF3 {
		c.repF3 = true
		op, err = c.fetch8()
		if err != nil {
			return err
		}
	}
	if op >= 0x40 && op <= 0x4F {
		c.rex = op
		c.hasRex = true
		op, err = c.fetch8()
		if err != nil {
			return err
		}
	}

	c.lastOpcode.Store(uint32(op))
	if op == 0x0F {
		return c.execTwoByte()
	}
	if fn := c.ops[op]; fn != nil {
		return fn(c)
	}
	c.unknownOpcode(uint16(op))
	return nil
}

func (c *CPU) execTwoByte() error {
	op2, err := c.fetch8()
	if err != nil {
		return err
	}
	c.lastOpcode.Store(0x0F00 | uint32(op2))
	switch op2 {
	case 0x05: // SYSCALL
		if c.syscall != nil {
			c.syscall(&c.ctx, c.mem)
		} else {
			c.log.Warnf("CPU", "SYSCALL with no dispatcher attached")
		}
		return nil
	case 0x1F: // multi-byte NOP, consumes its ModRM
		_, err := c.fetchModRM()
		return err
	default:
		c.unknownOpcode(0x0F00 | uint16(op2))
		return nil
	}
}

// unknownOpcode logs each distinct opcode once, then stays silent about
// it. Skipping keeps boot exploration alive; a wrong-length skip will
// surface as a fault soon after.
func (c *CPU) unknownOpcode(op uint16) {
	c.unknownMu.Lock()
	seen := c.unknownSeen[op]
	if !seen {
		c.unknownSeen[op] = true
	}
	c.unknownMu.Unlock()
	if !seen {
		c.log.Warnf("CPU", "unknown opcode 0x%02X at RIP=0x%X, skipping", op, c.ctx.RIP)
	}
}

// =============================================================================
// MODRM DECODING
// =============================================================================

type modRM struct {
	mod, reg, rm byte
	isReg        bool
	addr         uint64
}

func (c *CPU) fetchModRM() (modRM, error) {
	b, err := c.fetch8()
	if err != nil {
		return modRM{}, err
	}
	m := modRM{
		mod: b >> 6,
		reg: (b>>3)&7 | c.rexR()<<3,
		rm:  b&7 | c.rexB()<<3,
	}
	if m.mod == 3 {
		m.isReg = true
		return m, nil
	}

	rmLow := b & 7
	var base uint64
	haveBase := true

	if rmLow == 4 { // SIB
		sib, err := c.fetch8()
		if err != nil {
			return modRM{}, err
		}
		scale := sib >> 6
		idx := (sib>>3)&7 | c.rexX()<<3
		sibBase := sib&7 | c.rexB()<<3

		if sib&7 == 5 && m.mod == 0 {
			haveBase = false
		} else {
			base = c.ctx.GPR[sibBase]
		}
		if idx != 4 { // index 4 means none
			base += c.ctx.GPR[idx] << scale
		}
	} else if rmLow == 5 && m.mod == 0 {
		// RIP-relative: displacement against the next instruction.
		disp, err := c.fetch32()
		if err != nil {
			return modRM{}, err
		}
		m.addr = c.ctx.RIP + uint64(int64(int32(disp)))
		return m, nil
	} else {
		base = c.ctx.GPR[m.rm]
	}

	switch m.mod {
	case 1:
		d, err := c.fetch8()
		if err != nil {
			return modRM{}, err
		}
		base += uint64(int64(int8(d)))
	case 2:
		d, err := c.fetch32()
		if err != nil {
			return modRM{}, err
		}
		base += uint64(int64(int32(d)))
	case 0:
		if !haveBase {
			d, err := c.fetch32()
			if err != nil {
				return modRM{}, err
			}
			base = uint64(int64(int32(d)))
		}
	}
	m.addr = base
	return m, nil
}

// setReg writes a register with the operand-size rule: 32-bit writes
// zero-extend, 64-bit writes are full width.
func (c *CPU) setReg(r byte, v uint64, wide bool) {
	if wide {
		c.ctx.GPR[r] = v
	} else {
		c.ctx.GPR[r] = uint64(uint32(v))
	}
}

func (c *CPU) readRM(m modRM, wide bool) (uint64, error) {
	if m.isReg {
		v := c.ctx.GPR[m.rm]
		if !wide {
			v = uint64(uint32(v))
		}
		return v, nil
	}
	if wide {
		return c.mem.ReadU64(m.addr)
	}
	v, err := c.mem.ReadU32(m.addr)
	return uint64(v), err
}

func (c *CPU) writeRM(m modRM, v uint64, wide bool) error {
	if m.isReg {
		c.setReg(m.rm, v, wide)
		return nil
	}
	if wide {
		return c.mem.WriteU64(m.addr, v)
	}
	return c.mem.WriteU32(m.addr, uint32(v))
}

// =============================================================================
// FLAGS
// =============================================================================

func parityEven(b byte) bool {
	b ^= b >> 4
	b ^= b >> 2
	b ^= b >> 1
	return b&1 == 0
}

func signBit(v uint64, wide bool) bool {
	if wide {
		return v&(1<<63) != 0
	}
	return v&(1<<31) != 0
}

func (c *CPU) setFlag(bit uint64, on bool) {
	if on {
		c.ctx.RFLAGS |= bit
	} else {
		c.ctx.RFLAGS &^= bit
	}
}

func (c *CPU) flag(bit uint64) bool { return c.ctx.RFLAGS&bit != 0 }

func (c *CPU) setZSP(r uint64, wide bool) {
	if !wide {
		r = uint64(uint32(r))
	}
	c.setFlag(FLAG_ZF, r == 0)
	c.setFlag(FLAG_SF, signBit(r, wide))
	c.setFlag(FLAG_PF, parityEven(byte(r)))
}

func (c *CPU) setFlagsLogic(r uint64, wide bool) {
	c.setZSP(r, wide)
	c.setFlag(FLAG_CF, false)
	c.setFlag(FLAG_OF, false)
}

func (c *CPU) setFlagsAdd(a, b, r uint64, wide bool) {
	c.setZSP(r, wide)
	if !wide {
		a, b, r = uint64(uint32(a)), uint64(uint32(b)), uint64(uint32(r))
	}
	c.setFlag(FLAG_CF, r < a)
	c.setFlag(FLAG_OF, signBit(a, wide) == signBit(b, wide) && signBit(r, wide) != signBit(a, wide))
}

func (c *CPU) setFlagsSub(a, b, r uint64, wide bool) {
	c.setZSP(r, wide)
	if !wide {
		a, b, r = uint64(uint32(a)), uint64(uint32(b)), uint64(uint32(r))
	}
	c.setFlag(FLAG_CF, a < b)
	c.setFlag(FLAG_OF, signBit(a, wide) != signBit(b, wide) && signBit(r, wide) != signBit(a, wide))
}

// =============================================================================
// STACK
// =============================================================================

func (c *CPU) push64(v uint64) error {
	c.ctx.GPR[RSP] -= 8
	return c.mem.WriteU64(c.ctx.GPR[RSP], v)
}

func (c *CPU) pop64() (uint64, error) {
	v, err := c.mem.ReadU64(c.ctx.GPR[RSP])
	if err != nil {
		return 0, err
	}
	c.ctx.GPR[RSP] += 8
	return v, nil
}

// =============================================================================
// DISPATCH TABLE
// =============================================================================

func (c *CPU) initDispatch() {
	// MOV reg, imm (0xB8+r): imm64 under REX.W, imm32 otherwise. REX.B
	// extends the register in both forms.
	for r := byte(0); r < 8; r++ {
		reg := r
		c.ops[0xB8+r] = func(c *CPU) error {
			dst := reg | c.rexB()<<3
			if c.rexW() {
				v, err := c.fetch64()
				if err != nil {
					return err
				}
				c.ctx.GPR[dst] = v
				return nil
			}
			v, err := c.fetch32()
			if err != nil {
				return err
			}
			c.ctx.GPR[dst] = uint64(v)
			return nil
		}
		c.ops[0x50+r] = func(c *CPU) error { // PUSH r64
			return c.push64(c.ctx.GPR[reg|c.rexB()<<3])
		}
		c.ops[0x58+r] = func(c *CPU) error { // POP r64
			v, err := c.pop64()
			if err != nil {
				return err
			}
			c.ctx.GPR[reg|c.rexB()<<3] = v
			return nil
		}
	}

	c.ops[0x90] = func(c *CPU) error { return nil } // NOP / PAUSE (F3 90)

	c.ops[0xC3] = func(c *CPU) error { // RET
		rip, err := c.pop64()
		if err != nil {
			return err
		}
		c.ctx.RIP = rip
		return nil
	}

	c.ops[0xE9] = func(c *CPU) error { // JMP rel32
		rel, err := c.fetch32()
		if err != nil {
			return err
		}
		c.ctx.RIP += uint64(int64(int32(rel)))
		return nil
	}

	c.ops[0xE8] = func(c *CPU) error { // CALL rel32
		rel, err := c.fetch32()
		if err != nil {
			return err
		}
		if err := c.push64(c.ctx.RIP); err != nil {
			return err
		}
		c.ctx.RIP += uint64(int64(int32(rel)))
		return nil
	}

	c.ops[0xEB] = func(c *CPU) error { // JMP rel8
		rel, err := c.fetch8()
		if err != nil {
			return err
		}
		c.ctx.RIP += uint64(int64(int8(rel)))
		return nil
	}

	c.ops[0x74] = func(c *CPU) error { return c.jcc8(c.flag(FLAG_ZF)) }  // JE
	c.ops[0x75] = func(c *CPU) error { return c.jcc8(!c.flag(FLAG_ZF)) } // JNE

	c.ops[0xF4] = func(c *CPU) error { // HLT
		c.state.Store(int32(CpuHalted))
		c.log.Infof("CPU", "HLT at RIP=0x%X", c.ctx.RIP-1)
		return nil
	}

	c.ops[0xC7] = func(c *CPU) error { // MOV r/m, imm32 (/0)
		m, err := c.fetchModRM()
		if err != nil {
			return err
		}
		if m.reg&7 != 0 {
			c.unknownOpcode(0xC7)
			return nil
		}
		imm, err := c.fetch32()
		if err != nil {
			return err
		}
		v := uint64(imm)
		if c.rexW() {
			v = uint64(int64(int32(imm))) // sign-extend under REX.W
		}
		return c.writeRM(m, v, c.rexW())
	}

	c.ops[0x89] = func(c *CPU) error { // MOV r/m, r
		m, err := c.fetchModRM()
		if err != nil {
			return err
		}
		return c.writeRM(m, c.ctx.GPR[m.reg], c.rexW())
	}

	c.ops[0x8B] = func(c *CPU) error { // MOV r, r/m
		m, err := c.fetchModRM()
		if err != nil {
			return err
		}
		v, err := c.readRM(m, c.rexW())
		if err != nil {
			return err
		}
		c.setReg(m.reg, v, c.rexW())
		return nil
	}

	c.ops[0x01] = func(c *CPU) error { // ADD r/m, r
		return c.aluRM(func(a, b uint64) uint64 { return a + b }, c.setFlagsAdd, true)
	}
	c.ops[0x29] = func(c *CPU) error { // SUB r/m, r
		return c.aluRM(func(a, b uint64) uint64 { return a - b }, c.setFlagsSub, true)
	}
	c.ops[0x31] = func(c *CPU) error { // XOR r/m, r
		return c.aluRM(func(a, b uint64) uint64 { return a ^ b },
			func(a, b, r uint64, w bool) { c.setFlagsLogic(r, w) }, true)
	}
	c.ops[0x39] = func(c *CPU) error { // CMP r/m, r
		return c.aluRM(func(a, b uint64) uint64 { return a - b }, c.setFlagsSub, false)
	}
	c.ops[0x85] = func(c *CPU) error { // TEST r/m, r
		return c.aluRM(func(a, b uint64) uint64 { return a & b },
			func(a, b, r uint64, w bool) { c.setFlagsLogic(r, w) }, false)
	}

	c.ops[0xFF] = func(c *CPU) error { // INC/DEC r/m (/0, /1)
		m, err := c.fetchModRM()
		if err != nil {
			return err
		}
		switch m.reg & 7 {
		case 0, 1:
			v, err := c.readRM(m, c.rexW())
			if err != nil {
				return err
			}
			var r uint64
			if m.reg&7 == 0 {
				r = v + 1
				c.setFlagsAdd(v, 1, r, c.rexW())
			} else {
				r = v - 1
				c.setFlagsSub(v, 1, r, c.rexW())
			}
			return c.writeRM(m, r, c.rexW())
		default:
			c.unknownOpcode(0xFF)
			return nil
		}
	}
}

func (c *CPU) jcc8(taken bool) error {
	rel, err := c.fetch8()
	if err != nil {
		return err
	}
	if taken {
		c.ctx.RIP += uint64(int64(int8(rel)))
	}
	return nil
}

// aluRM implements the r/m, r binary-op family. writeBack false covers
// CMP and TEST, which only update flags.
func (c *CPU) aluRM(op func(a, b uint64) uint64, flags func(a, b, r uint64, w bool), writeBack bool) error {
	m, err := c.fetchModRM()
	if err != nil {
		return err
	}
	wide := c.rexW()
	a, err := c.readRM(m, wide)
	if err != nil {
		return err
	}
	b := c.ctx.GPR[m.reg]
	if !wide {
		b = uint64(uint32(b))
	}
	r := op(a, b)
	flags(a, b, r, wide)
	if writeBack {
		return c.writeRM(m, r, wide)
	}
	return nil
}
