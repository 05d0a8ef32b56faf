// syscall_dispatcher.go - Guest syscall routing between the CPU and the HLE modules

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"strings"
	"sync"
)

// String-length caps applied when handlers pull text out of guest memory.
const (
	SYSCALL_MAX_PATH  = 256
	SYSCALL_MAX_DEBUG = 1024
	SYSCALL_MAX_WRITE = 4096
)

// SyscallResult carries a handler's outcome. A non-nil Err turns into a
// negative value in RAX (Value is used verbatim when Err is nil, so SCE
// error returns go through Value as sign-extended negatives).
type SyscallResult struct {
	Value int64
	Err   error
}

// SyscallHandler runs on the CPU goroutine. Arguments arrive in the
// kernel convention order: RDI, RSI, RDX, R10, R8, R9.
type SyscallHandler func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult

type syscallEntry struct {
	name string
	fn   SyscallHandler
}

// =============================================================================
// DISPATCHER
// =============================================================================

// SyscallDispatcher routes SYSCALL instructions to registered handlers.
// Registration happens at core init; Dispatch runs hot on the CPU thread.
type SyscallDispatcher struct {
	mu       sync.RWMutex
	handlers map[uint64]syscallEntry

	missing map[uint64]bool // numbers already logged as unimplemented

	total         uint64
	unimplemented uint64

	log *Logger
}

func NewSyscallDispatcher(log *Logger) *SyscallDispatcher {
	return &SyscallDispatcher{
		handlers: make(map[uint64]syscallEntry),
		missing:  make(map[uint64]bool),
		log:      log,
	}
}

// Register installs a handler for a syscall number. Re-registering a
// number replaces the previous handler.
func (d *SyscallDispatcher) Register(num uint64, name string, fn SyscallHandler) {
	d.mu.Lock()
	d.handlers[num] = syscallEntry{name: name, fn: fn}
	d.mu.Unlock()
}

// HandlerCount reports registered numbers, for the stats command.
func (d *SyscallDispatcher) HandlerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers)
}

// Dispatch reads the number from RAX and the six arguments from their
// registers, runs the handler, and writes the result back to RAX.
// Unimplemented numbers return 0 and are logged once each.
func (d *SyscallDispatcher) Dispatch(ctx *Context, mem *GuestMemory) {
	num := ctx.GPR[RAX]
	args := [6]uint64{
		ctx.GPR[RDI], ctx.GPR[RSI], ctx.GPR[RDX],
		ctx.GPR[R10], ctx.GPR[R8], ctx.GPR[R9],
	}

	d.mu.Lock()
	d.total++
	entry, ok := d.handlers[num]
	if !ok {
		d.unimplemented++
		logIt := !d.missing[num]
		d.missing[num] = true
		d.mu.Unlock()
		if logIt {
			d.log.Warnf("HLE", "unimplemented syscall %d (RIP=0x%X), returning 0", num, ctx.RIP)
		}
		ctx.GPR[RAX] = 0
		return
	}
	d.mu.Unlock()

	res := entry.fn(ctx, mem, args)
	if res.Err != nil {
		d.log.Errorf("HLE", "%s failed: %v", entry.name, res.Err)
		if res.Value >= 0 {
			res.Value = SceErr(SCE_KERNEL_ERROR_EINVAL)
		}
	}
	ctx.GPR[RAX] = uint64(res.Value)
}

func (d *SyscallDispatcher) TotalCalls() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.total
}

func (d *SyscallDispatcher) UnimplementedCount() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.unimplemented
}

// =============================================================================
// GUEST STRING HELPER
// =============================================================================

// ReadCString copies a NUL-terminated guest string, capped at max bytes.
// A missing terminator within the cap truncates; a faulting address
// returns what was readable so far.
func ReadCString(mem *GuestMemory, addr uint64, max int) string {
	if addr == 0 || max <= 0 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i < max; i++ {
		b, err := mem.ReadU8(addr + uint64(i))
		if err != nil || b == 0 {
			break
		}
		sb.WriteByte(b)
	}
	return sb.String()
}
