// hle_kernel.go - Process, memory and module syscall handlers

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"sync"
	"time"
)

const (
	SYS_EXIT         = 1
	SYS_FORK         = 2
	SYS_GETPID       = 20
	SYS_GETUID       = 24
	SYS_IOCTL        = 54
	SYS_MUNMAP       = 73
	SYS_MPROTECT     = 74
	SYS_GETTIMEOFDAY = 116
	SYS_NANOSLEEP    = 240
	SYS_MMAP         = 477

	SYS_LOAD_START_MODULE  = 594
	SYS_STOP_UNLOAD_MODULE = 595
	SYS_DEBUG_OUT          = 602
	SYS_GET_MODULE_LIST    = 611
	SYS_GET_MODULE_INFO    = 612
	SYS_IS_NEO_MODE        = 618
	SYS_GET_CPU_TEMP       = 621
)

const (
	GUEST_PID        = 1000
	GUEST_CHILD_PID  = 1001
	moduleInfoSize   = 0x160
	moduleHandleBase = 100
	mmapPageSize     = 4096
)

// kernelState holds the mutable pieces behind the kernel handlers: the
// mmap bump allocator and the loaded-module table.
type kernelState struct {
	mu         sync.Mutex
	heapNext   uint64
	modules    map[uint32]string
	nextModule uint32
}

// registerKernelHandlers wires process, memory and module syscalls.
// onExit is the core's stop signal; the interpreter itself keeps running
// until the core tears it down.
func registerKernelHandlers(d *SyscallDispatcher, onExit func(status int32), log *Logger) *kernelState {
	ks := &kernelState{
		heapNext:   HEAP_BASE,
		modules:    make(map[uint32]string),
		nextModule: moduleHandleBase,
	}

	d.Register(SYS_EXIT, "exit", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		log.Infof("HLE", "guest exit(%d)", int32(args[0]))
		if onExit != nil {
			onExit(int32(args[0]))
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_FORK, "fork", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		// No real processes; the caller sees itself as the parent.
		return SyscallResult{Value: GUEST_CHILD_PID}
	})

	d.Register(SYS_GETPID, "getpid", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: GUEST_PID}
	})

	d.Register(SYS_GETUID, "getuid", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_IOCTL, "ioctl", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_MUNMAP, "munmap", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		// Bump allocator never reclaims.
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_MPROTECT, "mprotect", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_GETTIMEOFDAY, "gettimeofday", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		if args[0] != 0 {
			now := time.Now()
			if err := mem.WriteU64(args[0], uint64(now.Unix())); err != nil {
				return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
			}
			if err := mem.WriteU64(args[0]+8, uint64(now.Nanosecond()/1000)); err != nil {
				return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
			}
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_NANOSLEEP, "nanosleep", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		sec, err := mem.ReadI64(args[0])
		if err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		nsec, err := mem.ReadI64(args[0] + 8)
		if err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		req := time.Duration(sec)*time.Second + time.Duration(nsec)
		// Capped so a guest sleeping for minutes stays interruptible.
		if req > 100*time.Millisecond {
			req = 100 * time.Millisecond
		}
		if req > 0 {
			time.Sleep(req)
		}
		if args[1] != 0 {
			_ = mem.WriteU64(args[1], 0)
			_ = mem.WriteU64(args[1]+8, 0)
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_MMAP, "mmap", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		length := args[1]
		if length == 0 {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		aligned := (length + mmapPageSize - 1) &^ uint64(mmapPageSize-1)

		ks.mu.Lock()
		addr := ks.heapNext
		ks.heapNext += aligned
		ks.mu.Unlock()

		if err := mem.Zero(addr, aligned); err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_ENOMEM)}
		}
		log.Debugf("HLE", "mmap(%d) = 0x%X", length, addr)
		return SyscallResult{Value: int64(addr)}
	})

	d.Register(SYS_LOAD_START_MODULE, "sceKernelLoadStartModule", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		name := ReadCString(mem, args[0], SYSCALL_MAX_PATH)
		ks.mu.Lock()
		handle := ks.nextModule
		ks.nextModule++
		ks.modules[handle] = name
		ks.mu.Unlock()
		log.Infof("HLE", "module %q -> handle %d (stub)", name, handle)
		return SyscallResult{Value: int64(handle)}
	})

	d.Register(SYS_STOP_UNLOAD_MODULE, "sceKernelStopUnloadModule", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		ks.mu.Lock()
		delete(ks.modules, uint32(args[0]))
		ks.mu.Unlock()
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_DEBUG_OUT, "sceKernelDebugOut", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		n := args[1]
		if n > SYSCALL_MAX_DEBUG {
			n = SYSCALL_MAX_DEBUG
		}
		buf := make([]byte, n)
		if err := mem.ReadBlock(args[0], buf); err == nil {
			log.Syscallf("HLE", "[debug] %s", string(buf))
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_GET_MODULE_LIST, "sceKernelGetModuleList", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		ks.mu.Lock()
		handles := make([]uint32, 0, len(ks.modules))
		for h := range ks.modules {
			handles = append(handles, h)
		}
		ks.mu.Unlock()

		maxEntries := args[1]
		written := uint32(0)
		for _, h := range handles {
			if uint64(written) >= maxEntries {
				break
			}
			if err := mem.WriteU32(args[0]+uint64(written)*4, h); err != nil {
				return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
			}
			written++
		}
		if args[2] != 0 {
			_ = mem.WriteU32(args[2], written)
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_GET_MODULE_INFO, "sceKernelGetModuleInfo", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		if args[1] == 0 {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		if err := mem.Zero(args[1], moduleInfoSize); err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		_ = mem.WriteU64(args[1], moduleInfoSize)
		_ = mem.WriteBlock(args[1]+8, []byte("emu_module.prx\x00"))
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_IS_NEO_MODE, "sceKernelIsNeoMode", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: 1}
	})

	d.Register(SYS_GET_CPU_TEMP, "sceKernelGetCpuTemperature", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		if args[0] != 0 {
			_ = mem.WriteU32(args[0], 45)
		}
		return SyscallResult{Value: 0}
	})

	log.Infof("HLE", "kernel handlers registered")
	return ks
}

// HeapUsed reports bump-allocator consumption, for the stats command.
func (ks *kernelState) HeapUsed() uint64 {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	return ks.heapNext - HEAP_BASE
}
