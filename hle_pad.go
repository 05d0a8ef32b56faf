// hle_pad.go - Controller syscall handlers

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

const (
	SYS_PAD_READ          = 570
	SYS_PAD_READ_STATE    = 571
	SYS_PAD_OPEN          = 572
	SYS_PAD_CLOSE         = 573
	SYS_PAD_SET_VIBRATION = 575
)

// The single virtual controller always answers to this handle.
const PAD_HANDLE = 0x100

// registerPadHandlers wires the controller syscalls onto the input
// manager. There is exactly one pad; every open returns the same handle.
func registerPadHandlers(d *SyscallDispatcher, input *InputManager, log *Logger) {
	writePad := func(mem *GuestMemory, addr uint64) SyscallResult {
		if addr == 0 {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		data := EncodePadData(input.Snapshot())
		if err := mem.WriteBlock(addr, data[:]); err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		return SyscallResult{Value: 0}
	}

	d.Register(SYS_PAD_OPEN, "scePadOpen", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		log.Debugf("HLE", "scePadOpen(user=%d, type=%d) = 0x%X", args[0], args[1], PAD_HANDLE)
		return SyscallResult{Value: PAD_HANDLE}
	})

	d.Register(SYS_PAD_CLOSE, "scePadClose", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: 0}
	})

	// scePadRead returns the number of buffered records; one snapshot.
	d.Register(SYS_PAD_READ, "scePadRead", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		res := writePad(mem, args[1])
		if res.Value < 0 {
			return res
		}
		return SyscallResult{Value: 1}
	})

	d.Register(SYS_PAD_READ_STATE, "scePadReadState", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return writePad(mem, args[1])
	})

	d.Register(SYS_PAD_SET_VIBRATION, "scePadSetVibration", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		// No rumble hardware to drive.
		return SyscallResult{Value: 0}
	})

	log.Infof("HLE", "pad handlers registered")
}
