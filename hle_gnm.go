// hle_gnm.go - GPU submission syscall handlers

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

const (
	SYS_GNM_SUBMIT_COMMAND_BUFFERS = 591
	SYS_GNM_SUBMIT_DONE            = 614
	SYS_GNM_GET_GPU_CLOCK          = 626
)

const GPU_CORE_CLOCK_HZ = 911_000_000

// Per-submit cap on command buffers, matching the submit queue depth.
const gnmMaxBuffersPerSubmit = 16

// registerGnmHandlers wires the graphics submission syscalls onto the
// PM4 parser and the render queue.
func registerGnmHandlers(d *SyscallDispatcher, parser *GnmParser, queue *RenderQueue, log *Logger) {
	d.Register(SYS_GNM_SUBMIT_COMMAND_BUFFERS, "sceGnmSubmitCommandBuffers", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		count := args[0]
		if count == 0 || args[1] == 0 {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		if count > gnmMaxBuffersPerSubmit {
			log.Warnf("GNM", "submit of %d buffers capped at %d", count, gnmMaxBuffersPerSubmit)
			count = gnmMaxBuffersPerSubmit
		}

		for i := uint64(0); i < count; i++ {
			addr, err := mem.ReadU64(args[1] + i*8)
			if err != nil {
				return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
			}
			var sizeBytes uint32
			if args[2] != 0 {
				sizeBytes, err = mem.ReadU32(args[2] + i*4)
				if err != nil {
					return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
				}
			}
			parser.ParseCommandBuffer(addr, sizeBytes/4)
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_GNM_SUBMIT_DONE, "sceGnmSubmitDone", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		queue.EndFrame()
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_GNM_GET_GPU_CLOCK, "sceGnmGetGpuCoreClockFrequency", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: GPU_CORE_CLOCK_HZ}
	})

	log.Infof("HLE", "gnm handlers registered")
}
