// hle_audio.go - Audio output syscall handlers

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

const (
	SYS_AUDIO_INIT             = 495
	SYS_AUDIO_OPEN             = 496
	SYS_AUDIO_CLOSE            = 497
	SYS_AUDIO_OUTPUT           = 498
	SYS_AUDIO_OUTPUTS          = 499
	SYS_AUDIO_SET_VOLUME       = 500
	SYS_AUDIO_GET_PORT_STATE   = 501
	SYS_AUDIO_GET_SYSTEM_STATE = 502
)

// registerAudioHandlers wires the audio-out syscalls onto the port
// registry. Output blocks on the port's pacer, which is what keeps
// guest audio loops running at real-time speed.
func registerAudioHandlers(d *SyscallDispatcher, audio *AudioManager, log *Logger) {
	outputOne := func(mem *GuestMemory, handle int32, ptr uint64) int64 {
		port, ok := audio.GetPort(handle)
		if !ok {
			return SceErr(SCE_KERNEL_ERROR_EINVAL)
		}
		var pcm []byte
		if ptr != 0 {
			pcm = make([]byte, port.Grain*4) // stereo s16
			if err := mem.ReadBlock(ptr, pcm); err != nil {
				return SceErr(SCE_KERNEL_ERROR_EINVAL)
			}
		}
		audio.Output(handle, pcm)
		return 0
	}

	d.Register(SYS_AUDIO_INIT, "sceAudioOutInit", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		log.Infof("HLE", "sceAudioOutInit")
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_AUDIO_OPEN, "sceAudioOutOpen", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		handle := audio.OpenPort(uint32(args[1]), uint32(args[2]), uint32(args[3]), uint32(args[4]), uint32(args[5]))
		return SyscallResult{Value: int64(handle)}
	})

	d.Register(SYS_AUDIO_CLOSE, "sceAudioOutClose", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		audio.ClosePort(int32(args[0]))
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_AUDIO_OUTPUT, "sceAudioOutOutput", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: outputOne(mem, int32(args[0]), args[1])}
	})

	// Batched output: count entries of {handle u32, pad u32, ptr u64}.
	d.Register(SYS_AUDIO_OUTPUTS, "sceAudioOutOutputs", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		count := args[1]
		if count > 8 {
			count = 8
		}
		for i := uint64(0); i < count; i++ {
			base := args[0] + i*16
			handle, err := mem.ReadU32(base)
			if err != nil {
				return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
			}
			ptr, err := mem.ReadU64(base + 8)
			if err != nil {
				return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
			}
			if rc := outputOne(mem, int32(handle), ptr); rc < 0 {
				return SyscallResult{Value: rc}
			}
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_AUDIO_SET_VOLUME, "sceAudioOutSetVolume", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		if args[2] == 0 {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		raw, err := mem.ReadI32(args[2])
		if err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		vol := float64(raw) / 32767.0
		if !audio.SetVolume(int32(args[0]), vol) {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_AUDIO_GET_PORT_STATE, "sceAudioOutGetPortState", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		if _, ok := audio.GetPort(int32(args[0])); !ok {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		if args[2] != 0 {
			_ = mem.WriteU16(args[2], 1)   // output active
			_ = mem.WriteU16(args[2]+2, 0) // channel
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_AUDIO_GET_SYSTEM_STATE, "sceAudioOutGetSystemState", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		if args[0] != 0 {
			_ = mem.WriteU32(args[0], 1)
		}
		return SyscallResult{Value: 0}
	})

	log.Infof("HLE", "audio handlers registered")
}
