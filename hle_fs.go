// hle_fs.go - File-related syscall handlers backed by the VFS

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import "strings"

// Syscall numbers, FreeBSD base set.
const (
	SYS_READ     = 3
	SYS_WRITE    = 4
	SYS_OPEN     = 5
	SYS_CLOSE    = 6
	SYS_UNLINK   = 10
	SYS_STAT     = 188
	SYS_FSTAT    = 189
	SYS_GETDENTS = 272
	SYS_LSEEK    = 478
)

// registerFSHandlers wires the file syscalls onto the VFS. Descriptors 1
// and 2 are the guest's console and land in the log instead of a file.
func registerFSHandlers(d *SyscallDispatcher, vfs *VFS, log *Logger) {
	d.Register(SYS_OPEN, "open", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		path := ReadCString(mem, args[0], SYSCALL_MAX_PATH)
		if path == "" {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		fd := vfs.Open(path, uint32(args[1]), uint32(args[2]))
		log.Syscallf("HLE", "open(%q, 0x%X) = %d", path, args[1], fd)
		return SyscallResult{Value: fd}
	})

	d.Register(SYS_CLOSE, "close", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: vfs.Close(int32(args[0]))}
	})

	d.Register(SYS_READ, "read", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		fd, buf, count := int32(args[0]), args[1], args[2]
		if count == 0 {
			return SyscallResult{Value: 0}
		}
		tmp := make([]byte, count)
		n := vfs.Read(fd, tmp)
		if n < 0 {
			return SyscallResult{Value: n}
		}
		if err := mem.WriteBlock(buf, tmp[:n]); err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		return SyscallResult{Value: n}
	})

	d.Register(SYS_WRITE, "write", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		fd, buf, count := int32(args[0]), args[1], args[2]
		n := count
		if n > SYSCALL_MAX_WRITE {
			n = SYSCALL_MAX_WRITE
		}
		tmp := make([]byte, n)
		if err := mem.ReadBlock(buf, tmp); err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}

		// Guest console output goes to the log verbatim.
		if fd == 1 || fd == 2 {
			text := strings.TrimRight(string(tmp), "\x00\n")
			if text != "" {
				log.Syscallf("HLE", "[fd%d] %s", fd, text)
			}
			return SyscallResult{Value: int64(count)}
		}
		return SyscallResult{Value: vfs.Write(fd, tmp)}
	})

	d.Register(SYS_UNLINK, "unlink", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		path := ReadCString(mem, args[0], SYSCALL_MAX_PATH)
		return SyscallResult{Value: vfs.Unlink(path)}
	})

	d.Register(SYS_STAT, "stat", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		path := ReadCString(mem, args[0], SYSCALL_MAX_PATH)
		st, rc := vfs.StatPath(path)
		if rc != 0 {
			return SyscallResult{Value: rc}
		}
		buf := st.Encode()
		if err := mem.WriteBlock(args[1], buf[:]); err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_FSTAT, "fstat", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		st, rc := vfs.StatFd(int32(args[0]))
		if rc != 0 {
			return SyscallResult{Value: rc}
		}
		buf := st.Encode()
		if err := mem.WriteBlock(args[1], buf[:]); err != nil {
			return SyscallResult{Value: SceErr(SCE_KERNEL_ERROR_EINVAL)}
		}
		return SyscallResult{Value: 0}
	})

	d.Register(SYS_LSEEK, "lseek", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: vfs.Seek(int32(args[0]), int64(args[1]), uint32(args[2]))}
	})

	// Directory iteration is accepted but reports an empty directory.
	d.Register(SYS_GETDENTS, "getdents", func(ctx *Context, mem *GuestMemory, args [6]uint64) SyscallResult {
		return SyscallResult{Value: 0}
	})

	log.Infof("HLE", "filesystem handlers registered")
}
