// vfs.go - Virtual filesystem mapping guest mount points onto host directories

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// =============================================================================
// SCE ERROR CODES
// =============================================================================

// Kernel error codes as the guest expects them. They travel back through
// RAX as sign-extended negatives, so 0x80020002 becomes 0xFFFFFFFF80020002.
const (
	SCE_KERNEL_ERROR_ENOENT = 0x80020002
	SCE_KERNEL_ERROR_EBADF  = 0x80020009
	SCE_KERNEL_ERROR_EEXIST = 0x80020011
	SCE_KERNEL_ERROR_ENOMEM = 0x80020012
	SCE_KERNEL_ERROR_EACCES = 0x80020013
	SCE_KERNEL_ERROR_EINVAL = 0x80020022
	SCE_KERNEL_ERROR_ENOSPC = 0x80020028
)

// SceErr converts an SCE error code into the sign-extended negative value
// written to the guest's RAX.
func SceErr(code uint32) int64 {
	return int64(int32(code))
}

// =============================================================================
// OPEN FLAGS (FreeBSD numbering)
// =============================================================================

const (
	GUEST_O_RDONLY    = 0x0000
	GUEST_O_WRONLY    = 0x0001
	GUEST_O_RDWR      = 0x0002
	GUEST_O_ACCMODE   = 0x0003
	GUEST_O_NONBLOCK  = 0x0004
	GUEST_O_APPEND    = 0x0008
	GUEST_O_CREAT     = 0x0200
	GUEST_O_TRUNC     = 0x0400
	GUEST_O_EXCL      = 0x0800
	GUEST_O_DIRECTORY = 0x20000
)

// =============================================================================
// STAT ENCODING
// =============================================================================

// SceStat is the packed stat record written back to the guest:
// dev u32, ino u32, mode u16, nlink u16, uid u32, gid u32, rdev u32,
// size i64, atime i64, mtime i64, ctime i64, blksize i64, blocks i64.
type SceStat struct {
	Mode  uint16
	Size  int64
	Mtime int64
	IsDir bool
}

const SceStatSize = 0x50

// Encode packs the stat into its guest layout. Fields the host cannot
// provide (dev, ino, uid) stay zero.
func (s SceStat) Encode() [SceStatSize]byte {
	var buf [SceStatSize]byte
	le := binary.LittleEndian

	le.PutUint16(buf[0x08:], s.Mode)
	le.PutUint16(buf[0x0A:], 1) // nlink
	le.PutUint64(buf[0x18:], uint64(s.Size))
	le.PutUint64(buf[0x20:], uint64(s.Mtime)) // atime = mtime
	le.PutUint64(buf[0x28:], uint64(s.Mtime))
	le.PutUint64(buf[0x30:], uint64(s.Mtime)) // ctime = mtime
	le.PutUint64(buf[0x38:], 4096)            // blksize
	blocks := (s.Size + 511) / 512
	le.PutUint64(buf[0x40:], uint64(blocks))
	return buf
}

func statFromInfo(info os.FileInfo) SceStat {
	st := SceStat{
		Size:  info.Size(),
		Mtime: info.ModTime().Unix(),
		IsDir: info.IsDir(),
	}
	if info.IsDir() {
		st.Mode = 0040755
		st.Size = 0
	} else {
		st.Mode = 0100644
	}
	return st
}

// =============================================================================
// VFS
// =============================================================================

type vfsMount struct {
	prefix  string // guest path, normalized, no trailing slash
	hostDir string // absolute host directory
}

type vfsFile struct {
	file  *os.File
	path  string // guest path, for diagnostics
	flags uint32
	isDir bool
}

// VFS maps guest paths onto host files through a mount table. File
// descriptors are process-private small integers handed to the guest;
// they start at 10 so nothing collides with the guest's idea of
// stdin/stdout/stderr.
type VFS struct {
	mu     sync.Mutex
	mounts []vfsMount
	files  map[int32]*vfsFile
	nextFd int32
	log    *Logger
}

const vfsFirstFd = 10

func NewVFS(log *Logger) *VFS {
	return &VFS{
		files:  make(map[int32]*vfsFile),
		nextFd: vfsFirstFd,
		log:    log,
	}
}

// normalizeGuestPath collapses a guest path to a rooted, clean form.
func normalizeGuestPath(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	p = filepath.ToSlash(filepath.Clean(p))
	return p
}

// Mount maps a guest prefix onto a host directory. The host side must
// exist and be a directory. Remounting a prefix replaces it.
func (v *VFS) Mount(prefix, hostDir string) error {
	abs, err := filepath.Abs(hostDir)
	if err != nil {
		return fmt.Errorf("mount %s: %w", prefix, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("mount %s: %w", prefix, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("mount %s: %s is not a directory", prefix, abs)
	}

	prefix = normalizeGuestPath(prefix)
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.mounts {
		if v.mounts[i].prefix == prefix {
			v.mounts[i].hostDir = abs
			v.log.Infof("VFS", "remounted %s -> %s", prefix, abs)
			return nil
		}
	}
	v.mounts = append(v.mounts, vfsMount{prefix: prefix, hostDir: abs})
	// Longest prefix first, so /app0/patch wins over /app0.
	sort.Slice(v.mounts, func(i, j int) bool {
		return len(v.mounts[i].prefix) > len(v.mounts[j].prefix)
	})
	v.log.Infof("VFS", "mounted %s -> %s", prefix, abs)
	return nil
}

func (v *VFS) Unmount(prefix string) {
	prefix = normalizeGuestPath(prefix)
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.mounts {
		if v.mounts[i].prefix == prefix {
			v.mounts = append(v.mounts[:i], v.mounts[i+1:]...)
			v.log.Infof("VFS", "unmounted %s", prefix)
			return
		}
	}
}

func (v *VFS) ClearMounts() {
	v.mu.Lock()
	v.mounts = nil
	v.mu.Unlock()
}

// Mounts returns prefix -> host pairs for diagnostics.
func (v *VFS) Mounts() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]string, len(v.mounts))
	for _, m := range v.mounts {
		out[m.prefix] = m.hostDir
	}
	return out
}

// Resolve maps a guest path to a host path via the longest matching mount
// prefix. Paths that would escape the mounted directory resolve to "".
func (v *VFS) Resolve(guestPath string) string {
	guestPath = normalizeGuestPath(guestPath)
	v.mu.Lock()
	mounts := v.mounts
	v.mu.Unlock()

	for _, m := range mounts {
		if guestPath != m.prefix && !strings.HasPrefix(guestPath, m.prefix+"/") {
			continue
		}
		rest := strings.TrimPrefix(guestPath, m.prefix)
		rest = strings.TrimPrefix(rest, "/")
		host := filepath.Join(m.hostDir, filepath.FromSlash(rest))

		// Join cleans "..", so verify the result still sits under the
		// mount root before handing it out.
		abs, err := filepath.Abs(host)
		if err != nil {
			return ""
		}
		rel, err := filepath.Rel(m.hostDir, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			v.log.Warnf("VFS", "rejected escaping path %s", guestPath)
			return ""
		}
		return abs
	}
	return ""
}

// Exists reports whether a guest path resolves to an existing host file.
func (v *VFS) Exists(guestPath string) bool {
	host := v.Resolve(guestPath)
	if host == "" {
		return false
	}
	_, err := os.Stat(host)
	return err == nil
}

// =============================================================================
// FILE OPERATIONS
// =============================================================================

func hostOpenFlags(guestFlags uint32) int {
	var f int
	switch guestFlags & GUEST_O_ACCMODE {
	case GUEST_O_WRONLY:
		f = os.O_WRONLY
	case GUEST_O_RDWR:
		f = os.O_RDWR
	default:
		f = os.O_RDONLY
	}
	if guestFlags&GUEST_O_CREAT != 0 {
		f |= os.O_CREATE
	}
	if guestFlags&GUEST_O_TRUNC != 0 {
		f |= os.O_TRUNC
	}
	if guestFlags&GUEST_O_APPEND != 0 {
		f |= os.O_APPEND
	}
	if guestFlags&GUEST_O_EXCL != 0 {
		f |= os.O_EXCL
	}
	return f
}

// Open opens a guest path and returns a new descriptor, or a negative SCE
// error. Directories may only be opened with O_DIRECTORY.
func (v *VFS) Open(guestPath string, flags uint32, mode uint32) int64 {
	host := v.Resolve(guestPath)
	if host == "" {
		v.log.Warnf("VFS", "open %s: no mount", guestPath)
		return SceErr(SCE_KERNEL_ERROR_ENOENT)
	}

	info, statErr := os.Stat(host)
	isDir := statErr == nil && info.IsDir()
	if isDir && flags&GUEST_O_DIRECTORY == 0 && flags&GUEST_O_ACCMODE != GUEST_O_RDONLY {
		return SceErr(SCE_KERNEL_ERROR_EINVAL)
	}

	perm := os.FileMode(mode & 0777)
	if perm == 0 {
		perm = 0644
	}
	f, err := os.OpenFile(host, hostOpenFlags(flags), perm)
	if err != nil {
		switch {
		case os.IsNotExist(err):
			return SceErr(SCE_KERNEL_ERROR_ENOENT)
		case os.IsExist(err):
			return SceErr(SCE_KERNEL_ERROR_EEXIST)
		case os.IsPermission(err):
			return SceErr(SCE_KERNEL_ERROR_EACCES)
		default:
			return SceErr(SCE_KERNEL_ERROR_EINVAL)
		}
	}

	v.mu.Lock()
	fd := v.nextFd
	v.nextFd++
	v.files[fd] = &vfsFile{file: f, path: guestPath, flags: flags, isDir: isDir}
	v.mu.Unlock()

	v.log.Debugf("VFS", "open %s -> fd %d (flags 0x%X)", guestPath, fd, flags)
	return int64(fd)
}

// OpenDirectory opens a guest directory for getdents-style iteration.
func (v *VFS) OpenDirectory(guestPath string) int64 {
	return v.Open(guestPath, GUEST_O_RDONLY|GUEST_O_DIRECTORY, 0)
}

func (v *VFS) lookup(fd int32) *vfsFile {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.files[fd]
}

// Close releases a descriptor. Closing an unknown fd is EBADF.
func (v *VFS) Close(fd int32) int64 {
	v.mu.Lock()
	f, ok := v.files[fd]
	if ok {
		delete(v.files, fd)
	}
	v.mu.Unlock()
	if !ok {
		return SceErr(SCE_KERNEL_ERROR_EBADF)
	}
	_ = f.file.Close()
	v.log.Debugf("VFS", "close fd %d (%s)", fd, f.path)
	return 0
}

// Read fills dst from the descriptor, returning bytes read or a negative
// SCE error. EOF reads return 0.
func (v *VFS) Read(fd int32, dst []byte) int64 {
	f := v.lookup(fd)
	if f == nil {
		return SceErr(SCE_KERNEL_ERROR_EBADF)
	}
	if f.isDir {
		return SceErr(SCE_KERNEL_ERROR_EINVAL)
	}
	n, err := f.file.Read(dst)
	if err != nil && err != io.EOF {
		return SceErr(SCE_KERNEL_ERROR_EINVAL)
	}
	return int64(n)
}

// Write sends src to the descriptor, returning bytes written or a
// negative SCE error.
func (v *VFS) Write(fd int32, src []byte) int64 {
	f := v.lookup(fd)
	if f == nil {
		return SceErr(SCE_KERNEL_ERROR_EBADF)
	}
	n, err := f.file.Write(src)
	if err != nil {
		return SceErr(SCE_KERNEL_ERROR_ENOSPC)
	}
	return int64(n)
}

// Seek repositions the descriptor. whence follows the host convention
// (0 set, 1 cur, 2 end), which matches the guest's.
func (v *VFS) Seek(fd int32, offset int64, whence uint32) int64 {
	f := v.lookup(fd)
	if f == nil {
		return SceErr(SCE_KERNEL_ERROR_EBADF)
	}
	if whence > 2 {
		return SceErr(SCE_KERNEL_ERROR_EINVAL)
	}
	pos, err := f.file.Seek(offset, int(whence))
	if err != nil {
		return SceErr(SCE_KERNEL_ERROR_EINVAL)
	}
	return pos
}

// StatFd stats an open descriptor.
func (v *VFS) StatFd(fd int32) (SceStat, int64) {
	f := v.lookup(fd)
	if f == nil {
		return SceStat{}, SceErr(SCE_KERNEL_ERROR_EBADF)
	}
	info, err := f.file.Stat()
	if err != nil {
		return SceStat{}, SceErr(SCE_KERNEL_ERROR_EINVAL)
	}
	return statFromInfo(info), 0
}

// StatPath stats a guest path without opening it.
func (v *VFS) StatPath(guestPath string) (SceStat, int64) {
	host := v.Resolve(guestPath)
	if host == "" {
		return SceStat{}, SceErr(SCE_KERNEL_ERROR_ENOENT)
	}
	info, err := os.Stat(host)
	if err != nil {
		return SceStat{}, SceErr(SCE_KERNEL_ERROR_ENOENT)
	}
	return statFromInfo(info), 0
}

// Unlink removes a guest file.
func (v *VFS) Unlink(guestPath string) int64 {
	host := v.Resolve(guestPath)
	if host == "" {
		return SceErr(SCE_KERNEL_ERROR_ENOENT)
	}
	if err := os.Remove(host); err != nil {
		if os.IsNotExist(err) {
			return SceErr(SCE_KERNEL_ERROR_ENOENT)
		}
		return SceErr(SCE_KERNEL_ERROR_EACCES)
	}
	return 0
}

// OpenFileCount reports live descriptors, for the stats command.
func (v *VFS) OpenFileCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.files)
}

// CloseAll drops every open descriptor, used at core shutdown.
func (v *VFS) CloseAll() {
	v.mu.Lock()
	files := v.files
	v.files = make(map[int32]*vfsFile)
	v.mu.Unlock()
	for _, f := range files {
		_ = f.file.Close()
	}
}
