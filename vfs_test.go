// vfs_test.go - Mount resolution, escape rejection and descriptor lifecycle

package main

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newTestVFS(t *testing.T) (*VFS, string) {
	t.Helper()
	v := NewVFS(NewLogger(io.Discard))
	dir := t.TempDir()
	if err := v.Mount("/app0", dir); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return v, dir
}

func TestVFS_ResolveLongestPrefix(t *testing.T) {
	v := NewVFS(NewLogger(io.Discard))
	base := t.TempDir()
	patch := t.TempDir()
	if err := v.Mount("/app0", base); err != nil {
		t.Fatalf("Mount base: %v", err)
	}
	if err := v.Mount("/app0/patch", patch); err != nil {
		t.Fatalf("Mount patch: %v", err)
	}

	got := v.Resolve("/app0/patch/data.bin")
	want := filepath.Join(patch, "data.bin")
	if got != want {
		t.Errorf("longest prefix: got %q, want %q", got, want)
	}

	got = v.Resolve("/app0/other.bin")
	want = filepath.Join(base, "other.bin")
	if got != want {
		t.Errorf("short prefix: got %q, want %q", got, want)
	}

	if got := v.Resolve("/savedata/slot0"); got != "" {
		t.Errorf("unmounted path: got %q, want empty", got)
	}
}

func TestVFS_EscapeRejected(t *testing.T) {
	v, dir := newTestVFS(t)

	// A sibling of the mount root must stay unreachable.
	secret := filepath.Join(filepath.Dir(dir), "secret.txt")
	if err := os.WriteFile(secret, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	for _, p := range []string{
		"/app0/../secret.txt",
		"/app0/sub/../../secret.txt",
	} {
		host := v.Resolve(p)
		if host != "" && host != filepath.Join(dir, "secret.txt") {
			t.Errorf("Resolve(%q): got %q, escapes mount", p, host)
		}
		if fd := v.Open(p, GUEST_O_RDONLY, 0); fd >= 0 {
			t.Errorf("Open(%q): got fd %d, want error", p, fd)
		}
	}
}

func TestVFS_MountValidation(t *testing.T) {
	v := NewVFS(NewLogger(io.Discard))
	if err := v.Mount("/app0", "/does/not/exist"); err == nil {
		t.Error("Mount of missing dir: got nil error")
	}

	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := v.Mount("/app0", f); err == nil {
		t.Error("Mount of plain file: got nil error")
	}
}

func TestVFS_FdLifecycle(t *testing.T) {
	v, dir := newTestVFS(t)
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello vfs"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fd := v.Open("/app0/hello.txt", GUEST_O_RDONLY, 0)
	if fd < vfsFirstFd {
		t.Fatalf("first fd: got %d, want >= %d", fd, vfsFirstFd)
	}

	buf := make([]byte, 64)
	n := v.Read(int32(fd), buf)
	if n != 9 {
		t.Fatalf("Read: got %d, want 9", n)
	}
	if string(buf[:n]) != "hello vfs" {
		t.Errorf("Read content: got %q, want %q", buf[:n], "hello vfs")
	}

	// Descriptors are never reused within a session.
	fd2 := v.Open("/app0/hello.txt", GUEST_O_RDONLY, 0)
	if fd2 != fd+1 {
		t.Errorf("second fd: got %d, want %d", fd2, fd+1)
	}
	if v.OpenFileCount() != 2 {
		t.Errorf("OpenFileCount: got %d, want 2", v.OpenFileCount())
	}

	if r := v.Close(int32(fd)); r != 0 {
		t.Errorf("Close: got %d, want 0", r)
	}
	if r := v.Close(int32(fd)); r != SceErr(SCE_KERNEL_ERROR_EBADF) {
		t.Errorf("double Close: got 0x%X, want EBADF", uint64(r))
	}
	if r := v.Read(int32(fd), buf); r != SceErr(SCE_KERNEL_ERROR_EBADF) {
		t.Errorf("Read after Close: got 0x%X, want EBADF", uint64(r))
	}

	fd3 := v.Open("/app0/hello.txt", GUEST_O_RDONLY, 0)
	if fd3 != fd2+1 {
		t.Errorf("fd after close: got %d, want %d (no reuse)", fd3, fd2+1)
	}
}

func TestVFS_WriteCreateSeek(t *testing.T) {
	v, dir := newTestVFS(t)

	fd := v.Open("/app0/out.bin", GUEST_O_WRONLY|GUEST_O_CREAT|GUEST_O_TRUNC, 0644)
	if fd < 0 {
		t.Fatalf("Open create: got 0x%X", uint64(fd))
	}
	if n := v.Write(int32(fd), []byte("abcdef")); n != 6 {
		t.Fatalf("Write: got %d, want 6", n)
	}
	v.Close(int32(fd))

	if _, err := os.Stat(filepath.Join(dir, "out.bin")); err != nil {
		t.Fatalf("created file missing: %v", err)
	}

	fd = v.Open("/app0/out.bin", GUEST_O_RDONLY, 0)
	if pos := v.Seek(int32(fd), 2, 0); pos != 2 {
		t.Errorf("Seek set: got %d, want 2", pos)
	}
	buf := make([]byte, 4)
	if n := v.Read(int32(fd), buf); n != 4 || string(buf) != "cdef" {
		t.Errorf("Read after seek: got %d %q, want 4 %q", n, buf, "cdef")
	}
	if r := v.Seek(int32(fd), 0, 9); r != SceErr(SCE_KERNEL_ERROR_EINVAL) {
		t.Errorf("bad whence: got 0x%X, want EINVAL", uint64(r))
	}
	v.Close(int32(fd))
}

func TestVFS_StatAndErrors(t *testing.T) {
	v, dir := newTestVFS(t)
	if err := os.WriteFile(filepath.Join(dir, "f.dat"), make([]byte, 1000), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	st, rc := v.StatPath("/app0/f.dat")
	if rc != 0 {
		t.Fatalf("StatPath: got 0x%X", uint64(rc))
	}
	if st.Mode != 0100644 {
		t.Errorf("file mode: got %o, want 0100644", st.Mode)
	}
	if st.Size != 1000 {
		t.Errorf("size: got %d, want 1000", st.Size)
	}

	st, rc = v.StatPath("/app0")
	if rc != 0 {
		t.Fatalf("StatPath dir: got 0x%X", uint64(rc))
	}
	if st.Mode != 0040755 {
		t.Errorf("dir mode: got %o, want 0040755", st.Mode)
	}

	if _, rc = v.StatPath("/app0/missing"); rc != SceErr(SCE_KERNEL_ERROR_ENOENT) {
		t.Errorf("missing stat: got 0x%X, want ENOENT", uint64(rc))
	}
	if fd := v.Open("/app0/missing", GUEST_O_RDONLY, 0); fd != SceErr(SCE_KERNEL_ERROR_ENOENT) {
		t.Errorf("missing open: got 0x%X, want ENOENT", uint64(fd))
	}
}

func TestVFS_StatEncoding(t *testing.T) {
	st := SceStat{Mode: 0100644, Size: 1024, Mtime: 1700000000}
	buf := st.Encode()
	le := binary.LittleEndian

	if got := le.Uint16(buf[0x08:]); got != 0100644 {
		t.Errorf("mode at 0x08: got %o, want 0100644", got)
	}
	if got := le.Uint16(buf[0x0A:]); got != 1 {
		t.Errorf("nlink: got %d, want 1", got)
	}
	if got := int64(le.Uint64(buf[0x18:])); got != 1024 {
		t.Errorf("size at 0x18: got %d, want 1024", got)
	}
	if got := int64(le.Uint64(buf[0x38:])); got != 4096 {
		t.Errorf("blksize: got %d, want 4096", got)
	}
	if got := int64(le.Uint64(buf[0x40:])); got != 2 {
		t.Errorf("blocks: got %d, want 2 (ceil 1024/512)", got)
	}
}

func TestSceErr_SignExtension(t *testing.T) {
	got := SceErr(SCE_KERNEL_ERROR_ENOENT)
	if uint64(got) != 0xFFFFFFFF80020002 {
		t.Errorf("SceErr(ENOENT): got 0x%X, want 0xFFFFFFFF80020002", uint64(got))
	}
	if got >= 0 {
		t.Error("SceErr must be negative")
	}
}
