// guest_memory.go - Unified guest memory arena with bounds-checked typed access

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"encoding/binary"
	"fmt"
	"math"
)

// =============================================================================
// GUEST ADDRESS SPACE LAYOUT
// =============================================================================

const (
	GUEST_MEMORY_SIZE   = uint64(8) << 30  // unified arena
	FALLBACK_ARENA_SIZE = uint64(512) << 20 // degraded mode when 8 GiB cannot be committed

	USER_BASE   = uint64(0x0000000000400000) // executables load here
	HEAP_BASE   = uint64(0x0000000200000000) // mmap bump allocator
	STACK_TOP   = uint64(0x00007FFFFFFFF000)
	STACK_SIZE  = uint64(8) << 20
	VRAM_BASE   = uint64(0x0000000800000000)
	SHARED_BASE = uint64(0x0000001000000000)
	KERNEL_BASE = uint64(0xFFFF800000000000)
)

// =============================================================================
// FAULT TYPE
// =============================================================================

// MemoryFault reports a guest access that fell outside the arena. The CPU
// step maps any MemoryFault into the Faulted state; HLE handlers map it to
// EFAULT. It never carries host pointers, only guest-visible numbers.
type MemoryFault struct {
	VAddr  uint64
	Size   uint64
	Offset uint64
}

func (f *MemoryFault) Error() string {
	return fmt.Sprintf("guest memory fault: vaddr=0x%X size=%d (offset 0x%X beyond arena)",
		f.VAddr, f.Size, f.Offset)
}

// =============================================================================
// GUEST MEMORY
// =============================================================================

// GuestMemory owns the single byte arena backing the whole guest address
// space. Translation folds every virtual address into the arena; there is
// no page table and no protection model. Only the CPU thread (and the
// syscall handlers it runs) touches the arena, so typed access is unlocked.
type GuestMemory struct {
	arena    []byte
	mask     uint64
	degraded bool
	release  func()
	log      *Logger
}

// NewGuestMemory reserves and commits the arena. If the full 8 GiB cannot
// be obtained from the host it retries at 512 MiB and logs the degraded
// capacity; addresses past the small arena wrap just like the large one.
func NewGuestMemory(log *Logger) (*GuestMemory, error) {
	arena, release, err := allocateArena(GUEST_MEMORY_SIZE)
	degraded := false
	if err != nil {
		log.Warnf("Memory", "full arena allocation failed (%v), retrying at %d MiB",
			err, FALLBACK_ARENA_SIZE>>20)
		arena, release, err = allocateArena(FALLBACK_ARENA_SIZE)
		if err != nil {
			return nil, fmt.Errorf("arena allocation failed: %w", err)
		}
		degraded = true
	}

	m := &GuestMemory{
		arena:    arena,
		mask:     uint64(len(arena)) - 1,
		degraded: degraded,
		release:  release,
		log:      log,
	}
	if degraded {
		log.Warnf("Memory", "running with degraded %d MiB arena, addresses wrap early",
			uint64(len(arena))>>20)
	} else {
		log.Infof("Memory", "allocated %d GiB guest arena", uint64(len(arena))>>30)
	}
	return m, nil
}

// Close releases the arena back to the host. The GuestMemory must not be
// used afterwards.
func (m *GuestMemory) Close() {
	if m.release != nil {
		m.release()
		m.release = nil
	}
	m.arena = nil
}

func (m *GuestMemory) Size() uint64   { return uint64(len(m.arena)) }
func (m *GuestMemory) Degraded() bool { return m.degraded }

// translate folds a guest virtual address into an arena offset. Addresses
// at or above USER_BASE are rebased first so the executable image lands at
// offset zero; everything wraps with the arena mask.
func (m *GuestMemory) translate(vaddr uint64) uint64 {
	if vaddr >= USER_BASE {
		return (vaddr - USER_BASE) & m.mask
	}
	return vaddr & m.mask
}

// checkRange bounds-checks a translated access of n bytes.
func (m *GuestMemory) checkRange(vaddr, n uint64) (uint64, error) {
	off := m.translate(vaddr)
	if off+n > uint64(len(m.arena)) {
		return 0, &MemoryFault{VAddr: vaddr, Size: n, Offset: off}
	}
	return off, nil
}

// IsValidRange reports whether an access of size bytes at vaddr stays
// inside the arena.
func (m *GuestMemory) IsValidRange(vaddr, size uint64) bool {
	_, err := m.checkRange(vaddr, size)
	return err == nil
}

// =============================================================================
// TYPED READS
// =============================================================================

func (m *GuestMemory) ReadU8(vaddr uint64) (uint8, error) {
	off, err := m.checkRange(vaddr, 1)
	if err != nil {
		return 0, err
	}
	return m.arena[off], nil
}

func (m *GuestMemory) ReadU16(vaddr uint64) (uint16, error) {
	off, err := m.checkRange(vaddr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.arena[off:]), nil
}

func (m *GuestMemory) ReadU32(vaddr uint64) (uint32, error) {
	off, err := m.checkRange(vaddr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.arena[off:]), nil
}

func (m *GuestMemory) ReadU64(vaddr uint64) (uint64, error) {
	off, err := m.checkRange(vaddr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.arena[off:]), nil
}

func (m *GuestMemory) ReadI8(vaddr uint64) (int8, error) {
	v, err := m.ReadU8(vaddr)
	return int8(v), err
}

func (m *GuestMemory) ReadI16(vaddr uint64) (int16, error) {
	v, err := m.ReadU16(vaddr)
	return int16(v), err
}

func (m *GuestMemory) ReadI32(vaddr uint64) (int32, error) {
	v, err := m.ReadU32(vaddr)
	return int32(v), err
}

func (m *GuestMemory) ReadI64(vaddr uint64) (int64, error) {
	v, err := m.ReadU64(vaddr)
	return int64(v), err
}

func (m *GuestMemory) ReadF32(vaddr uint64) (float32, error) {
	v, err := m.ReadU32(vaddr)
	return math.Float32frombits(v), err
}

func (m *GuestMemory) ReadF64(vaddr uint64) (float64, error) {
	v, err := m.ReadU64(vaddr)
	return math.Float64frombits(v), err
}

// =============================================================================
// TYPED WRITES
// =============================================================================

func (m *GuestMemory) WriteU8(vaddr uint64, v uint8) error {
	off, err := m.checkRange(vaddr, 1)
	if err != nil {
		return err
	}
	m.arena[off] = v
	return nil
}

func (m *GuestMemory) WriteU16(vaddr uint64, v uint16) error {
	off, err := m.checkRange(vaddr, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.arena[off:], v)
	return nil
}

func (m *GuestMemory) WriteU32(vaddr uint64, v uint32) error {
	off, err := m.checkRange(vaddr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.arena[off:], v)
	return nil
}

func (m *GuestMemory) WriteU64(vaddr uint64, v uint64) error {
	off, err := m.checkRange(vaddr, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.arena[off:], v)
	return nil
}

func (m *GuestMemory) WriteI8(vaddr uint64, v int8) error   { return m.WriteU8(vaddr, uint8(v)) }
func (m *GuestMemory) WriteI16(vaddr uint64, v int16) error { return m.WriteU16(vaddr, uint16(v)) }
func (m *GuestMemory) WriteI32(vaddr uint64, v int32) error { return m.WriteU32(vaddr, uint32(v)) }
func (m *GuestMemory) WriteI64(vaddr uint64, v int64) error { return m.WriteU64(vaddr, uint64(v)) }

func (m *GuestMemory) WriteF32(vaddr uint64, v float32) error {
	return m.WriteU32(vaddr, math.Float32bits(v))
}

func (m *GuestMemory) WriteF64(vaddr uint64, v float64) error {
	return m.WriteU64(vaddr, math.Float64bits(v))
}

// =============================================================================
// BLOCK OPERATIONS
// =============================================================================

// ReadBlock copies len(dst) bytes starting at vaddr into dst. A nil or
// empty destination is a no-op.
func (m *GuestMemory) ReadBlock(vaddr uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	off, err := m.checkRange(vaddr, uint64(len(dst)))
	if err != nil {
		return err
	}
	copy(dst, m.arena[off:off+uint64(len(dst))])
	return nil
}

// WriteBlock copies src into guest memory at vaddr. A nil or empty source
// is a no-op.
func (m *GuestMemory) WriteBlock(vaddr uint64, src []byte) error {
	if len(src) == 0 {
		return nil
	}
	off, err := m.checkRange(vaddr, uint64(len(src)))
	if err != nil {
		return err
	}
	copy(m.arena[off:off+uint64(len(src))], src)
	return nil
}

// Fill sets n bytes starting at vaddr to b.
func (m *GuestMemory) Fill(vaddr uint64, b byte, n uint64) error {
	if n == 0 {
		return nil
	}
	off, err := m.checkRange(vaddr, n)
	if err != nil {
		return err
	}
	region := m.arena[off : off+n]
	for i := range region {
		region[i] = b
	}
	return nil
}

// Zero clears n bytes starting at vaddr.
func (m *GuestMemory) Zero(vaddr uint64, n uint64) error {
	return m.Fill(vaddr, 0, n)
}
