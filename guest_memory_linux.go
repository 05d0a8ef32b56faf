//go:build linux

// guest_memory_linux.go - Arena backing via anonymous mmap

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// allocateArena reserves size bytes of zeroed anonymous memory. MAP_NORESERVE
// keeps the 8 GiB reservation from counting against commit limits; pages are
// committed lazily on first touch, which is exactly the reserve-then-commit
// behavior the arena wants.
func allocateArena(size uint64) ([]byte, func(), error) {
	arena, err := unix.Mmap(-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON|unix.MAP_NORESERVE)
	if err != nil {
		return nil, nil, fmt.Errorf("mmap %d bytes: %w", size, err)
	}
	release := func() {
		_ = unix.Munmap(arena)
	}
	return arena, release, nil
}
