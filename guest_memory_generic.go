//go:build !linux

// guest_memory_generic.go - Arena backing for hosts without the mmap path

package main

// allocateArena obtains the arena from the Go heap. The runtime backs large
// zeroed allocations with lazily committed pages on every supported host,
// so this stays cheap until the guest actually touches memory.
func allocateArena(size uint64) ([]byte, func(), error) {
	arena := make([]byte, size)
	return arena, func() {}, nil
}
