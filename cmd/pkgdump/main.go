// main.go - pkgdump: inspect package container files

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
)

// Self-contained copies of the on-disk layout; every multi-byte field
// is big-endian.
const (
	pkgMagic      = 0x7F434E54
	pkgEntryEboot = 0x1000
	pkgEntrySize  = 32
)

type pkgHeader struct {
	Magic         uint32
	Revision      uint32
	Type          uint16
	Flags         uint16
	EntryCount    uint32
	SCEntryCount  uint16
	EntryCount2   uint16
	TableOffset   uint32
	EntryDataSize uint32
	BodyOffset    uint64
	BodySize      uint64
	ContentOffset uint64
	ContentSize   uint64
	ContentID     [36]byte
	Padding       [12]byte
	DRMType       uint32
	ContentType   uint32
	ContentFlags  uint32
	PromoteSize   uint32
	VersionDate   uint32
	VersionHash   uint32
	IroTag        uint32
	EkcVersion    uint32
}

type pkgEntry struct {
	ID             uint32
	FilenameOffset uint32
	Flags1         uint32
	Flags2         uint32
	DataOffset     uint32
	DataSize       uint32
	Padding        uint64
}

func effectiveSize(e pkgEntry, fileSize int) uint64 {
	off := uint64(e.DataOffset)
	if off >= uint64(fileSize) {
		return 0
	}
	size := uint64(e.DataSize)
	if remain := uint64(fileSize) - off; size > remain {
		size = remain
	}
	return size
}

// chosenEntry mirrors the loader's executable pick: the well-known id
// when its bounds hold, otherwise the largest entry with usable bytes.
func chosenEntry(entries []pkgEntry, fileSize int) int {
	for i, e := range entries {
		if e.ID != pkgEntryEboot {
			continue
		}
		off := uint64(e.DataOffset)
		if off < uint64(fileSize) && off+uint64(e.DataSize) <= uint64(fileSize) && e.DataSize > 0 {
			return i
		}
		break
	}
	best, bestSize := -1, uint64(0)
	for i := range entries {
		if size := effectiveSize(entries[i], fileSize); size > bestSize {
			best, bestSize = i, size
		}
	}
	return best
}

func dump(path string, verbose bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var hdr pkgHeader
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &hdr); err != nil {
		return fmt.Errorf("header truncated: %w", err)
	}
	if hdr.Magic != pkgMagic {
		return fmt.Errorf("bad magic 0x%08X (want 0x%08X)", hdr.Magic, pkgMagic)
	}

	contentID := string(bytes.TrimRight(hdr.ContentID[:], "\x00"))
	fmt.Printf("%s: %d bytes\n", path, len(data))
	fmt.Printf("  content id   : %q\n", contentID)
	fmt.Printf("  content type : 0x%X\n", hdr.ContentType)
	fmt.Printf("  entries      : %d at 0x%X\n", hdr.EntryCount, hdr.TableOffset)
	if verbose {
		fmt.Printf("  revision     : 0x%X\n", hdr.Revision)
		fmt.Printf("  type/flags   : 0x%X / 0x%X\n", hdr.Type, hdr.Flags)
		fmt.Printf("  body         : 0x%X + 0x%X\n", hdr.BodyOffset, hdr.BodySize)
		fmt.Printf("  content      : 0x%X + 0x%X\n", hdr.ContentOffset, hdr.ContentSize)
		fmt.Printf("  drm type     : 0x%X\n", hdr.DRMType)
		fmt.Printf("  version      : date 0x%X hash 0x%X\n", hdr.VersionDate, hdr.VersionHash)
	}

	tableOff := uint64(hdr.TableOffset)
	if tableOff+uint64(hdr.EntryCount)*pkgEntrySize > uint64(len(data)) {
		return fmt.Errorf("entry table (%d entries at 0x%X) exceeds file size %d",
			hdr.EntryCount, tableOff, len(data))
	}

	entries := make([]pkgEntry, hdr.EntryCount)
	er := bytes.NewReader(data[tableOff:])
	for i := range entries {
		if err := binary.Read(er, binary.BigEndian, &entries[i]); err != nil {
			return fmt.Errorf("entry %d truncated: %w", i, err)
		}
	}

	chosen := chosenEntry(entries, len(data))
	fmt.Printf("\n  %-4s %-10s %-10s %-12s %-12s %-12s\n",
		"#", "id", "name-off", "offset", "size", "effective")
	for i, e := range entries {
		mark := ""
		if i == chosen {
			mark = "  <- executable"
		}
		fmt.Printf("  %-4d 0x%-8X 0x%-8X 0x%-10X %-12d %-12d%s\n",
			i, e.ID, e.FilenameOffset, e.DataOffset, e.DataSize,
			effectiveSize(e, len(data)), mark)
	}
	return nil
}

func main() {
	verbose := flag.Bool("v", false, "Print every header field")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pkgdump [-v] file.pkg\n\nLists the header and entry table of a package container.\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	if err := dump(flag.Arg(0), *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
