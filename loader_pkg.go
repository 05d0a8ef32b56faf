// loader_pkg.go - Package container parsing and executable extraction

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// =============================================================================
// CONTAINER FORMAT
// =============================================================================

// Every multi-byte field in the container is big-endian.
const (
	PKG_MAGIC = 0x7F434E54 // 0x7F "CNT"

	PKG_ENTRY_ID_EBOOT = 0x1000

	// Entries claiming more than this are treated as corruption.
	PKG_MAX_ENTRY_SIZE = 2 << 30
)

// PkgHeader mirrors the on-disk layout; binary.Read fills it directly.
type PkgHeader struct {
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

// PkgEntry is one row of the entry table.
type PkgEntry struct {
	ID             uint32
	FilenameOffset uint32
	Flags1         uint32
	Flags2         uint32
	DataOffset     uint32
	DataSize       uint32
	Padding        uint64
}

const pkgEntrySize = 32

// PkgInfo is the summary handed to callers and the inspector tool.
type PkgInfo struct {
	ContentID   string
	ContentType uint32
	EntryCount  uint32
	FileSize    int64
}

// =============================================================================
// LOADER
// =============================================================================

// PkgLoader parses one package file and extracts entries from it.
type PkgLoader struct {
	path    string
	header  PkgHeader
	entries []PkgEntry
	info    PkgInfo
	loaded  bool
	log     *Logger
}

func NewPkgLoader(log *Logger) *PkgLoader {
	return &PkgLoader{log: log}
}

// IsPkgFile reports whether data starts with the container magic.
func IsPkgFile(data []byte) bool {
	return len(data) >= 4 && binary.BigEndian.Uint32(data) == PKG_MAGIC
}

// LoadPackage parses the header and entry table. Extraction is separate
// so the inspector can list entries without pulling payloads.
func (p *PkgLoader) LoadPackage(path string) (PkgInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PkgInfo{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := p.parse(data); err != nil {
		return PkgInfo{}, err
	}
	p.path = path
	return p.info, nil
}

func (p *PkgLoader) parse(data []byte) error {
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.BigEndian, &p.header); err != nil {
		return fmt.Errorf("package header truncated: %w", err)
	}
	if p.header.Magic != PKG_MAGIC {
		return fmt.Errorf("invalid package magic 0x%08X", p.header.Magic)
	}

	count := p.header.EntryCount
	tableOff := uint64(p.header.TableOffset)
	if tableOff+uint64(count)*pkgEntrySize > uint64(len(data)) {
		return fmt.Errorf("entry table (%d entries at 0x%X) exceeds file size %d",
			count, tableOff, len(data))
	}

	p.entries = make([]PkgEntry, count)
	er := bytes.NewReader(data[tableOff:])
	for i := range p.entries {
		if err := binary.Read(er, binary.BigEndian, &p.entries[i]); err != nil {
			return fmt.Errorf("entry %d truncated: %w", i, err)
		}
	}

	contentID := string(bytes.TrimRight(p.header.ContentID[:], "\x00"))
	p.info = PkgInfo{
		ContentID:   contentID,
		ContentType: p.header.ContentType,
		EntryCount:  count,
		FileSize:    int64(len(data)),
	}
	p.loaded = true
	p.log.Infof("PKG", "parsed package: content=%q type=0x%X entries=%d",
		contentID, p.header.ContentType, count)
	return nil
}

func (p *PkgLoader) Info() PkgInfo       { return p.info }
func (p *PkgLoader) Entries() []PkgEntry { return p.entries }

// effectiveSize clamps an entry's claimed size to the bytes actually
// present in the file. Zero means the entry holds nothing usable.
func effectiveEntrySize(e PkgEntry, fileSize int64) uint64 {
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

// ExtractEntry returns one entry's payload by id.
func (p *PkgLoader) ExtractEntry(id uint32) ([]byte, error) {
	if !p.loaded {
		return nil, fmt.Errorf("no package loaded")
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("reread %s: %w", p.path, err)
	}
	for _, e := range p.entries {
		if e.ID != id {
			continue
		}
		size := effectiveEntrySize(e, int64(len(data)))
		if size == 0 {
			return nil, fmt.Errorf("entry 0x%X has zero usable size", id)
		}
		if size > PKG_MAX_ENTRY_SIZE {
			return nil, fmt.Errorf("entry 0x%X absurd size %d (possible corruption)", id, size)
		}
		off := uint64(e.DataOffset)
		return data[off : off+size], nil
	}
	return nil, fmt.Errorf("entry 0x%X not present", id)
}

// ExtractEboot returns the main executable: the well-known entry id if
// its bounds hold up, otherwise the largest entry with usable bytes.
func (p *PkgLoader) ExtractEboot() ([]byte, error) {
	if !p.loaded {
		return nil, fmt.Errorf("no package loaded")
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("reread %s: %w", p.path, err)
	}
	fileSize := int64(len(data))

	for _, e := range p.entries {
		if e.ID != PKG_ENTRY_ID_EBOOT {
			continue
		}
		off := uint64(e.DataOffset)
		if off < uint64(fileSize) && off+uint64(e.DataSize) <= uint64(fileSize) && e.DataSize > 0 {
			p.log.Infof("PKG", "extracting executable entry 0x1000 (%d bytes)", e.DataSize)
			return data[off : off+uint64(e.DataSize)], nil
		}
		p.log.Warnf("PKG", "entry 0x1000 has invalid bounds (off 0x%X size 0x%X), falling back",
			e.DataOffset, e.DataSize)
		break
	}

	// Fallback: the largest entry whose bytes exist in the file.
	var best *PkgEntry
	var bestSize uint64
	for i := range p.entries {
		size := effectiveEntrySize(p.entries[i], fileSize)
		if size > bestSize {
			best = &p.entries[i]
			bestSize = size
		}
	}
	if best == nil || bestSize == 0 {
		return nil, fmt.Errorf("no extractable entry in package")
	}
	if bestSize > PKG_MAX_ENTRY_SIZE {
		return nil, fmt.Errorf("largest entry 0x%X claims %d bytes (possible corruption)",
			best.ID, bestSize)
	}
	if bestSize < uint64(best.DataSize) {
		p.log.Warnf("PKG", "entry 0x%X truncated from %d to %d bytes (sanitized)",
			best.ID, best.DataSize, bestSize)
	}
	p.log.Infof("PKG", "fallback extraction of entry 0x%X (%d bytes)", best.ID, bestSize)
	off := uint64(best.DataOffset)
	return data[off : off+bestSize], nil
}

// ChooseEbootEntry reports which entry ExtractEboot would pick, for the
// inspector. Returns the entry index or -1.
func (p *PkgLoader) ChooseEbootEntry() int {
	fileSize := p.info.FileSize
	for i, e := range p.entries {
		if e.ID == PKG_ENTRY_ID_EBOOT {
			off := uint64(e.DataOffset)
			if off < uint64(fileSize) && off+uint64(e.DataSize) <= uint64(fileSize) && e.DataSize > 0 {
				return i
			}
			break
		}
	}
	best := -1
	var bestSize uint64
	for i := range p.entries {
		size := effectiveEntrySize(p.entries[i], fileSize)
		if size > bestSize && size <= PKG_MAX_ENTRY_SIZE {
			best = i
			bestSize = size
		}
	}
	return best
}
