// loader_elf.go - ELF64 executable loading into guest memory

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"encoding/binary"
	"fmt"
	"os"
)

// =============================================================================
// ELF CONSTANTS
// =============================================================================

const (
	elfMagic0 = 0x7F
	elfMagic1 = 'E'
	elfMagic2 = 'L'
	elfMagic3 = 'F'

	ELFCLASS64  = 2
	ELFDATA2LSB = 1
	EM_X86_64   = 62
	ET_EXEC     = 2
	ET_DYN      = 3

	PT_LOAD = 1

	elfHeaderSize  = 64
	programHdrSize = 56
)

// SCE-specific program header types, named for the log only.
const (
	PT_SCE_RELA       = 0x60000000
	PT_SCE_DYNLIBDATA = 0x61000000
	PT_SCE_PROCPARAM  = 0x61000001
	PT_SCE_RELRO      = 0x61000010
	PT_SCE_COMMENT    = 0x6FFFFF00
	PT_SCE_VERSION    = 0x6FFFFF01
	PT_GNU_EH_FRAME   = 0x6474E550
)

func segmentTypeName(t uint32) string {
	switch t {
	case PT_LOAD:
		return "LOAD"
	case 2:
		return "DYNAMIC"
	case 3:
		return "INTERP"
	case 4:
		return "NOTE"
	case 6:
		return "PHDR"
	case 7:
		return "TLS"
	case PT_SCE_RELA:
		return "SCE_RELA"
	case PT_SCE_DYNLIBDATA:
		return "SCE_DYNLIBDATA"
	case PT_SCE_PROCPARAM:
		return "SCE_PROCPARAM"
	case PT_SCE_RELRO:
		return "SCE_RELRO"
	case PT_SCE_COMMENT:
		return "SCE_COMMENT"
	case PT_SCE_VERSION:
		return "SCE_VERSION"
	case PT_GNU_EH_FRAME:
		return "GNU_EH_FRAME"
	default:
		return fmt.Sprintf("UNKNOWN_0x%X", t)
	}
}

func segmentFlagString(flags uint32) string {
	b := []byte("---")
	if flags&4 != 0 {
		b[0] = 'r'
	}
	if flags&2 != 0 {
		b[1] = 'w'
	}
	if flags&1 != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// =============================================================================
// RESULT TYPES
// =============================================================================

type LoadedSegment struct {
	VAddr    uint64
	MemSize  uint64
	FileSize uint64
	Flags    uint32
	TypeName string
}

type ElfLoadResult struct {
	EntryPoint  uint64
	BaseAddress uint64
	TopAddress  uint64
	Segments    []LoadedSegment
	ELFType     uint16
	IsValid     bool
}

// =============================================================================
// LOADER
// =============================================================================

// LoadELF reads an executable from the host filesystem into guest memory.
func LoadELF(path string, mem *GuestMemory, log *Logger) (ElfLoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ElfLoadResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	return LoadELFFromBytes(data, mem, log)
}

// LoadELFFromBytes validates and loads an in-memory ELF image (the
// package extraction path). Segments that fall outside the file or the
// arena are skipped with a warning; the load fails only when nothing
// loadable remains.
func LoadELFFromBytes(data []byte, mem *GuestMemory, log *Logger) (ElfLoadResult, error) {
	if len(data) < elfHeaderSize {
		return ElfLoadResult{}, fmt.Errorf("file too small for an ELF header (%d bytes)", len(data))
	}
	if data[0] != elfMagic0 || data[1] != elfMagic1 || data[2] != elfMagic2 || data[3] != elfMagic3 {
		return ElfLoadResult{}, fmt.Errorf("invalid ELF magic")
	}
	if data[4] != ELFCLASS64 {
		return ElfLoadResult{}, fmt.Errorf("unsupported ELF class %d, need 64-bit", data[4])
	}
	if data[5] != ELFDATA2LSB {
		return ElfLoadResult{}, fmt.Errorf("unsupported data encoding %d, need little-endian", data[5])
	}
	if osabi := data[7]; osabi != 0 && osabi != 9 {
		log.Warnf("ELF", "unusual OS ABI %d, continuing", osabi)
	}

	le := binary.LittleEndian
	elfType := le.Uint16(data[16:])
	machine := le.Uint16(data[18:])
	entry := le.Uint64(data[24:])
	phOff := le.Uint64(data[32:])
	phEntSize := le.Uint16(data[54:])
	phNum := le.Uint16(data[56:])

	if machine != EM_X86_64 {
		return ElfLoadResult{}, fmt.Errorf("unsupported architecture %d, need x86-64", machine)
	}
	if elfType != ET_EXEC && elfType != ET_DYN {
		return ElfLoadResult{}, fmt.Errorf("unsupported ELF type %d, need EXEC or DYN", elfType)
	}
	if phEntSize < programHdrSize {
		return ElfLoadResult{}, fmt.Errorf("program header entry size %d too small", phEntSize)
	}
	if phOff > uint64(len(data)) {
		return ElfLoadResult{}, fmt.Errorf("program header table offset 0x%X beyond file size %d", phOff, len(data))
	}

	res := ElfLoadResult{
		EntryPoint:  entry,
		ELFType:     elfType,
		BaseAddress: ^uint64(0),
	}

	for i := uint16(0); i < phNum; i++ {
		off := phOff + uint64(i)*uint64(phEntSize)
		if off > uint64(len(data)) || programHdrSize > uint64(len(data))-off {
			log.Warnf("ELF", "program header %d beyond end of file, stopping", i)
			break
		}
		ph := data[off:]
		pType := le.Uint32(ph[0:])
		pFlags := le.Uint32(ph[4:])
		pOffset := le.Uint64(ph[8:])
		pVAddr := le.Uint64(ph[16:])
		pFileSz := le.Uint64(ph[32:])
		pMemSz := le.Uint64(ph[40:])

		if pType != PT_LOAD {
			log.Debugf("ELF", "skipping %s segment (%d bytes)", segmentTypeName(pType), pMemSz)
			continue
		}
		if pOffset > uint64(len(data)) || pFileSz > uint64(len(data))-pOffset {
			log.Warnf("ELF", "LOAD segment %d exceeds file bounds (off 0x%X + 0x%X > 0x%X), skipping",
				i, pOffset, pFileSz, len(data))
			continue
		}
		if pMemSz == 0 {
			continue
		}
		if !mem.IsValidRange(pVAddr, pMemSz) {
			log.Warnf("ELF", "LOAD segment %d exceeds guest memory (vaddr 0x%X size 0x%X), skipping",
				i, pVAddr, pMemSz)
			continue
		}

		if pFileSz > 0 {
			if err := mem.WriteBlock(pVAddr, data[pOffset:pOffset+pFileSz]); err != nil {
				log.Warnf("ELF", "LOAD segment %d copy failed: %v", i, err)
				continue
			}
		}
		if pMemSz > pFileSz {
			if err := mem.Zero(pVAddr+pFileSz, pMemSz-pFileSz); err != nil {
				log.Warnf("ELF", "LOAD segment %d BSS zero failed: %v", i, err)
				continue
			}
		}

		res.Segments = append(res.Segments, LoadedSegment{
			VAddr:    pVAddr,
			MemSize:  pMemSz,
			FileSize: pFileSz,
			Flags:    pFlags,
			TypeName: segmentTypeName(pType),
		})
		if pVAddr < res.BaseAddress {
			res.BaseAddress = pVAddr
		}
		if pVAddr+pMemSz > res.TopAddress {
			res.TopAddress = pVAddr + pMemSz
		}
		log.Infof("ELF", "loaded segment %d: vaddr=0x%X filesz=0x%X memsz=0x%X %s",
			i, pVAddr, pFileSz, pMemSz, segmentFlagString(pFlags))
	}

	if len(res.Segments) == 0 {
		return ElfLoadResult{}, fmt.Errorf("no loadable segments")
	}
	res.IsValid = true
	log.Infof("ELF", "image loaded: entry=0x%X base=0x%X top=0x%X (%d segments)",
		res.EntryPoint, res.BaseAddress, res.TopAddress, len(res.Segments))
	return res, nil
}
