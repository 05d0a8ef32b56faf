// pm4_packets.go - PM4 command packet encoding shared by the GPU parser

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import "fmt"

// =============================================================================
// PACKET HEADER
// =============================================================================

// A PM4 header is one 32-bit word:
//
//	bits 30..31  packet type (only Type-3 carries opcodes)
//	bits 16..29  count; payload length is count+1 dwords
//	bits  8..15  opcode
//	bits  0..7   shader type / predicate, ignored by the parser
const (
	PM4_TYPE_0 = 0
	PM4_TYPE_2 = 2
	PM4_TYPE_3 = 3
)

type PM4Header uint32

func (h PM4Header) Type() uint32       { return uint32(h>>30) & 0x3 }
func (h PM4Header) Count() uint32      { return uint32(h>>16) & 0x3FFF }
func (h PM4Header) Opcode() uint8      { return uint8(h >> 8) }
func (h PM4Header) ShaderType() uint8  { return uint8(h) }
func (h PM4Header) PayloadLen() uint32 { return h.Count() + 1 }

// BuildPM4Header assembles a Type-3 header for numDwords payload words.
// Used by tests and by the internal command-stream fixtures.
func BuildPM4Header(opcode uint8, numDwords uint32, shaderType uint8) uint32 {
	return (uint32(PM4_TYPE_3) << 30) |
		(((numDwords - 1) & 0x3FFF) << 16) |
		(uint32(opcode) << 8) |
		uint32(shaderType)
}

// =============================================================================
// TYPE-3 OPCODES
// =============================================================================

const (
	PM4_IT_NOP                   = 0x10
	PM4_IT_SET_BASE              = 0x11
	PM4_IT_INDEX_BUFFER_SIZE     = 0x13
	PM4_IT_DISPATCH_DIRECT       = 0x15
	PM4_IT_DISPATCH_INDIRECT     = 0x16
	PM4_IT_ATOMIC_MEM            = 0x1E
	PM4_IT_OCCLUSION_QUERY       = 0x1F
	PM4_IT_SET_PREDICATION       = 0x20
	PM4_IT_COND_EXEC             = 0x22
	PM4_IT_DRAW_INDIRECT         = 0x24
	PM4_IT_DRAW_INDEX_INDIRECT   = 0x25
	PM4_IT_INDEX_BASE            = 0x26
	PM4_IT_DRAW_INDEX_2          = 0x27
	PM4_IT_CONTEXT_CONTROL       = 0x28
	PM4_IT_INDEX_TYPE            = 0x2A
	PM4_IT_DRAW_INDIRECT_MULTI   = 0x2C
	PM4_IT_DRAW_INDEX_AUTO       = 0x2D
	PM4_IT_NUM_INSTANCES         = 0x2F
	PM4_IT_INDIRECT_BUFFER_CNST  = 0x33
	PM4_IT_STRMOUT_BUFFER_UPDATE = 0x34
	PM4_IT_WRITE_DATA            = 0x37
	PM4_IT_MEM_SEMAPHORE         = 0x39
	PM4_IT_WAIT_REG_MEM          = 0x3C
	PM4_IT_INDIRECT_BUFFER       = 0x3F
	PM4_IT_COPY_DATA             = 0x40
	PM4_IT_PFP_SYNC_ME           = 0x42
	PM4_IT_SURFACE_SYNC          = 0x43
	PM4_IT_EVENT_WRITE           = 0x46
	PM4_IT_EVENT_WRITE_EOP       = 0x47
	PM4_IT_RELEASE_MEM           = 0x49
	PM4_IT_PREAMBLE_CNTL         = 0x4A
	PM4_IT_DMA_DATA              = 0x50
	PM4_IT_ACQUIRE_MEM           = 0x58
	PM4_IT_REWIND                = 0x59
	PM4_IT_LOAD_UCONFIG_REG      = 0x5E
	PM4_IT_LOAD_SH_REG           = 0x5F
	PM4_IT_LOAD_CONTEXT_REG      = 0x61
	PM4_IT_SET_CONFIG_REG        = 0x68
	PM4_IT_SET_CONTEXT_REG       = 0x69
	PM4_IT_SET_SH_REG            = 0x76
	PM4_IT_SET_SH_REG_OFFSET     = 0x77
	PM4_IT_SET_UCONFIG_REG       = 0x79
	PM4_IT_INCREMENT_DE_COUNTER  = 0x85
	PM4_IT_WAIT_ON_CE_COUNTER    = 0x86
)

var pm4OpcodeNames = map[uint8]string{
	PM4_IT_NOP:                   "NOP",
	PM4_IT_SET_BASE:              "SET_BASE",
	PM4_IT_INDEX_BUFFER_SIZE:     "INDEX_BUFFER_SIZE",
	PM4_IT_DISPATCH_DIRECT:       "DISPATCH_DIRECT",
	PM4_IT_DISPATCH_INDIRECT:     "DISPATCH_INDIRECT",
	PM4_IT_ATOMIC_MEM:            "ATOMIC_MEM",
	PM4_IT_OCCLUSION_QUERY:       "OCCLUSION_QUERY",
	PM4_IT_SET_PREDICATION:       "SET_PREDICATION",
	PM4_IT_COND_EXEC:             "COND_EXEC",
	PM4_IT_DRAW_INDIRECT:         "DRAW_INDIRECT",
	PM4_IT_DRAW_INDEX_INDIRECT:   "DRAW_INDEX_INDIRECT",
	PM4_IT_INDEX_BASE:            "INDEX_BASE",
	PM4_IT_DRAW_INDEX_2:          "DRAW_INDEX_2",
	PM4_IT_CONTEXT_CONTROL:       "CONTEXT_CONTROL",
	PM4_IT_INDEX_TYPE:            "INDEX_TYPE",
	PM4_IT_DRAW_INDIRECT_MULTI:   "DRAW_INDIRECT_MULTI",
	PM4_IT_DRAW_INDEX_AUTO:       "DRAW_INDEX_AUTO",
	PM4_IT_NUM_INSTANCES:         "NUM_INSTANCES",
	PM4_IT_INDIRECT_BUFFER_CNST:  "INDIRECT_BUFFER_CNST",
	PM4_IT_STRMOUT_BUFFER_UPDATE: "STRMOUT_BUFFER_UPDATE",
	PM4_IT_WRITE_DATA:            "WRITE_DATA",
	PM4_IT_MEM_SEMAPHORE:         "MEM_SEMAPHORE",
	PM4_IT_WAIT_REG_MEM:          "WAIT_REG_MEM",
	PM4_IT_INDIRECT_BUFFER:       "INDIRECT_BUFFER",
	PM4_IT_COPY_DATA:             "COPY_DATA",
	PM4_IT_PFP_SYNC_ME:           "PFP_SYNC_ME",
	PM4_IT_SURFACE_SYNC:          "SURFACE_SYNC",
	PM4_IT_EVENT_WRITE:           "EVENT_WRITE",
	PM4_IT_EVENT_WRITE_EOP:       "EVENT_WRITE_EOP",
	PM4_IT_RELEASE_MEM:           "RELEASE_MEM",
	PM4_IT_PREAMBLE_CNTL:         "PREAMBLE_CNTL",
	PM4_IT_DMA_DATA:              "DMA_DATA",
	PM4_IT_ACQUIRE_MEM:           "ACQUIRE_MEM",
	PM4_IT_REWIND:                "REWIND",
	PM4_IT_LOAD_UCONFIG_REG:      "LOAD_UCONFIG_REG",
	PM4_IT_LOAD_SH_REG:           "LOAD_SH_REG",
	PM4_IT_LOAD_CONTEXT_REG:      "LOAD_CONTEXT_REG",
	PM4_IT_SET_CONFIG_REG:        "SET_CONFIG_REG",
	PM4_IT_SET_CONTEXT_REG:       "SET_CONTEXT_REG",
	PM4_IT_SET_SH_REG:            "SET_SH_REG",
	PM4_IT_SET_SH_REG_OFFSET:     "SET_SH_REG_OFFSET",
	PM4_IT_SET_UCONFIG_REG:       "SET_UCONFIG_REG",
	PM4_IT_INCREMENT_DE_COUNTER:  "INCREMENT_DE_COUNTER",
	PM4_IT_WAIT_ON_CE_COUNTER:    "WAIT_ON_CE_COUNTER",
}

// PM4OpcodeName returns a label for log lines; unknown opcodes render as
// UNKNOWN_0xNN so parser diagnostics stay greppable.
func PM4OpcodeName(op uint8) string {
	if name, ok := pm4OpcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN_0x%02X", op)
}
