// gnm_parser.go - PM4 command buffer parser feeding the render queue

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

// Nesting cap for INDIRECT_BUFFER chains.
const GNM_MAX_IB_DEPTH = 16

// gnmTrackedState is the register state the parser carries between
// packets within a buffer group.
type gnmTrackedState struct {
	indexBase    uint64
	indexType    uint32
	numInstances uint32
	primType     uint32

	vsShaderAddr uint64
	psShaderAddr uint64
	csShaderAddr uint64
}

// GnmParser walks guest PM4 streams and turns draw-class packets into
// render commands. It runs on the CPU thread inside the submit syscall.
type GnmParser struct {
	mem   *GuestMemory
	queue *RenderQueue
	log   *Logger

	state gnmTrackedState

	packetsParsed  uint64
	drawsEmitted   uint64
	buffersSkipped uint64
}

func NewGnmParser(mem *GuestMemory, queue *RenderQueue, log *Logger) *GnmParser {
	p := &GnmParser{mem: mem, queue: queue, log: log}
	p.ResetState()
	return p
}

// ResetState clears the tracked register state between buffer groups.
// Instance count defaults to 1 here and only here; a guest-written zero
// stays zero.
func (p *GnmParser) ResetState() {
	p.state = gnmTrackedState{numInstances: 1}
}

// ParseCommandBuffer walks numDwords words starting at addr.
func (p *GnmParser) ParseCommandBuffer(addr uint64, numDwords uint32) {
	p.parse(addr, numDwords, 0)
}

func (p *GnmParser) parse(addr uint64, numDwords uint32, depth int) {
	if depth >= GNM_MAX_IB_DEPTH {
		p.log.Warnf("GNM", "indirect buffer nesting exceeds %d, dropping chain", GNM_MAX_IB_DEPTH)
		return
	}
	if addr == 0 || numDwords == 0 {
		return
	}

	offset := uint32(0)
	for offset < numDwords {
		word, err := p.mem.ReadU32(addr + uint64(offset)*4)
		if err != nil {
			p.log.Warnf("GNM", "command buffer read fault at 0x%X, terminating", addr+uint64(offset)*4)
			p.buffersSkipped++
			return
		}
		header := PM4Header(word)

		if header.Type() != PM4_TYPE_3 {
			p.log.Debugf("GNM", "non-Type3 word 0x%08X at offset %d, skipping", word, offset)
			offset++
			continue
		}

		payloadLen := header.PayloadLen()
		if offset+1+payloadLen > numDwords {
			p.log.Warnf("GNM", "packet %s payload overruns buffer (%d+%d > %d), terminating",
				PM4OpcodeName(header.Opcode()), offset+1, payloadLen, numDwords)
			p.buffersSkipped++
			return
		}

		payload := make([]uint32, payloadLen)
		for i := uint32(0); i < payloadLen; i++ {
			v, err := p.mem.ReadU32(addr + uint64(offset+1+i)*4)
			if err != nil {
				p.log.Warnf("GNM", "payload read fault, terminating")
				p.buffersSkipped++
				return
			}
			payload[i] = v
		}

		p.packetsParsed++
		p.dispatch(header.Opcode(), payload, depth)
		offset += 1 + payloadLen
	}
}

func (p *GnmParser) dispatch(opcode uint8, payload []uint32, depth int) {
	switch opcode {
	case PM4_IT_NOP, PM4_IT_CONTEXT_CONTROL:
		// State not modeled.

	case PM4_IT_INDEX_TYPE:
		if len(payload) >= 1 {
			p.state.indexType = payload[0] & 0x3
		}

	case PM4_IT_NUM_INSTANCES:
		// Stored verbatim; zero means zero-instance draws. The default
		// of 1 applies only at reset.
		if len(payload) >= 1 {
			p.state.numInstances = payload[0]
		}

	case PM4_IT_INDEX_BASE:
		if len(payload) >= 2 {
			p.state.indexBase = uint64(payload[0]) | uint64(payload[1]&0xFFFF)<<32
		}

	case PM4_IT_DRAW_INDEX_AUTO:
		if len(payload) < 1 {
			return
		}
		p.queue.Push(RenderCommand{
			Kind:          CmdDraw,
			VertexCount:   payload[0],
			InstanceCount: p.state.numInstances,
		})
		p.drawsEmitted++

	case PM4_IT_DRAW_INDEX_2:
		// payload: max index count, index base lo, hi, index count, draw initiator
		if len(payload) < 4 {
			p.log.Debugf("GNM", "DRAW_INDEX_2 with %d payload words, need 4", len(payload))
			return
		}
		p.state.indexBase = uint64(payload[1]) | uint64(payload[2])<<32
		p.queue.Push(RenderCommand{
			Kind:            CmdDrawIndexed,
			IndexCount:      payload[3],
			InstanceCount:   p.state.numInstances,
			IndexBufferAddr: p.state.indexBase,
			IndexType:       p.state.indexType,
		})
		p.drawsEmitted++

	case PM4_IT_DISPATCH_DIRECT:
		if len(payload) < 3 {
			p.log.Debugf("GNM", "DISPATCH_DIRECT with %d payload words, need 3", len(payload))
			return
		}
		p.queue.Push(RenderCommand{
			Kind:        CmdComputeDispatch,
			GroupCountX: payload[0],
			GroupCountY: payload[1],
			GroupCountZ: payload[2],
		})
		p.drawsEmitted++

	case PM4_IT_INDIRECT_BUFFER, PM4_IT_INDIRECT_BUFFER_CNST:
		if len(payload) < 3 {
			return
		}
		nestedAddr := uint64(payload[0]) | uint64(payload[1]&0xFFFF)<<32
		nestedSize := payload[2] & 0xFFFFF
		p.parse(nestedAddr, nestedSize, depth+1)

	case PM4_IT_EVENT_WRITE, PM4_IT_EVENT_WRITE_EOP, PM4_IT_ACQUIRE_MEM, PM4_IT_RELEASE_MEM:
		// Barrier class, accepted silently.

	case PM4_IT_SET_CONTEXT_REG, PM4_IT_SET_SH_REG, PM4_IT_SET_UCONFIG_REG:
		p.log.Debugf("GNM", "%s updating %d register words", PM4OpcodeName(opcode), len(payload))

	default:
		p.log.Debugf("GNM", "ignoring packet %s (%d payload words)", PM4OpcodeName(opcode), len(payload))
	}
}

// =============================================================================
// STATISTICS
// =============================================================================

type GnmStats struct {
	PacketsParsed  uint64
	DrawsEmitted   uint64
	BuffersSkipped uint64
}

func (p *GnmParser) Stats() GnmStats {
	return GnmStats{
		PacketsParsed:  p.packetsParsed,
		DrawsEmitted:   p.drawsEmitted,
		BuffersSkipped: p.buffersSkipped,
	}
}
