// gnm_parser_test.go - PM4 stream walking, draw emission and nesting tests

package main

import (
	"io"
	"testing"
)

func newTestParser(t *testing.T) (*GnmParser, *RenderQueue, *GuestMemory) {
	t.Helper()
	mem := newTestMemory(t)
	q := NewRenderQueue()
	return NewGnmParser(mem, q, NewLogger(io.Discard)), q, mem
}

// writeDwords lays a PM4 stream into guest memory at addr.
func writeDwords(t *testing.T, mem *GuestMemory, addr uint64, words []uint32) {
	t.Helper()
	for i, w := range words {
		if err := mem.WriteU32(addr+uint64(i)*4, w); err != nil {
			t.Fatalf("WriteU32: %v", err)
		}
	}
}

func TestGnmParser_DrawIndexAuto(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	stream := []uint32{
		BuildPM4Header(PM4_IT_CONTEXT_CONTROL, 2, 0), 0, 0,
		BuildPM4Header(PM4_IT_NUM_INSTANCES, 1, 0), 4,
		BuildPM4Header(PM4_IT_DRAW_INDEX_AUTO, 2, 0), 36, 0,
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))

	cmds := q.PopAll()
	if len(cmds) != 1 {
		t.Fatalf("commands: got %d, want 1", len(cmds))
	}
	if cmds[0].Kind != CmdDraw {
		t.Fatalf("kind: got %v, want Draw", cmds[0].Kind)
	}
	if cmds[0].VertexCount != 36 {
		t.Errorf("vertex count: got %d, want 36", cmds[0].VertexCount)
	}
	if cmds[0].InstanceCount != 4 {
		t.Errorf("instance count tracked: got %d, want 4", cmds[0].InstanceCount)
	}
	if p.Stats().PacketsParsed != 3 {
		t.Errorf("packets parsed: got %d, want 3", p.Stats().PacketsParsed)
	}
}

func TestGnmParser_DrawIndex2(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	stream := []uint32{
		BuildPM4Header(PM4_IT_INDEX_TYPE, 1, 0), 1, // 32-bit indices
		BuildPM4Header(PM4_IT_DRAW_INDEX_2, 5, 0),
		600,        // max size
		0x00200000, // index base lo
		0x00000002, // index base hi
		123,        // index count
		0,          // draw initiator
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))

	cmds := q.PopAll()
	if len(cmds) != 1 {
		t.Fatalf("commands: got %d, want 1", len(cmds))
	}
	c := cmds[0]
	if c.Kind != CmdDrawIndexed {
		t.Fatalf("kind: got %v, want DrawIndexed", c.Kind)
	}
	if c.IndexCount != 123 {
		t.Errorf("index count: got %d, want 123", c.IndexCount)
	}
	if c.IndexBufferAddr != 0x0000000200200000 {
		t.Errorf("index base: got 0x%X, want 0x200200000", c.IndexBufferAddr)
	}
	if c.IndexType != 1 {
		t.Errorf("index type: got %d, want 1", c.IndexType)
	}
	if c.InstanceCount != 1 {
		t.Errorf("default instances: got %d, want 1", c.InstanceCount)
	}
}

func TestGnmParser_DrawIndex2HighAddress(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	// The full high word contributes to the index-buffer address; only
	// INDIRECT_BUFFER masks its high word to 16 bits.
	stream := []uint32{
		BuildPM4Header(PM4_IT_DRAW_INDEX_2, 5, 0),
		600,        // max size
		0x00300000, // index base lo
		0x00030001, // index base hi, above 16 bits
		7,          // index count
		0,          // draw initiator
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))

	cmds := q.PopAll()
	if len(cmds) != 1 {
		t.Fatalf("commands: got %d, want 1", len(cmds))
	}
	if got := cmds[0].IndexBufferAddr; got != 0x0003000100300000 {
		t.Errorf("index base: got 0x%X, want 0x3000100300000", got)
	}
}

func TestGnmParser_ZeroInstances(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	// A guest-written zero is stored verbatim; the default of 1 applies
	// only at reset.
	stream := []uint32{
		BuildPM4Header(PM4_IT_NUM_INSTANCES, 1, 0), 0,
		BuildPM4Header(PM4_IT_DRAW_INDEX_AUTO, 2, 0), 36, 0,
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))

	cmds := q.PopAll()
	if len(cmds) != 1 {
		t.Fatalf("commands: got %d, want 1", len(cmds))
	}
	if got := cmds[0].InstanceCount; got != 0 {
		t.Errorf("instances: got %d, want 0", got)
	}

	p.ResetState()
	writeDwords(t, mem, base, []uint32{
		BuildPM4Header(PM4_IT_DRAW_INDEX_AUTO, 2, 0), 36, 0,
	})
	p.ParseCommandBuffer(base, 3)
	cmds = q.PopAll()
	if len(cmds) != 1 || cmds[0].InstanceCount != 1 {
		t.Errorf("after reset: got %+v, want one draw with 1 instance", cmds)
	}
}

func TestGnmParser_DispatchDirect(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	stream := []uint32{
		BuildPM4Header(PM4_IT_DISPATCH_DIRECT, 3, 0), 8, 4, 2,
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))

	cmds := q.PopAll()
	if len(cmds) != 1 || cmds[0].Kind != CmdComputeDispatch {
		t.Fatalf("got %d commands, want 1 ComputeDispatch", len(cmds))
	}
	if cmds[0].GroupCountX != 8 || cmds[0].GroupCountY != 4 || cmds[0].GroupCountZ != 2 {
		t.Errorf("groups: got (%d,%d,%d), want (8,4,2)",
			cmds[0].GroupCountX, cmds[0].GroupCountY, cmds[0].GroupCountZ)
	}
}

func TestGnmParser_IndirectBuffer(t *testing.T) {
	p, q, mem := newTestParser(t)
	outer := uint64(VRAM_BASE)
	inner := uint64(VRAM_BASE + 0x10000)

	innerStream := []uint32{
		BuildPM4Header(PM4_IT_DRAW_INDEX_AUTO, 2, 0), 3, 0,
	}
	writeDwords(t, mem, inner, innerStream)

	outerStream := []uint32{
		BuildPM4Header(PM4_IT_INDIRECT_BUFFER, 3, 0),
		uint32(inner & 0xFFFFFFFF),
		uint32(inner >> 32), // fits the 16-bit high field
		uint32(len(innerStream)),
	}
	writeDwords(t, mem, outer, outerStream)
	p.ParseCommandBuffer(outer, uint32(len(outerStream)))

	cmds := q.PopAll()
	if len(cmds) != 1 || cmds[0].Kind != CmdDraw {
		t.Fatalf("nested draw: got %d commands", len(cmds))
	}
	if cmds[0].VertexCount != 3 {
		t.Errorf("nested vertex count: got %d, want 3", cmds[0].VertexCount)
	}
}

func TestGnmParser_IndirectDepthCap(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	// A self-referencing indirect buffer would recurse forever without
	// the depth cap.
	stream := []uint32{
		BuildPM4Header(PM4_IT_INDIRECT_BUFFER, 3, 0),
		uint32(base & 0xFFFFFFFF),
		uint32(base >> 32),
		4,
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))

	if !q.IsEmpty() {
		t.Error("self-referential chain emitted commands")
	}
	if p.Stats().PacketsParsed != GNM_MAX_IB_DEPTH {
		t.Errorf("packets parsed: got %d, want %d (depth cap)",
			p.Stats().PacketsParsed, GNM_MAX_IB_DEPTH)
	}
}

func TestGnmParser_PayloadOverflowTerminates(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	// Declares 100 payload words inside a 4-word buffer.
	stream := []uint32{
		BuildPM4Header(PM4_IT_NOP, 100, 0), 0, 0, 0,
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))

	if !q.IsEmpty() {
		t.Error("overflowing buffer emitted commands")
	}
	if p.Stats().BuffersSkipped != 1 {
		t.Errorf("BuffersSkipped: got %d, want 1", p.Stats().BuffersSkipped)
	}
}

func TestGnmParser_NonType3Skipped(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	stream := []uint32{
		0x00000000, // Type-0 word
		0x80000000, // Type-2 word
		BuildPM4Header(PM4_IT_DRAW_INDEX_AUTO, 2, 0), 12, 0,
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))

	cmds := q.PopAll()
	if len(cmds) != 1 || cmds[0].VertexCount != 12 {
		t.Fatalf("draw after skipped words: got %d commands", len(cmds))
	}
}

func TestGnmParser_ResetState(t *testing.T) {
	p, q, mem := newTestParser(t)
	base := uint64(VRAM_BASE)

	stream := []uint32{
		BuildPM4Header(PM4_IT_NUM_INSTANCES, 1, 0), 9,
	}
	writeDwords(t, mem, base, stream)
	p.ParseCommandBuffer(base, uint32(len(stream)))
	p.ResetState()

	draw := []uint32{
		BuildPM4Header(PM4_IT_DRAW_INDEX_AUTO, 2, 0), 3, 0,
	}
	writeDwords(t, mem, base, draw)
	p.ParseCommandBuffer(base, uint32(len(draw)))

	cmds := q.PopAll()
	if len(cmds) != 1 {
		t.Fatalf("commands: got %d, want 1", len(cmds))
	}
	if cmds[0].InstanceCount != 1 {
		t.Errorf("instances after reset: got %d, want 1", cmds[0].InstanceCount)
	}
}
