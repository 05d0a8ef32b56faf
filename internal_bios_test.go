// internal_bios_test.go - Byte-exact boot program and banner output tests

package main

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
)

func TestInternalBios_ProgramBytes(t *testing.T) {
	program := buildBiosProgram()

	want := []byte{
		0x48, 0xC7, 0xC0, 0x04, 0x00, 0x00, 0x00, // mov rax, 4 (write)
		0x48, 0xC7, 0xC7, 0x01, 0x00, 0x00, 0x00, // mov rdi, 1
		0x48, 0xBE, 0x00, 0x02, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, // mov rsi, banner
		0x48, 0xC7, 0xC2, 0x1C, 0x00, 0x00, 0x00, // mov rdx, 28
		0x0F, 0x05,
		0x48, 0xC7, 0xC0, 0xEF, 0x01, 0x00, 0x00, // mov rax, 495 (audio init)
		0x0F, 0x05,
		0x48, 0xC7, 0xC0, 0x3B, 0x02, 0x00, 0x00, // mov rax, 571 (pad read)
		0x48, 0xC7, 0xC7, 0x00, 0x01, 0x00, 0x00, // mov rdi, 0x100
		0x48, 0xBE, 0x00, 0x03, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00, // mov rsi, pad buffer
		0x0F, 0x05,
		0xF3, 0x90,
		0xE9, 0xDF, 0xFF, 0xFF, 0xFF, // jmp loop (-33)
	}
	if !bytes.Equal(program, want) {
		t.Fatalf("program bytes:\ngot  % X\nwant % X", program, want)
	}

	// The back-jump must land on the pad-read MOV.
	relOff := len(program) - 4
	rel := int32(binary.LittleEndian.Uint32(program[relOff:]))
	loopStart := len(program) + int(rel)
	if program[loopStart] != 0x48 || program[loopStart+2] != 0xC0 {
		t.Errorf("jump target %d is not the loop head", loopStart)
	}
}

func TestInternalBios_LoadAndContext(t *testing.T) {
	mem := newTestMemory(t)
	log := NewLogger(io.Discard)
	cpu := NewCPU(mem, log)

	entry, err := LoadInternalBios(mem, cpu, log)
	if err != nil {
		t.Fatalf("LoadInternalBios: %v", err)
	}
	if entry != BIOS_ENTRY {
		t.Errorf("entry: got 0x%X, want 0x%X", entry, BIOS_ENTRY)
	}

	banner := make([]byte, len(BIOS_BANNER))
	if err := mem.ReadBlock(BIOS_STRING_ADDR, banner); err != nil {
		t.Fatal(err)
	}
	if string(banner) != BIOS_BANNER {
		t.Errorf("banner bytes: got %q, want %q", banner, BIOS_BANNER)
	}

	ctx := cpu.Snapshot()
	if ctx.RIP != BIOS_ENTRY {
		t.Errorf("RIP: got 0x%X, want 0x%X", ctx.RIP, BIOS_ENTRY)
	}
	if ctx.GPR[RSP] != STACK_TOP-0x1000 {
		t.Errorf("RSP: got 0x%X, want 0x%X", ctx.GPR[RSP], uint64(STACK_TOP-0x1000))
	}
	if ctx.GPR[RBP] != ctx.GPR[RSP] {
		t.Errorf("RBP: got 0x%X, want RSP 0x%X", ctx.GPR[RBP], ctx.GPR[RSP])
	}
	if ctx.RFLAGS != RFLAGS_RESET {
		t.Errorf("RFLAGS: got 0x%X, want 0x%X", ctx.RFLAGS, uint64(RFLAGS_RESET))
	}
}

// Stepping the BIOS through the dispatcher must emit the banner via the
// write handler and then settle into the pad-poll loop.
func TestInternalBios_BannerThroughSyscalls(t *testing.T) {
	mem := newTestMemory(t)
	log := NewLogger(io.Discard)
	cpu := NewCPU(mem, log)

	var logged []string
	log.SetCallback(func(line string, level LogLevel) { logged = append(logged, line) })

	d := NewSyscallDispatcher(log)
	vfs := NewVFS(log)
	input := NewInputManager(log)
	audio := NewAudioManager(log)
	registerFSHandlers(d, vfs, log)
	registerAudioHandlers(d, audio, log)
	registerPadHandlers(d, input, log)
	cpu.SetSyscallHandler(d.Dispatch)

	if _, err := LoadInternalBios(mem, cpu, log); err != nil {
		t.Fatal(err)
	}

	// 5 instructions to the write syscall, then audio init, then two
	// full pad-poll iterations.
	for i := 0; i < 30; i++ {
		if cpu.Step() == 0 {
			t.Fatalf("CPU stopped at step %d, state %s", i, CpuStateName(cpu.State()))
		}
	}

	found := false
	for _, line := range logged {
		if strings.Contains(line, "WeaR-emu Internal BIOS v1.0") {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("banner not in log output: %v", logged)
	}

	// The pad handler must have populated the poll buffer.
	connected, err := mem.ReadU8(BIOS_PAD_BUFFER + 0x4C)
	if err != nil {
		t.Fatal(err)
	}
	if connected != 1 {
		t.Errorf("pad connected byte: got %d, want 1", connected)
	}
}
