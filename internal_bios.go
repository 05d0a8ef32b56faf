// internal_bios.go - Built-in boot program used when no game is loaded

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import "encoding/binary"

const (
	BIOS_ENTRY       = USER_BASE
	BIOS_STRING_ADDR = USER_BASE + 0x200
	BIOS_PAD_BUFFER  = USER_BASE + 0x300

	BIOS_BANNER = "WeaR-emu Internal BIOS v1.0\n"
)

// biosAssembler emits the handful of encodings the BIOS program needs.
type biosAssembler struct {
	code []byte
}

func (a *biosAssembler) pos() int { return len(a.code) }

// movRegImm32: 48 C7 /0 — MOV r64, imm32 (sign-extended).
func (a *biosAssembler) movRegImm32(reg byte, imm uint32) {
	a.code = append(a.code, 0x48, 0xC7, 0xC0|reg)
	a.code = binary.LittleEndian.AppendUint32(a.code, imm)
}

// movRegImm64: 48 B8+r — MOV r64, imm64.
func (a *biosAssembler) movRegImm64(reg byte, imm uint64) {
	a.code = append(a.code, 0x48, 0xB8|reg)
	a.code = binary.LittleEndian.AppendUint64(a.code, imm)
}

func (a *biosAssembler) syscall() {
	a.code = append(a.code, 0x0F, 0x05)
}

func (a *biosAssembler) pause() {
	a.code = append(a.code, 0xF3, 0x90)
}

// jmpTo emits E9 rel32 targeting an absolute offset within the program.
func (a *biosAssembler) jmpTo(target int) {
	rel := int32(target - (a.pos() + 5))
	a.code = append(a.code, 0xE9)
	a.code = binary.LittleEndian.AppendUint32(a.code, uint32(rel))
}

// buildBiosProgram assembles the boot program: print the banner, bring
// up audio, then poll the pad forever.
func buildBiosProgram() []byte {
	a := &biosAssembler{}

	// write(1, banner, len)
	a.movRegImm32(RAX, SYS_WRITE)
	a.movRegImm32(RDI, 1)
	a.movRegImm64(RSI, BIOS_STRING_ADDR)
	a.movRegImm32(RDX, uint32(len(BIOS_BANNER)))
	a.syscall()

	// sceAudioOutInit()
	a.movRegImm32(RAX, SYS_AUDIO_INIT)
	a.syscall()

	// for {;;} { scePadReadState(PAD_HANDLE, buf); pause }
	loopStart := a.pos()
	a.movRegImm32(RAX, SYS_PAD_READ_STATE)
	a.movRegImm32(RDI, PAD_HANDLE)
	a.movRegImm64(RSI, BIOS_PAD_BUFFER)
	a.syscall()
	a.pause()
	a.jmpTo(loopStart)

	return a.code
}

// LoadInternalBios installs the BIOS program and banner string into
// guest memory and points the CPU at it. Returns the entry point.
func LoadInternalBios(mem *GuestMemory, cpu *CPU, log *Logger) (uint64, error) {
	program := buildBiosProgram()
	if err := mem.WriteBlock(BIOS_ENTRY, program); err != nil {
		return 0, err
	}
	if err := mem.WriteBlock(BIOS_STRING_ADDR, []byte(BIOS_BANNER)); err != nil {
		return 0, err
	}

	cpu.WithContext(func(ctx *Context) {
		ctx.Reset()
		ctx.RIP = BIOS_ENTRY
		ctx.GPR[RSP] = STACK_TOP - 0x1000
		ctx.GPR[RBP] = ctx.GPR[RSP]
	})

	log.Infof("BIOS", "internal BIOS loaded at 0x%X (%d bytes)", BIOS_ENTRY, len(program))
	return BIOS_ENTRY, nil
}
