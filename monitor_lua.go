// monitor_lua.go - Lua scripting bridge for the machine monitor

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// runScript executes a Lua file against the machine. Each script gets a
// fresh VM; script print output and errors come back as command output.
func (m *DebugMonitor) runScript(path string) string {
	var out strings.Builder
	L := lua.NewState()
	defer L.Close()

	registerMonitorGlobals(L, m.core, &out)

	if err := L.DoFile(path); err != nil {
		fmt.Fprintf(&out, "script error: %v\n", err)
	}
	return out.String()
}

// registerMonitorGlobals installs the machine-access globals:
// peek(addr, width), poke(addr, value, width), reg(name),
// setreg(name, value), step(n), state(), log(msg), print(...).
func registerMonitorGlobals(L *lua.LState, core *EmulatorCore, out *strings.Builder) {
	L.SetGlobal("peek", L.NewFunction(func(L *lua.LState) int {
		addr := uint64(L.CheckInt64(1))
		width := L.OptInt(2, 1)
		v, err := peekWidth(core.Memory(), addr, width)
		if err != nil {
			L.RaiseError("peek 0x%X: %v", addr, err)
			return 0
		}
		L.Push(lua.LNumber(v))
		return 1
	}))

	L.SetGlobal("poke", L.NewFunction(func(L *lua.LState) int {
		addr := uint64(L.CheckInt64(1))
		value := uint64(L.CheckInt64(2))
		width := L.OptInt(3, 1)
		if err := pokeWidth(core.Memory(), addr, value, width); err != nil {
			L.RaiseError("poke 0x%X: %v", addr, err)
		}
		return 0
	}))

	L.SetGlobal("reg", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		v, ok := readRegByName(core.CpuSnapshot(), name)
		if !ok {
			L.RaiseError("unknown register %q", name)
			return 0
		}
		L.Push(lua.LNumber(v))
		return 1
	}))

	L.SetGlobal("setreg", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		value := uint64(L.CheckInt64(2))
		if !writeRegByName(core.CPU(), name, value) {
			L.RaiseError("unknown register %q", name)
		}
		return 0
	}))

	L.SetGlobal("step", L.NewFunction(func(L *lua.LState) int {
		n := L.OptInt(1, 1)
		executed := 0
		cpu := core.CPU()
		for i := 0; i < n; i++ {
			if cpu.Step() == 0 {
				break
			}
			executed++
		}
		L.Push(lua.LNumber(executed))
		return 1
	}))

	L.SetGlobal("state", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(EmuStateName(core.State())))
		return 1
	}))

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		core.Logger().Infof("Script", "%s", L.CheckString(1))
		return 0
	}))

	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		parts := make([]string, 0, top)
		for i := 1; i <= top; i++ {
			parts = append(parts, L.ToStringMeta(L.Get(i)).String())
		}
		fmt.Fprintf(out, "%s\n", strings.Join(parts, "\t"))
		return 0
	}))
}

func peekWidth(mem *GuestMemory, addr uint64, width int) (uint64, error) {
	switch width {
	case 1:
		v, err := mem.ReadU8(addr)
		return uint64(v), err
	case 2:
		v, err := mem.ReadU16(addr)
		return uint64(v), err
	case 4:
		v, err := mem.ReadU32(addr)
		return uint64(v), err
	case 8:
		return mem.ReadU64(addr)
	default:
		return 0, fmt.Errorf("bad width %d", width)
	}
}

func pokeWidth(mem *GuestMemory, addr, value uint64, width int) error {
	switch width {
	case 1:
		return mem.WriteU8(addr, uint8(value))
	case 2:
		return mem.WriteU16(addr, uint16(value))
	case 4:
		return mem.WriteU32(addr, uint32(value))
	case 8:
		return mem.WriteU64(addr, value)
	default:
		return fmt.Errorf("bad width %d", width)
	}
}

func regIndexByName(name string) (int, bool) {
	name = strings.ToUpper(name)
	for i, n := range registerNames {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

func readRegByName(ctx Context, name string) (uint64, bool) {
	switch strings.ToUpper(name) {
	case "RIP":
		return ctx.RIP, true
	case "RFLAGS":
		return ctx.RFLAGS, true
	}
	if i, ok := regIndexByName(name); ok {
		return ctx.GPR[i], true
	}
	return 0, false
}

func writeRegByName(cpu *CPU, name string, value uint64) bool {
	upper := strings.ToUpper(name)
	idx, isGPR := regIndexByName(upper)
	if upper != "RIP" && upper != "RFLAGS" && !isGPR {
		return false
	}
	cpu.WithContext(func(ctx *Context) {
		switch upper {
		case "RIP":
			ctx.RIP = value
		case "RFLAGS":
			ctx.RFLAGS = value
		default:
			ctx.GPR[idx] = value
		}
	})
	return true
}
