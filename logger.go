// logger.go - Leveled log sink shared by every subsystem

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// LOG LEVELS
// =============================================================================

type LogLevel uint8

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarning
	LogError
	LogSyscall
)

func (l LogLevel) tag() string {
	switch l {
	case LogDebug:
		return "DBG"
	case LogInfo:
		return "INF"
	case LogWarning:
		return "WRN"
	case LogError:
		return "ERR"
	case LogSyscall:
		return "SYS"
	default:
		return "???"
	}
}

// ParseLogLevel maps a config/flag string onto a level. Unknown strings
// fall back to Info so a typo in wear-emu.yaml never silences errors.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogDebug
	case "info":
		return LogInfo
	case "warning", "warn":
		return LogWarning
	case "error":
		return LogError
	default:
		return LogInfo
	}
}

// =============================================================================
// LOGGER
// =============================================================================

// maxPendingLines bounds the flush queue so a run without a UI draining it
// cannot grow without limit. Oldest lines are dropped first.
const maxPendingLines = 4096

// Logger is the process-wide log sink. It is created once by the emulator
// core and handed to every subsystem; there is no package-level instance.
// All methods are safe for concurrent use from the CPU, render and UI
// threads.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	min      LogLevel
	pending  []string
	count    uint64
	callback func(line string, level LogLevel)
}

func NewLogger(out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{out: out, min: LogDebug}
}

// SetMinLevel suppresses everything below lvl. Syscall traffic sits above
// Error in the enum so it survives any of the config-selectable levels.
func (lg *Logger) SetMinLevel(lvl LogLevel) {
	lg.mu.Lock()
	lg.min = lvl
	lg.mu.Unlock()
}

// SetCallback installs a per-line observer (the UI status sink). The
// callback runs with the logger unlocked and must not call back into it.
func (lg *Logger) SetCallback(fn func(line string, level LogLevel)) {
	lg.mu.Lock()
	lg.callback = fn
	lg.mu.Unlock()
}

func (lg *Logger) Log(level LogLevel, component, message string) {
	lg.mu.Lock()
	if level < lg.min {
		lg.mu.Unlock()
		return
	}
	line := fmt.Sprintf("%s [%s] [%s] %s",
		time.Now().Format("15:04:05.000"), level.tag(), component, message)
	lg.count++
	lg.pending = append(lg.pending, line)
	if len(lg.pending) > maxPendingLines {
		lg.pending = lg.pending[len(lg.pending)-maxPendingLines:]
	}
	out := lg.out
	cb := lg.callback
	lg.mu.Unlock()

	fmt.Fprintln(out, line)
	if cb != nil {
		cb(line, level)
	}
}

func (lg *Logger) Debugf(component, format string, args ...any) {
	lg.Log(LogDebug, component, fmt.Sprintf(format, args...))
}

func (lg *Logger) Infof(component, format string, args ...any) {
	lg.Log(LogInfo, component, fmt.Sprintf(format, args...))
}

func (lg *Logger) Warnf(component, format string, args ...any) {
	lg.Log(LogWarning, component, fmt.Sprintf(format, args...))
}

func (lg *Logger) Errorf(component, format string, args ...any) {
	lg.Log(LogError, component, fmt.Sprintf(format, args...))
}

func (lg *Logger) Syscallf(component, format string, args ...any) {
	lg.Log(LogSyscall, component, fmt.Sprintf(format, args...))
}

// FlushMessages drains and returns the pending queue. Called from the UI
// thread; the returned slice is owned by the caller.
func (lg *Logger) FlushMessages() []string {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	msgs := lg.pending
	lg.pending = nil
	return msgs
}

func (lg *Logger) HasPending() bool {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	return len(lg.pending) > 0
}

func (lg *Logger) MessageCount() uint64 {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	return lg.count
}

func (lg *Logger) Clear() {
	lg.mu.Lock()
	lg.pending = nil
	lg.mu.Unlock()
}
