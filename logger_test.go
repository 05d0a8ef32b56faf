// logger_test.go - Logger level filtering and flush queue tests

package main

import (
	"strings"
	"testing"
)

func TestLogger_LevelTags(t *testing.T) {
	var buf strings.Builder
	lg := NewLogger(&buf)

	lg.Debugf("CPU", "debug line")
	lg.Infof("Core", "info line")
	lg.Warnf("VFS", "warn line")
	lg.Errorf("PKG", "error line")
	lg.Syscallf("HLE", "syscall line")

	out := buf.String()
	for _, want := range []string{"[DBG] [CPU]", "[INF] [Core]", "[WRN] [VFS]", "[ERR] [PKG]", "[SYS] [HLE]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := lg.MessageCount(); got != 5 {
		t.Errorf("MessageCount: got %d, want 5", got)
	}
}

func TestLogger_MinLevelFilter(t *testing.T) {
	var buf strings.Builder
	lg := NewLogger(&buf)
	lg.SetMinLevel(LogWarning)

	lg.Debugf("CPU", "hidden")
	lg.Infof("CPU", "hidden too")
	lg.Warnf("CPU", "visible")
	lg.Syscallf("HLE", "always visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("filtered lines leaked through: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warning line missing: %s", out)
	}
	if !strings.Contains(out, "always visible") {
		t.Errorf("syscall line filtered out: %s", out)
	}
	if got := lg.MessageCount(); got != 2 {
		t.Errorf("MessageCount: got %d, want 2", got)
	}
}

func TestLogger_FlushMessages(t *testing.T) {
	lg := NewLogger(&strings.Builder{})

	lg.Infof("Core", "one")
	lg.Infof("Core", "two")

	if !lg.HasPending() {
		t.Fatal("HasPending: got false, want true")
	}
	msgs := lg.FlushMessages()
	if len(msgs) != 2 {
		t.Fatalf("FlushMessages: got %d lines, want 2", len(msgs))
	}
	if !strings.HasSuffix(msgs[0], "one") || !strings.HasSuffix(msgs[1], "two") {
		t.Errorf("flush order wrong: %v", msgs)
	}
	if lg.HasPending() {
		t.Error("HasPending after flush: got true, want false")
	}
	if msgs := lg.FlushMessages(); len(msgs) != 0 {
		t.Errorf("second flush: got %d lines, want 0", len(msgs))
	}
}

func TestLogger_PendingBound(t *testing.T) {
	lg := NewLogger(&strings.Builder{})
	for i := 0; i < maxPendingLines+100; i++ {
		lg.Infof("Core", "line %d", i)
	}
	msgs := lg.FlushMessages()
	if len(msgs) != maxPendingLines {
		t.Errorf("pending bound: got %d lines, want %d", len(msgs), maxPendingLines)
	}
	// Oldest lines are the ones dropped.
	if !strings.HasSuffix(msgs[len(msgs)-1], "line 4195") {
		t.Errorf("newest line missing from tail: %s", msgs[len(msgs)-1])
	}
}

func TestLogger_Callback(t *testing.T) {
	lg := NewLogger(&strings.Builder{})
	var gotLine string
	var gotLevel LogLevel
	lg.SetCallback(func(line string, level LogLevel) {
		gotLine = line
		gotLevel = level
	})

	lg.Errorf("Core", "boom")
	if !strings.Contains(gotLine, "boom") {
		t.Errorf("callback line: got %q, want it to contain %q", gotLine, "boom")
	}
	if gotLevel != LogError {
		t.Errorf("callback level: got %v, want LogError", gotLevel)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LogDebug},
		{"Info", LogInfo},
		{"WARN", LogWarning},
		{"warning", LogWarning},
		{"error", LogError},
		{"bogus", LogInfo},
		{"", LogInfo},
	}
	for _, c := range cases {
		if got := ParseLogLevel(c.in); got != c.want {
			t.Errorf("ParseLogLevel(%q): got %v, want %v", c.in, got, c.want)
		}
	}
}
