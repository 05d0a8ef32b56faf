// config_test.go - Config file parsing and flag override tests

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wear-emu.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestConfig_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Window.Width != 1280 || cfg.Window.Height != 720 {
		t.Errorf("window: got %dx%d, want 1280x720", cfg.Window.Width, cfg.Window.Height)
	}
	if !cfg.Audio.Enabled || cfg.Audio.MasterVolume != 1.0 {
		t.Errorf("audio: got (%v, %.1f), want (true, 1.0)", cfg.Audio.Enabled, cfg.Audio.MasterVolume)
	}
	if cfg.Input.KeyboardLayout != "ijkl" {
		t.Errorf("layout: got %q, want ijkl", cfg.Input.KeyboardLayout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("log level: got %q, want info", cfg.LogLevel)
	}
	if cfg.Monitor {
		t.Error("monitor enabled by default")
	}
}

func TestConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Window.Width != 1280 {
		t.Errorf("width: got %d, want 1280", cfg.Window.Width)
	}
}

func TestConfig_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
window:
  width: 1920
  height: 1080
  fullscreen: true
audio:
  enabled: false
  master_volume: 0.5
input:
  keyboard_layout: zxcv
  mouse_look: true
  mouse_sensitivity: 2.5
log_level: debug
monitor: true
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Window.Width != 1920 || !cfg.Window.Fullscreen {
		t.Errorf("window: got %d fullscreen=%v", cfg.Window.Width, cfg.Window.Fullscreen)
	}
	if cfg.Audio.Enabled || cfg.Audio.MasterVolume != 0.5 {
		t.Errorf("audio: got (%v, %.2f)", cfg.Audio.Enabled, cfg.Audio.MasterVolume)
	}
	if cfg.Input.KeyboardLayout != "zxcv" || !cfg.Input.MouseLook || cfg.Input.MouseSensitivity != 2.5 {
		t.Errorf("input: got %+v", cfg.Input)
	}
	if cfg.LogLevel != "debug" || !cfg.Monitor {
		t.Errorf("log/monitor: got (%q, %v)", cfg.LogLevel, cfg.Monitor)
	}
}

func TestConfig_PartialFileKeepsRest(t *testing.T) {
	path := writeConfig(t, "log_level: error\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("log level: got %q, want error", cfg.LogLevel)
	}
	if cfg.Window.Width != 1280 || !cfg.Audio.Enabled {
		t.Error("untouched sections lost their defaults")
	}
}

func TestConfig_MalformedFileErrors(t *testing.T) {
	path := writeConfig(t, "window: [not a mapping\n")
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestConfig_VolumeClamped(t *testing.T) {
	path := writeConfig(t, "audio:\n  master_volume: 3.0\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.MasterVolume != 1.0 {
		t.Errorf("volume: got %.1f, want clamped 1.0", cfg.Audio.MasterVolume)
	}
}

func TestParseArgs_FlagOverrides(t *testing.T) {
	path := writeConfig(t, "audio:\n  enabled: true\nlog_level: info\n")

	opts, err := ParseArgs([]string{
		"-game", "/tmp/eboot.bin", "-mute", "-fullscreen",
		"-loglevel", "debug", "-monitor", "-config", path,
	})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.GamePath != "/tmp/eboot.bin" {
		t.Errorf("game: got %q", opts.GamePath)
	}
	if opts.Config.Audio.Enabled {
		t.Error("-mute did not override file audio.enabled")
	}
	if !opts.Config.Window.Fullscreen {
		t.Error("-fullscreen not applied")
	}
	if opts.Config.LogLevel != "debug" {
		t.Errorf("loglevel: got %q, want debug", opts.Config.LogLevel)
	}
	if !opts.Monitor {
		t.Error("-monitor not applied")
	}
}

func TestParseArgs_BareArgIsGame(t *testing.T) {
	opts, err := ParseArgs([]string{"-config", filepath.Join(t.TempDir(), "none.yaml"), "game.pkg"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.GamePath != "game.pkg" {
		t.Errorf("game: got %q, want game.pkg", opts.GamePath)
	}
}

func TestParseArgs_BadFlag(t *testing.T) {
	if _, err := ParseArgs([]string{"-no-such-flag"}); err == nil {
		t.Error("unknown flag accepted")
	}
}

func TestParseArgs_BiosFlag(t *testing.T) {
	opts, err := ParseArgs([]string{"-bios", "-config", filepath.Join(t.TempDir(), "none.yaml")})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if !opts.BiosOnly {
		t.Error("-bios not applied")
	}
	if opts.GamePath != "" {
		t.Errorf("game: got %q, want empty", opts.GamePath)
	}
}
