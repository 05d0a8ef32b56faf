// config.go - YAML config file and command-line options

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const CONFIG_FILE_DEFAULT = "wear-emu.yaml"

const (
	FRONTEND_WIDTH  = 1280
	FRONTEND_HEIGHT = 720
)

// Config holds everything the YAML file can set. Flags override file
// values, file values override defaults.
type Config struct {
	Window struct {
		Width      int  `yaml:"width"`
		Height     int  `yaml:"height"`
		Fullscreen bool `yaml:"fullscreen"`
	} `yaml:"window"`

	Audio struct {
		Enabled      bool    `yaml:"enabled"`
		MasterVolume float64 `yaml:"master_volume"`
	} `yaml:"audio"`

	Input struct {
		KeyboardLayout   string  `yaml:"keyboard_layout"` // ijkl or zxcv
		MouseLook        bool    `yaml:"mouse_look"`
		MouseSensitivity float64 `yaml:"mouse_sensitivity"`
	} `yaml:"input"`

	LogLevel string `yaml:"log_level"`
	Monitor  bool   `yaml:"monitor"`
}

func DefaultConfig() Config {
	var c Config
	c.Window.Width = FRONTEND_WIDTH
	c.Window.Height = FRONTEND_HEIGHT
	c.Audio.Enabled = true
	c.Audio.MasterVolume = 1.0
	c.Input.KeyboardLayout = "ijkl"
	c.Input.MouseSensitivity = 1.0
	c.LogLevel = "info"
	return c
}

// LoadConfig reads a YAML config file over the defaults. A missing file
// is fine; a file that does not parse is an error.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Audio.MasterVolume < 0 {
		cfg.Audio.MasterVolume = 0
	}
	if cfg.Audio.MasterVolume > 1 {
		cfg.Audio.MasterVolume = 1
	}
	return cfg, nil
}

// Options is the merged result of config file plus command line.
type Options struct {
	GamePath   string
	BiosOnly   bool
	Monitor    bool
	ConfigPath string

	Config Config
}

// ParseArgs parses the command line, loads the config file it names
// (or the default one) and applies flag overrides.
func ParseArgs(args []string) (Options, error) {
	var (
		game       string
		bios       bool
		monitor    bool
		configPath string
		mute       bool
		fullscreen bool
		loglevel   string
	)

	flagSet := flag.NewFlagSet("wear-emu", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&game, "game", "", "Path to an eboot.bin or .pkg to run")
	flagSet.BoolVar(&bios, "bios", false, "Boot the internal BIOS instead of a game")
	flagSet.BoolVar(&monitor, "monitor", false, "Attach the debug monitor to stdin")
	flagSet.StringVar(&configPath, "config", CONFIG_FILE_DEFAULT, "Config file path")
	flagSet.BoolVar(&mute, "mute", false, "Disable audio output")
	flagSet.BoolVar(&fullscreen, "fullscreen", false, "Start fullscreen")
	flagSet.StringVar(&loglevel, "loglevel", "", "Log level: debug, info, warning, error")

	flagSet.Usage = func() {
		flagSet.SetOutput(os.Stdout)
		fmt.Println("Usage: wear-emu [-game path | -bios] [-monitor] [-config path] [-mute] [-fullscreen] [-loglevel level]")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return Options{}, err
	}

	// A bare path argument works like -game.
	if game == "" && flagSet.NArg() > 0 {
		game = flagSet.Arg(0)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		return Options{}, err
	}

	if mute {
		cfg.Audio.Enabled = false
	}
	if fullscreen {
		cfg.Window.Fullscreen = true
	}
	if loglevel != "" {
		cfg.LogLevel = loglevel
	}
	if monitor {
		cfg.Monitor = true
	}

	return Options{
		GamePath:   game,
		BiosOnly:   bios,
		Monitor:    cfg.Monitor,
		ConfigPath: configPath,
		Config:     cfg,
	}, nil
}
