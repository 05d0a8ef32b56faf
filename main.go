// main.go - Entry point for the WeaR-emu guest execution core

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const EMU_VERSION = "0.1.0"

func boilerPlate() {
	fmt.Println("+--------------------------------------------------+")
	fmt.Printf("|  WeaR-emu v%-8s guest execution core          |\n", EMU_VERSION)
	fmt.Println("|  (c) 2025 - 2026 WeaR Team                       |")
	fmt.Println("|  https://github.com/wearteam/wear-emu            |")
	fmt.Println("|  License: GPLv3 or later                         |")
	fmt.Println("+--------------------------------------------------+")
}

func printHardwareReport(specs Specs, probeErr error) {
	fmt.Println("+--------------------------------------------------+")
	fmt.Println("|  Host hardware                                   |")
	fmt.Println("+--------------------------------------------------+")
	fmt.Printf("  GPU        : %s\n", specs.GPUName)
	fmt.Printf("  Driver     : %s\n", specs.DriverVersion)
	fmt.Printf("  VRAM       : %s\n", VRAMString(specs.VRAMBytes))
	fmt.Printf("  Estimated  : %.1f TFLOPs (%s)\n", specs.EstimatedTFLOPs, TierName(specs.Tier))
	if specs.CanRunFrameGen {
		fmt.Println("  Frame gen  : available")
	} else {
		fmt.Printf("  Frame gen  : unavailable (%s)\n", specs.FrameGenDisableReason)
	}
	if probeErr != nil {
		fmt.Printf("  Probe      : %v (software fallback)\n", probeErr)
	}
	fmt.Println()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := ParseArgs(args)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg := opts.Config

	boilerPlate()

	log := NewLogger(os.Stdout)
	log.SetMinLevel(ParseLogLevel(cfg.LogLevel))

	specs, probeErr := DetectCapabilities()
	printHardwareReport(specs, probeErr)

	core := NewEmulatorCore(log)
	if err := core.Initialize(CoreOptions{
		EnableAudio:    cfg.Audio.Enabled,
		KeyboardLayout: ParseKeyboardLayout(cfg.Input.KeyboardLayout),
		MouseLook:      cfg.Input.MouseLook,
		MouseSens:      cfg.Input.MouseSensitivity,
		Specs:          specs,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize emulator: %v\n", err)
		return 1
	}
	defer core.Shutdown()

	core.Audio().SetMasterVolume(cfg.Audio.MasterVolume)
	core.SetStateCallback(func(s EmuState) {
		log.Infof("Core", "state -> %s", EmuStateName(s))
	})

	switch {
	case opts.GamePath != "":
		if err := core.LoadGame(opts.GamePath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", opts.GamePath, err)
			return 2
		}
		fmt.Printf("Loaded %s\n", opts.GamePath)
	default:
		if err := core.LoadInternalBios(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load internal BIOS: %v\n", err)
			return 2
		}
		if !opts.BiosOnly {
			fmt.Println("No game given, booting internal BIOS (-game path to run one)")
		}
	}

	var monitor *DebugMonitor
	var monitorDone <-chan struct{}
	if opts.Monitor {
		monitor = NewDebugMonitor(core, os.Stdout)
		if err := monitor.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Monitor unavailable: %v\n", err)
			monitor = nil
		} else {
			monitorDone = monitor.Done()
		}
	}

	frontend := NewVideoFrontend(core, cfg.Window.Fullscreen)
	if err := frontend.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start video frontend: %v\n", err)
		return 1
	}

	if err := core.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start guest: %v\n", err)
		return 2
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nInterrupted, shutting down")
	case <-frontend.Done():
	case <-monitorDone:
	}

	core.Stop()
	if monitor != nil {
		monitor.Stop()
	}
	frontend.Shutdown()
	return 0
}
