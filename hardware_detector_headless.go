//go:build headless

// hardware_detector_headless.go - Canned capability record for windowless builds

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

// DetectCapabilities in the headless build skips the Vulkan probe and
// reports the software-renderer record.
func DetectCapabilities() (Specs, error) {
	return softwareSpecs(), nil
}
