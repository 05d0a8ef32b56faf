// hardware_specs.go - GPU capability model, tiering and throughput heuristic

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import "fmt"

// =============================================================================
// CAPABILITY MODEL
// =============================================================================

// GPU tiers drive the quality presets the frontend offers.
const (
	TIER_LOW_END = iota
	TIER_MID_RANGE
	TIER_HIGH_END
	TIER_ENTHUSIAST
)

func TierName(tier int) string {
	switch tier {
	case TIER_LOW_END:
		return "Low-End"
	case TIER_MID_RANGE:
		return "Mid-Range"
	case TIER_HIGH_END:
		return "High-End"
	case TIER_ENTHUSIAST:
		return "Enthusiast"
	default:
		return "Unknown"
	}
}

const (
	VENDOR_AMD    = 0x1002
	VENDOR_NVIDIA = 0x10DE
	VENDOR_INTEL  = 0x8086
)

// Device classes, matching the Vulkan physical-device-type values so the
// probe can pass them through unconverted.
const (
	gpuTypeOther      = 0
	gpuTypeIntegrated = 1
	gpuTypeDiscrete   = 2
	gpuTypeVirtual    = 3
	gpuTypeCPU        = 4
)

// Specs describes the host GPU as seen by the probe. The headless build
// fills in a canned software-renderer record instead.
type Specs struct {
	GPUName               string
	DriverVersion         string
	VendorID              uint32
	DeviceType            int
	EstimatedTFLOPs       float64
	VRAMBytes             uint64
	Tier                  int
	SupportsFloat16       bool
	CanRunFrameGen        bool
	FrameGenDisableReason string
}

// =============================================================================
// HEURISTICS
// =============================================================================

// estimateTFLOPs derives a rough throughput figure from properties every
// Vulkan driver reports. It is a ranking signal, not a benchmark.
func estimateTFLOPs(vendorID uint32, deviceType int, maxInvocations uint32,
	sharedMemBytes uint32, vramBytes uint64, fp16 bool) float64 {

	vendor := 0.8
	switch vendorID {
	case VENDOR_NVIDIA:
		vendor = 1.3
	case VENDOR_AMD:
		vendor = 1.2
	case VENDOR_INTEL:
		vendor = 0.6
	}

	compute := float64(maxInvocations) / 1024.0
	shared := float64(sharedMemBytes) / (48 * 1024)

	vramScale := float64(vramBytes) / float64(uint64(8)<<30)
	if vramScale < 0.25 {
		vramScale = 0.25
	}
	if vramScale > 3 {
		vramScale = 3
	}

	typeFactor := 1.0
	switch deviceType {
	case gpuTypeDiscrete:
		typeFactor = 2.0
	case gpuTypeIntegrated:
		typeFactor = 0.4
	}

	tflops := vendor * compute * shared * vramScale * typeFactor
	if fp16 {
		tflops *= 1.5
	}

	if tflops < 0.3 {
		tflops = 0.3
	}
	if tflops > 150 {
		tflops = 150
	}
	return tflops
}

func tierForTFLOPs(tflops float64) int {
	switch {
	case tflops < 2:
		return TIER_LOW_END
	case tflops < 6:
		return TIER_MID_RANGE
	case tflops < 20:
		return TIER_HIGH_END
	default:
		return TIER_ENTHUSIAST
	}
}

// frameGenEligibility gates the frame-generation preset. The empty reason
// means eligible.
func frameGenEligibility(tflops float64, vramBytes uint64, deviceType int) (bool, string) {
	if deviceType != gpuTypeDiscrete {
		return false, "requires a discrete GPU"
	}
	if tflops < 4 {
		return false, fmt.Sprintf("requires 4+ TFLOPs, estimated %.1f", tflops)
	}
	if vramBytes < uint64(2)<<30 {
		return false, fmt.Sprintf("requires 2+ GiB VRAM, found %s", VRAMString(vramBytes))
	}
	return true, ""
}

// scoreDevice ranks physical devices when the host has several.
func scoreDevice(deviceType int, maxImageDim2D uint32, maxInvocations uint32) int {
	score := 0
	switch deviceType {
	case gpuTypeDiscrete:
		score += 10000
	case gpuTypeIntegrated:
		score += 1000
	case gpuTypeVirtual:
		score += 500
	}
	score += int(maxImageDim2D) / 1000
	score += int(maxInvocations) / 100
	return score
}

// formatDriverVersion decodes the packed driver version the way each
// vendor packs it.
func formatDriverVersion(vendorID uint32, raw uint32) string {
	switch vendorID {
	case VENDOR_NVIDIA:
		return fmt.Sprintf("%d.%d.%d.%d",
			raw>>22, (raw>>14)&0xFF, (raw>>6)&0xFF, raw&0x3F)
	case VENDOR_INTEL:
		return fmt.Sprintf("%d.%d", raw>>14, raw&0x3FFF)
	default:
		return fmt.Sprintf("%d.%d.%d",
			raw>>22, (raw>>12)&0x3FF, raw&0xFFF)
	}
}

func VRAMString(bytes uint64) string {
	switch {
	case bytes >= uint64(1)<<30:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/float64(uint64(1)<<30))
	case bytes >= uint64(1)<<20:
		return fmt.Sprintf("%d MiB", bytes>>20)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// softwareSpecs is the record used when no Vulkan device can be probed.
func softwareSpecs() Specs {
	tflops := 0.3
	return Specs{
		GPUName:               "Software Renderer",
		DriverVersion:         "n/a",
		DeviceType:            gpuTypeCPU,
		EstimatedTFLOPs:       tflops,
		VRAMBytes:             uint64(256) << 20,
		Tier:                  tierForTFLOPs(tflops),
		CanRunFrameGen:        false,
		FrameGenDisableReason: "requires a discrete GPU",
	}
}
