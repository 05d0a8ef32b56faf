// hardware_specs_test.go - Tiering, throughput heuristic and formatting tests

package main

import (
	"math"
	"strings"
	"testing"
)

func TestEstimateTFLOPs(t *testing.T) {
	cases := []struct {
		name        string
		vendor      uint32
		deviceType  int
		invocations uint32
		sharedMem   uint32
		vram        uint64
		fp16        bool
		want        float64
	}{
		{
			name: "nvidia discrete baseline", vendor: VENDOR_NVIDIA,
			deviceType: gpuTypeDiscrete, invocations: 1024, sharedMem: 48 * 1024,
			vram: 8 << 30, fp16: true,
			want: 1.3 * 2.0 * 1.5, // 3.9
		},
		{
			name: "amd discrete 16G", vendor: VENDOR_AMD,
			deviceType: gpuTypeDiscrete, invocations: 1536, sharedMem: 64 * 1024,
			vram: 16 << 30, fp16: true,
			want: 14.4,
		},
		{
			name: "intel integrated clamps to floor", vendor: VENDOR_INTEL,
			deviceType: gpuTypeIntegrated, invocations: 256, sharedMem: 32 * 1024,
			vram: 1 << 30, fp16: false,
			want: 0.3,
		},
	}
	for _, c := range cases {
		got := estimateTFLOPs(c.vendor, c.deviceType, c.invocations, c.sharedMem, c.vram, c.fp16)
		if math.Abs(got-c.want) > 0.01 {
			t.Errorf("%s: got %.3f, want %.3f", c.name, got, c.want)
		}
	}

	// Ceiling clamp.
	huge := estimateTFLOPs(VENDOR_NVIDIA, gpuTypeDiscrete, 1<<20, 1<<24, 64<<30, true)
	if huge != 150 {
		t.Errorf("ceiling: got %.1f, want 150", huge)
	}
}

func TestTierThresholds(t *testing.T) {
	cases := []struct {
		tflops float64
		want   int
	}{
		{0.5, TIER_LOW_END},
		{1.99, TIER_LOW_END},
		{2, TIER_MID_RANGE},
		{5.9, TIER_MID_RANGE},
		{6, TIER_HIGH_END},
		{19.9, TIER_HIGH_END},
		{20, TIER_ENTHUSIAST},
		{150, TIER_ENTHUSIAST},
	}
	for _, c := range cases {
		if got := tierForTFLOPs(c.tflops); got != c.want {
			t.Errorf("%.1f TFLOPs: got %s, want %s", c.tflops, TierName(got), TierName(c.want))
		}
	}
}

func TestFrameGenEligibility(t *testing.T) {
	if ok, reason := frameGenEligibility(10, 8<<30, gpuTypeDiscrete); !ok || reason != "" {
		t.Errorf("capable discrete: got (%v, %q)", ok, reason)
	}
	if ok, reason := frameGenEligibility(10, 8<<30, gpuTypeIntegrated); ok || !strings.Contains(reason, "discrete") {
		t.Errorf("integrated: got (%v, %q)", ok, reason)
	}
	if ok, reason := frameGenEligibility(3.9, 8<<30, gpuTypeDiscrete); ok || !strings.Contains(reason, "TFLOPs") {
		t.Errorf("slow: got (%v, %q)", ok, reason)
	}
	if ok, reason := frameGenEligibility(10, 1<<30, gpuTypeDiscrete); ok || !strings.Contains(reason, "VRAM") {
		t.Errorf("small vram: got (%v, %q)", ok, reason)
	}
}

func TestScoreDeviceOrdering(t *testing.T) {
	discrete := scoreDevice(gpuTypeDiscrete, 16384, 1024)
	integrated := scoreDevice(gpuTypeIntegrated, 16384, 1024)
	virtual := scoreDevice(gpuTypeVirtual, 16384, 1024)
	cpu := scoreDevice(gpuTypeCPU, 16384, 1024)

	if !(discrete > integrated && integrated > virtual && virtual > cpu) {
		t.Errorf("ordering: discrete=%d integrated=%d virtual=%d cpu=%d",
			discrete, integrated, virtual, cpu)
	}
}

func TestFormatDriverVersion(t *testing.T) {
	nvidia := uint32(551)<<22 | uint32(86)<<14 | uint32(7)<<6 | 3
	if got := formatDriverVersion(VENDOR_NVIDIA, nvidia); got != "551.86.7.3" {
		t.Errorf("nvidia: got %q, want 551.86.7.3", got)
	}
	intel := uint32(100)<<14 | 9375
	if got := formatDriverVersion(VENDOR_INTEL, intel); got != "100.9375" {
		t.Errorf("intel: got %q, want 100.9375", got)
	}
	std := uint32(2)<<22 | uint32(0)<<12 | 270
	if got := formatDriverVersion(VENDOR_AMD, std); got != "2.0.270" {
		t.Errorf("standard: got %q, want 2.0.270", got)
	}
}

func TestVRAMString(t *testing.T) {
	if got := VRAMString(8 << 30); got != "8.0 GiB" {
		t.Errorf("8G: got %q", got)
	}
	if got := VRAMString(512 << 20); got != "512 MiB" {
		t.Errorf("512M: got %q", got)
	}
	if got := VRAMString(100); got != "100 bytes" {
		t.Errorf("bytes: got %q", got)
	}
}

func TestSoftwareSpecs(t *testing.T) {
	s := softwareSpecs()
	if s.Tier != TIER_LOW_END {
		t.Errorf("tier: got %s, want Low-End", TierName(s.Tier))
	}
	if s.CanRunFrameGen {
		t.Error("software renderer claims frame generation")
	}
	if TierName(99) != "Unknown" {
		t.Errorf("unknown tier name: got %q", TierName(99))
	}
}
