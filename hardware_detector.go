//go:build !headless

// hardware_detector.go - Vulkan probe feeding the capability model

/*
(c) 2025 - 2026 WeaR Team
https://github.com/wearteam/wear-emu
License: GPLv3 or later
*/

package main

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

const float16Extension = "VK_KHR_shader_float16_int8"

// DetectCapabilities probes the host GPU through Vulkan and fills in the
// capability record. Any failure falls back to the software-renderer
// record with the error attached, so callers always get usable Specs.
func DetectCapabilities() (Specs, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return softwareSpecs(), fmt.Errorf("vulkan loader: %w", err)
	}
	if err := vk.Init(); err != nil {
		return softwareSpecs(), fmt.Errorf("vulkan init: %w", err)
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   "WeaR-emu Hardware Probe\x00",
		ApplicationVersion: vk.MakeVersion(0, 1, 0),
		PEngineName:        "wear-emu\x00",
		EngineVersion:      vk.MakeVersion(0, 1, 0),
		ApiVersion:         vk.ApiVersion11,
	}
	var instance vk.Instance
	res := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &appInfo,
	}, nil, &instance)
	if res != vk.Success {
		return softwareSpecs(), fmt.Errorf("vulkan instance creation failed: %d", res)
	}
	defer vk.DestroyInstance(instance, nil)

	var count uint32
	if r := vk.EnumeratePhysicalDevices(instance, &count, nil); r != vk.Success || count == 0 {
		return softwareSpecs(), fmt.Errorf("no vulkan devices")
	}
	devices := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(instance, &count, devices)

	best := pickBestDevice(devices)
	return describeDevice(best), nil
}

// pickBestDevice ranks every physical device and returns the winner.
func pickBestDevice(devices []vk.PhysicalDevice) vk.PhysicalDevice {
	best := devices[0]
	bestScore := -1
	for _, dev := range devices {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(dev, &props)
		props.Deref()
		props.Limits.Deref()

		score := scoreDevice(int(props.DeviceType),
			props.Limits.MaxImageDimension2D,
			props.Limits.MaxComputeWorkGroupInvocations)
		if score > bestScore {
			bestScore = score
			best = dev
		}
	}
	return best
}

func describeDevice(dev vk.PhysicalDevice) Specs {
	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(dev, &props)
	props.Deref()
	props.Limits.Deref()

	var memProps vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(dev, &memProps)
	memProps.Deref()

	var vram uint64
	for i := uint32(0); i < memProps.MemoryHeapCount; i++ {
		heap := memProps.MemoryHeaps[i]
		heap.Deref()
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			vram += uint64(heap.Size)
		}
	}

	fp16 := deviceHasExtension(dev, float16Extension)
	deviceType := int(props.DeviceType)

	tflops := estimateTFLOPs(props.VendorID, deviceType,
		props.Limits.MaxComputeWorkGroupInvocations,
		props.Limits.MaxComputeSharedMemorySize,
		vram, fp16)
	canFG, fgReason := frameGenEligibility(tflops, vram, deviceType)

	return Specs{
		GPUName:               vk.ToString(props.DeviceName[:]),
		DriverVersion:         formatDriverVersion(props.VendorID, props.DriverVersion),
		VendorID:              props.VendorID,
		DeviceType:            deviceType,
		EstimatedTFLOPs:       tflops,
		VRAMBytes:             vram,
		Tier:                  tierForTFLOPs(tflops),
		SupportsFloat16:       fp16,
		CanRunFrameGen:        canFG,
		FrameGenDisableReason: fgReason,
	}
}

func deviceHasExtension(dev vk.PhysicalDevice, name string) bool {
	var count uint32
	if r := vk.EnumerateDeviceExtensionProperties(dev, "", &count, nil); r != vk.Success || count == 0 {
		return false
	}
	exts := make([]vk.ExtensionProperties, count)
	vk.EnumerateDeviceExtensionProperties(dev, "", &count, exts)
	for i := range exts {
		exts[i].Deref()
		if vk.ToString(exts[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}
