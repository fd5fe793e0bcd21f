package telemetry

import "runtime"

// SystemInfo is the environment section of a telemetry snapshot.
type SystemInfo struct {
	CPUCores         int    `json:"cpu_cores"`
	TotalMemoryBytes uint64 `json:"total_memory_bytes"`
	Architecture     string `json:"architecture"`
	OperatingSystem  string `json:"operating_system"`
}

// CollectSystemInfo describes the host environment.
func CollectSystemInfo() SystemInfo {
	return SystemInfo{
		CPUCores:         runtime.NumCPU(),
		TotalMemoryBytes: totalMemoryBytes(),
		Architecture:     runtime.GOARCH,
		OperatingSystem:  runtime.GOOS,
	}
}
