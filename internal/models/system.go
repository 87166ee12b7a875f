package models

import "time"

// HostStatus describes the machine the agent runs on
type HostStatus struct {
	MachineID         string    `json:"machine_id"`
	Hostname          string    `json:"hostname"`
	OS                string    `json:"os"`
	Platform          string    `json:"platform"`
	PlatformVersion   string    `json:"platform_version"`
	KernelVersion     string    `json:"kernel_version"`
	KernelArch        string    `json:"kernel_arch"`
	BootTime          time.Time `json:"boot_time"`
	UptimeSeconds     uint64    `json:"uptime_seconds"`
	CPUCores          int       `json:"cpu_cores"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryTotalGB     float64   `json:"memory_total_gb"`
	MemoryUsedPercent float64   `json:"memory_used_percent"`
	DataDir           string    `json:"data_dir"`
	DataDirFreeGB     float64   `json:"data_dir_free_gb"`
	AgentPID          int       `json:"agent_pid"`
	AgentVersion      string    `json:"agent_version"`
}
