package models

// ProcessStatus is one row of the ranked process table
type ProcessStatus struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	Username   string  `json:"username,omitempty"`
	Exe        string  `json:"exe,omitempty"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float32 `json:"mem_percent"`
	Status     string  `json:"status"`
}

// TrackedTask is a running application the UI knows how to offload
type TrackedTask struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
}
