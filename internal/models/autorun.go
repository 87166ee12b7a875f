package models

// InstallAutorunRequest overrides what the logon task launches
type InstallAutorunRequest struct {
	ExePath string   `json:"exe_path"`
	Args    []string `json:"args"`
}

// TaskResult mirrors the outcome of a single schtasks invocation
type TaskResult struct {
	OK     bool   `json:"ok"`
	Task   string `json:"task"`
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}
