//go:build windows && amd64

package services

import (
	wapi "github.com/iamacarpet/go-win64api"
	"github.com/sirupsen/logrus"
)

// enrichPlatform fills in the owner and full image path from the toolhelp
// snapshot, which can read them for processes gopsutil is denied access to.
func enrichPlatform(processes []ProcessWithScore) []ProcessWithScore {
	list, err := wapi.ProcessList()
	if err != nil {
		logrus.Debugf("Windows process list unavailable: %v", err)
		return processes
	}

	byPID := make(map[int32]int, len(list))
	for i, p := range list {
		byPID[int32(p.Pid)] = i
	}

	for i := range processes {
		idx, ok := byPID[processes[i].PID]
		if !ok {
			continue
		}
		wp := list[idx]
		if processes[i].Username == "" {
			processes[i].Username = wp.Username
		}
		if processes[i].Exe == "" {
			processes[i].Exe = wp.Fullpath
		}
		if processes[i].Name == "" {
			processes[i].Name = wp.Executable
		}
	}
	return processes
}
