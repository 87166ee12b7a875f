package services

import (
	"os"
	"time"

	"cloudrams/internal/models"

	"github.com/denisbrodbeck/machineid"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

const GB = 1024 * 1024 * 1024

// machineIDApp salts the machine id so the raw value never leaves the host
const machineIDApp = "cloudrams-agent"

// GetHostStatus reports what the web app needs to recognise this machine.
// Only the host lookup is fatal; the other readings degrade to zero values.
func GetHostStatus(dataDir, version string) (*models.HostStatus, error) {
	info, err := host.Info()
	if err != nil {
		return nil, errors.WithMessage(err, "get host info")
	}

	status := &models.HostStatus{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		KernelArch:      info.KernelArch,
		BootTime:        time.Unix(int64(info.BootTime), 0).UTC(),
		UptimeSeconds:   info.Uptime,
		DataDir:         dataDir,
		AgentPID:        os.Getpid(),
		AgentVersion:    version,
	}

	if id, err := machineid.ProtectedID(machineIDApp); err != nil {
		logrus.Debugf("Machine id unavailable: %v", err)
	} else {
		status.MachineID = id
	}

	if cores, err := cpu.Counts(true); err != nil {
		logrus.Debugf("Could not get CPU core count: %v", err)
	} else {
		status.CPUCores = cores
	}

	if percent, err := cpu.Percent(0, false); err != nil || len(percent) == 0 {
		logrus.Debugf("Could not get CPU usage: %v", err)
	} else {
		status.CPUPercent = percent[0]
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		logrus.Debugf("Could not get memory usage: %v", err)
	} else {
		status.MemoryTotalGB = float64(vm.Total) / GB
		status.MemoryUsedPercent = vm.UsedPercent
	}

	if dataDir != "" {
		if usage, err := disk.Usage(dataDir); err != nil {
			logrus.Debugf("Could not get disk usage for %s: %v", dataDir, err)
		} else {
			status.DataDirFreeGB = float64(usage.Free) / GB
		}
	}

	return status, nil
}
