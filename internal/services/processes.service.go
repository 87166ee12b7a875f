package services

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"cloudrams/internal/models"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

const (
	DefaultProcessLimit = 20
	MaxProcessLimit     = 500
)

// ProcessWithScore helps with sorting
type ProcessWithScore struct {
	models.ProcessStatus
	Score float64
}

// TaskCollectorCache holds the last tracked-task snapshot
type TaskCollectorCache struct {
	mu          sync.RWMutex
	tracked     []string
	tasks       []models.TrackedTask
	lastUpdated time.Time
	running     bool
}

var collector = &TaskCollectorCache{}

// listProcesses and listTaskNames are swapped in tests
var (
	listProcesses = collectFromUniversal
	listTaskNames = collectNames
)

// InitProcessService sets the executable names reported as running tasks
func InitProcessService(tracked []string) {
	collector.mu.Lock()
	defer collector.mu.Unlock()
	collector.tracked = append([]string(nil), tracked...)
	collector.tasks = nil
	collector.lastUpdated = time.Time{}
}

// StartProcessCollector refreshes the tracked-task snapshot until ctx is done.
// onUpdate, when set, receives every fresh snapshot.
func StartProcessCollector(ctx context.Context, interval time.Duration, onUpdate func([]models.TrackedTask)) error {
	collector.mu.Lock()
	if collector.running {
		collector.mu.Unlock()
		return nil // Already running
	}
	collector.running = true
	collector.mu.Unlock()

	defer func() {
		collector.mu.Lock()
		collector.running = false
		collector.mu.Unlock()
		logrus.Info("Process collector stopped")
	}()

	logrus.Infof("Process collector started (interval: %v)", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		tasks, err := refreshTrackedTasks()
		if err != nil {
			logrus.Warnf("Process collection error: %v", err)
		} else if onUpdate != nil {
			onUpdate(tasks)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func refreshTrackedTasks() ([]models.TrackedTask, error) {
	tasks, err := ListTrackedTasks()
	if err != nil {
		return nil, err
	}

	collector.mu.Lock()
	collector.tasks = tasks
	collector.lastUpdated = time.Now()
	collector.mu.Unlock()
	return tasks, nil
}

// GetCachedTasks returns the latest snapshot, collecting synchronously when
// the collector has not produced one yet
func GetCachedTasks() ([]models.TrackedTask, time.Time, error) {
	collector.mu.RLock()
	tasks, lastUpdated := collector.tasks, collector.lastUpdated
	collector.mu.RUnlock()

	if !lastUpdated.IsZero() {
		return tasks, lastUpdated, nil
	}

	tasks, err := refreshTrackedTasks()
	if err != nil {
		return nil, time.Time{}, err
	}
	collector.mu.RLock()
	defer collector.mu.RUnlock()
	return tasks, collector.lastUpdated, nil
}

// ListTrackedTasks returns live processes whose executable name is tracked.
// Names compare case-insensitively, as Windows does.
func ListTrackedTasks() ([]models.TrackedTask, error) {
	collector.mu.RLock()
	tracked := collector.tracked
	collector.mu.RUnlock()

	procs, err := listTaskNames()
	if err != nil {
		return nil, err
	}

	tasks := []models.TrackedTask{}
	for _, p := range procs {
		if isTracked(p.Name, tracked) {
			tasks = append(tasks, p)
		}
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Name != tasks[j].Name {
			return tasks[i].Name < tasks[j].Name
		}
		return tasks[i].PID < tasks[j].PID
	})
	return tasks, nil
}

func isTracked(name string, tracked []string) bool {
	for _, t := range tracked {
		if strings.EqualFold(name, t) {
			return true
		}
	}
	return false
}

// ListProcesses returns the top processes with resource totals
// Pipeline: Collect → Enrich → Sort → Limit
func ListProcesses(limit int) ([]models.ProcessStatus, float64, float32, error) {
	if limit <= 0 {
		limit = DefaultProcessLimit
	}
	if limit > MaxProcessLimit {
		limit = MaxProcessLimit
	}

	// COLLECT
	processes, err := listProcesses()
	if err != nil {
		return nil, 0, 0, err
	}

	// ENRICH → SORT → LIMIT
	limited := limitTo(sortByScore(enrichWithScores(processes)), limit)

	var totalCPU float64
	var totalMem float32
	result := make([]models.ProcessStatus, 0, len(limited))
	for _, p := range limited {
		result = append(result, p.ProcessStatus)
		totalCPU += p.CPUPercent
		totalMem += p.MemPercent
	}

	return result, totalCPU, totalMem, nil
}

// GetProcessCount returns the total number of running processes
func GetProcessCount() (int, error) {
	pids, err := process.Pids()
	if err != nil {
		return 0, errors.WithMessage(err, "list pids")
	}
	return len(pids), nil
}

// collectNames reads only pid and name, which is all tracked tasks need
func collectNames() ([]models.TrackedTask, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, errors.WithMessage(err, "get live process list")
	}

	self := int32(os.Getpid())
	tasks := make([]models.TrackedTask, 0, len(procs))
	var errs error
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		name, err := p.Name()
		if err != nil {
			errs = multierror.Append(errs, errors.WithMessagef(err, "get name for pid '%d'", p.Pid))
			continue
		}
		tasks = append(tasks, models.TrackedTask{PID: p.Pid, Name: name})
	}

	if len(tasks) == 0 && errs != nil {
		return nil, errs
	}
	return tasks, nil
}

// COLLECT: Get all processes using gopsutil, skipping the agent itself.
// Processes that exit mid-scan are dropped; the scan only fails when
// nothing could be read at all.
func collectFromUniversal() ([]ProcessWithScore, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, errors.WithMessage(err, "get live process list")
	}

	self := int32(os.Getpid())
	processes := make([]ProcessWithScore, 0, len(procs))
	seenPIDs := make(map[int32]bool)
	var errs error

	for _, p := range procs {
		if p.Pid == self || seenPIDs[p.Pid] {
			continue
		}
		seenPIDs[p.Pid] = true

		name, err := p.Name()
		if err != nil {
			errs = multierror.Append(errs, errors.WithMessagef(err, "get name for pid '%d'", p.Pid))
			continue
		}

		cpuPercent, err := p.CPUPercent()
		if err != nil {
			cpuPercent = 0
		}

		memPercent, err := p.MemoryPercent()
		if err != nil {
			memPercent = 0
		}

		status, err := p.Status()
		if err != nil || len(status) == 0 {
			status = []string{"unknown"}
		}

		username, _ := p.Username()
		exe, _ := p.Exe()

		processes = append(processes, ProcessWithScore{
			ProcessStatus: models.ProcessStatus{
				PID:        p.Pid,
				Name:       name,
				Username:   username,
				Exe:        exe,
				CPUPercent: cpuPercent,
				MemPercent: memPercent,
				Status:     mapProcessState(status[0]),
			},
		})
	}

	if len(processes) == 0 && errs != nil {
		return nil, errs
	}
	if errs != nil {
		logrus.Debugf("Skipped processes during scan: %v", errs)
	}

	return enrichPlatform(processes), nil
}

// ENRICH: Calculate combined scores
func enrichWithScores(processes []ProcessWithScore) []ProcessWithScore {
	enriched := make([]ProcessWithScore, len(processes))
	for i, p := range processes {
		p.Score = p.CPUPercent + float64(p.MemPercent)
		enriched[i] = p
	}
	return enriched
}

// SORT: By score descending
func sortByScore(processes []ProcessWithScore) []ProcessWithScore {
	sorted := make([]ProcessWithScore, len(processes))
	copy(sorted, processes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted
}

// LIMIT: Keep only top N
func limitTo(processes []ProcessWithScore, limit int) []ProcessWithScore {
	if len(processes) > limit {
		return processes[:limit]
	}
	return processes
}

// mapProcessState converts gopsutil states (single letters or words) to readable strings
func mapProcessState(state string) string {
	switch strings.ToLower(state) {
	case "r", "running":
		return "running"
	case "s", "sleep", "sleeping":
		return "sleeping"
	case "d", "disk_sleep":
		return "disk_sleep"
	case "z", "zombie":
		return "zombie"
	case "t", "stop", "stopped":
		return "stopped"
	case "i", "idle":
		return "idle"
	case "w", "wait":
		return "waiting"
	case "l", "lock":
		return "locked"
	case "x", "dead":
		return "dead"
	case "":
		return "unknown"
	default:
		return state
	}
}
