package services

import (
	"os"
	"testing"

	"cloudrams/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeProcesses(t *testing.T, procs []ProcessWithScore, err error) {
	t.Helper()
	orig := listProcesses
	listProcesses = func() ([]ProcessWithScore, error) { return procs, err }
	t.Cleanup(func() { listProcesses = orig })
}

func fakeTaskNames(t *testing.T, tasks []models.TrackedTask, err error) {
	t.Helper()
	orig := listTaskNames
	listTaskNames = func() ([]models.TrackedTask, error) { return tasks, err }
	t.Cleanup(func() { listTaskNames = orig })
	// the tracked-task path must not pay for the enriched scan
	fakeProcesses(t, nil, errors.New("enriched scan used for tracked tasks"))
}

func proc(pid int32, name string, cpu float64, mem float32) ProcessWithScore {
	return ProcessWithScore{ProcessStatus: models.ProcessStatus{PID: pid, Name: name, CPUPercent: cpu, MemPercent: mem}}
}

func TestListTrackedTasks(t *testing.T) {
	InitProcessService([]string{"notepad++.exe", "chrome.exe", "Code.exe"})
	fakeTaskNames(t, []models.TrackedTask{
		{PID: 30, Name: "chrome.exe"},
		{PID: 10, Name: "CHROME.EXE"},
		{PID: 20, Name: "code.exe"},
		{PID: 40, Name: "explorer.exe"},
		{PID: 50, Name: "notepad.exe"},
	}, nil)

	tasks, err := ListTrackedTasks()
	require.NoError(t, err)
	assert.Equal(t, []models.TrackedTask{
		{PID: 10, Name: "CHROME.EXE"},
		{PID: 30, Name: "chrome.exe"},
		{PID: 20, Name: "code.exe"},
	}, tasks)
}

func TestListTrackedTasksEmpty(t *testing.T) {
	InitProcessService([]string{"chrome.exe"})
	fakeTaskNames(t, []models.TrackedTask{{PID: 1, Name: "init"}}, nil)

	tasks, err := ListTrackedTasks()
	require.NoError(t, err)
	assert.NotNil(t, tasks)
	assert.Empty(t, tasks)
}

func TestGetCachedTasks(t *testing.T) {
	InitProcessService([]string{"chrome.exe"})
	fakeTaskNames(t, []models.TrackedTask{{PID: 7, Name: "chrome.exe"}}, nil)

	tasks, updated, err := GetCachedTasks()
	require.NoError(t, err)
	assert.False(t, updated.IsZero())
	assert.Len(t, tasks, 1)

	// served from the snapshot until the collector refreshes it
	fakeTaskNames(t, nil, errors.New("should not be called"))
	again, updatedAgain, err := GetCachedTasks()
	require.NoError(t, err)
	assert.Equal(t, tasks, again)
	assert.Equal(t, updated, updatedAgain)
}

func TestGetCachedTasksError(t *testing.T) {
	InitProcessService([]string{"chrome.exe"})
	fakeTaskNames(t, nil, errors.New("boom"))

	_, _, err := GetCachedTasks()
	assert.EqualError(t, err, "boom")
}

func TestListProcesses(t *testing.T) {
	fakeProcesses(t, []ProcessWithScore{
		proc(1, "idle", 0, 0.5),
		proc(2, "busy", 50, 10),
		proc(3, "mid", 10, 5),
	}, nil)

	procs, totalCPU, totalMem, err := ListProcesses(2)
	require.NoError(t, err)
	require.Len(t, procs, 2)
	assert.Equal(t, "busy", procs[0].Name)
	assert.Equal(t, "mid", procs[1].Name)
	assert.Equal(t, 60.0, totalCPU)
	assert.Equal(t, float32(15), totalMem)

	procs, _, _, err = ListProcesses(0)
	require.NoError(t, err)
	assert.Len(t, procs, 3)
}

func TestMapProcessState(t *testing.T) {
	tests := map[string]string{
		"R":       "running",
		"running": "running",
		"S":       "sleeping",
		"sleep":   "sleeping",
		"stop":    "stopped",
		"Z":       "zombie",
		"":        "unknown",
		"custom":  "custom",
	}
	for in, want := range tests {
		assert.Equal(t, want, mapProcessState(in), in)
	}
}

func TestCollectNames(t *testing.T) {
	tasks, err := collectNames()
	require.NoError(t, err)
	assert.NotEmpty(t, tasks)
	for _, task := range tasks {
		assert.NotEqual(t, int32(os.Getpid()), task.PID)
	}
}

func TestCollectFromUniversal(t *testing.T) {
	procs, err := collectFromUniversal()
	require.NoError(t, err)
	assert.NotEmpty(t, procs)
}
