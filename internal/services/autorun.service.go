package services

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"

	"cloudrams/internal/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	schtasksBinary = "schtasks"
	autorunTimeout = 30 * time.Second
)

var DefaultAutorunArgs = []string{"serve"}

// CommandRunner runs an external program and returns its exit code and output.
// err is only set when the program could not be run at all.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (exitCode int, stdout, stderr string, err error)
}

// ExecRunner runs commands through os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (int, string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), stdout.String(), stderr.String(), nil
	}
	if err != nil {
		return -1, stdout.String(), stderr.String(), err
	}
	return 0, stdout.String(), stderr.String(), nil
}

// AutorunService manages the logon scheduled task that starts the agent
type AutorunService struct {
	taskName string
	runner   CommandRunner
}

var autorunService *AutorunService

// InitAutorunService sets up the shared autorun service. A nil runner uses os/exec.
func InitAutorunService(taskName string, runner CommandRunner) *AutorunService {
	if runner == nil {
		runner = ExecRunner{}
	}
	autorunService = &AutorunService{taskName: taskName, runner: runner}
	return autorunService
}

// GetAutorunService returns the shared autorun service
func GetAutorunService() *AutorunService {
	return autorunService
}

// Install creates (or replaces) the task so the agent starts at user logon.
// /RL LIMITED keeps the task creatable without elevation.
func (a *AutorunService) Install(ctx context.Context, exePath string, args []string) models.TaskResult {
	if strings.TrimSpace(exePath) == "" {
		exe, err := os.Executable()
		if err != nil {
			return models.TaskResult{Task: a.taskName, Stderr: errors.WithMessage(err, "resolve agent executable").Error()}
		}
		exePath = exe
	}
	if args == nil {
		args = DefaultAutorunArgs
	}

	return a.schtasks(ctx, BuildInstallArgs(a.taskName, exePath, args)...)
}

// Uninstall deletes the task
func (a *AutorunService) Uninstall(ctx context.Context) models.TaskResult {
	return a.schtasks(ctx, "/Delete", "/F", "/TN", a.taskName)
}

// RunNow triggers the task immediately
func (a *AutorunService) RunNow(ctx context.Context) models.TaskResult {
	return a.schtasks(ctx, "/Run", "/TN", a.taskName)
}

// Status queries the task in verbose list form
func (a *AutorunService) Status(ctx context.Context) models.TaskResult {
	return a.schtasks(ctx, "/Query", "/TN", a.taskName, "/V", "/FO", "LIST")
}

func (a *AutorunService) schtasks(ctx context.Context, args ...string) models.TaskResult {
	ctx, cancel := context.WithTimeout(ctx, autorunTimeout)
	defer cancel()

	logrus.Debugf("Running %s %s", schtasksBinary, strings.Join(args, " "))
	code, stdout, stderr, err := a.runner.Run(ctx, schtasksBinary, args...)
	result := models.TaskResult{
		OK:     err == nil && code == 0,
		Task:   a.taskName,
		Stdout: strings.TrimSpace(stdout),
		Stderr: strings.TrimSpace(stderr),
	}
	if err != nil {
		result.Stderr = strings.TrimSpace(result.Stderr + "\n" + err.Error())
	}
	if !result.OK {
		logrus.Warnf("%s %s failed (exit %d): %s", schtasksBinary, args[0], code, result.Stderr)
	}
	return result
}

// BuildInstallArgs returns the schtasks arguments that register the logon task
func BuildInstallArgs(taskName, exePath string, args []string) []string {
	return []string{
		"/Create", "/F",
		"/TN", taskName,
		"/SC", "ONLOGON",
		"/RL", "LIMITED",
		"/TR", taskCommandLine(exePath, args),
	}
}

// taskCommandLine quotes the executable always and arguments only when needed
func taskCommandLine(exePath string, args []string) string {
	parts := []string{`"` + exePath + `"`}
	for _, arg := range args {
		if arg == "" || strings.ContainsAny(arg, " \t\"") {
			arg = `"` + strings.ReplaceAll(arg, `"`, `\"`) + `"`
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}
