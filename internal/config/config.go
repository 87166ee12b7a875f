package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"
)

const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 7071
	DefaultMaxZipMB        = 250
	DefaultMaxDownloadMB   = 500
	DefaultTaskName        = "CloudRAMS-LocalAgent"
	DefaultTransferTimeout = 120 * time.Second
	DefaultTransferRetries = 2
	DefaultCollectInterval = 2 * time.Second

	EnvPrefix = "CLOUDRAM_AGENT_"

	mb = 1024 * 1024
)

var (
	DefaultAllowedOrigins = []string{
		"http://localhost:5000",
		"http://127.0.0.1:5000",
		"https://cloudramsaas-frontend.onrender.com",
	}
	DefaultTrackedProcesses = []string{"notepad++.exe", "chrome.exe", "Code.exe"}
)

// Duration accepts "90s"-style strings in config files
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		d.Duration = time.Duration(v) * time.Second
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrapf(err, "parse duration %q", v)
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// Config is the complete runtime configuration of the agent
type Config struct {
	Host             string   `json:"host"`
	Port             int      `json:"port"`
	Token            string   `json:"token"`
	JWTAuth          bool     `json:"jwt_auth"`
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedIPs       []string `json:"allowed_ips"`
	DataDir          string   `json:"data_dir"`
	MaxZipMB         int      `json:"max_zip_mb"`
	MaxDownloadMB    int      `json:"max_download_mb"`
	SafeBaseDirs     []string `json:"safe_base_dirs"`
	TaskName         string   `json:"task_name"`
	TrackedProcesses []string `json:"tracked_processes"`
	TransferTimeout  Duration `json:"transfer_timeout"`
	TransferRetries  int      `json:"transfer_retries"`
	CollectInterval  Duration `json:"collect_interval"`
	Debug            bool     `json:"debug"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Host:             DefaultHost,
		Port:             DefaultPort,
		AllowedOrigins:   append([]string(nil), DefaultAllowedOrigins...),
		DataDir:          DefaultDataDir(),
		MaxZipMB:         DefaultMaxZipMB,
		MaxDownloadMB:    DefaultMaxDownloadMB,
		TaskName:         DefaultTaskName,
		TrackedProcesses: append([]string(nil), DefaultTrackedProcesses...),
		TransferTimeout:  Duration{DefaultTransferTimeout},
		TransferRetries:  DefaultTransferRetries,
		CollectInterval:  Duration{DefaultCollectInterval},
	}
}

// DefaultDataDir is %LOCALAPPDATA%\CloudRAMSAgent, or ~/CloudRAMSAgent when
// LOCALAPPDATA is not set (non-Windows hosts).
func DefaultDataDir() string {
	base := os.Getenv("LOCALAPPDATA")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		base = home
	}
	return filepath.Join(base, "CloudRAMSAgent")
}

// LoadFile overlays a YAML (or JSON) file onto c. Keys absent from the file
// keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithMessage(err, "read config file")
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.WithMessagef(err, "parse config file %s", path)
	}
	return nil
}

// Validate checks the values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	if c.MaxZipMB <= 0 {
		return errors.New("max zip size must be positive")
	}
	if c.MaxDownloadMB <= 0 {
		return errors.New("max download size must be positive")
	}
	if strings.TrimSpace(c.TaskName) == "" {
		return errors.New("empty task name")
	}
	if c.DataDir == "" {
		return errors.New("empty data dir")
	}
	if c.TransferRetries < 0 {
		return errors.New("transfer retries cannot be negative")
	}
	if c.CollectInterval.Duration <= 0 {
		return errors.New("collect interval must be positive")
	}
	return nil
}

// EnsureDirs creates the logs, cache and downloads directories
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.LogDir(), c.CacheDir(), c.DownloadsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WithMessagef(err, "create %s", dir)
		}
	}
	return nil
}

func (c *Config) LogDir() string       { return filepath.Join(c.DataDir, "logs") }
func (c *Config) CacheDir() string     { return filepath.Join(c.DataDir, "cache") }
func (c *Config) DownloadsDir() string { return filepath.Join(c.DataDir, "downloads") }

func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) MaxZipBytes() int64      { return int64(c.MaxZipMB) * mb }
func (c *Config) MaxDownloadBytes() int64 { return int64(c.MaxDownloadMB) * mb }

// SplitList parses a comma separated env value, dropping blanks
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
