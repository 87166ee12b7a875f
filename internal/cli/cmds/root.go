package cmds

import (
	"fmt"

	"cloudrams/internal/config"
	"cloudrams/internal/version"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

const envPrefix = config.EnvPrefix

func env(name string) []string {
	return []string{envPrefix + name}
}

// NewApp returns the agent's root command. Running it without a subcommand serves.
func NewApp() *cli.App {
	app := cli.NewApp()
	app.Name = version.Program
	app.Usage = "CloudRAMS localhost agent"
	app.Version = fmt.Sprintf("%s (%s)", version.Version, version.GitCommit)
	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Fprintf(c.App.Writer, "%s version %s\n", app.Name, app.Version)
	}
	app.Flags = newConfigFlags()
	app.Action = ServeRun
	app.Commands = []*cli.Command{
		NewServeCommand(),
		NewAutorunCommand(),
		NewTokenCommand(),
		NewPresignCommand(),
	}
	return app
}

// newConfigFlags returns fresh flag instances; urfave flags keep parse state
func newConfigFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "(config) Load configuration from a YAML file",
			EnvVars: env("CONFIG"),
		},
		&cli.BoolFlag{
			Name:    "debug",
			Usage:   "(logging) Turn on debug logs",
			EnvVars: env("DEBUG"),
		},
		&cli.StringFlag{
			Name:    "host",
			Usage:   "(listener) Address to bind",
			EnvVars: env("HOST"),
			Value:   config.DefaultHost,
		},
		&cli.IntFlag{
			Name:    "port",
			Usage:   "(listener) Port to listen on",
			EnvVars: env("PORT"),
			Value:   config.DefaultPort,
		},
		&cli.StringFlag{
			Name:    "token",
			Usage:   "(auth) Shared token expected in the X-Agent-Token header; empty disables the check",
			EnvVars: env("TOKEN"),
		},
		&cli.BoolFlag{
			Name:    "jwt-auth",
			Usage:   "(auth) Require a bearer JWT (see the token command) when no agent token matches",
			EnvVars: env("JWT_AUTH"),
		},
		&cli.StringFlag{
			Name:    "allowed-origins",
			Usage:   "(auth) Comma separated browser origins allowed to call the agent",
			EnvVars: env("ALLOWED_ORIGINS"),
		},
		&cli.StringFlag{
			Name:    "allowed-ips",
			Usage:   "(auth) Comma separated non-loopback client IPs to accept",
			EnvVars: env("ALLOWED_IPS"),
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "(data) Folder holding logs, cache and downloads",
			EnvVars: env("DATA_DIR"),
		},
		&cli.IntFlag{
			Name:    "max-zip-mb",
			Usage:   "(data) Largest zip the agent will produce",
			EnvVars: env("MAX_ZIP_MB"),
			Value:   config.DefaultMaxZipMB,
		},
		&cli.IntFlag{
			Name:    "max-download-mb",
			Usage:   "(data) Largest file the agent will download",
			EnvVars: env("MAX_DOWNLOAD_MB"),
			Value:   config.DefaultMaxDownloadMB,
		},
		&cli.StringFlag{
			Name:    "safe-base-dirs",
			Usage:   "(data) Comma separated folders that zip requests must stay within; empty allows any folder",
			EnvVars: env("SAFE_BASE_DIRS"),
		},
		&cli.StringFlag{
			Name:    "task-name",
			Usage:   "(autorun) Scheduled task name",
			EnvVars: env("TASK_NAME"),
			Value:   config.DefaultTaskName,
		},
		&cli.StringFlag{
			Name:    "tracked-processes",
			Usage:   "(tasks) Comma separated executable names reported as running tasks",
			EnvVars: env("TRACKED_PROCESSES"),
		},
		&cli.DurationFlag{
			Name:    "transfer-timeout",
			Usage:   "(transfer) Timeout for a single upload or download",
			EnvVars: env("TRANSFER_TIMEOUT"),
			Value:   config.DefaultTransferTimeout,
		},
		&cli.IntFlag{
			Name:    "transfer-retries",
			Usage:   "(transfer) Retries for connection errors and 5xx responses",
			EnvVars: env("TRANSFER_RETRIES"),
			Value:   config.DefaultTransferRetries,
		},
		&cli.DurationFlag{
			Name:    "collect-interval",
			Usage:   "(tasks) How often running tasks are refreshed",
			EnvVars: env("COLLECT_INTERVAL"),
			Value:   config.DefaultCollectInterval,
		},
	}
}

// LoadConfig resolves the configuration: flag > env > config file > default
func LoadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := ctx.String("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if ctx.IsSet("debug") {
		cfg.Debug = ctx.Bool("debug")
	}
	if ctx.IsSet("host") {
		cfg.Host = ctx.String("host")
	}
	if ctx.IsSet("port") {
		cfg.Port = ctx.Int("port")
	}
	if ctx.IsSet("token") {
		cfg.Token = ctx.String("token")
	}
	if ctx.IsSet("jwt-auth") {
		cfg.JWTAuth = ctx.Bool("jwt-auth")
	}
	if ctx.IsSet("allowed-origins") {
		cfg.AllowedOrigins = config.SplitList(ctx.String("allowed-origins"))
	}
	if ctx.IsSet("allowed-ips") {
		cfg.AllowedIPs = config.SplitList(ctx.String("allowed-ips"))
	}
	if ctx.IsSet("data-dir") {
		cfg.DataDir = ctx.String("data-dir")
	}
	if ctx.IsSet("max-zip-mb") {
		cfg.MaxZipMB = ctx.Int("max-zip-mb")
	}
	if ctx.IsSet("max-download-mb") {
		cfg.MaxDownloadMB = ctx.Int("max-download-mb")
	}
	if ctx.IsSet("safe-base-dirs") {
		cfg.SafeBaseDirs = config.SplitList(ctx.String("safe-base-dirs"))
	}
	if ctx.IsSet("task-name") {
		cfg.TaskName = ctx.String("task-name")
	}
	if ctx.IsSet("tracked-processes") {
		cfg.TrackedProcesses = config.SplitList(ctx.String("tracked-processes"))
	}
	if ctx.IsSet("transfer-timeout") {
		cfg.TransferTimeout = config.Duration{Duration: ctx.Duration("transfer-timeout")}
	}
	if ctx.IsSet("transfer-retries") {
		cfg.TransferRetries = ctx.Int("transfer-retries")
	}
	if ctx.IsSet("collect-interval") {
		cfg.CollectInterval = config.Duration{Duration: ctx.Duration("collect-interval")}
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.WithMessage(err, "invalid configuration")
	}
	return cfg, nil
}
