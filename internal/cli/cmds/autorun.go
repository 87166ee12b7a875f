package cmds

import (
	"encoding/json"
	"fmt"

	"cloudrams/internal/models"
	"cloudrams/internal/services"

	"github.com/urfave/cli/v2"
)

func NewAutorunCommand() *cli.Command {
	return &cli.Command{
		Name:  "autorun",
		Usage: "Manage the scheduled task that starts the agent at logon",
		Subcommands: []*cli.Command{
			{
				Name:  "install",
				Usage: "Create or replace the logon task",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "exe",
						Usage: "Executable the task starts (default: this binary)",
					},
					&cli.StringSliceFlag{
						Name:  "arg",
						Usage: "Argument passed to the executable, repeatable (default: serve)",
					},
				},
				Action: func(ctx *cli.Context) error {
					var args []string
					if ctx.IsSet("arg") {
						args = ctx.StringSlice("arg")
					}
					return runAutorun(ctx, func(a *services.AutorunService) models.TaskResult {
						return a.Install(ctx.Context, ctx.String("exe"), args)
					})
				},
			},
			{
				Name:  "uninstall",
				Usage: "Delete the logon task",
				Action: func(ctx *cli.Context) error {
					return runAutorun(ctx, func(a *services.AutorunService) models.TaskResult {
						return a.Uninstall(ctx.Context)
					})
				},
			},
			{
				Name:  "run",
				Usage: "Start the task now",
				Action: func(ctx *cli.Context) error {
					return runAutorun(ctx, func(a *services.AutorunService) models.TaskResult {
						return a.RunNow(ctx.Context)
					})
				},
			},
			{
				Name:  "status",
				Usage: "Show the task definition and last run",
				Action: func(ctx *cli.Context) error {
					return runAutorun(ctx, func(a *services.AutorunService) models.TaskResult {
						return a.Status(ctx.Context)
					})
				},
			},
		},
	}
}

// autorunRunner is replaced in tests
var autorunRunner services.CommandRunner

func runAutorun(ctx *cli.Context, op func(*services.AutorunService) models.TaskResult) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}

	result := op(services.InitAutorunService(cfg.TaskName, autorunRunner))
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, string(out))

	if !result.OK {
		return cli.Exit(fmt.Sprintf("autorun %s failed", ctx.Command.Name), 1)
	}
	return nil
}
