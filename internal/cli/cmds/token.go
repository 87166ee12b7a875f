package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cloudrams/internal/middleware"
	"cloudrams/internal/services"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func NewTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Print a JWT the web app can send as Authorization: Bearer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "client-name",
				Usage: "Name recorded in the token's client_name claim",
				Value: "cloudrams-web",
			},
			&cli.DurationFlag{
				Name:  "expiry",
				Usage: "Token lifetime",
				Value: 90 * 24 * time.Hour,
			},
		},
		Action: tokenRun,
	}
}

func tokenRun(ctx *cli.Context) error {
	cfg, err := LoadConfig(ctx)
	if err != nil {
		return err
	}
	// The server must later read the same secret key file
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return errors.WithMessage(err, "create data dir")
	}

	services.InitAuthService(services.AuthConfig{
		SecretKeyFile: filepath.Join(cfg.DataDir, secretKeyFile),
		JWTEnabled:    true,
	})

	clientName := ctx.String("client-name")
	token, err := services.GenerateToken(clientName, ctx.Duration("expiry"))
	if err != nil {
		return errors.WithMessage(err, "generate token")
	}
	middleware.GlobalSecurityLogger.LogTokenGenerated(clientName)

	fmt.Fprintln(ctx.App.Writer, token)
	return nil
}
