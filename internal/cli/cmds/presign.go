package cmds

import (
	"fmt"
	"time"

	"cloudrams/internal/services"

	"github.com/urfave/cli/v2"
)

func NewPresignCommand() *cli.Command {
	return &cli.Command{
		Name:  "presign",
		Usage: "Print a presigned S3 PUT URL for exercising /upload_to_url (uses the AWS credential chain)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "bucket",
				Usage:    "Target bucket",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "key",
				Usage:    "Target object key",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "region",
				Usage:   "Bucket region",
				EnvVars: []string{"AWS_REGION", "AWS_DEFAULT_REGION"},
				Value:   "us-east-1",
			},
			&cli.StringFlag{
				Name:  "endpoint",
				Usage: "Custom S3 endpoint, e.g. a local MinIO",
			},
			&cli.BoolFlag{
				Name:  "path-style",
				Usage: "Use path-style addressing (needed by most S3 compatible stores)",
			},
			&cli.StringFlag{
				Name:  "content-type",
				Usage: "Content-Type the upload must send",
				Value: "application/zip",
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "How long the URL stays valid",
				Value: 15 * time.Minute,
			},
		},
		Action: func(ctx *cli.Context) error {
			signed, err := services.PresignPut(services.PresignOptions{
				Region:      ctx.String("region"),
				Bucket:      ctx.String("bucket"),
				Key:         ctx.String("key"),
				ContentType: ctx.String("content-type"),
				Endpoint:    ctx.String("endpoint"),
				PathStyle:   ctx.Bool("path-style"),
				TTL:         ctx.Duration("ttl"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(ctx.App.Writer, signed)
			return nil
		},
	}
}
