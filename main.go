package main

import (
	"os"

	"cloudrams/internal/cli/cmds"

	"github.com/sirupsen/logrus"
)

func main() {
	app := cmds.NewApp()
	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
