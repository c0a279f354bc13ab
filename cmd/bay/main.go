package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap/zapcore"

	"github.com/getbay/bay/pkg/cmd"
	"github.com/getbay/bay/pkg/logging"
)

func main() {
	app := cli.NewApp()
	app.Name = "bay"
	app.Usage = "reconciles a docker host's running containers against a desired formation"
	app.Commands = cmd.Commands
	app.Flags = cmd.Flags
	app.HideVersion = true
	app.Before = func(c *cli.Context) error {
		configureLogging(c)
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func configureLogging(c *cli.Context) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		var l zapcore.Level
		if err := l.UnmarshalText([]byte(level)); err != nil {
			panic(err)
		}
		logging.SetLevel(l)
		return
	}
	if c.GlobalBool("v") {
		logging.SetLevel(zapcore.DebugLevel)
	}
}
