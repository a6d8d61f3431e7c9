package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "czmlstream: %s\n", err.Error())
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "czmlstream"
	app.Usage = "stream a multi-part CZML vehicle path against a simulated clock"
	app.UsageText = "czmlstream <command> [arguments...]"
	app.Version = version
	app.Writer = out
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the loader and its HTTP API",
			Action: serve,
			Flags:  serveFlags,
		},
		{
			Name:   "status",
			Usage:  "print the segment status of a running server",
			Action: status,
			Flags:  append([]cli.Flag{jsonFlag}, remoteFlags...),
		},
		{
			Name:   "reset",
			Usage:  "rewind a running server to the start of the timeline",
			Action: reset,
			Flags:  remoteFlags,
		},
		{
			Name:      "seek",
			Usage:     "jump a running server's clock to an offset in seconds",
			ArgsUsage: "<offset>",
			Action:    seek,
			Flags:     remoteFlags,
		},
		{
			Name:   "pause",
			Usage:  "stop a running server's clock",
			Action: animate(false),
			Flags:  remoteFlags,
		},
		{
			Name:   "resume",
			Usage:  "restart a running server's clock",
			Action: animate(true),
			Flags:  remoteFlags,
		},
		{
			Name:   "devices",
			Usage:  "list the home network devices",
			Action: devices,
			Flags:  append([]cli.Flag{jsonFlag}, remoteFlags...),
		},
	}
	return app
}
