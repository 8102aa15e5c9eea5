package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Optional; flags and the process environment take precedence.
	_ = godotenv.Load(".env")

	app := &cli.App{
		Name:  "dispatcher",
		Usage: "Forward publications to a pub/sub broker in batches",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Read newline-delimited JSON publications from stdin and dispatch them until EOF or signal",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "publish",
				Usage:  "Publish a single publication and wait for it to be dispatched",
				Flags:  publishFlags(),
				Action: publish,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
