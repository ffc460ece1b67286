package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/melbourne-sensors/cmd"
)

func main() {
	app := &cli.App{
		Name:   "melbourne-sensors",
		Usage:  "fetches Melbourne open-data sensor feeds into postgres",
		Action: cmd.FetchCommand,
		Flags:  cmd.Flags,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
