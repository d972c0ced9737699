package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gitlab.com/auditker/clicmds"
)

func main() {
	app := cli.NewApp()
	app.Name = "auditker"
	app.Version = "0.1"
	app.Usage = "track which endpoints of a target were audited"
	app.Commands = clicmds.Commands()
	app.Flags = clicmds.AppFlags()
	app.Before = clicmds.SetupLogging
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
