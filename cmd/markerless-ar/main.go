// Package main is the markerless-ar command itself.
package main

import (
	"log"
	"os"

	"github.com/fengyu3941/marker-based-ar-demo/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
