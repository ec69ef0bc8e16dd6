// Copyright (C) 2017  Lukas Lalinsky
// Distributed under the MIT license, see the LICENSE file for details.

package main

import (
	"log"
	"os"
	"runtime/pprof"

	"github.com/acoustid/go-textindex/textdb/cmd"
	"github.com/pkg/errors"
	"gopkg.in/urfave/cli.v1"
)

var version = ""

func main() {
	app := cli.NewApp()

	app.Name = "textindex"
	app.HelpName = "textindex"
	app.Usage = "full-text search index"
	app.Version = version

	app.Flags = append([]cli.Flag{
		cli.StringFlag{Name: "cpuprofile", Usage: "write cpu profile to file", Hidden: true},
	}, cmd.Flags...)

	app.Commands = cmd.Commands

	app.Before = func(ctx *cli.Context) error {
		if ctx.GlobalIsSet("cpuprofile") {
			file, err := os.Create(ctx.GlobalString("cpuprofile"))
			if err != nil {
				return errors.Wrap(err, "unable to create file for cpu profile")
			}
			pprof.StartCPUProfile(file)
		}
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		return nil
	}

	app.After = func(ctx *cli.Context) error {
		if ctx.GlobalIsSet("cpuprofile") {
			pprof.StopCPUProfile()
		}
		return nil
	}

	app.RunAndExitOnError()
}
