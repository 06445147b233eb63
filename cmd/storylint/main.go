package main

import (
	"flag"
	"os"

	storylintcmd "github.com/laborio/questing-together/internal/cmd/storylint"
	"github.com/laborio/questing-together/internal/platform/config"
)

func main() {
	cfg, err := storylintcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := storylintcmd.Run(cfg, os.Stdout, os.Stderr); err != nil {
		config.Exitf("%v", err)
	}
}
