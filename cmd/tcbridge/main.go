// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command tcbridge runs the bridge and traffic-control controller.
package main

import (
	"flag"
	"fmt"
	"os"

	"grimm.is/tcbridge/cmd"
	"grimm.is/tcbridge/internal/brand"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (HCL, JSON or YAML)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-config path] serve|check|migrate|version\n", brand.BinaryName)
		flag.PrintDefaults()
	}
	flag.Parse()

	subcmd := "serve"
	if flag.NArg() > 0 {
		subcmd = flag.Arg(0)
	}

	var err error
	switch subcmd {
	case "serve":
		err = cmd.RunServe(*configPath)
	case "check":
		err = cmd.RunCheck(*configPath)
	case "migrate":
		err = cmd.RunMigrate(*configPath)
	case "version":
		cmd.RunVersion()
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
