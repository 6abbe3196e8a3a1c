// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"grimm.is/tcbridge/internal/brand"
	"grimm.is/tcbridge/internal/cmdexec"
	"grimm.is/tcbridge/internal/config"
)

// RequiredTools are the external programs the managers shell out to.
var RequiredTools = []string{"ip", "tc", "brctl"}

// lookTools is swapped in tests.
var lookTools = cmdexec.CheckTools

// RunCheck validates the configuration (when present) and reports which
// required tools are missing. brctl is optional: membership discovery falls
// back to ip when it is absent.
func RunCheck(configFile string) error {
	if configFile == "" {
		configFile = brand.DefaultConfigPath()
	}

	Printer.Printf("Validating configuration: %s\n", configFile)
	res, found, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if !found {
		Printer.Println("Configuration file not found, defaults apply.")
	} else {
		for _, w := range res.Warnings {
			Printer.Printf("  warning: %s\n", w)
		}
		Printer.Println("Configuration is valid.")
	}

	missing := lookTools(RequiredTools...)
	for _, tool := range RequiredTools {
		state := "ok"
		if slices.Contains(missing, tool) {
			state = "missing"
		}
		Printer.Printf("  %-6s %s\n", tool, state)
	}

	var fatal []string
	for _, tool := range missing {
		if tool != "brctl" {
			fatal = append(fatal, tool)
		}
	}
	if len(fatal) > 0 {
		return fmt.Errorf("required tools not found on PATH: %s", strings.Join(fatal, ", "))
	}
	return nil
}

// RunVersion prints the build version.
func RunVersion() {
	Printer.Printf("%s %s (%s)\n", brand.BinaryName, brand.Version, brand.GitCommit)
}

// loadConfig loads path, or returns the defaults when the file does not exist.
func loadConfig(path string) (*config.LoadResult, bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &config.LoadResult{Config: config.Default()}, false, nil
	}
	res, err := config.LoadFileWithOptions(path, config.DefaultLoadOptions())
	if err != nil {
		return nil, true, err
	}
	return res, true, nil
}
