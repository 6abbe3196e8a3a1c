// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"grimm.is/tcbridge/internal/brand"
	"grimm.is/tcbridge/internal/config"
)

// RunMigrate stamps an HCL config with the current schema version in place,
// keeping a .bak copy of the original.
func RunMigrate(configFile string) error {
	if configFile == "" {
		configFile = brand.DefaultConfigPath()
	}
	if ext := strings.ToLower(filepath.Ext(configFile)); ext != ".hcl" {
		return fmt.Errorf("only HCL configs can be migrated, got %s", configFile)
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	out, changed, err := config.MigrateHCL(data, configFile)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if !changed {
		Printer.Printf("%s is already at schema version %s\n", configFile, config.CurrentSchemaVersion)
		return nil
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(data)),
		B:        difflib.SplitLines(string(out)),
		FromFile: configFile,
		ToFile:   configFile + " (migrated)",
		Context:  3,
	}
	if text, err := difflib.GetUnifiedDiffString(diff); err == nil {
		Printer.Printf("%s", text)
	}

	info, err := os.Stat(configFile)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configFile+".bak", data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if err := os.WriteFile(configFile, out, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	Printer.Printf("Migrated %s to schema version %s (backup: %s.bak)\n",
		configFile, config.CurrentSchemaVersion, configFile)
	return nil
}
