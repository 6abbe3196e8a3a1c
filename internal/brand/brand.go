// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package brand provides centralized naming constants.
//
// The identity is loaded from brand.json at compile time via go:embed so
// scripts and packaging can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name             string `json:"name"`
	LowerName        string `json:"lowerName"`
	Description      string `json:"description"`
	ConfigEnvPrefix  string `json:"configEnvPrefix"`
	DefaultConfigDir string `json:"defaultConfigDir"`
	BinaryName       string `json:"binaryName"`
	ConfigFileName   string `json:"configFileName"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
}

var (
	Name            string
	LowerName       string
	Description     string
	ConfigEnvPrefix string
	BinaryName      string
	ConfigFileName  string

	// Version is set at build time via -ldflags
	Version   = "dev"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns a product/version string for the Server header.
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return LowerName + "/" + version
}

// Env returns the value of PREFIX_<suffix>, e.g. Env("CONFIG") reads TCBRIDGE_CONFIG.
func Env(suffix string) string {
	return os.Getenv(ConfigEnvPrefix + "_" + suffix)
}

// DefaultConfigPath returns the config path, checking env vars first.
// Priority: TCBRIDGE_CONFIG > <defaultConfigDir>/<configFileName>
func DefaultConfigPath() string {
	if p := Env("CONFIG"); p != "" {
		return p
	}
	return filepath.Join(b.DefaultConfigDir, b.ConfigFileName)
}
