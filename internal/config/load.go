// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"gopkg.in/yaml.v3"

	"grimm.is/tcbridge/internal/errors"
)

// LoadOptions controls how configs are loaded
type LoadOptions struct {
	// StrictVersion fails if config version doesn't match current
	StrictVersion bool

	// AllowUnknownFields ignores unknown HCL and YAML fields
	AllowUnknownFields bool

	// SkipValidation returns the decoded config without calling Validate.
	SkipValidation bool
}

// DefaultLoadOptions returns sensible defaults for loading configs
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{}
}

// LoadResult contains the loaded config and metadata about the load
type LoadResult struct {
	Config   *Config
	Format   string
	Warnings []string
}

// LoadFile loads a config file (HCL, JSON or YAML) and applies defaults.
func LoadFile(path string) (*Config, error) {
	result, err := LoadFileWithOptions(path, DefaultLoadOptions())
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadOrDefault loads path if it exists and returns Default() otherwise.
// A file that exists but fails to parse is still an error.
func LoadOrDefault(path string) (*Config, bool, error) {
	if path == "" {
		return Default(), false, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), false, nil
	}
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// LoadFileWithOptions loads a config file with explicit options
func LoadFileWithOptions(path string, opts LoadOptions) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindNotFound, "failed to read config file %s", path)
	}

	var result *LoadResult
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".hcl":
		result, err = loadHCL(data, path, opts)
	case ".json":
		result, err = loadJSON(data)
	case ".yaml", ".yml":
		result, err = loadYAML(data, opts)
	default:
		// Try HCL first
		var hclErr, jsonErr error
		result, hclErr = loadHCL(data, path, opts)
		if hclErr != nil {
			result, jsonErr = loadJSON(data)
			if jsonErr != nil {
				err = errors.Wrapf(hclErr, errors.KindParseFailed,
					"failed to parse config as HCL (JSON fallback error: %v)", jsonErr)
			}
		}
	}
	if err != nil {
		return nil, err
	}

	return finish(result, opts)
}

// LoadHCL loads config from HCL bytes
func LoadHCL(data []byte, filename string) (*Config, error) {
	result, err := loadHCL(data, filename, DefaultLoadOptions())
	if err != nil {
		return nil, err
	}
	result, err = finish(result, DefaultLoadOptions())
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadJSON loads config from JSON bytes
func LoadJSON(data []byte) (*Config, error) {
	result, err := loadJSON(data)
	if err != nil {
		return nil, err
	}
	result, err = finish(result, DefaultLoadOptions())
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadYAML loads config from YAML bytes
func LoadYAML(data []byte) (*Config, error) {
	result, err := loadYAML(data, DefaultLoadOptions())
	if err != nil {
		return nil, err
	}
	result, err = finish(result, DefaultLoadOptions())
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

func loadHCL(data []byte, filename string, opts LoadOptions) (*LoadResult, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindParseFailed, "failed to parse HCL")
	}

	var cfg Config
	result := &LoadResult{Config: &cfg, Format: "hcl"}
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		if opts.AllowUnknownFields && strings.HasPrefix(diag.Summary, "Unsupported") {
			result.Warnings = append(result.Warnings, diag.Error())
			continue
		}
		return nil, errors.Wrap(diags, errors.KindParseFailed, "failed to decode HCL")
	}
	return result, nil
}

func loadJSON(data []byte) (*LoadResult, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindParseFailed, "failed to parse JSON")
	}
	return &LoadResult{Config: &cfg, Format: "json"}, nil
}

func loadYAML(data []byte, opts LoadOptions) (*LoadResult, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(!opts.AllowUnknownFields)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, errors.KindParseFailed, "failed to parse YAML")
	}
	return &LoadResult{Config: &cfg, Format: "yaml"}, nil
}

func finish(result *LoadResult, opts LoadOptions) (*LoadResult, error) {
	cfg := result.Config
	if cfg.SchemaVersion != "" && cfg.SchemaVersion != CurrentSchemaVersion {
		if opts.StrictVersion {
			return nil, errors.Errorf(errors.KindInvalidSpec,
				"config version %s does not match current version %s", cfg.SchemaVersion, CurrentSchemaVersion)
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("config version %s differs from current version %s", cfg.SchemaVersion, CurrentSchemaVersion))
	}

	cfg.ApplyDefaults()

	if !opts.SkipValidation {
		if errs := cfg.Validate(); errs.HasErrors() {
			return nil, errors.Wrap(errs, errors.KindInvalidSpec, "invalid configuration")
		}
	}
	return result, nil
}

// GenerateHCL renders cfg as formatted HCL.
func GenerateHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	gohcl.EncodeIntoBody(cfg, f.Body())
	return hclwrite.Format(f.Bytes())
}
