// Package cliconfig loads optional YAML override files for the demo
// commands; their non-zero values take precedence over flag and
// environment-variable values.
package cliconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the shape of an optional --config YAML file. Zero-value fields
// leave the corresponding flag/env default untouched.
type File struct {
	Dest        string `yaml:"dest"`
	Bind        string `yaml:"bind"`
	Listen      string `yaml:"listen"`
	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     *bool  `yaml:"verbose"`
}

// Load reads and parses path. An empty path returns a zero File and no
// error, so callers may call Load whether or not --config was supplied.
func Load(path string) (File, error) {
	var f File
	if path == "" {
		return f, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("cliconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("cliconfig: parsing %s: %w", path, err)
	}
	return f, nil
}
