// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional memoria configuration file and
// applies defaults. Flags override everything found here.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	// Default settings
	Defaults struct {
		OutputDir       string   `yaml:"output_dir"`
		Workers         int      `yaml:"workers"`
		Verbose         bool     `yaml:"verbose"`
		NoColor         bool     `yaml:"no_color"`
		SkipUpload      bool     `yaml:"skip_upload"`
		ExcludePatterns []string `yaml:"exclude_patterns"`
	} `yaml:"defaults"`

	// External tool locations and encoder pinning
	Tools struct {
		FFmpeg   string `yaml:"ffmpeg"`
		FFprobe  string `yaml:"ffprobe"`
		ExifTool string `yaml:"exiftool"`
		Encoder  string `yaml:"encoder"`
	} `yaml:"tools"`

	// Processors enables or disables individual processors by name.
	// Absent processors are enabled.
	Processors map[string]bool `yaml:"processors"`
}

// LoadConfig loads configuration from the specified file path. An empty
// path returns the defaults.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{
		Processors: make(map[string]bool),
	}
	config.Defaults.OutputDir = "./memoria-output"

	if configPath == "" {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	if config.Processors == nil {
		config.Processors = make(map[string]bool)
	}
	if config.Defaults.OutputDir == "" {
		config.Defaults.OutputDir = "./memoria-output"
	}
	return config, nil
}

// FindConfigFile returns the first config file found in the standard
// locations, or empty when none exists.
func FindConfigFile() string {
	candidates := []string{".memoria.yaml", ".memoria.yml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".config", "memoria", "config.yaml"),
			filepath.Join(home, ".memoria.yaml"),
		)
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// ProcessorEnabled reports whether a processor is enabled by the
// configuration.
func (c *Config) ProcessorEnabled(name string) bool {
	enabled, ok := c.Processors[name]
	if !ok {
		return true
	}
	return enabled
}
