// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Defaults.OutputDir != "./memoria-output" {
		t.Errorf("OutputDir = %q", cfg.Defaults.OutputDir)
	}
	if !cfg.ProcessorEnabled("discord") {
		t.Error("processors should default to enabled")
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
defaults:
  workers: 4
  exclude_patterns:
    - "@custom_dir"
tools:
  ffmpeg: /opt/ffmpeg/bin/ffmpeg
  encoder: libx265
processors:
  discord: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Defaults.Workers != 4 {
		t.Errorf("Workers = %d, want 4", cfg.Defaults.Workers)
	}
	if len(cfg.Defaults.ExcludePatterns) != 1 || cfg.Defaults.ExcludePatterns[0] != "@custom_dir" {
		t.Errorf("ExcludePatterns = %v", cfg.Defaults.ExcludePatterns)
	}
	if cfg.Tools.FFmpeg != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("FFmpeg = %q", cfg.Tools.FFmpeg)
	}
	if cfg.ProcessorEnabled("discord") {
		t.Error("discord should be disabled")
	}
	if !cfg.ProcessorEnabled("google-photos") {
		t.Error("unlisted processor should be enabled")
	}
}

func TestLoadConfig_Missing(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}
