// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package observability provides the per-run logger. Every preprocessor
// run writes a human-readable preprocessing.log into its output
// directory; verbose runs mirror debug-level lines to the console.
package observability

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// RunLogger is a zerolog logger bound to one preprocessor run plus the
// close handle for its log file.
type RunLogger struct {
	zerolog.Logger
	file *os.File
}

// NewRunLogger opens {outputDir}/preprocessing.log and returns a logger
// writing line-oriented text there and to stderr. The log file carries
// every level; the console is quieter unless verbose is set.
func NewRunLogger(outputDir string, verbose bool) (*RunLogger, error) {
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(outputDir, "preprocessing.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nil, err
	}

	fileWriter := zerolog.ConsoleWriter{
		Out:        f,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}
	consoleLevel := zerolog.InfoLevel
	if verbose {
		consoleLevel = zerolog.DebugLevel
	}
	consoleWriter := &leveledWriter{
		w: zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
		},
		min: consoleLevel,
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(fileWriter, consoleWriter)).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()

	return &RunLogger{Logger: logger, file: f}, nil
}

// Close flushes and closes the underlying log file.
func (r *RunLogger) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Discard returns a logger that drops everything, for tests and for
// components constructed before a run directory exists.
func Discard() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// StartTiming returns a completion function that logs the operation's
// duration and outcome.
func StartTiming(log zerolog.Logger, component, operation string) func(success bool) {
	start := time.Now()
	return func(success bool) {
		log.Debug().
			Str("component", component).
			Str("operation", operation).
			Dur("duration", time.Since(start)).
			Bool("success", success).
			Msg("operation complete")
	}
}

// leveledWriter forwards only events at or above min.
type leveledWriter struct {
	w   zerolog.ConsoleWriter
	min zerolog.Level
}

func (l *leveledWriter) Write(p []byte) (int, error) {
	return l.w.Write(p)
}

func (l *leveledWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < l.min {
		return len(p), nil
	}
	return l.w.Write(p)
}
