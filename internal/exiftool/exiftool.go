// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package exiftool writes canonical metadata into file headers through
// the external exiftool binary. All writes for a processor pass are
// submitted in batch chunks to amortize the tool's startup cost.
package exiftool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Defaults for batch submission.
const (
	DefaultChunkSize = 500
	DefaultTimeout   = 5 * time.Minute
)

// FileTags is one file's pending tag writes.
type FileTags struct {
	Path string
	// Tags maps exiftool tag names (e.g. "DateTimeOriginal",
	// "XMP:Description") to their values.
	Tags map[string]string
}

// Failure is a per-file write error surfaced from the batch output.
type Failure struct {
	Path    string
	Message string
}

// Writer batches tag writes into chunked exiftool invocations.
type Writer struct {
	// Bin overrides the exiftool binary on PATH.
	Bin string
	// ChunkSize bounds files per invocation; 0 means DefaultChunkSize.
	ChunkSize int
	// Timeout is the per-chunk hard timeout; 0 means DefaultTimeout.
	Timeout time.Duration

	Log zerolog.Logger
}

// NewWriter creates a batch writer for the given binary path.
func NewWriter(bin string, log zerolog.Logger) *Writer {
	if bin == "" {
		bin = "exiftool"
	}
	return &Writer{Bin: bin, Log: log}
}

// Available reports whether the exiftool binary can be found.
func (w *Writer) Available() bool {
	_, err := exec.LookPath(w.Bin)
	return err == nil
}

// WriteBatch submits every file's tags in argfile chunks. Per-file
// failures are returned; they do not abort the remaining chunks.
func (w *Writer) WriteBatch(ctx context.Context, files []FileTags) []Failure {
	chunkSize := w.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var failures []Failure
	for start := 0; start < len(files); start += chunkSize {
		end := start + chunkSize
		if end > len(files) {
			end = len(files)
		}
		failures = append(failures, w.runChunk(ctx, files[start:end])...)
	}
	return failures
}

// runChunk feeds one argfile to a single exiftool process over stdin.
// Each file gets its own -execute block so one unwritable file cannot
// poison the rest of the chunk.
func (w *Writer) runChunk(ctx context.Context, files []FileTags) []Failure {
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var argfile bytes.Buffer
	for _, f := range files {
		argfile.WriteString("-overwrite_original\n-m\n-q\n")
		for _, tag := range sortedTags(f.Tags) {
			fmt.Fprintf(&argfile, "-%s=%s\n", tag, f.Tags[tag])
		}
		argfile.WriteString(f.Path + "\n-execute\n")
	}

	cmd := exec.CommandContext(ctx, w.Bin, "-@", "-")
	cmd.Stdin = &argfile
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	failures := parseErrors(stderr.String())
	if err != nil && len(failures) == 0 {
		// The whole chunk failed without per-file diagnostics.
		for _, f := range files {
			failures = append(failures, Failure{Path: f.Path, Message: err.Error()})
		}
	}
	if len(failures) > 0 {
		w.Log.Warn().Int("failures", len(failures)).Msg("exiftool batch completed with errors")
	}
	return failures
}

// parseErrors extracts per-file failures from exiftool stderr lines of
// the form "Error: <message> - <path>".
func parseErrors(stderr string) []Failure {
	var out []Failure
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Error:") {
			continue
		}
		msg := strings.TrimSpace(strings.TrimPrefix(line, "Error:"))
		path := ""
		if idx := strings.LastIndex(msg, " - "); idx >= 0 {
			path = msg[idx+3:]
			msg = msg[:idx]
		}
		out = append(out, Failure{Path: path, Message: msg})
	}
	return out
}

func sortedTags(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
