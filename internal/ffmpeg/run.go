// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package ffmpeg wraps the external video tools: bounded subprocess
// invocation, stream probing, and hardware encoder auto-detection.
package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// Default per-call timeouts. Probes are short; encodes get 5 minutes.
const (
	ProbeTimeout  = 10 * time.Second
	EncodeTimeout = 300 * time.Second
)

// stderrCap bounds how much tool stderr is retained for error
// classification and logging.
const stderrCap = 64 * 1024

// Runner invokes ffmpeg and ffprobe with hard per-call timeouts.
type Runner struct {
	FFmpegPath  string
	FFprobePath string
}

// NewRunner returns a runner using the given binary paths, defaulting
// to the binaries on PATH.
func NewRunner(ffmpegPath, ffprobePath string) *Runner {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Runner{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// ToolError is a non-zero exit from ffmpeg or ffprobe with the captured
// stderr tail attached for classification.
type ToolError struct {
	Tool   string
	Args   []string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Run executes ffmpeg with the given arguments. On failure the returned
// error is a *ToolError carrying the stderr tail.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args ...string) error {
	_, err := r.exec(ctx, r.FFmpegPath, timeout, args)
	return err
}

// Probe executes ffprobe and returns its stdout.
func (r *Runner) Probe(ctx context.Context, args ...string) ([]byte, error) {
	return r.exec(ctx, r.FFprobePath, ProbeTimeout, args)
}

func (r *Runner) exec(ctx context.Context, bin string, timeout time.Duration, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout bytes.Buffer
	stderr := newTailBuffer(stderrCap)
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &ToolError{
			Tool:   bin,
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}

// tailBuffer keeps the last cap bytes written, so long encodes cannot
// grow stderr without bound while the diagnostic tail survives.
type tailBuffer struct {
	cap int
	buf []byte
}

func newTailBuffer(capacity int) *tailBuffer {
	return &tailBuffer{cap: capacity}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.cap {
		t.buf = t.buf[len(t.buf)-t.cap:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
