// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the ordered set of source processors and the
// detect-and-dispatch contract over an input directory.
package registry

import (
	"context"
	"fmt"
	"sort"
)

// Options carries run-wide settings into a processor.
type Options struct {
	// Workers bounds the per-processor worker pool; 0 means
	// max(1, NumCPU-1).
	Workers int
	// Verbose raises run-log verbosity to debug.
	Verbose bool
	// SkipUpload disables post-processing upload hand-off.
	SkipUpload bool
	// ExtraBannedPatterns are contributed to the banned-path filter.
	ExtraBannedPatterns []string
	// FFmpegPath, FFprobePath and ExifToolPath override the binaries
	// found on PATH.
	FFmpegPath   string
	FFprobePath  string
	ExifToolPath string
	// ForceEncoder pins the encoder selection, bypassing the probe.
	ForceEncoder string
}

// Processor is one per-source ingestion pipeline.
type Processor interface {
	// Name is the stable identifier used by --processor.
	Name() string
	// Priority orders detection; higher runs first.
	Priority() int
	// Detect reports whether inputDir looks like this source's export.
	Detect(inputDir string) bool
	// Process runs the full pipeline (preprocess + finalize) for one
	// export, writing into outputDir.
	Process(ctx context.Context, inputDir, outputDir string, opts Options) error
	// SupportsConsolidation reports whether the processor tolerates
	// multiple invocations with different input roots writing into the
	// same output directory.
	SupportsConsolidation() bool
}

// Registry is a priority-ordered processor list.
type Registry struct {
	processors []Processor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{}
}

// Register adds a processor.
func (r *Registry) Register(p Processor) {
	r.processors = append(r.processors, p)
}

// All returns every registered processor sorted by priority descending.
func (r *Registry) All() []Processor {
	out := make([]Processor, len(r.processors))
	copy(out, r.processors)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority() > out[j].Priority()
	})
	return out
}

// DetectAll returns every processor whose Detect accepts inputDir,
// sorted by priority descending.
func (r *Registry) DetectAll(inputDir string) []Processor {
	var matched []Processor
	for _, p := range r.All() {
		if p.Detect(inputDir) {
			matched = append(matched, p)
		}
	}
	return matched
}

// Get returns the processor with the given name.
func (r *Registry) Get(name string) (Processor, error) {
	for _, p := range r.processors {
		if p.Name() == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown processor %q", name)
}
