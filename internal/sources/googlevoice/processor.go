// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlevoice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"memoria/internal/help"
	"memoria/internal/observability"
	"memoria/internal/registry"
)

// Processor ingests Google Voice Takeout exports.
type Processor struct{}

// New creates the processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Name() string                { return "google-voice" }
func (p *Processor) Priority() int               { return 74 }
func (p *Processor) SupportsConsolidation() bool { return false }

// Detect looks for the Voice/Calls directory.
func (p *Processor) Detect(inputDir string) bool {
	return findCallsDir(inputDir) != ""
}

// GetProcessorInfo implements help.Provider.
func (p *Processor) GetProcessorInfo() help.ProcessorInfo {
	return help.ProcessorInfo{
		Name:             p.Name(),
		ShortDescription: "Google Voice call and text transcripts with MMS media",
		DetailedDescription: "Processes Google Voice Takeout exports: per-thread HTML " +
			"transcripts under Voice/Calls plus the MMS images, voicemail audio and " +
			"contact cards they reference. Bridges reference names that drop the on-disk " +
			"extension or pick up counter suffixes, and groups threads per contact.",
		InputLayout: []string{
			"Takeout/Voice/Calls/{contact} - Text - {timestamp}.html",
			"Takeout/Voice/Calls/{contact} - Text - {timestamp}.jpg",
			"Takeout/Voice/Calls/{contact} - Voicemail - {timestamp}.mp3",
		},
		Priority: p.Priority(),
		Examples: []string{"memoria ~/Downloads/Takeout -o ./archive --processor google-voice"},
	}
}

// Process runs the pipeline for one export.
func (p *Processor) Process(ctx context.Context, inputDir, outputDir string, opts registry.Options) error {
	callsDir := findCallsDir(inputDir)
	if callsDir == "" {
		return fmt.Errorf("no Voice/Calls directory under %s", inputDir)
	}

	log, err := observability.NewRunLogger(outputDir, opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info().Str("input", callsDir).Str("output", outputDir).Msg("google voice run starting")

	if err := p.preprocessRun(ctx, callsDir, outputDir, opts.Workers, opts.ExtraBannedPatterns, log.Logger); err != nil {
		return fmt.Errorf("google-voice preprocess: %w", err)
	}
	return nil
}

// findCallsDir locates the Calls directory for an input tree.
func findCallsDir(inputDir string) string {
	candidates := []string{
		filepath.Join(inputDir, "Takeout", "Voice", "Calls"),
		filepath.Join(inputDir, "Voice", "Calls"),
		filepath.Join(inputDir, "Calls"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return ""
}
