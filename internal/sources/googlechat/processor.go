// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlechat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"memoria/internal/help"
	"memoria/internal/observability"
	"memoria/internal/registry"
)

// Processor ingests Google Chat Takeout exports.
type Processor struct{}

// New creates the processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Name() string                { return "google-chat" }
func (p *Processor) Priority() int               { return 75 }
func (p *Processor) SupportsConsolidation() bool { return false }

// Detect requires the Groups directory; a Google Chat export without
// it holds no conversations.
func (p *Processor) Detect(inputDir string) bool {
	return findChatRoot(inputDir) != ""
}

// GetProcessorInfo implements help.Provider.
func (p *Processor) GetProcessorInfo() help.ProcessorInfo {
	return help.ProcessorInfo{
		Name:             p.Name(),
		ShortDescription: "Google Chat Takeout groups with attached media",
		DetailedDescription: "Processes Google Chat Takeout exports: per-group directories " +
			"holding messages.json and the attachment files the messages reference. Bridges " +
			"the exporter's filename rewrites and truncation, resolves DM titles from the " +
			"group membership, and deduplicates attachments across groups.",
		InputLayout: []string{
			"Takeout/Google Chat/Groups/DM {id}/messages.json",
			"Takeout/Google Chat/Groups/DM {id}/{attachment}",
			"Takeout/Google Chat/Users/{user}/user_info.json",
		},
		Priority: p.Priority(),
		Examples: []string{"memoria ~/Downloads/Takeout -o ./archive --processor google-chat"},
	}
}

// Process runs the pipeline for one export.
func (p *Processor) Process(ctx context.Context, inputDir, outputDir string, opts registry.Options) error {
	chatRoot := findChatRoot(inputDir)
	if chatRoot == "" {
		return fmt.Errorf("no Google Chat directory under %s", inputDir)
	}

	log, err := observability.NewRunLogger(outputDir, opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info().Str("input", chatRoot).Str("output", outputDir).Msg("google chat run starting")

	if err := p.preprocessRun(ctx, chatRoot, outputDir, opts.Workers, opts.ExtraBannedPatterns, log.Logger); err != nil {
		return fmt.Errorf("google-chat preprocess: %w", err)
	}
	return nil
}

// findChatRoot locates a Google Chat directory that has Groups.
func findChatRoot(inputDir string) string {
	candidates := []string{
		filepath.Join(inputDir, "Takeout", "Google Chat"),
		filepath.Join(inputDir, "Google Chat"),
		inputDir,
	}
	for _, c := range candidates {
		if info, err := os.Stat(filepath.Join(c, "Groups")); err == nil && info.IsDir() {
			return c
		}
	}
	return ""
}
