// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"fmt"

	"memoria/internal/help"
	"memoria/internal/observability"
	"memoria/internal/registry"
)

// Processor ingests Discord data packages.
type Processor struct {
	downloader *Downloader
}

// New creates the processor with the default rate-limited downloader.
func New() *Processor {
	return &Processor{downloader: NewDownloader(downloadRate)}
}

func (p *Processor) Name() string                { return "discord" }
func (p *Processor) Priority() int               { return 60 }
func (p *Processor) SupportsConsolidation() bool { return false }

// Detect looks for the Messages/index.json of a data package.
func (p *Processor) Detect(inputDir string) bool {
	return findMessagesRoot(inputDir) != ""
}

// GetProcessorInfo implements help.Provider.
func (p *Processor) GetProcessorInfo() help.ProcessorInfo {
	return help.ProcessorInfo{
		Name:             p.Name(),
		ShortDescription: "Discord data packages with CDN-hosted attachments",
		DetailedDescription: "Processes Discord data packages: per-channel message logs " +
			"whose attachments live on Discord's CDN. Downloads attachments with rate " +
			"limiting and retries, treats expired links as unrecoverable, deduplicates " +
			"identical files across channels, and records page counts for PDF documents.",
		InputLayout: []string{
			"{package}/Messages/index.json",
			"{package}/Messages/c{channel-id}/channel.json",
			"{package}/Messages/c{channel-id}/messages.json",
		},
		Priority: p.Priority(),
		Examples: []string{"memoria ~/Downloads/discord-package -o ./archive --processor discord"},
	}
}

// Process runs the pipeline for one data package.
func (p *Processor) Process(ctx context.Context, inputDir, outputDir string, opts registry.Options) error {
	messagesRoot := findMessagesRoot(inputDir)
	if messagesRoot == "" {
		return fmt.Errorf("no Messages directory under %s", inputDir)
	}

	log, err := observability.NewRunLogger(outputDir, opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info().Str("input", messagesRoot).Str("output", outputDir).Msg("discord run starting")

	if err := p.preprocessRun(ctx, messagesRoot, outputDir, opts.Workers, log.Logger); err != nil {
		return fmt.Errorf("discord preprocess: %w", err)
	}
	return nil
}
