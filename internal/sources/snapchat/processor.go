// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package snapchat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"memoria/internal/ffmpeg"
	"memoria/internal/help"
	"memoria/internal/observability"
	"memoria/internal/overlay"
	"memoria/internal/registry"
)

// MessagesProcessor ingests the chat half of a Snapchat export:
// json/chat_history.json plus the chat_media directory.
type MessagesProcessor struct {
	runner     *ffmpeg.Runner
	selector   *ffmpeg.Selector
	compositor *overlay.Compositor
}

// NewMessages creates the chat processor. A nil runner disables video
// compositing; matched videos then fail into the triage tree.
func NewMessages(runner *ffmpeg.Runner, selector *ffmpeg.Selector) *MessagesProcessor {
	return &MessagesProcessor{runner: runner, selector: selector}
}

func (p *MessagesProcessor) Name() string                { return "snapchat-messages" }
func (p *MessagesProcessor) Priority() int               { return 70 }
func (p *MessagesProcessor) SupportsConsolidation() bool { return false }

// Detect requires both the chat history JSON and the media directory.
func (p *MessagesProcessor) Detect(inputDir string) bool {
	if _, err := os.Stat(filepath.Join(inputDir, "json", "chat_history.json")); err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(inputDir, "chat_media"))
	return err == nil && info.IsDir()
}

// GetProcessorInfo implements help.Provider.
func (p *MessagesProcessor) GetProcessorInfo() help.ProcessorInfo {
	return help.ProcessorInfo{
		Name:             p.Name(),
		ShortDescription: "Snapchat chat history with chat_media attachments",
		DetailedDescription: "Processes the chat half of a Snapchat data export. Media is " +
			"matched to messages by embedded media ID, then by message timestamp. Transparent " +
			"overlays are composited onto their videos when the filesystem-timestamp pairing " +
			"is unambiguous; ambiguous groups land in needs_matching/ for manual review.",
		InputLayout: []string{
			"{export}/json/chat_history.json",
			"{export}/chat_media/b~{media-id}.jpg",
			"{export}/chat_media/media~{uuid}.mp4",
			"{export}/chat_media/overlay~{uuid}.png",
		},
		Priority: p.Priority(),
		Examples: []string{"memoria ~/Downloads/mydata -o ./archive --processor snapchat-messages"},
	}
}

// Process runs the messages pipeline for one export.
func (p *MessagesProcessor) Process(ctx context.Context, inputDir, outputDir string, opts registry.Options) error {
	log, err := observability.NewRunLogger(outputDir, opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info().Str("input", inputDir).Str("output", outputDir).Msg("snapchat messages run starting")

	p.compositor = buildCompositor(ctx, p.runner, p.selector, opts, log)
	if err := p.preprocessMessages(ctx, inputDir, outputDir, opts.Workers, opts.ExtraBannedPatterns, log.Logger); err != nil {
		return fmt.Errorf("snapchat-messages preprocess: %w", err)
	}
	return nil
}

// MemoriesProcessor ingests the pre-flattened memories archive of a
// Snapchat export.
type MemoriesProcessor struct {
	runner     *ffmpeg.Runner
	selector   *ffmpeg.Selector
	compositor *overlay.Compositor
}

// NewMemories creates the memories processor.
func NewMemories(runner *ffmpeg.Runner, selector *ffmpeg.Selector) *MemoriesProcessor {
	return &MemoriesProcessor{runner: runner, selector: selector}
}

func (p *MemoriesProcessor) Name() string                { return "snapchat-memories" }
func (p *MemoriesProcessor) Priority() int               { return 69 }
func (p *MemoriesProcessor) SupportsConsolidation() bool { return false }

// Detect requires the memories directory with its metadata array.
func (p *MemoriesProcessor) Detect(inputDir string) bool {
	_, err := os.Stat(filepath.Join(inputDir, "memories", "metadata.json"))
	return err == nil
}

// GetProcessorInfo implements help.Provider.
func (p *MemoriesProcessor) GetProcessorInfo() help.ProcessorInfo {
	return help.ProcessorInfo{
		Name:             p.Name(),
		ShortDescription: "Snapchat memories archive with overlay compositing",
		DetailedDescription: "Processes a flattened Snapchat memories archive: a metadata " +
			"array pairing each saved snap with its optional overlay. Image overlays are " +
			"flattened into JPEGs, video overlays are composited into dual-track MKVs that " +
			"keep the clean original alongside the overlaid render.",
		InputLayout: []string{
			"{export}/memories/metadata.json",
			"{export}/memories/2020-06-01_{md5}.mp4",
			"{export}/memories/2020-06-01_{md5}_overlay.png",
		},
		Priority: p.Priority(),
		Examples: []string{"memoria ~/Downloads/mydata -o ./archive --processor snapchat-memories"},
	}
}

// Process runs the memories pipeline for one export.
func (p *MemoriesProcessor) Process(ctx context.Context, inputDir, outputDir string, opts registry.Options) error {
	log, err := observability.NewRunLogger(outputDir, opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info().Str("input", inputDir).Str("output", outputDir).Msg("snapchat memories run starting")

	p.compositor = buildCompositor(ctx, p.runner, p.selector, opts, log)
	if err := p.preprocessMemories(ctx, inputDir, outputDir, opts.ExtraBannedPatterns, log.Logger); err != nil {
		return fmt.Errorf("snapchat-memories preprocess: %w", err)
	}
	return nil
}

// buildCompositor wires the overlay pipeline against the run's ffmpeg
// tooling, honoring a forced encoder when one is set.
func buildCompositor(ctx context.Context, runner *ffmpeg.Runner, selector *ffmpeg.Selector, opts registry.Options, log *observability.RunLogger) *overlay.Compositor {
	if runner == nil || selector == nil {
		return nil
	}
	if opts.ForceEncoder != "" {
		selector.ForceProfile(ctx, opts.ForceEncoder)
	}
	return overlay.NewCompositor(runner, selector, log.Logger)
}
