// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package instagram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"memoria/internal/exiftool"
	"memoria/internal/help"
	"memoria/internal/observability"
	"memoria/internal/registry"
)

// Processor ingests Instagram data exports.
type Processor struct{}

// New creates the processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Name() string                { return "instagram" }
func (p *Processor) Priority() int               { return 72 }
func (p *Processor) SupportsConsolidation() bool { return false }

// Detect accepts either export generation: the current
// your_instagram_activity tree or the legacy flat layout.
func (p *Processor) Detect(inputDir string) bool {
	if findInboxRoot(inputDir) != "" {
		return true
	}
	return len(publicMediaFiles(inputDir)) > 0
}

// GetProcessorInfo implements help.Provider.
func (p *Processor) GetProcessorInfo() help.ProcessorInfo {
	return help.ProcessorInfo{
		Name:             p.Name(),
		ShortDescription: "Instagram message inbox and public media exports",
		DetailedDescription: "Processes Instagram data exports in both the current " +
			"your_instagram_activity layout and the legacy flat layout: direct-message " +
			"conversations with their photo, video and audio attachments, plus public " +
			"posts, stories and profile photos with captions and location metadata.",
		InputLayout: []string{
			"your_instagram_activity/messages/inbox/{conversation}/message_1.html",
			"your_instagram_activity/messages/inbox/{conversation}/photos/{file}.jpg",
			"your_instagram_activity/media/posts_1.html",
		},
		Priority: p.Priority(),
		Examples: []string{"memoria ~/Downloads/instagram-export -o ./archive"},
	}
}

// Process runs preprocessing and finalization for one export.
func (p *Processor) Process(ctx context.Context, inputDir, outputDir string, opts registry.Options) error {
	log, err := observability.NewRunLogger(outputDir, opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info().Str("input", inputDir).Str("output", outputDir).Msg("instagram run starting")

	result, err := p.preprocessRun(ctx, inputDir, outputDir, opts.Workers, opts.ExtraBannedPatterns, log.Logger)
	if err != nil {
		return fmt.Errorf("instagram preprocess: %w", err)
	}
	return p.finalize(ctx, outputDir, result, opts.ExifToolPath, log.Logger)
}

// finalize embeds capture time, caption and coordinates into the
// copied files and aligns filesystem timestamps.
func (p *Processor) finalize(ctx context.Context, outputDir string, result *preprocessResult, exifBin string, log zerolog.Logger) error {
	writer := exiftool.NewWriter(exifBin, log)
	if !writer.Available() {
		log.Warn().Msg("exiftool not found, skipping metadata embedding")
		return nil
	}
	mediaDir := filepath.Join(outputDir, "media")

	var batch []exiftool.FileTags
	for _, m := range result.matched {
		if m.OutputName == "" {
			continue
		}
		ref := m.Metadata.(*itemRef)
		when := ref.when()
		if when.IsZero() {
			continue
		}
		tags := exiftool.DateTags(when)
		if post := ref.Post; post != nil {
			if post.HasGPS {
				tags = exiftool.Merge(tags, exiftool.GPSTags(post.Latitude, post.Longitude))
			}
			if post.Caption != "" {
				tags = exiftool.Merge(tags, exiftool.DescriptionTag(post.Caption))
			}
		}
		path := filepath.Join(mediaDir, m.OutputName)
		batch = append(batch, exiftool.FileTags{Path: path, Tags: tags})
	}
	for _, f := range writer.WriteBatch(ctx, batch) {
		log.Warn().Str("file", f.Path).Str("error", f.Message).Msg("exiftool write failed")
	}

	for _, m := range result.matched {
		if m.OutputName == "" {
			continue
		}
		when := m.Metadata.(*itemRef).when()
		if when.IsZero() {
			continue
		}
		path := filepath.Join(mediaDir, m.OutputName)
		if err := os.Chtimes(path, when, when); err != nil {
			log.Debug().Err(err).Str("file", m.OutputName).Msg("utime failed")
		}
	}
	return nil
}
