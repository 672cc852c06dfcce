// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlephotos

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"memoria/internal/exiftool"
	"memoria/internal/help"
	"memoria/internal/observability"
	"memoria/internal/preprocess"
	"memoria/internal/registry"
)

// Processor ingests Google Photos Takeout exports.
type Processor struct{}

// New creates the processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Name() string                { return "google-photos" }
func (p *Processor) Priority() int               { return 80 }
func (p *Processor) SupportsConsolidation() bool { return false }

// Detect looks for a Google Photos directory in the usual Takeout
// locations, or album directories with sidecar JSON at the root.
func (p *Processor) Detect(inputDir string) bool {
	return findPhotosRoot(inputDir) != ""
}

// GetProcessorInfo implements help.Provider.
func (p *Processor) GetProcessorInfo() help.ProcessorInfo {
	return help.ProcessorInfo{
		Name:             p.Name(),
		ShortDescription: "Google Photos Takeout albums with sidecar JSON",
		DetailedDescription: "Processes Google Photos Takeout exports: album directories " +
			"containing media files and per-file supplemental metadata JSON. Bridges the " +
			"exporter's many sidecar naming conventions, deduplicates identical files " +
			"across albums, and embeds capture time, location, description and people tags.",
		InputLayout: []string{
			"Takeout/Google Photos/{album}/IMG_0001.JPG",
			"Takeout/Google Photos/{album}/IMG_0001.JPG.supplemental-metadata.json",
			"Takeout/Google Photos/{album}/metadata.json",
		},
		Priority: p.Priority(),
		Examples: []string{"memoria ~/Downloads/Takeout -o ./archive"},
	}
}

// Process runs preprocessing and finalization for one export.
func (p *Processor) Process(ctx context.Context, inputDir, outputDir string, opts registry.Options) error {
	photosRoot := findPhotosRoot(inputDir)
	if photosRoot == "" {
		return fmt.Errorf("no Google Photos directory under %s", inputDir)
	}

	log, err := observability.NewRunLogger(outputDir, opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info().Str("input", photosRoot).Str("output", outputDir).Msg("google photos run starting")

	result, err := p.preprocessRun(ctx, photosRoot, outputDir, opts.Workers, opts.ExtraBannedPatterns, log.Logger)
	if err != nil {
		return fmt.Errorf("google-photos preprocess: %w", err)
	}
	return p.finalize(ctx, outputDir, result, opts.ExifToolPath, log.Logger)
}

// finalize renames output files with a date prefix, embeds canonical
// metadata through exiftool in batch, and aligns filesystem timestamps.
func (p *Processor) finalize(ctx context.Context, outputDir string, result *preprocessResult, exifBin string, log zerolog.Logger) error {
	mediaDir := filepath.Join(outputDir, "media")
	writer := exiftool.NewWriter(exifBin, log)
	haveExiftool := writer.Available()
	if !haveExiftool {
		log.Warn().Msg("exiftool not found, skipping metadata embedding")
	}

	var batch []exiftool.FileTags
	for _, entry := range result.doc.MediaFiles {
		oldPath := filepath.Join(mediaDir, entry.FileName)
		newName := entry.taken.UTC().Format("2006-01-02_15-04-05") + "_" + entry.FileName
		newPath := filepath.Join(mediaDir, newName)
		if err := os.Rename(oldPath, newPath); err != nil {
			log.Warn().Err(err).Str("file", entry.FileName).Msg("rename failed")
			newPath = oldPath
			newName = entry.FileName
		}
		entry.FileName = newName

		if !haveExiftool {
			continue
		}
		tags := exiftool.DateTags(entry.taken)
		if entry.GeoData.Valid() {
			tags = exiftool.Merge(tags, exiftool.GPSTags(entry.GeoData.Latitude, entry.GeoData.Longitude))
		}
		if entry.Description != "" {
			tags = exiftool.Merge(tags, exiftool.DescriptionTag(entry.Description))
		}
		tags = exiftool.Merge(tags, exiftool.PeopleTags(entry.People))
		batch = append(batch, exiftool.FileTags{Path: newPath, Tags: tags})
	}

	if haveExiftool {
		for _, f := range writer.WriteBatch(ctx, batch) {
			log.Warn().Str("file", f.Path).Str("error", f.Message).Msg("exiftool write failed")
		}
	}

	for _, entry := range result.doc.MediaFiles {
		path := filepath.Join(mediaDir, entry.FileName)
		if err := os.Chtimes(path, entry.taken, entry.taken); err != nil {
			log.Debug().Err(err).Str("file", entry.FileName).Msg("utime failed")
		}
	}

	// Re-emit so metadata.json reflects the final filenames.
	return preprocess.WriteMetadata(outputDir, result.doc)
}

// findPhotosRoot locates the Google Photos directory for an input tree.
func findPhotosRoot(inputDir string) string {
	candidates := []string{
		filepath.Join(inputDir, "Takeout", "Google Photos"),
		filepath.Join(inputDir, "Google Photos"),
		filepath.Join(inputDir, "Takeout", "Google Fotos"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	if hasSidecars(inputDir) {
		return inputDir
	}
	return ""
}

// hasSidecars reports whether any first- or second-level JSON file
// looks like a per-media sidecar.
func hasSidecars(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			if isSidecarName(e.Name()) {
				return true
			}
			continue
		}
		sub, err := os.ReadDir(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		for _, s := range sub {
			if !s.IsDir() && isSidecarName(s.Name()) {
				return true
			}
		}
	}
	return false
}

func isSidecarName(name string) bool {
	if !isJSON(name) {
		return false
	}
	mediaName, _, ok := parseSidecarName(name)
	// A sidecar references a media filename with its own extension.
	return ok && filepath.Ext(mediaName) != ""
}

func isJSON(name string) bool {
	return filepath.Ext(name) == ".json" || filepath.Ext(name) == ".JSON"
}
