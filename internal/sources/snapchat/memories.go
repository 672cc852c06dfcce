// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package snapchat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"memoria/internal/checksum"
	"memoria/internal/failures"
	"memoria/internal/fileinspect"
	"memoria/internal/overlay"
	"memoria/internal/pathfilter"
	"memoria/internal/preprocess"
)

// memoryEntry is one record of the memories archive's metadata.json.
type memoryEntry struct {
	Date            string `json:"date"`
	MediaType       string `json:"media_type"`
	MediaFilename   string `json:"media_filename"`
	OverlayFilename string `json:"overlay_filename,omitempty"`

	date time.Time
}

// outMemory is the emitted per-memory shape.
type outMemory struct {
	Date       string `json:"date"`
	MediaType  string `json:"media_type"`
	FileName   string `json:"file_name"`
	HasOverlay bool   `json:"has_overlay"`
}

type memoriesDocument struct {
	ExportInfo    preprocess.ExportInfo `json:"export_info"`
	Memories      []outMemory           `json:"memories"`
	OrphanedMedia []string              `json:"orphaned_media"`
}

// jpegQuality for flattened image composites.
const jpegQuality = 95

func loadMemoryEntries(path string) ([]*memoryEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []*memoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("memories metadata.json: %w", err)
	}
	for _, e := range entries {
		e.date = parseSnapTime(e.Date)
	}
	return entries, nil
}

// preprocessMemories composites or copies every memory, deduplicating
// on base-media content, and emits the normalized document.
func (p *MemoriesProcessor) preprocessMemories(ctx context.Context, inputDir, outputDir string, extraPatterns []string, log zerolog.Logger) error {
	user := filepath.Base(inputDir)
	filter := pathfilter.New(extraPatterns...)
	tracker := failures.NewTracker(p.Name(), inputDir, log)
	memDir := filepath.Join(inputDir, "memories")

	entries, err := loadMemoryEntries(filepath.Join(memDir, "metadata.json"))
	if err != nil {
		return fmt.Errorf("load memories metadata: %w", err)
	}
	files, err := preprocess.ScanFlat(memDir, filter)
	if err != nil {
		return fmt.Errorf("scan memories: %w", err)
	}
	byName := make(map[string]*preprocess.MediaFile, len(files))
	for _, f := range files {
		if strings.EqualFold(f.Name, "metadata.json") {
			continue
		}
		byName[f.Name] = f
	}
	log.Info().Int("entries", len(entries)).Int("files", len(byName)).Msg("scanning memories")

	mediaDir := filepath.Join(outputDir, "media")
	if err := os.MkdirAll(mediaDir, 0750); err != nil {
		return err
	}
	registry := preprocess.NewHashRegistry()
	stats := &preprocess.Stats{}
	description := overlay.MemoriesDescription(user)

	var memories []outMemory
	for _, entry := range entries {
		item, ok := byName[entry.MediaFilename]
		if !ok {
			tracker.AddOrphanedMetadata(entry.MediaFilename, entry, "referenced media not found", nil)
			continue
		}
		item.Matched = true

		var ov *preprocess.MediaFile
		if entry.OverlayFilename != "" {
			if ov = byName[entry.OverlayFilename]; ov != nil {
				ov.Matched = true
			} else {
				log.Warn().Str("overlay", entry.OverlayFilename).Msg("referenced overlay missing, keeping base media")
			}
		}

		outName, err := p.produceMemory(ctx, item, ov, entry, description, mediaDir, registry, stats)
		if err != nil {
			tracker.AddProcessingFailure(item.Path, err.Error(), map[string]any{"date": entry.Date})
			continue
		}
		if t := memoryDate(item, entry); !t.IsZero() {
			outPath := filepath.Join(mediaDir, outName)
			if err := os.Chtimes(outPath, t, t); err != nil {
				log.Debug().Err(err).Str("file", outName).Msg("utime failed")
			}
		}
		memories = append(memories, outMemory{
			Date:       entry.Date,
			MediaType:  entry.MediaType,
			FileName:   outName,
			HasOverlay: ov != nil,
		})
	}

	var orphaned []string
	for _, f := range byName {
		if !f.Matched {
			orphaned = append(orphaned, f.Name)
			tracker.AddOrphanedMedia(f.Path, "not referenced by memories metadata", nil)
		}
	}
	sort.Strings(orphaned)

	doc := &memoriesDocument{
		ExportInfo:    preprocess.NewExportInfo(inputDir, user),
		Memories:      memories,
		OrphanedMedia: orphaned,
	}
	doc.ExportInfo.AddStats(stats)
	if err := preprocess.WriteMetadata(outputDir, doc); err != nil {
		return err
	}
	tracker.HandleFailures(outputDir)

	om, oj, pf := tracker.Counts()
	log.Info().
		Int64("unique", stats.Unique.Load()).
		Int64("duplicates", stats.Duplicates.Load()).
		Int("orphaned_media", om).
		Int("orphaned_metadata", oj).
		Int("processing_failures", pf).
		Msg("memories preprocessing complete")
	return nil
}

// produceMemory composites (image or video with overlay) or plainly
// copies one memory, returning the output filename. Identical base
// media under different dates collapse to the first output.
func (p *MemoriesProcessor) produceMemory(ctx context.Context, item, ov *preprocess.MediaFile, entry *memoryEntry, description, mediaDir string, registry *preprocess.HashRegistry, stats *preprocess.Stats) (string, error) {
	stats.Total.Add(1)

	hash, err := checksum.File(item.Path)
	if err != nil {
		hash = "unhashed:" + item.Path
	}
	item.Hash = hash

	outName := memoryOutputName(item, ov, entry)
	assigned, first := registry.Claim(hash, outName, item.Path, entry.Date)
	item.OutputName = assigned
	if !first {
		stats.Duplicates.Add(1)
		return assigned, nil
	}

	outPath := filepath.Join(mediaDir, assigned)
	switch {
	case ov != nil && item.Category == fileinspect.CategoryVideo:
		if p.compositor == nil {
			registry.Release(hash)
			stats.Failed.Add(1)
			return "", fmt.Errorf("no video pipeline available")
		}
		meta := overlay.VideoMetadata{Created: memoryDate(item, entry), Description: description}
		if !p.compositor.CreateVideoWithOverlay(ctx, item.Path, ov.Path, outPath, meta) {
			registry.Release(hash)
			stats.Failed.Add(1)
			return "", fmt.Errorf("overlay compositing failed")
		}
	case ov != nil:
		if err := overlay.ComposeImage(item.Path, ov.Path, outPath, jpegQuality); err != nil {
			registry.Release(hash)
			stats.Failed.Add(1)
			return "", fmt.Errorf("image compositing: %w", err)
		}
	default:
		if err := preprocess.CopyFile(item.Path, outPath); err != nil {
			registry.Release(hash)
			stats.Failed.Add(1)
			return "", fmt.Errorf("copy: %w", err)
		}
	}
	stats.Unique.Add(1)
	stats.Bytes.Add(item.Size)
	return assigned, nil
}

// memoryOutputName derives the date-prefixed output filename. Video
// composites become MKV; image composites flatten to JPEG.
func memoryOutputName(item, ov *preprocess.MediaFile, entry *memoryEntry) string {
	stem := strings.TrimSuffix(item.Name, filepath.Ext(item.Name))
	ext := filepath.Ext(item.Name)
	if ov != nil {
		if item.Category == fileinspect.CategoryVideo {
			ext = ".mkv"
		} else {
			ext = ".jpg"
		}
	}
	name := stem + ext
	if t := memoryDate(item, entry); !t.IsZero() {
		name = t.UTC().Format("2006-01-02_15-04-05") + "_" + name
	}
	return preprocess.SanitizeFilename(name, 0)
}

func memoryDate(item *preprocess.MediaFile, entry *memoryEntry) time.Time {
	if !entry.date.IsZero() {
		return entry.date
	}
	return item.ModTime
}
