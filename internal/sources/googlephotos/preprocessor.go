// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlephotos

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"memoria/internal/failures"
	"memoria/internal/pathfilter"
	"memoria/internal/preprocess"
)

// albumMedia carries a matched media file's album association and
// sidecar through the pipeline.
type albumMedia struct {
	Album   string
	Sidecar *Sidecar
	Taken   time.Time
}

// mediaEntry is one unique file in the emitted metadata.json, keyed by
// content hash.
type mediaEntry struct {
	FileName       string    `json:"file_name"`
	Size           int64     `json:"size"`
	Albums         []string  `json:"albums"`
	Title          string    `json:"title,omitempty"`
	Description    string    `json:"description,omitempty"`
	PhotoTakenTime *UnixTime `json:"photoTakenTime,omitempty"`
	GeoData        *GeoData  `json:"geoData,omitempty"`
	People         []string  `json:"people,omitempty"`
	Archived       bool      `json:"archived,omitempty"`
	Favorited      bool      `json:"favorited,omitempty"`
	Trashed        bool      `json:"trashed,omitempty"`
	Origin         any       `json:"googlePhotosOrigin,omitempty"`

	taken time.Time
}

type document struct {
	ExportInfo preprocess.ExportInfo  `json:"export_info"`
	MediaFiles map[string]*mediaEntry `json:"media_files"`
}

// preprocessResult hands the in-memory document to the finalize step.
type preprocessResult struct {
	doc   *document
	stats *preprocess.Stats
}

// preprocessRun scans every album, matches sidecars to media, copies
// unique files into {outputDir}/media and emits the file-centric
// metadata.json.
func (p *Processor) preprocessRun(ctx context.Context, photosRoot, outputDir string, workers int, extraPatterns []string, log zerolog.Logger) (*preprocessResult, error) {
	filter := pathfilter.New(extraPatterns...)
	tracker := failures.NewTracker(p.Name(), photosRoot, log)

	albums, err := albumDirs(photosRoot, filter)
	if err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	log.Info().Int("albums", len(albums)).Msg("scanning albums")

	var matched []*preprocess.MediaFile
	albumCount := 0
	for _, albumDir := range albums {
		items, err := p.processAlbum(albumDir, filter, tracker, log)
		if err != nil {
			log.Warn().Err(err).Str("album", albumDir).Msg("album scan failed")
			continue
		}
		albumCount++
		matched = append(matched, items...)
	}

	copier := &preprocess.Copier{
		Workers:  workers,
		Registry: preprocess.NewHashRegistry(),
		Tracker:  tracker,
		Log:      log,
		ContextOf: func(m *preprocess.MediaFile) any {
			return m.Metadata.(*albumMedia).Album
		},
	}
	stats, err := copier.CopyAll(ctx, matched, filepath.Join(outputDir, "media"))
	if err != nil {
		return nil, err
	}

	doc := &document{
		ExportInfo: preprocess.NewExportInfo(photosRoot, ""),
		MediaFiles: buildEntries(matched),
	}
	doc.ExportInfo["albums_processed"] = albumCount
	doc.ExportInfo.AddStats(stats)

	if err := preprocess.WriteMetadata(outputDir, doc); err != nil {
		return nil, err
	}
	tracker.HandleFailures(outputDir)

	om, oj, pf := tracker.Counts()
	log.Info().
		Int64("unique", stats.Unique.Load()).
		Int64("duplicates", stats.Duplicates.Load()).
		Int("orphaned_media", om).
		Int("orphaned_metadata", oj).
		Int("processing_failures", pf).
		Msg("preprocessing complete")

	return &preprocessResult{doc: doc, stats: stats}, nil
}

// processAlbum scans one album directory, matches its sidecars to its
// media, and returns the matched media files.
func (p *Processor) processAlbum(albumDir string, filter *pathfilter.Filter, tracker *failures.Tracker, log zerolog.Logger) ([]*preprocess.MediaFile, error) {
	files, err := preprocess.ScanFlat(albumDir, filter)
	if err != nil {
		return nil, err
	}

	albumTitle := filepath.Base(albumDir)
	var media []*preprocess.MediaFile
	var records []*preprocess.Record

	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f.Name), ".json") {
			if strings.EqualFold(f.Name, "metadata.json") {
				if meta := loadAlbumMeta(f.Path); meta != nil && meta.Title != "" {
					albumTitle = meta.Title
				}
				continue
			}
			mediaName, dupIndex, ok := parseSidecarName(f.Name)
			if !ok {
				continue
			}
			sc, err := loadSidecar(f.Path)
			if err != nil {
				tracker.AddProcessingFailure(f.Path, "unparseable sidecar", map[string]any{"error": err.Error()})
				continue
			}
			records = append(records, &preprocess.Record{
				Name:     mediaName,
				DupIndex: dupIndex,
				Data:     &sidecarRef{Path: f.Path, MediaName: mediaName, DupIndex: dupIndex, Data: sc},
			})
			continue
		}

		_, dup := splitDupIndex(f.Stem())
		f.DupIndex = dup
		media = append(media, f)
	}

	chain := matcherChain()
	unmatchedMedia := chain.MatchAll(media, records, func(m *preprocess.MediaFile, r *preprocess.Record) {
		ref := r.Data.(*sidecarRef)
		m.Metadata = &albumMedia{
			Album:   albumTitle,
			Sidecar: ref.Data,
			Taken:   takenTime(ref.Data, m.Path, m.ModTime),
		}
	})

	// Orphans go to the triage tree only, never into media/.
	for _, m := range unmatchedMedia {
		tracker.AddOrphanedMedia(m.Path, "no sidecar matched", map[string]any{"album": albumTitle})
	}
	for _, r := range preprocess.UnmatchedRecords(records) {
		ref := r.Data.(*sidecarRef)
		tracker.AddOrphanedMetadata(ref.Data.Title, ref.Data, "referenced media not found", map[string]any{
			"album":   albumTitle,
			"sidecar": ref.Path,
		})
	}

	var matched []*preprocess.MediaFile
	for _, m := range media {
		if m.Matched {
			matched = append(matched, m)
		}
	}
	return matched, nil
}

// buildEntries groups copied media by content hash, aggregating album
// memberships. The first claimant's sidecar supplies the descriptive
// fields.
func buildEntries(items []*preprocess.MediaFile) map[string]*mediaEntry {
	entries := make(map[string]*mediaEntry)
	for _, m := range items {
		if m.Hash == "" || m.OutputName == "" {
			continue
		}
		am := m.Metadata.(*albumMedia)
		e, ok := entries[m.Hash]
		if !ok {
			e = &mediaEntry{
				FileName: m.OutputName,
				Size:     m.Size,
				taken:    am.Taken,
			}
			if sc := am.Sidecar; sc != nil {
				e.Title = sc.Title
				e.Description = sc.Description
				e.PhotoTakenTime = sc.PhotoTakenTime
				if sc.GeoData.Valid() {
					e.GeoData = sc.GeoData
				} else if sc.GeoDataExif.Valid() {
					e.GeoData = sc.GeoDataExif
				}
				for _, person := range sc.People {
					e.People = append(e.People, person.Name)
				}
				e.Archived = sc.Archived
				e.Favorited = sc.Favorited
				e.Trashed = sc.Trashed
				e.Origin = sc.Origin
			}
			entries[m.Hash] = e
		}
		if !containsString(e.Albums, am.Album) {
			e.Albums = append(e.Albums, am.Album)
		}
	}
	return entries
}

// albumDirs returns every album directory under the photos root. The
// root itself counts when it holds files directly.
func albumDirs(photosRoot string, filter *pathfilter.Filter) ([]string, error) {
	entries, err := os.ReadDir(photosRoot)
	if err != nil {
		return nil, err
	}
	var dirs []string
	rootHasFiles := false
	for _, e := range entries {
		path := filepath.Join(photosRoot, e.Name())
		if filter.Banned(path) {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, path)
		} else {
			rootHasFiles = true
		}
	}
	if rootHasFiles {
		dirs = append(dirs, photosRoot)
	}
	return dirs, nil
}

func loadAlbumMeta(path string) *AlbumMeta {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var meta AlbumMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil
	}
	return &meta
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
