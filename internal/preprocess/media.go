// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package preprocess provides the pipeline skeleton shared by every
// source preprocessor: media scanning, metadata matching,
// content-addressed deduplication, parallel copying, and emission of
// the normalized metadata.json.
package preprocess

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"memoria/internal/fileinspect"
)

// MediaFile is the unit of interest after matching. It is created
// during scan, mutated once by matching (metadata attached) and once by
// extension correction, and never after copy.
type MediaFile struct {
	// Path is the absolute source path.
	Path string
	// Name is the original filename.
	Name string
	// Category is the inferred media category.
	Category fileinspect.Category
	// Size in bytes.
	Size int64
	// ModTime is the filesystem modification time.
	ModTime time.Time
	// DupIndex is the duplicate index embedded in the filename
	// ("IMG_0004(1).PNG" carries 1), or -1.
	DupIndex int

	// Hash is the content hash, set during copy.
	Hash string
	// MIME and Extension are set by type inference during copy.
	MIME      string
	Extension string
	// OutputName is the filename the file (or its canonical duplicate)
	// received in the output media directory.
	OutputName string

	// Matched reports whether a metadata record claimed this file.
	Matched bool
	// Metadata is the source-specific payload attached by matching.
	Metadata any
}

// Stem returns the filename without its extension.
func (m *MediaFile) Stem() string {
	return strings.TrimSuffix(m.Name, filepath.Ext(m.Name))
}

// Ext returns the extension without the dot, lowercase.
func (m *MediaFile) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(m.Name), "."))
}

// Record is one native-metadata entry as seen by the matcher.
type Record struct {
	// Name is the derived match key (usually the media filename the
	// record points at).
	Name string
	// DupIndex is the duplicate index embedded in the record's name,
	// or -1.
	DupIndex int
	// Data is the source-specific content.
	Data any
	// Matched is resolved once by the matcher.
	Matched bool
	// Claims counts how many media files claimed this record; values
	// beyond 1 occur for true duplicates and live-photo pairs.
	Claims int
}

// Stem returns the record name without its extension.
func (r *Record) Stem() string {
	return strings.TrimSuffix(r.Name, filepath.Ext(r.Name))
}

// Ext returns the record name's extension without the dot, lowercase.
func (r *Record) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(r.Name), "."))
}

// Workers returns the bounded pool size: the override when positive,
// otherwise max(1, NumCPU-1).
func Workers(override int) int {
	if override > 0 {
		return override
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	return n
}
