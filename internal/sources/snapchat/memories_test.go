// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package snapchat

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/observability"
)

func writeMemoryPNG(t *testing.T, path string, c color.RGBA) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func writeMemoriesMetadata(t *testing.T, inputDir string, entries []map[string]any) {
	t.Helper()
	data, err := json.Marshal(entries)
	require.NoError(t, err)
	writeExportFile(t, inputDir, filepath.Join("memories", "metadata.json"), data, time.Time{})
}

func TestPreprocessMemories_CompositeAndCopy(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	memDir := filepath.Join(in, "memories")

	writeMemoriesMetadata(t, in, []map[string]any{
		{
			"date": "2020-06-01 12:00:00 UTC", "media_type": "Image",
			"media_filename":   "snap.png",
			"overlay_filename": "snap_overlay.png",
		},
		{
			"date": "2020-06-02 08:30:00 UTC", "media_type": "Image",
			"media_filename": "plain.jpg",
		},
		{
			"date": "2020-06-03 09:00:00 UTC", "media_type": "Image",
			"media_filename": "missing.jpg",
		},
	})
	writeMemoryPNG(t, filepath.Join(memDir, "snap.png"), color.RGBA{R: 255, A: 255})
	writeMemoryPNG(t, filepath.Join(memDir, "snap_overlay.png"), color.RGBA{G: 255, A: 255})
	writeExportFile(t, in, filepath.Join("memories", "plain.jpg"), jpegBytes, time.Time{})
	writeExportFile(t, in, filepath.Join("memories", "stray.jpg"), []byte("stray"), time.Time{})

	p := NewMemories(nil, nil)
	err := p.preprocessMemories(context.Background(), in, out, nil, observability.Discard())
	require.NoError(t, err)

	// Image composite flattens to a date-prefixed JPEG; the plain copy
	// keeps its extension.
	assert.FileExists(t, filepath.Join(out, "media", "2020-06-01_12-00-00_snap.jpg"))
	assert.FileExists(t, filepath.Join(out, "media", "2020-06-02_08-30-00_plain.jpg"))

	// Output timestamps follow the memory's date.
	info, err := os.Stat(filepath.Join(out, "media", "2020-06-02_08-30-00_plain.jpg"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 6, 2, 8, 30, 0, 0, time.UTC), info.ModTime().UTC())

	var doc memoriesDocument
	data, err := os.ReadFile(filepath.Join(out, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Len(t, doc.Memories, 2)
	assert.True(t, doc.Memories[0].HasOverlay)
	assert.False(t, doc.Memories[1].HasOverlay)
	assert.Equal(t, []string{"stray.jpg"}, doc.OrphanedMedia)

	// The entry whose media is missing lands in the failure report.
	data, err = os.ReadFile(filepath.Join(out, "issues", "failure-report.json"))
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal(data, &rep))
	// One orphaned media (stray.jpg) plus one orphaned metadata entry
	// (missing.jpg).
	summary := rep["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["failed_matching"])
}

func TestPreprocessMemories_DedupesRepeatedEntries(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	writeMemoriesMetadata(t, in, []map[string]any{
		{"date": "2020-06-01 12:00:00 UTC", "media_type": "Image", "media_filename": "dup.jpg"},
		{"date": "2020-07-01 12:00:00 UTC", "media_type": "Image", "media_filename": "dup.jpg"},
	})
	writeExportFile(t, in, filepath.Join("memories", "dup.jpg"), jpegBytes, time.Time{})

	p := NewMemories(nil, nil)
	err := p.preprocessMemories(context.Background(), in, out, nil, observability.Discard())
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(out, "media"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	var doc memoriesDocument
	data, err := os.ReadFile(filepath.Join(out, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Memories, 2)
	assert.Equal(t, doc.Memories[0].FileName, doc.Memories[1].FileName,
		"both entries point at the canonical copy")
	assert.Equal(t, float64(1), doc.ExportInfo["duplicate_files"])
	assert.Equal(t, float64(1), doc.ExportInfo["unique_files"])
}

func TestMemoriesDetect(t *testing.T) {
	in := t.TempDir()
	p := NewMemories(nil, nil)
	assert.False(t, p.Detect(in))
	writeMemoriesMetadata(t, in, nil)
	assert.True(t, p.Detect(in))
}
