// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlephotos

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/observability"
)

func writeTestFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func sidecarJSON(t *testing.T, title, timestamp string) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"title":          title,
		"photoTakenTime": map[string]string{"timestamp": timestamp},
	})
	require.NoError(t, err)
	return data
}

func TestPreprocessRun_AlbumWithSidecars(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	album := filepath.Join(in, "Vacation 2020")
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("photo-bytes")...)

	writeTestFile(t, album, "IMG_0004(1).PNG", append([]byte("\x89PNG\r\n\x1a\n"), []byte("png-a")...))
	writeTestFile(t, album, "IMG_0004.PNG.supplemental-metadata(1).json",
		sidecarJSON(t, "IMG_0004.PNG", "1577836800"))
	writeTestFile(t, album, "beach.jpg", jpeg)
	writeTestFile(t, album, "beach.jpg.json", sidecarJSON(t, "beach.jpg", "1577923200"))
	writeTestFile(t, album, "orphan.jpg", append(jpeg, 'x'))

	p := New()
	log := observability.Discard()
	result, err := p.preprocessRun(context.Background(), in, out, 2, nil, log)
	require.NoError(t, err)

	// One entry per unique content hash; orphans never reach media/.
	assert.Len(t, result.doc.MediaFiles, 2)
	for _, e := range result.doc.MediaFiles {
		assert.Contains(t, e.Albums, "Vacation 2020")
		require.NotNil(t, e.PhotoTakenTime)
		assert.NotEmpty(t, e.PhotoTakenTime.Timestamp)
	}

	// The orphan is copied into the triage tree and reported.
	orphans, err := os.ReadDir(filepath.Join(out, "issues", "failed-matching", "media"))
	require.NoError(t, err)
	assert.Len(t, orphans, 1)

	report := filepath.Join(out, "issues", "failure-report.json")
	data, err := os.ReadFile(report)
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal(data, &rep))
	summary := rep["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["failed_matching"])

	// metadata.json exists and parses.
	var doc map[string]any
	data, err = os.ReadFile(filepath.Join(out, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "export_info")
	assert.Contains(t, doc, "media_files")
}

func TestPreprocessRun_CrossAlbumDedup(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	same := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("shared")...)

	writeTestFile(t, filepath.Join(in, "Album A"), "pic.jpg", same)
	writeTestFile(t, filepath.Join(in, "Album A"), "pic.jpg.json", sidecarJSON(t, "pic.jpg", "1600000000"))
	writeTestFile(t, filepath.Join(in, "Album B"), "pic.jpg", same)
	writeTestFile(t, filepath.Join(in, "Album B"), "pic.jpg.json", sidecarJSON(t, "pic.jpg", "1600000000"))

	p := New()
	result, err := p.preprocessRun(context.Background(), in, out, 1, nil, observability.Discard())
	require.NoError(t, err)

	require.Len(t, result.doc.MediaFiles, 1)
	for _, e := range result.doc.MediaFiles {
		assert.ElementsMatch(t, []string{"Album A", "Album B"}, e.Albums)
	}
	assert.Equal(t, int64(1), result.stats.Unique.Load())
	assert.Equal(t, int64(1), result.stats.Duplicates.Load())

	entries, err := os.ReadDir(filepath.Join(out, "media"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDetect(t *testing.T) {
	in := t.TempDir()
	p := New()
	assert.False(t, p.Detect(in))

	writeTestFile(t, filepath.Join(in, "Takeout", "Google Photos", "Album"), "a.jpg", []byte{1})
	assert.True(t, p.Detect(in))
}
