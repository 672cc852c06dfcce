// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package failures

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHandleFailures_Emission(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()

	tr := NewTracker("google-photos", inDir, zerolog.Nop())

	// Three orphan media with real files.
	for _, name := range []string{"a.jpg", "b.mov", "c.png"} {
		p := filepath.Join(inDir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0600))
		tr.AddOrphanedMedia(p, "no metadata matched", nil)
	}
	// Two orphan metadata entries.
	tr.AddOrphanedMetadata("Summer Trip!", map[string]any{"title": "Summer Trip!"}, "media missing", nil)
	tr.AddOrphanedMetadata("", map[string]any{"id": 42}, "media missing", nil)
	// One processing failure.
	tr.AddProcessingFailure("/in/broken.mp4", "ffmpeg exited 1", map[string]any{"pass": 1})

	tr.HandleFailures(outDir)

	mediaFiles, err := os.ReadDir(filepath.Join(outDir, "issues", "failed-matching", "media"))
	require.NoError(t, err)
	require.Len(t, mediaFiles, 3)

	metaFiles, err := os.ReadDir(filepath.Join(outDir, "issues", "failed-matching", "metadata"))
	require.NoError(t, err)
	require.Len(t, metaFiles, 2)
	// Title-derived name is sanitized to [a-zA-Z0-9_-].
	require.FileExists(t, filepath.Join(outDir, "issues", "failed-matching", "metadata", "Summer_Trip.json"))

	data, err := os.ReadFile(filepath.Join(outDir, "issues", "failure-report.json"))
	require.NoError(t, err)

	var rep map[string]any
	require.NoError(t, json.Unmarshal(data, &rep))
	summary := rep["summary"].(map[string]any)
	require.EqualValues(t, 6, summary["total_failures"])
	require.EqualValues(t, 5, summary["failed_matching"])
	require.EqualValues(t, 1, summary["failed_processing"])
	require.Equal(t, "google-photos", rep["processor_name"])
}

func TestHandleFailures_MissingMediaDoesNotAbort(t *testing.T) {
	outDir := t.TempDir()
	tr := NewTracker("discord", "/in", zerolog.Nop())
	tr.AddOrphanedMedia("/does/not/exist.jpg", "no metadata matched", nil)
	tr.AddOrphanedMedia(writeReal(t, "real.jpg"), "no metadata matched", nil)

	tr.HandleFailures(outDir)

	// The real file is copied; the missing one gets a copy_error context.
	require.FileExists(t, filepath.Join(outDir, "issues", "failed-matching", "media", "real.jpg"))
	data, err := os.ReadFile(filepath.Join(outDir, "issues", "failure-report.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "copy_error")
}

func TestHandleFailures_CollisionSuffix(t *testing.T) {
	outDir := t.TempDir()
	tr := NewTracker("imessage", "/in", zerolog.Nop())
	tr.AddOrphanedMedia(writeReal(t, "dup.jpg"), "r", nil)
	tr.AddOrphanedMedia(writeReal(t, "dup.jpg"), "r", nil)

	tr.HandleFailures(outDir)

	dir := filepath.Join(outDir, "issues", "failed-matching", "media")
	require.FileExists(t, filepath.Join(dir, "dup.jpg"))
	require.FileExists(t, filepath.Join(dir, "dup_1.jpg"))
}

func TestEmptyTrackerWritesNothing(t *testing.T) {
	outDir := t.TempDir()
	tr := NewTracker("snapchat", "/in", zerolog.Nop())
	tr.HandleFailures(outDir)
	_, err := os.Stat(filepath.Join(outDir, "issues"))
	require.True(t, os.IsNotExist(err))
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"Summer Trip!":    "Summer_Trip",
		"a/b\\c":          "a_b_c",
		"---":             "---",
		"héllo wörld":     "h_llo_w_rld",
		"!!!":             "",
		"ok_already-fine": "ok_already-fine",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func writeReal(t *testing.T, name string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte("x"), 0600))
	return p
}
