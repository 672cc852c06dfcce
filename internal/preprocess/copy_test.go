// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package preprocess

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"memoria/internal/failures"
	"memoria/internal/observability"
	"memoria/internal/pathfilter"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func newCopier(workers int) *Copier {
	log := observability.Discard()
	return &Copier{
		Workers:  workers,
		Registry: NewHashRegistry(),
		Tracker:  failures.NewTracker("test", "/in", log),
		Log:      log,
	}
}

func TestCopyAll_Deduplicates(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("same bytes")...)
	writeFile(t, in, "a.jpg", jpeg)
	writeFile(t, in, "sub/b.jpg", jpeg)
	writeFile(t, in, "c.jpg", append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("different")...))

	items, err := ScanMedia(in, pathfilter.Default())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 3 {
		t.Fatalf("scanned %d files, want 3", len(items))
	}

	c := newCopier(2)
	stats, err := c.CopyAll(context.Background(), items, out)
	if err != nil {
		t.Fatal(err)
	}

	if got := stats.Unique.Load(); got != 2 {
		t.Errorf("unique = %d, want 2", got)
	}
	if got := stats.Duplicates.Load(); got != 1 {
		t.Errorf("duplicates = %d, want 1", got)
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("output contains %d files, want 2", len(entries))
	}

	// Bijection: every registry entry points to an existing file.
	c.Registry.Each(func(hash string, e *HashEntry) {
		if _, err := os.Stat(filepath.Join(out, e.FileName)); err != nil {
			t.Errorf("registry entry %s points to missing file %s", hash, e.FileName)
		}
	})
}

func TestCopyAll_Idempotent(t *testing.T) {
	in := t.TempDir()
	writeFile(t, in, "a.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 1, 2, 3})
	writeFile(t, in, "b.jpg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 4, 5, 6})

	run := func(out string) []string {
		items, err := ScanMedia(in, pathfilter.Default())
		if err != nil {
			t.Fatal(err)
		}
		c := newCopier(1)
		if _, err := c.CopyAll(context.Background(), items, out); err != nil {
			t.Fatal(err)
		}
		entries, err := os.ReadDir(out)
		if err != nil {
			t.Fatal(err)
		}
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return names
	}

	first := run(t.TempDir())
	second := run(t.TempDir())
	if len(first) != len(second) {
		t.Fatalf("runs differ: %v vs %v", first, second)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("runs differ at %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestCopyAll_ExtensionCorrection(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	// PNG bytes behind a .jpg name: same category, correction applies.
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	writeFile(t, in, "shot.jpg", png)

	items, _ := ScanMedia(in, pathfilter.Default())
	c := newCopier(1)
	if _, err := c.CopyAll(context.Background(), items, out); err != nil {
		t.Fatal(err)
	}

	if items[0].OutputName != "shot.png" {
		t.Errorf("output name = %q, want shot.png", items[0].OutputName)
	}
	if _, err := os.Stat(filepath.Join(out, "shot.png")); err != nil {
		t.Error("corrected file missing from output")
	}
}

func TestScanMedia_FiltersBannedPaths(t *testing.T) {
	in := t.TempDir()
	writeFile(t, in, "keep.jpg", []byte{1})
	writeFile(t, in, "@eaDir/thumb.jpg", []byte{2})
	writeFile(t, in, ".DS_Store", []byte{3})
	writeFile(t, in, "._resource", []byte{4})

	items, err := ScanMedia(in, pathfilter.Default())
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Name != "keep.jpg" {
		t.Errorf("scan = %v, want only keep.jpg", items)
	}
}

func TestSanitizeFilename(t *testing.T) {
	got := SanitizeFilename(`a<b>c:d"e/f\g|h?i*j.png`, 0)
	if got != "a_b_c_d_e_f_g_h_i_j.png" {
		t.Errorf("sanitized = %q", got)
	}
	long := SanitizeFilename("aaaaaaaaaa", 4)
	if long != "aaaa" {
		t.Errorf("truncated = %q", long)
	}
}
