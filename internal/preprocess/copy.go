// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package preprocess

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"memoria/internal/checksum"
	"memoria/internal/failures"
	"memoria/internal/fileinspect"
)

// Stats counts the outcome of a copy pass.
type Stats struct {
	Total      atomic.Int64
	Unique     atomic.Int64
	Duplicates atomic.Int64
	Failed     atomic.Int64
	Bytes      atomic.Int64
}

// Snapshot returns the counters as a plain map for export_info.
func (s *Stats) Snapshot() map[string]any {
	return map[string]any{
		"total_files":     s.Total.Load(),
		"unique_files":    s.Unique.Load(),
		"duplicate_files": s.Duplicates.Load(),
		"failed_files":    s.Failed.Load(),
		"copied_bytes":    s.Bytes.Load(),
	}
}

// Copier copies media into an output directory with content-addressed
// deduplication, type inference and extension correction.
type Copier struct {
	// Workers bounds the pool; 0 means max(1, NumCPU-1).
	Workers int
	// AllowCrossCategory permits extension corrections that change the
	// top-level media category.
	AllowCrossCategory bool
	// ContextOf derives the source-specific hash-registry context for a
	// file; nil contexts are not recorded.
	ContextOf func(m *MediaFile) any

	Registry *HashRegistry
	Tracker  *failures.Tracker
	Log      zerolog.Logger
}

// CopyAll copies every item into destDir in parallel. Emission of
// metadata.json by the caller happens-after this returns: the errgroup
// joins every copy before control comes back.
func (c *Copier) CopyAll(ctx context.Context, items []*MediaFile, destDir string) (*Stats, error) {
	if err := os.MkdirAll(destDir, 0750); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}

	stats := &Stats{}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(Workers(c.Workers))

	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c.copyOne(item, destDir, stats)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}
	return stats, nil
}

// copyOne hashes, dedupes and copies a single file. Failures are
// recorded to the tracker and never abort the pass.
func (c *Copier) copyOne(item *MediaFile, destDir string, stats *Stats) {
	stats.Total.Add(1)

	hash, err := checksum.File(item.Path)
	if err != nil {
		// No deduplication for unhashable files: a synthetic key keeps
		// the file unique in the registry instead of dropping it.
		c.Log.Warn().Err(err).Str("file", item.Path).Msg("hash failed, treating file as unique")
		hash = "unhashed:" + item.Path
	}
	item.Hash = hash

	res := fileinspect.Infer(item.Path, item.Name, c.AllowCrossCategory)
	item.MIME = res.MIME
	item.Category = res.Category
	item.Extension = res.Extension
	destName := item.Name
	if res.Corrected {
		destName = item.Stem() + "." + res.Extension
		c.Log.Debug().Str("file", item.Name).Str("corrected", destName).Msg("extension corrected")
	}

	var context any
	if c.ContextOf != nil {
		context = c.ContextOf(item)
	}
	assigned, first := c.Registry.Claim(hash, destName, item.Path, context)
	item.OutputName = assigned
	if !first {
		stats.Duplicates.Add(1)
		return
	}

	if err := CopyFile(item.Path, filepath.Join(destDir, assigned)); err != nil {
		c.Registry.Release(hash)
		stats.Failed.Add(1)
		c.Tracker.AddProcessingFailure(item.Path, "copy failed", map[string]any{
			"error":       err.Error(),
			"destination": assigned,
		})
		c.Log.Warn().Err(err).Str("file", item.Path).Msg("copy failed")
		return
	}
	stats.Unique.Add(1)
	stats.Bytes.Add(item.Size)
}

// CopyFile copies src to dest without leaving a partial file behind on
// failure.
func CopyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}

// SanitizeFilename replaces characters that are unsafe in output
// filenames and truncates overlong basenames.
func SanitizeFilename(name string, maxLen int) string {
	replacer := strings.NewReplacer(
		"<", "_", ">", "_", ":", "_", `"`, "_",
		"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
	)
	name = replacer.Replace(name)
	if maxLen > 0 && len(name) > maxLen {
		name = name[:maxLen]
	}
	return name
}
