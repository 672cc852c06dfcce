// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package failures accumulates the three classes of preprocessing
// failure (orphaned media, orphaned metadata, processing errors) and
// organizes them for manual review under {output}/issues/.
package failures

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

// OrphanedMedia is a media file whose expected metadata reference could
// not be located.
type OrphanedMedia struct {
	Path    string         `json:"path"`
	Name    string         `json:"name"`
	Reason  string         `json:"reason"`
	Context map[string]any `json:"context,omitempty"`
}

// OrphanedMetadata is a metadata record whose referenced media file
// could not be located.
type OrphanedMetadata struct {
	Name    string         `json:"name,omitempty"`
	Entry   any            `json:"entry"`
	Reason  string         `json:"reason"`
	Context map[string]any `json:"context,omitempty"`
}

// ProcessingFailure is a per-item error raised after matching (copy,
// hash, external tool).
type ProcessingFailure struct {
	Path    string         `json:"path,omitempty"`
	Reason  string         `json:"reason"`
	Context map[string]any `json:"context,omitempty"`
}

// Tracker collects failures with thread-safe append semantics. Writes
// happen during scan and match; the single read happens at emission.
type Tracker struct {
	mu            sync.Mutex
	orphanMedia   []*OrphanedMedia
	orphanMeta    []*OrphanedMetadata
	processing    []*ProcessingFailure
	processorName string
	exportDir     string
	log           zerolog.Logger
}

// NewTracker creates a tracker for one preprocessor run.
func NewTracker(processorName, exportDir string, log zerolog.Logger) *Tracker {
	return &Tracker{
		processorName: processorName,
		exportDir:     exportDir,
		log:           log,
	}
}

// AddOrphanedMedia records a media file with no claiming metadata.
func (t *Tracker) AddOrphanedMedia(path, reason string, context map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orphanMedia = append(t.orphanMedia, &OrphanedMedia{
		Path:    path,
		Name:    filepath.Base(path),
		Reason:  reason,
		Context: context,
	})
}

// AddOrphanedMetadata records a metadata entry with no locatable media.
func (t *Tracker) AddOrphanedMetadata(name string, entry any, reason string, context map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orphanMeta = append(t.orphanMeta, &OrphanedMetadata{
		Name:    name,
		Entry:   entry,
		Reason:  reason,
		Context: context,
	})
}

// AddProcessingFailure records a per-item processing error.
func (t *Tracker) AddProcessingFailure(path, reason string, context map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processing = append(t.processing, &ProcessingFailure{
		Path:    path,
		Reason:  reason,
		Context: context,
	})
}

// Counts returns (orphaned media, orphaned metadata, processing failures).
func (t *Tracker) Counts() (int, int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.orphanMedia), len(t.orphanMeta), len(t.processing)
}

// Empty reports whether no failure of any class was recorded.
func (t *Tracker) Empty() bool {
	om, oj, pf := t.Counts()
	return om == 0 && oj == 0 && pf == 0
}

// report is the serialized form of the tracker.
type report struct {
	ProcessorName   string `json:"processor_name"`
	ExportDirectory string `json:"export_directory"`
	Timestamp       string `json:"timestamp"`
	Summary         struct {
		TotalFailures    int `json:"total_failures"`
		FailedMatching   int `json:"failed_matching"`
		FailedProcessing int `json:"failed_processing"`
	} `json:"summary"`
	FailedMatching struct {
		OrphanedMedia    []*OrphanedMedia    `json:"orphaned_media"`
		OrphanedMetadata []*OrphanedMetadata `json:"orphaned_metadata"`
	} `json:"failed_matching"`
	FailedProcessing []*ProcessingFailure `json:"failed_processing"`
}

// HandleFailures copies orphaned media into a triage tree, writes each
// orphaned metadata entry as an individual JSON file, and persists the
// combined failure report. Per-file errors are recorded into the
// failing entry's context and do not abort emission; the tracker's own
// write failures are logged but not propagated.
func (t *Tracker) HandleFailures(outputDir string) {
	if t.Empty() {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	issuesDir := filepath.Join(outputDir, "issues")
	t.copyOrphanedMedia(filepath.Join(issuesDir, "failed-matching", "media"))
	t.saveOrphanedMetadata(filepath.Join(issuesDir, "failed-matching", "metadata"))
	t.writeReport(filepath.Join(issuesDir, "failure-report.json"))
}

func (t *Tracker) copyOrphanedMedia(dir string) {
	if len(t.orphanMedia) == 0 {
		return
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.log.Error().Err(err).Msg("cannot create failed-matching media dir")
		return
	}
	used := make(map[string]int)
	for _, om := range t.orphanMedia {
		dest := filepath.Join(dir, uniqueName(used, om.Name))
		if err := copyFile(om.Path, dest); err != nil {
			if om.Context == nil {
				om.Context = make(map[string]any)
			}
			om.Context["copy_error"] = err.Error()
			t.log.Warn().Err(err).Str("file", om.Path).Msg("failed to copy orphaned media")
		}
	}
}

func (t *Tracker) saveOrphanedMetadata(dir string) {
	if len(t.orphanMeta) == 0 {
		return
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		t.log.Error().Err(err).Msg("cannot create failed-matching metadata dir")
		return
	}
	used := make(map[string]int)
	for i, om := range t.orphanMeta {
		name := sanitizeName(om.Name)
		if name == "" {
			name = fmt.Sprintf("orphaned_metadata_%04d", i)
		}
		dest := filepath.Join(dir, uniqueName(used, name+".json"))
		data, err := json.MarshalIndent(om, "", "  ")
		if err == nil {
			err = os.WriteFile(dest, data, 0640)
		}
		if err != nil {
			if om.Context == nil {
				om.Context = make(map[string]any)
			}
			om.Context["save_error"] = err.Error()
			t.log.Warn().Err(err).Str("entry", name).Msg("failed to save orphaned metadata")
		}
	}
}

func (t *Tracker) writeReport(path string) {
	var r report
	r.ProcessorName = t.processorName
	r.ExportDirectory = t.exportDir
	r.Timestamp = time.Now().UTC().Format(time.RFC3339)
	r.Summary.FailedMatching = len(t.orphanMedia) + len(t.orphanMeta)
	r.Summary.FailedProcessing = len(t.processing)
	r.Summary.TotalFailures = r.Summary.FailedMatching + r.Summary.FailedProcessing
	r.FailedMatching.OrphanedMedia = t.orphanMedia
	r.FailedMatching.OrphanedMetadata = t.orphanMeta
	r.FailedProcessing = t.processing

	data, err := json.MarshalIndent(&r, "", "  ")
	if err == nil {
		err = renameio.WriteFile(path, data, 0640)
	}
	if err != nil {
		t.log.Error().Err(err).Msg("failed to write failure report")
	}
}

var sanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// sanitizeName restricts a title-like field to [a-zA-Z0-9_-].
func sanitizeName(name string) string {
	return strings.Trim(sanitizeRe.ReplaceAllString(name, "_"), "_")
}

// uniqueName resolves basename collisions with a numeric suffix.
func uniqueName(used map[string]int, name string) string {
	n := used[name]
	used[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}

func copyFile(src, dest string) error {
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
