// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package preprocess

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// ConversationType tags a conversation grouping.
type ConversationType string

const (
	ConversationDM     ConversationType = "dm"
	ConversationGroup  ConversationType = "group"
	ConversationServer ConversationType = "server"
	ConversationSpace  ConversationType = "space"
	ConversationOther  ConversationType = "other"
)

// ExportInfo is the common envelope header of every metadata.json.
// Source-specific counts are added by the emitting preprocessor.
type ExportInfo map[string]any

// NewExportInfo builds the envelope header.
func NewExportInfo(exportPath, username string) ExportInfo {
	info := ExportInfo{
		"export_path":    exportPath,
		"processed_date": time.Now().UTC().Format(time.RFC3339),
	}
	if username != "" {
		info["export_username"] = username
	}
	return info
}

// AddStats merges the copy statistics into the envelope.
func (e ExportInfo) AddStats(stats *Stats) {
	for k, v := range stats.Snapshot() {
		e[k] = v
	}
}

// WriteMetadata atomically writes {outputDir}/metadata.json. The
// document is pretty-printed with two-space indent and non-ASCII is
// left unescaped, so a crashed run never leaves truncated JSON and
// titles stay readable.
func WriteMetadata(outputDir string, doc any) error {
	return WriteJSON(filepath.Join(outputDir, "metadata.json"), doc)
}

// WriteJSON atomically writes any document as pretty-printed UTF-8
// JSON.
func WriteJSON(path string, doc any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0640); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
