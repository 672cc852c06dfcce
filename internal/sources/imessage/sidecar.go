// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package imessage

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// transcriptEntry is one row of a "Messages - {contact}.csv" sidecar.
type transcriptEntry struct {
	Sent       time.Time
	Sender     string
	Text       string
	Attachment string
	FromMe     bool
}

// transcriptKey indexes sidecar rows by send-second and attachment
// basename.
type transcriptKey struct {
	unix       int64
	attachment string
}

// csvTimeLayouts covers the sidecar generations.
var csvTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"1/2/06 15:04:05",
	time.RFC3339,
}

func parseCSVTime(s string) time.Time {
	for _, layout := range csvTimeLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// loadTranscripts reads every "Messages - *.csv" in dir and indexes
// the rows that carry attachments.
func loadTranscripts(dir string) (map[transcriptKey]*transcriptEntry, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "Messages - *.csv"))
	if err != nil {
		return nil, err
	}
	index := make(map[transcriptKey]*transcriptEntry)
	for _, path := range paths {
		if err := loadTranscript(path, index); err != nil {
			return nil, err
		}
	}
	return index, nil
}

func loadTranscript(path string, index map[transcriptKey]*transcriptEntry) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return err
	}
	if len(rows) < 2 {
		return nil
	}

	col := columnIndex(rows[0])
	for _, row := range rows[1:] {
		entry := &transcriptEntry{
			Sent:       parseCSVTime(field(row, col["date"])),
			Sender:     field(row, col["sender"]),
			Text:       field(row, col["text"]),
			Attachment: filepath.Base(field(row, col["attachment"])),
			FromMe:     strings.EqualFold(field(row, col["type"]), "outgoing"),
		}
		if entry.Attachment == "" || entry.Attachment == "." || entry.Sent.IsZero() {
			continue
		}
		index[transcriptKey{unix: entry.Sent.Unix(), attachment: entry.Attachment}] = entry
	}
	return nil
}

// columnIndex resolves header names across sidecar generations.
func columnIndex(header []string) map[string]int {
	col := map[string]int{"date": -1, "sender": -1, "text": -1, "attachment": -1, "type": -1}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(name, "date"):
			col["date"] = i
		case strings.Contains(name, "sender name"), name == "sender":
			col["sender"] = i
		case name == "text" || name == "message":
			col["text"] = i
		case strings.Contains(name, "attachment"):
			col["attachment"] = i
		case name == "type":
			col["type"] = i
		}
	}
	return col
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
