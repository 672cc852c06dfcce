// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package imessage

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/observability"
)

func TestParseAttachmentName(t *testing.T) {
	tests := []struct {
		in       string
		contact  string
		original string
		sent     string
		ok       bool
	}{
		{"2021-03-14 09 26 53 - Alice - IMG_0042", "Alice", "IMG_0042", "2021-03-14T09:26:53Z", true},
		{"2021-03-15 18 00 01 - Alice & Bob - video", "Alice & Bob", "video", "2021-03-15T18:00:01Z", true},
		{"2021-03-14 09 26 53 - Carol Smith - a - b", "Carol Smith", "a - b", "2021-03-14T09:26:53Z", true},
		{"IMG_0042", "", "", "", false},
		{"2021-03-14 09:26:53 - Alice - x", "", "", "", false},
	}
	for _, tt := range tests {
		got, ok := parseAttachmentName(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if !tt.ok {
			continue
		}
		assert.Equal(t, tt.contact, got.Contact, tt.in)
		assert.Equal(t, tt.original, got.Original, tt.in)
		assert.Equal(t, tt.sent, got.Sent.Format(time.RFC3339), tt.in)
	}
}

func TestIsGroupContact(t *testing.T) {
	assert.False(t, isGroupContact("Alice"))
	assert.False(t, isGroupContact("Smith & Sons Plumbing&Heating"))
	assert.True(t, isGroupContact("Alice & Bob"))
}

func TestLoadTranscripts(t *testing.T) {
	dir := t.TempDir()
	csv := "Message Date,Type,Sender Name,Text,Attachment\n" +
		"2021-03-14 09:26:53,incoming,Alice,look at this,IMG_0042.jpeg\n" +
		"2021-03-14 10:00:00,outgoing,,no attachment here,\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Messages - Alice.csv"), []byte(csv), 0644))

	index, err := loadTranscripts(dir)
	require.NoError(t, err)
	require.Len(t, index, 1, "rows without attachments are skipped")

	sent := time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC)
	entry := index[transcriptKey{unix: sent.Unix(), attachment: "IMG_0042.jpeg"}]
	require.NotNil(t, entry)
	assert.Equal(t, "Alice", entry.Sender)
	assert.Equal(t, "look at this", entry.Text)
	assert.False(t, entry.FromMe)
}

func TestLoadChatDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	stmts := []string{
		`CREATE TABLE message (ROWID INTEGER PRIMARY KEY, text TEXT, is_from_me INTEGER, handle_id INTEGER)`,
		`CREATE TABLE handle (ROWID INTEGER PRIMARY KEY, id TEXT)`,
		`CREATE TABLE attachment (ROWID INTEGER PRIMARY KEY, transfer_name TEXT)`,
		`CREATE TABLE message_attachment_join (message_id INTEGER, attachment_id INTEGER)`,
		`INSERT INTO handle VALUES (1, '+15551234567')`,
		`INSERT INTO message VALUES (10, 'check this out', 0, 1)`,
		`INSERT INTO message VALUES (11, NULL, 1, NULL)`,
		`INSERT INTO attachment VALUES (20, 'IMG_0042.jpeg')`,
		`INSERT INTO attachment VALUES (21, 'video.mov')`,
		`INSERT INTO message_attachment_join VALUES (10, 20), (11, 21)`,
	}
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	index, err := loadChatDB(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, index, 2)
	assert.Equal(t, "check this out", index["IMG_0042.jpeg"].Text)
	assert.Equal(t, "+15551234567", index["IMG_0042.jpeg"].Sender)
	assert.False(t, index["IMG_0042.jpeg"].FromMe)
	assert.True(t, index["video.mov"].FromMe)
	assert.Empty(t, index["video.mov"].Sender)
}

func writeExport(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func readDoc(t *testing.T, outputDir string) document {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(outputDir, "metadata.json"))
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestPreprocessRun(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()

	writeExport(t, in, "2021-03-14 09 26 53 - Alice - IMG_0042.jpeg", []byte("photo-bytes"))
	writeExport(t, in, "2021-03-15 18 00 01 - Alice & Bob - clip.mov", []byte("video-bytes"))
	writeExport(t, in, "random.txt", []byte("stray"))
	csv := "Message Date,Type,Sender Name,Text,Attachment\n" +
		"2021-03-14 09:26:53,incoming,Alice,look at this,IMG_0042.jpeg\n"
	writeExport(t, in, "Messages - Alice.csv", []byte(csv))

	p := New()
	require.True(t, p.Detect(in))
	require.NoError(t, p.preprocessRun(context.Background(), in, out, 2, nil, observability.Discard()))

	doc := readDoc(t, out)
	require.Len(t, doc.Conversations, 2)

	dm := doc.Conversations[0]
	assert.Equal(t, "Alice", dm.ID)
	assert.Equal(t, "dm", string(dm.Type))
	require.Len(t, dm.Messages, 1)
	assert.Equal(t, "Alice", dm.Messages[0].Sender)
	assert.Equal(t, "look at this", dm.Messages[0].Text)
	require.Len(t, dm.Messages[0].MediaFiles, 1)
	assert.Equal(t, "2021-03-14_09-26-53_IMG_0042.jpeg", dm.Messages[0].MediaFiles[0])

	group := doc.Conversations[1]
	assert.Equal(t, "Alice & Bob", group.ID)
	assert.Equal(t, "group", string(group.Type))
	require.Len(t, group.Messages, 1)
	assert.Empty(t, group.Messages[0].Text, "no transcript row for this attachment")

	for _, name := range []string{"2021-03-14_09-26-53_IMG_0042.jpeg", "2021-03-15_18-00-01_clip.mov"} {
		_, err := os.Stat(filepath.Join(out, "media", name))
		assert.NoError(t, err, name)
	}

	// Copied attachments carry their sent timestamps.
	info, err := os.Stat(filepath.Join(out, "media", "2021-03-14_09-26-53_IMG_0042.jpeg"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 3, 14, 9, 26, 53, 0, time.UTC), info.ModTime().UTC())

	assert.Equal(t, []string{"random.txt"}, doc.OrphanedMedia)
	_, err = os.Stat(filepath.Join(out, "issues", "failed-matching", "media", "random.txt"))
	assert.NoError(t, err)
}

// A second export of the same history consolidates into the existing
// output: identical content dedupes against the first run's files and
// the conversation gains only the new message.
func TestPreprocessRun_Consolidation(t *testing.T) {
	out := t.TempDir()

	first := t.TempDir()
	writeExport(t, first, "2021-03-14 09 26 53 - Alice - IMG_0042.jpeg", []byte("photo-bytes"))
	p := New()
	require.NoError(t, p.preprocessRun(context.Background(), first, out, 2, nil, observability.Discard()))

	second := t.TempDir()
	writeExport(t, second, "2021-03-14 09 26 53 - Alice - IMG_0042.jpeg", []byte("photo-bytes"))
	writeExport(t, second, "2021-04-01 12 00 00 - Alice - new.jpeg", []byte("new-bytes"))
	require.NoError(t, p.preprocessRun(context.Background(), second, out, 2, nil, observability.Discard()))

	doc := readDoc(t, out)
	assert.Equal(t, true, doc.ExportInfo["consolidated"])
	assert.Equal(t, float64(1), doc.ExportInfo["duplicate_files"])
	assert.Equal(t, float64(1), doc.ExportInfo["unique_files"])

	entries, err := os.ReadDir(filepath.Join(out, "media"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "duplicate absorbed, new file added")

	require.Len(t, doc.Conversations, 1)
	conv := doc.Conversations[0]
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, conv.Messages[0].MediaFiles, conv.Messages[1].MediaFiles,
		"re-exported attachment points at the first run's file")
	assert.Equal(t, []string{"2021-04-01_12-00-00_new.jpeg"}, conv.Messages[2].MediaFiles)
}

func TestDetect(t *testing.T) {
	empty := t.TempDir()
	assert.False(t, New().Detect(empty))

	withDB := t.TempDir()
	writeExport(t, withDB, "sms.db", []byte("not really a db"))
	assert.True(t, New().Detect(withDB))
}
