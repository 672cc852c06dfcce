// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlechat

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/observability"
	"memoria/internal/preprocess"
)

func writeTestFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, content, 0644))
}

func writeJSON(t *testing.T, dir, name string, doc any) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	writeTestFile(t, dir, name, data)
}

func TestParseChatTime(t *testing.T) {
	want := time.Date(2023, 4, 7, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, want, parseChatTime("Friday, April 7, 2023 at 3:04:05 PM UTC"))
	// Narrow no-break space before the meridiem.
	assert.Equal(t, want, parseChatTime("Friday, April 7, 2023 at 3:04:05\u202fPM UTC"))
	assert.True(t, parseChatTime("bogus").IsZero())
}

func TestSanitizeExportName(t *testing.T) {
	assert.Equal(t, "what_s_up_.jpg", sanitizeExportName("what's=up?.jpg"))
	assert.Equal(t, "plain.png", sanitizeExportName("plain.png"))
}

func TestMatcherChain_SanitizedAndTruncated(t *testing.T) {
	chain := matcherChain()

	m := &preprocess.MediaFile{Name: "what_s_up_.jpg", DupIndex: -1}
	rec := &preprocess.Record{Name: "what's=up?.jpg", DupIndex: -1}
	require.NotNil(t, chain.MatchOne(m, []*preprocess.Record{rec}))

	long := "a-very-long-attachment-name-that-was-cut-by-the-exporter"
	m2 := &preprocess.MediaFile{Name: long[:34] + ".jpg", DupIndex: -1}
	rec2 := &preprocess.Record{Name: long + ".jpg", DupIndex: -1}
	require.NotNil(t, chain.MatchOne(m2, []*preprocess.Record{rec2}))

	m3 := &preprocess.MediaFile{Name: "short.jpg", DupIndex: -1}
	rec3 := &preprocess.Record{Name: "other.jpg", DupIndex: -1}
	assert.Nil(t, chain.MatchOne(m3, []*preprocess.Record{rec3}))
}

func TestConversationIdentity(t *testing.T) {
	owner := chatUser{Name: "Me", Email: "me@example.com"}

	ctype, title := conversationIdentity("DM 4xyz", &groupInfo{Members: []chatUser{
		{Name: "Me", Email: "me@example.com"},
		{Name: "Alex", Email: "alex@example.com"},
	}}, owner)
	assert.Equal(t, "dm", ctype)
	assert.Equal(t, "Alex", title)

	ctype, title = conversationIdentity("Space AAQA", &groupInfo{Name: "Team Chat"}, owner)
	assert.Equal(t, "space", ctype)
	assert.Equal(t, "Team Chat", title)

	// An unnamed space is titled by its non-owner members' first names.
	ctype, title = conversationIdentity("Space AAQB", &groupInfo{Members: []chatUser{
		{Name: "Me", Email: "me@example.com"},
		{Name: "Alex Johnson", Email: "alex@example.com"},
		{Name: "Sam Lee", Email: "sam@example.com"},
	}}, owner)
	assert.Equal(t, "space", ctype)
	assert.Equal(t, "Alex, Sam", title)

	ctype, title = conversationIdentity("Space AAQA", nil, owner)
	assert.Equal(t, "space", ctype)
	assert.Equal(t, "Space AAQA", title)
}

func TestPreprocessRun(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	chatRoot := filepath.Join(in, "Takeout", "Google Chat")
	dmDir := filepath.Join(chatRoot, "Groups", "DM 4abc")

	writeJSON(t, filepath.Join(chatRoot, "Users", "Me"), "user_info.json", map[string]any{
		"user": map[string]string{"name": "Me", "email": "me@example.com"},
	})
	writeJSON(t, dmDir, "group_info.json", map[string]any{
		"members": []map[string]string{
			{"name": "Me", "email": "me@example.com"},
			{"name": "Alex", "email": "alex@example.com"},
		},
	})
	writeJSON(t, dmDir, "messages.json", map[string]any{
		"messages": []map[string]any{
			{
				"creator":      map[string]string{"name": "Alex", "email": "alex@example.com"},
				"created_date": "Friday, April 7, 2023 at 3:04:05 PM UTC",
				"text":         "look at this",
				"attached_files": []map[string]string{
					{"original_name": "what's up?.jpg", "export_name": "what's=up?.jpg"},
				},
			},
			{
				"creator":      map[string]string{"name": "Me", "email": "me@example.com"},
				"created_date": "Friday, April 7, 2023 at 3:05:00 PM UTC",
				"text":         "nice",
			},
		},
	})
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("chat-photo")...)
	writeTestFile(t, dmDir, "what_s_up_.jpg", jpeg)
	writeTestFile(t, dmDir, "unreferenced.jpg", append(jpeg, 'x'))

	p := New()
	require.True(t, p.Detect(in))
	err := p.preprocessRun(context.Background(), chatRoot, out, 2, nil, observability.Discard())
	require.NoError(t, err)

	var doc document
	data, err := os.ReadFile(filepath.Join(out, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Len(t, doc.Conversations, 1)
	conv := doc.Conversations[0]
	assert.Equal(t, "DM 4abc", conv.ID)
	assert.Equal(t, "dm", string(conv.Type))
	assert.Equal(t, "Alex", conv.Title)
	require.Len(t, conv.Messages, 2)
	require.Len(t, conv.Messages[0].MediaFiles, 1)
	assert.Contains(t, conv.Messages[0].MediaFiles[0], "2023-04-07_15-04-05")
	assert.Empty(t, conv.Messages[1].MediaFiles)
	assert.Equal(t, []string{"unreferenced.jpg"}, doc.OrphanedMedia)
	assert.Equal(t, "Me", doc.ExportInfo["export_username"])

	// Copied media carries the claiming message's timestamp.
	info, err := os.Stat(filepath.Join(out, "media", conv.Messages[0].MediaFiles[0]))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 4, 7, 15, 4, 5, 0, time.UTC), info.ModTime().UTC())

	orphans, err := os.ReadDir(filepath.Join(out, "issues", "failed-matching", "media"))
	require.NoError(t, err)
	assert.Len(t, orphans, 1)
}

func TestDetect_RequiresGroups(t *testing.T) {
	in := t.TempDir()
	p := New()
	require.NoError(t, os.MkdirAll(filepath.Join(in, "Takeout", "Google Chat"), 0750))
	assert.False(t, p.Detect(in), "Groups directory required")
	require.NoError(t, os.MkdirAll(filepath.Join(in, "Takeout", "Google Chat", "Groups"), 0750))
	assert.True(t, p.Detect(in))
}
