// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/observability"
)

func writeJSON(t *testing.T, dir, name string, doc any) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func writeChannel(t *testing.T, messagesRoot, id string, info map[string]any, msgs []map[string]any) {
	t.Helper()
	dir := filepath.Join(messagesRoot, "c"+id)
	writeJSON(t, dir, "channel.json", info)
	writeJSON(t, dir, "messages.json", msgs)
}

func TestAttachmentName(t *testing.T) {
	// url.Parse decodes the percent escape.
	got := attachmentName("123456", "https://cdn.discordapp.com/attachments/1/2/My%20File.PNG")
	assert.Equal(t, "123456_My File.png", got)

	got = attachmentName("9", "https://cdn.discordapp.com/attachments/1/2/a<b>c.jpg")
	assert.Equal(t, "9_a_b_c.jpg", got)
}

func TestConversationIdentity(t *testing.T) {
	ctype, title := conversationIdentity(channelInfo{Type: "DM", Recipients: []string{"alex"}})
	assert.Equal(t, "dm", ctype)
	assert.Equal(t, "alex", title)

	gi := channelInfo{Type: "GUILD_TEXT", Name: "general"}
	gi.Guild = &struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}{ID: "1", Name: "My Server"}
	ctype, title = conversationIdentity(gi)
	assert.Equal(t, "server", ctype)
	assert.Equal(t, "general in My Server", title)
}

// One attachment shared by two channels is downloaded twice but kept
// once; the second message points at the canonical file.
func TestPreprocessRun_DedupeAcrossChannels(t *testing.T) {
	payload := []byte("shared-attachment-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/photo.jpg":
			w.Write(payload)
		case "/files/gone.jpg":
			http.Error(w, "expired", http.StatusForbidden)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	in := t.TempDir()
	out := t.TempDir()
	messagesRoot := filepath.Join(in, "Messages")
	writeJSON(t, messagesRoot, "index.json", map[string]string{"100": "alex", "200": "general"})
	writeChannel(t, messagesRoot, "100",
		map[string]any{"id": "100", "type": "DM", "recipients": []string{"alex"}},
		[]map[string]any{{
			"ID": 11, "Timestamp": "2022-01-01 10:00:00",
			"Contents":    "check this",
			"Attachments": srv.URL + "/files/photo.jpg",
		}})
	writeChannel(t, messagesRoot, "200",
		map[string]any{"id": "200", "type": "GUILD_TEXT", "name": "general",
			"guild": map[string]string{"id": "9", "name": "My Server"}},
		[]map[string]any{
			{
				"ID": 22, "Timestamp": "2022-01-02 11:00:00",
				"Attachments": srv.URL + "/files/photo.jpg",
			},
			{
				"ID": 33, "Timestamp": "2022-01-03 12:00:00",
				"Attachments": srv.URL + "/files/gone.jpg",
			},
		})

	p := New()
	require.True(t, p.Detect(in))
	err := p.preprocessRun(context.Background(), messagesRoot, out, 2, observability.Discard())
	require.NoError(t, err)

	var doc document
	data, err := os.ReadFile(filepath.Join(out, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, float64(1), doc.ExportInfo["unique_files"])
	assert.Equal(t, float64(1), doc.ExportInfo["duplicate_files"])

	entries, err := os.ReadDir(filepath.Join(out, "media"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "11_photo.jpg", entries[0].Name())

	// The kept file's mtime reflects the claiming message's timestamp.
	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 1, 1, 10, 0, 0, 0, time.UTC), info.ModTime().UTC())

	require.Len(t, doc.Conversations, 2)
	dm, guild := doc.Conversations[0], doc.Conversations[1]
	require.Len(t, dm.Messages, 1)
	require.Len(t, dm.Messages[0].MediaFiles, 1)
	require.Len(t, guild.Messages, 2)
	require.Len(t, guild.Messages[0].MediaFiles, 1)
	assert.Equal(t, dm.Messages[0].MediaFiles[0], guild.Messages[0].MediaFiles[0],
		"duplicate points at the canonical file")
	assert.Empty(t, guild.Messages[1].MediaFiles, "expired attachment yields no file")

	// The expired link is recorded as orphaned metadata.
	data, err = os.ReadFile(filepath.Join(out, "issues", "failure-report.json"))
	require.NoError(t, err)
	var rep map[string]any
	require.NoError(t, json.Unmarshal(data, &rep))
	summary := rep["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["failed_matching"])
}

// Two attachments sharing a basename within one message carry distinct
// content; both must survive to media/ under suffixed names.
func TestPreprocessRun_SameBasenameAttachments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/attachments/1/111/image.png":
			w.Write([]byte("first-image-bytes"))
		case "/attachments/1/222/image.png":
			w.Write([]byte("second-image-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	in := t.TempDir()
	out := t.TempDir()
	messagesRoot := filepath.Join(in, "Messages")
	writeJSON(t, messagesRoot, "index.json", map[string]string{"100": "alex"})
	writeChannel(t, messagesRoot, "100",
		map[string]any{"id": "100", "type": "DM", "recipients": []string{"alex"}},
		[]map[string]any{{
			"ID": 11, "Timestamp": "2022-01-01 10:00:00",
			"Attachments": srv.URL + "/attachments/1/111/image.png " + srv.URL + "/attachments/1/222/image.png",
		}})

	p := New()
	err := p.preprocessRun(context.Background(), messagesRoot, out, 2, observability.Discard())
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(out, "media"))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"11_image.png", "11_image_1.png"}, names)

	var doc document
	data, err := os.ReadFile(filepath.Join(out, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, float64(2), doc.ExportInfo["unique_files"])
	assert.Equal(t, float64(0), doc.ExportInfo["duplicate_files"])
	require.Len(t, doc.Conversations, 1)
	require.Len(t, doc.Conversations[0].Messages, 1)
	assert.ElementsMatch(t, []string{"11_image.png", "11_image_1.png"},
		doc.Conversations[0].Messages[0].MediaFiles)
}

// A nameless DM channel takes its title from the package index's
// description; a null index entry leaves the ID fallback.
func TestBuildConversations_IndexDescriptionFallback(t *testing.T) {
	in := t.TempDir()
	messagesRoot := filepath.Join(in, "Messages")
	writeJSON(t, messagesRoot, "index.json", map[string]any{
		"300": "Direct Message with casey#1234",
		"400": nil,
	})
	writeChannel(t, messagesRoot, "300",
		map[string]any{"id": "300", "type": "DM"}, []map[string]any{})
	writeChannel(t, messagesRoot, "400",
		map[string]any{"id": "400", "type": "DM"}, []map[string]any{})

	channels, err := loadChannels(messagesRoot)
	require.NoError(t, err)
	convs := buildConversations(channels)
	require.Len(t, convs, 2)
	assert.Equal(t, "Direct Message with casey#1234", convs[0].Title)
	assert.Equal(t, "400", convs[1].Title)
}

func TestFetch_TerminalStatusDoesNotRetry(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.NotFound(w, r)
	}))
	defer srv.Close()

	d := NewDownloader(100)
	err := d.Fetch(context.Background(), srv.URL+"/gone.png", filepath.Join(t.TempDir(), "gone.png"))
	require.Error(t, err)
	assert.True(t, IsTerminal(err))
	assert.Equal(t, 1, hits)
}
