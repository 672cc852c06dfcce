// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlevoice

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

func TestParseThreadName(t *testing.T) {
	name, ok := parseThreadName("Alice Smith - Text - 2020-01-15T10_30_00Z.html")
	require.True(t, ok)
	assert.Equal(t, "Alice Smith", name.Contact)
	assert.Equal(t, kindText, name.Kind)
	assert.Equal(t, time.Date(2020, 1, 15, 10, 30, 0, 0, time.UTC), name.Started)

	_, ok = parseThreadName("random.html")
	assert.False(t, ok)

	name, ok = parseThreadName(" - Voicemail - 2020-01-15T10_30_00Z.html")
	require.True(t, ok)
	assert.Equal(t, "", name.Contact)
	assert.Equal(t, kindVoicemail, name.Kind)
}

const transcriptHTML = `<html><body>
<div class="message">
<abbr class="dt" title="2020-01-15T10:30:00.000-05:00"></abbr>
<cite class="sender vcard"><a class="tel" href="tel:+15551234567"><span class="fn">Alice Smith</span></a></cite>
<q>check this out</q>
<div class="media"><img src="Alice Smith - Text - 2020-01-15T10_30_00Z" alt="Image MMS Attachment"/></div>
</div>
<div class="message">
<abbr class="dt" title="2020-01-15T10:31:00.000-05:00"></abbr>
<cite class="sender vcard"><abbr class="fn" title="">Me</abbr></cite>
<q>nice one</q>
</div>
</body></html>`

func TestParseTranscript(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "thread.html")
	require.NoError(t, os.WriteFile(path, []byte(transcriptHTML), 0644))

	msgs, err := parseTranscript(path)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "Alice Smith", msgs[0].Sender)
	assert.Equal(t, "check this out", msgs[0].Text)
	assert.Equal(t, time.Date(2020, 1, 15, 15, 30, 0, 0, time.UTC), msgs[0].When)
	require.Len(t, msgs[0].MediaRefs, 1)
	assert.Equal(t, "Alice Smith - Text - 2020-01-15T10_30_00Z", msgs[0].MediaRefs[0])

	assert.Equal(t, "Me", msgs[1].Sender)
	assert.Empty(t, msgs[1].MediaRefs)
}

func TestMatcherChain(t *testing.T) {
	chain := matcherChain()
	ref := "Alice Smith - Text - 2020-01-15T10_30_00Z"

	// Reference without extension matches the on-disk jpg.
	m := &preprocess.MediaFile{Name: ref + ".jpg", DupIndex: -1}
	require.NotNil(t, chain.MatchOne(m, []*preprocess.Record{{Name: ref, DupIndex: -1}}))

	// Counter suffix on the media side.
	m2 := &preprocess.MediaFile{Name: ref + "-1.jpg", DupIndex: -1}
	require.NotNil(t, chain.MatchOne(m2, []*preprocess.Record{{Name: ref + ".jpg", DupIndex: -1}}))

	// Counter suffix on the reference side only.
	m4 := &preprocess.MediaFile{Name: "photo.jpg", DupIndex: -1}
	require.NotNil(t, chain.MatchOne(m4, []*preprocess.Record{{Name: "photo-1", DupIndex: -1}}))
	m5 := &preprocess.MediaFile{Name: "photo.jpg", DupIndex: -1}
	require.NotNil(t, chain.MatchOne(m5, []*preprocess.Record{{Name: "photo-1.jpg", DupIndex: -1}}))

	m3 := &preprocess.MediaFile{Name: "unrelated.jpg", DupIndex: -1}
	assert.Nil(t, chain.MatchOne(m3, []*preprocess.Record{{Name: ref, DupIndex: -1}}))
}

func TestPreprocessRun(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	callsDir := filepath.Join(in, "Takeout", "Voice", "Calls")
	require.NoError(t, os.MkdirAll(callsDir, 0750))

	base := "Alice Smith - Text - 2020-01-15T10_30_00Z"
	require.NoError(t, os.WriteFile(filepath.Join(callsDir, base+".html"), []byte(transcriptHTML), 0644))
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, []byte("mms")...)
	require.NoError(t, os.WriteFile(filepath.Join(callsDir, base+".jpg"), jpeg, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(callsDir, "stray.jpg"), append(jpeg, 'x'), 0644))

	p := New()
	require.True(t, p.Detect(in))
	err := p.preprocessRun(context.Background(), callsDir, out, 2, nil, observability.Discard())
	require.NoError(t, err)

	var doc document
	data, err := os.ReadFile(filepath.Join(out, "metadata.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))

	require.Len(t, doc.Conversations, 1)
	conv := doc.Conversations[0]
	assert.Equal(t, "Alice Smith", conv.ID)
	require.Len(t, conv.Messages, 2)
	require.Len(t, conv.Messages[0].MediaFiles, 1)
	assert.Contains(t, conv.Messages[0].MediaFiles[0], "2020-01-15_15-30-00")
	assert.Equal(t, "Text", conv.Messages[0].Kind)
	assert.Equal(t, []string{"stray.jpg"}, doc.OrphanedMedia)

	entries, err := os.ReadDir(filepath.Join(out, "media"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Copied media carries the claiming message's timestamp.
	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 15, 15, 30, 0, 0, time.UTC), info.ModTime().UTC())
}
