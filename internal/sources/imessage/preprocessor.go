// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package imessage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"memoria/internal/checksum"
	"memoria/internal/docmeta"
	"memoria/internal/failures"
	"memoria/internal/pathfilter"
	"memoria/internal/preprocess"
)

// messageRef ties a matched attachment to its conversation context.
type messageRef struct {
	Contact string
	Name    attachmentName
	Entry   *transcriptEntry
	DB      *dbMessage
}

type outMessage struct {
	Sender     string   `json:"sender,omitempty"`
	Created    string   `json:"created"`
	Text       string   `json:"text,omitempty"`
	FromMe     bool     `json:"from_me,omitempty"`
	MediaFiles []string `json:"media_files,omitempty"`
}

type outConversation struct {
	ID       string                      `json:"id"`
	Type     preprocess.ConversationType `json:"type"`
	Title    string                      `json:"title"`
	Messages []outMessage                `json:"messages"`
}

type document struct {
	ExportInfo    preprocess.ExportInfo    `json:"export_info"`
	Conversations []outConversation        `json:"conversations"`
	Documents     map[string]*docmeta.Info `json:"documents,omitempty"`
	OrphanedMedia []string                 `json:"orphaned_media"`
}

// preprocessRun scans the export, enriches attachments from sidecars
// and chat.db, copies unique files and emits (or consolidates) the
// document.
func (p *Processor) preprocessRun(ctx context.Context, inputDir, outputDir string, workers int, extraPatterns []string, log zerolog.Logger) error {
	filter := pathfilter.New(extraPatterns...)
	tracker := failures.NewTracker(p.Name(), inputDir, log)

	transcripts, err := loadTranscripts(inputDir)
	if err != nil {
		return err
	}
	var dbIndex map[string]*dbMessage
	if dbPath := findChatDB(inputDir); dbPath != "" {
		dbIndex, err = loadChatDB(ctx, dbPath)
		if err != nil {
			log.Warn().Err(err).Str("db", dbPath).Msg("chat database unreadable, continuing without enrichment")
			dbIndex = nil
		} else {
			log.Info().Int("attachments", len(dbIndex)).Msg("loaded chat database context")
		}
	}

	files, err := preprocess.ScanMedia(inputDir, filter)
	if err != nil {
		return err
	}

	var matched []*preprocess.MediaFile
	var orphaned []string
	for _, f := range files {
		ext := filepath.Ext(f.Name)
		if ext == ".csv" || strings.HasPrefix(f.Name, "chat.db") || strings.HasPrefix(f.Name, "sms.db") {
			continue
		}
		name, ok := parseAttachmentName(f.Stem())
		if !ok {
			tracker.AddOrphanedMedia(f.Path, "filename outside the attachment naming scheme", nil)
			orphaned = append(orphaned, f.Name)
			continue
		}
		name.Original += ext
		ref := &messageRef{Contact: name.Contact, Name: name}
		ref.Entry = transcripts[transcriptKey{unix: name.Sent.Unix(), attachment: name.Original}]
		if dbIndex != nil {
			ref.DB = dbIndex[name.Original]
		}
		f.Metadata = ref
		f.Matched = true
		f.Name = name.Sent.Format("2006-01-02_15-04-05") + "_" + preprocess.SanitizeFilename(name.Original, 0)
		matched = append(matched, f)
	}
	log.Info().Int("attachments", len(matched)).Int("transcript_rows", len(transcripts)).Msg("scanning export")

	mediaDir := filepath.Join(outputDir, "media")
	registry := preprocess.NewHashRegistry()
	// Consolidation: claims from earlier runs into the same output keep
	// their names and absorb this run's duplicates.
	if err := seedRegistry(registry, mediaDir, log); err != nil {
		return err
	}

	copier := &preprocess.Copier{
		Workers:  workers,
		Registry: registry,
		Tracker:  tracker,
		Log:      log,
		ContextOf: func(m *preprocess.MediaFile) any {
			ref := m.Metadata.(*messageRef)
			return map[string]any{"conversation": ref.Contact, "sent": ref.Name.Sent.Format(time.RFC3339)}
		},
	}
	stats, err := copier.CopyAll(ctx, matched, mediaDir)
	if err != nil {
		return err
	}
	preprocess.AlignModTimes(mediaDir, matched, func(m *preprocess.MediaFile) time.Time {
		return m.Metadata.(*messageRef).Name.Sent
	}, log)

	documents := map[string]*docmeta.Info{}
	for _, m := range matched {
		if m.OutputName == "" || !docmeta.IsPDF(m.Path) {
			continue
		}
		if info, err := docmeta.Inspect(m.Path); err == nil {
			documents[m.OutputName] = info
		} else {
			log.Debug().Err(err).Str("file", m.OutputName).Msg("pdf inspection failed")
		}
	}

	sort.Strings(orphaned)
	doc := &document{
		ExportInfo:    preprocess.NewExportInfo(inputDir, ""),
		Conversations: buildConversations(matched),
		Documents:     documents,
		OrphanedMedia: orphaned,
	}
	doc.ExportInfo.AddStats(stats)
	mergeExisting(outputDir, doc, log)
	if err := preprocess.WriteMetadata(outputDir, doc); err != nil {
		return err
	}
	tracker.HandleFailures(outputDir)

	om, oj, pf := tracker.Counts()
	log.Info().
		Int64("unique", stats.Unique.Load()).
		Int64("duplicates", stats.Duplicates.Load()).
		Int("orphaned_media", om).
		Int("orphaned_metadata", oj).
		Int("processing_failures", pf).
		Msg("preprocessing complete")
	return nil
}

// seedRegistry claims the hashes of files already present in the
// output from earlier consolidated runs.
func seedRegistry(registry *preprocess.HashRegistry, mediaDir string, log zerolog.Logger) error {
	entries, err := os.ReadDir(mediaDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(mediaDir, e.Name())
		hash, err := checksum.File(path)
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("cannot hash existing output file")
			continue
		}
		registry.Claim(hash, e.Name(), path, nil)
	}
	return nil
}

// buildConversations groups attachments per contact, one message per
// attachment, chronologically ordered.
func buildConversations(matched []*preprocess.MediaFile) []outConversation {
	type accum struct {
		contact string
		group   bool
		msgs    []outMessage
		times   []time.Time
	}
	byContact := map[string]*accum{}
	for _, m := range matched {
		if m.OutputName == "" {
			continue
		}
		ref := m.Metadata.(*messageRef)
		acc, ok := byContact[ref.Contact]
		if !ok {
			acc = &accum{contact: ref.Contact, group: isGroupContact(ref.Contact)}
			byContact[ref.Contact] = acc
		}
		msg := outMessage{
			Created:    ref.Name.Sent.Format(time.RFC3339),
			MediaFiles: []string{m.OutputName},
		}
		if e := ref.Entry; e != nil {
			msg.Sender = e.Sender
			msg.Text = e.Text
			msg.FromMe = e.FromMe
		} else if d := ref.DB; d != nil {
			msg.Sender = d.Sender
			msg.Text = d.Text
			msg.FromMe = d.FromMe
		}
		acc.msgs = append(acc.msgs, msg)
		acc.times = append(acc.times, ref.Name.Sent)
	}

	ids := make([]string, 0, len(byContact))
	for id := range byContact {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]outConversation, 0, len(ids))
	for _, id := range ids {
		acc := byContact[id]
		order := make([]int, len(acc.msgs))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool { return acc.times[order[a]].Before(acc.times[order[b]]) })
		conv := outConversation{ID: id, Type: preprocess.ConversationDM, Title: id}
		if acc.group {
			conv.Type = preprocess.ConversationGroup
		}
		for _, idx := range order {
			conv.Messages = append(conv.Messages, acc.msgs[idx])
		}
		out = append(out, conv)
	}
	return out
}

// mergeExisting folds a previous run's document into doc so repeated
// invocations into one output directory consolidate instead of
// clobbering.
func mergeExisting(outputDir string, doc *document, log zerolog.Logger) {
	data, err := os.ReadFile(filepath.Join(outputDir, "metadata.json"))
	if err != nil {
		return
	}
	var prev document
	if err := json.Unmarshal(data, &prev); err != nil {
		log.Warn().Err(err).Msg("existing metadata.json unreadable, overwriting")
		return
	}

	byID := map[string]int{}
	for i, conv := range doc.Conversations {
		byID[conv.ID] = i
	}
	for _, conv := range prev.Conversations {
		if i, ok := byID[conv.ID]; ok {
			doc.Conversations[i].Messages = append(conv.Messages, doc.Conversations[i].Messages...)
			continue
		}
		doc.Conversations = append(doc.Conversations, conv)
	}
	sort.Slice(doc.Conversations, func(i, j int) bool { return doc.Conversations[i].ID < doc.Conversations[j].ID })
	for name, info := range prev.Documents {
		if _, ok := doc.Documents[name]; !ok {
			if doc.Documents == nil {
				doc.Documents = map[string]*docmeta.Info{}
			}
			doc.Documents[name] = info
		}
	}
	doc.OrphanedMedia = append(prev.OrphanedMedia, doc.OrphanedMedia...)
	doc.ExportInfo["consolidated"] = true
}
