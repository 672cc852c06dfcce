// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlevoice

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"memoria/internal/failures"
	"memoria/internal/pathfilter"
	"memoria/internal/preprocess"
)

// voiceRef ties a matched media file to its claiming transcript
// message.
type voiceRef struct {
	Contact string
	Kind    threadKind
	Msg     *voiceMessage
}

type outMessage struct {
	Sender     string   `json:"sender"`
	Created    string   `json:"created,omitempty"`
	Kind       string   `json:"kind"`
	Text       string   `json:"text,omitempty"`
	MediaFiles []string `json:"media_files,omitempty"`
}

type outConversation struct {
	ID       string                      `json:"id"`
	Type     preprocess.ConversationType `json:"type"`
	Title    string                      `json:"title"`
	Messages []outMessage                `json:"messages"`
}

type document struct {
	ExportInfo    preprocess.ExportInfo `json:"export_info"`
	Conversations []outConversation     `json:"conversations"`
	OrphanedMedia []string              `json:"orphaned_media"`
}

// thread is one parsed transcript awaiting emission.
type thread struct {
	name threadName
	msgs []*voiceMessage
}

// preprocessRun parses every transcript under Calls, matches the media
// references, copies unique files and emits the per-contact document.
func (p *Processor) preprocessRun(ctx context.Context, callsDir, outputDir string, workers int, extraPatterns []string, log zerolog.Logger) error {
	filter := pathfilter.New(extraPatterns...)
	tracker := failures.NewTracker(p.Name(), callsDir, log)

	files, err := preprocess.ScanFlat(callsDir, filter)
	if err != nil {
		return fmt.Errorf("scan calls: %w", err)
	}

	var threads []*thread
	var media []*preprocess.MediaFile
	var records []*preprocess.Record

	for _, f := range files {
		if !strings.EqualFold(filepath.Ext(f.Name), ".html") {
			media = append(media, f)
			continue
		}
		name, ok := parseThreadName(f.Name)
		if !ok {
			log.Debug().Str("file", f.Name).Msg("unrecognized transcript name")
			continue
		}
		msgs, err := parseTranscript(f.Path)
		if err != nil {
			tracker.AddProcessingFailure(f.Path, "unparseable transcript", map[string]any{"error": err.Error()})
			continue
		}
		th := &thread{name: name, msgs: msgs}
		threads = append(threads, th)
		for _, msg := range msgs {
			for _, ref := range msg.MediaRefs {
				records = append(records, &preprocess.Record{
					Name:     ref,
					DupIndex: -1,
					Data:     &voiceRef{Contact: name.Contact, Kind: name.Kind, Msg: msg},
				})
			}
		}
	}
	log.Info().Int("threads", len(threads)).Int("media", len(media)).Msg("scanning call transcripts")

	chain := matcherChain()
	unmatchedMedia := chain.MatchAll(media, records, func(m *preprocess.MediaFile, r *preprocess.Record) {
		ref := r.Data.(*voiceRef)
		m.Metadata = ref
		if !ref.Msg.When.IsZero() {
			m.Name = ref.Msg.When.UTC().Format("2006-01-02_15-04-05") + "_" + m.Name
		}
	})

	var orphaned []string
	for _, m := range unmatchedMedia {
		orphaned = append(orphaned, m.Name)
		tracker.AddOrphanedMedia(m.Path, "no transcript references this file", nil)
	}
	sort.Strings(orphaned)
	for _, r := range preprocess.UnmatchedRecords(records) {
		ref := r.Data.(*voiceRef)
		tracker.AddOrphanedMetadata(r.Name, nil, "referenced media missing from export", map[string]any{
			"contact": ref.Contact,
		})
	}

	var matched []*preprocess.MediaFile
	for _, m := range media {
		if m.Matched {
			matched = append(matched, m)
		}
	}

	copier := &preprocess.Copier{
		Workers:  workers,
		Registry: preprocess.NewHashRegistry(),
		Tracker:  tracker,
		Log:      log,
		ContextOf: func(m *preprocess.MediaFile) any {
			ref := m.Metadata.(*voiceRef)
			return map[string]any{"contact": ref.Contact, "kind": string(ref.Kind)}
		},
	}
	stats, err := copier.CopyAll(ctx, matched, filepath.Join(outputDir, "media"))
	if err != nil {
		return err
	}
	for _, m := range matched {
		ref := m.Metadata.(*voiceRef)
		if m.OutputName != "" {
			ref.Msg.files = append(ref.Msg.files, m.OutputName)
		}
	}
	preprocess.AlignModTimes(filepath.Join(outputDir, "media"), matched, func(m *preprocess.MediaFile) time.Time {
		return m.Metadata.(*voiceRef).Msg.When
	}, log)

	doc := &document{
		ExportInfo:    preprocess.NewExportInfo(callsDir, ""),
		Conversations: buildConversations(threads),
		OrphanedMedia: orphaned,
	}
	doc.ExportInfo["threads_processed"] = len(threads)
	doc.ExportInfo.AddStats(stats)
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

// buildConversations groups threads by contact and orders messages
// chronologically. Threads without a contact name group under the
// placeholder identity.
func buildConversations(threads []*thread) []outConversation {
	type convAccum struct {
		title string
		msgs  []outMessage
		times []time.Time
	}
	byContact := make(map[string]*convAccum)
	for _, th := range threads {
		contact := th.name.Contact
		if contact == "" {
			contact = "Unknown"
		}
		acc, ok := byContact[contact]
		if !ok {
			acc = &convAccum{title: contact}
			byContact[contact] = acc
		}
		for _, msg := range th.msgs {
			created := ""
			when := msg.When
			if when.IsZero() {
				when = th.name.Started
			}
			if !when.IsZero() {
				created = when.Format(time.RFC3339)
			}
			acc.msgs = append(acc.msgs, outMessage{
				Sender:     msg.Sender,
				Created:    created,
				Kind:       string(th.name.Kind),
				Text:       msg.Text,
				MediaFiles: msg.files,
			})
			acc.times = append(acc.times, when)
		}
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
		msgs := make([]outMessage, len(order))
		for i, idx := range order {
			msgs[i] = acc.msgs[idx]
		}
		out = append(out, outConversation{
			ID:       id,
			Type:     preprocess.ConversationDM,
			Title:    acc.title,
			Messages: msgs,
		})
	}
	return out
}
