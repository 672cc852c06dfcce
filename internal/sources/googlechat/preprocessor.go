// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlechat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"memoria/internal/failures"
	"memoria/internal/pathfilter"
	"memoria/internal/preprocess"
)

// chatRef ties a matched media file back to its claiming attachment.
type chatRef struct {
	GroupID  string
	MsgIndex int
	Msg      *chatMessage
	Original string
}

type outMessage struct {
	Sender     string   `json:"sender"`
	Email      string   `json:"email,omitempty"`
	Created    string   `json:"created"`
	Text       string   `json:"text,omitempty"`
	TopicID    string   `json:"topic_id,omitempty"`
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

// groupResult is one scanned group awaiting the copy pass.
type groupResult struct {
	id    string
	ctype preprocess.ConversationType
	title string
	msgs  []*chatMessage
}

// preprocessRun walks every group directory, matches attachments to
// their on-disk media, copies unique files and emits the normalized
// conversation document.
func (p *Processor) preprocessRun(ctx context.Context, chatRoot, outputDir string, workers int, extraPatterns []string, log zerolog.Logger) error {
	filter := pathfilter.New(extraPatterns...)
	tracker := failures.NewTracker(p.Name(), chatRoot, log)
	owner := loadOwner(chatRoot)

	groupsDir := filepath.Join(chatRoot, "Groups")
	groupEntries, err := os.ReadDir(groupsDir)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	log.Info().Int("groups", len(groupEntries)).Str("owner", owner.Name).Msg("scanning chat groups")

	var matched []*preprocess.MediaFile
	var groups []*groupResult
	var orphaned []string

	for _, entry := range groupEntries {
		if !entry.IsDir() || filter.Banned(filepath.Join(groupsDir, entry.Name())) {
			continue
		}
		groupDir := filepath.Join(groupsDir, entry.Name())
		group, items, groupOrphans, err := p.processGroup(groupDir, entry.Name(), owner, filter, tracker)
		if err != nil {
			log.Warn().Err(err).Str("group", entry.Name()).Msg("group scan failed")
			continue
		}
		groups = append(groups, group)
		matched = append(matched, items...)
		orphaned = append(orphaned, groupOrphans...)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].id < groups[j].id })
	sort.Strings(orphaned)

	copier := &preprocess.Copier{
		Workers:  workers,
		Registry: preprocess.NewHashRegistry(),
		Tracker:  tracker,
		Log:      log,
		ContextOf: func(m *preprocess.MediaFile) any {
			ref := m.Metadata.(*chatRef)
			return map[string]any{"group_id": ref.GroupID, "message_index": ref.MsgIndex}
		},
	}
	stats, err := copier.CopyAll(ctx, matched, filepath.Join(outputDir, "media"))
	if err != nil {
		return err
	}

	// Message media_files reflect the deduplicated output names.
	for _, m := range matched {
		ref := m.Metadata.(*chatRef)
		if m.OutputName != "" {
			ref.Msg.files = append(ref.Msg.files, m.OutputName)
		}
	}
	preprocess.AlignModTimes(filepath.Join(outputDir, "media"), matched, func(m *preprocess.MediaFile) time.Time {
		return m.Metadata.(*chatRef).Msg.created
	}, log)

	doc := &document{
		ExportInfo:    preprocess.NewExportInfo(chatRoot, owner.Name),
		Conversations: buildConversations(groups),
		OrphanedMedia: orphaned,
	}
	doc.ExportInfo["conversations"] = len(groups)
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

// processGroup scans one group directory and matches its attachments.
func (p *Processor) processGroup(groupDir, dirName string, owner chatUser, filter *pathfilter.Filter, tracker *failures.Tracker) (*groupResult, []*preprocess.MediaFile, []string, error) {
	msgs, err := loadMessages(groupDir)
	if err != nil {
		return nil, nil, nil, err
	}
	gi := loadGroupInfo(groupDir)
	ctype, title := conversationIdentity(dirName, gi, owner)

	files, err := preprocess.ScanFlat(groupDir, filter)
	if err != nil {
		return nil, nil, nil, err
	}
	var media []*preprocess.MediaFile
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f.Name), ".json") {
			continue
		}
		media = append(media, f)
	}

	var records []*preprocess.Record
	for i, msg := range msgs {
		for _, att := range msg.AttachedFiles {
			records = append(records, &preprocess.Record{
				Name:     att.ExportName,
				DupIndex: -1,
				Data:     &chatRef{GroupID: dirName, MsgIndex: i, Msg: msg, Original: att.OriginalName},
			})
		}
	}

	chain := matcherChain()
	unmatchedMedia := chain.MatchAll(media, records, func(m *preprocess.MediaFile, r *preprocess.Record) {
		ref := r.Data.(*chatRef)
		m.Metadata = ref
		if !ref.Msg.created.IsZero() {
			m.Name = ref.Msg.created.UTC().Format("2006-01-02_15-04-05") + "_" + m.Name
		}
	})

	var orphaned []string
	for _, m := range unmatchedMedia {
		orphaned = append(orphaned, m.Name)
		tracker.AddOrphanedMedia(m.Path, "no message attachment references this file", map[string]any{"group": dirName})
	}
	for _, r := range preprocess.UnmatchedRecords(records) {
		ref := r.Data.(*chatRef)
		tracker.AddOrphanedMetadata(r.Name, ref.Msg, "attached file missing from export", map[string]any{
			"group":         dirName,
			"original_name": ref.Original,
		})
	}

	group := &groupResult{id: dirName, ctype: preprocess.ConversationType(ctype), title: title, msgs: msgs}
	var matched []*preprocess.MediaFile
	for _, m := range media {
		if m.Matched {
			matched = append(matched, m)
		}
	}
	return group, matched, orphaned, nil
}

// buildConversations renders the emitted conversation list from the
// parsed groups once output filenames are known.
func buildConversations(groups []*groupResult) []outConversation {
	out := make([]outConversation, 0, len(groups))
	for _, g := range groups {
		conv := outConversation{ID: g.id, Type: g.ctype, Title: g.title}
		for _, msg := range g.msgs {
			conv.Messages = append(conv.Messages, outMessage{
				Sender:     msg.Creator.Name,
				Email:      msg.Creator.Email,
				Created:    msg.CreatedDate,
				Text:       msg.Text,
				TopicID:    msg.TopicID,
				MediaFiles: msg.files,
			})
		}
		out = append(out, conv)
	}
	return out
}
