// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package snapchat

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"memoria/internal/checksum"
	"memoria/internal/failures"
	"memoria/internal/fileinspect"
	"memoria/internal/overlay"
	"memoria/internal/pathfilter"
	"memoria/internal/preprocess"
)

// chatMessage is one record of chat_history.json.
type chatMessage struct {
	From              string `json:"From"`
	MediaType         string `json:"Media Type"`
	Created           string `json:"Created"`
	Content           string `json:"Content,omitempty"`
	ConversationTitle string `json:"Conversation Title,omitempty"`
	IsSender          bool   `json:"IsSender"`
	MediaIDs          string `json:"Media IDs,omitempty"`

	created time.Time
	files   []string
}

// outMessage is the emitted message shape. Media IDs are preserved so
// the canonical form round-trips the export's identity tuples.
type outMessage struct {
	Sender     string   `json:"sender"`
	Created    string   `json:"created"`
	MediaType  string   `json:"media_type,omitempty"`
	Content    string   `json:"content,omitempty"`
	IsSender   bool     `json:"is_sender"`
	MediaIDs   string   `json:"media_ids,omitempty"`
	MediaFiles []string `json:"media_files,omitempty"`
}

type outConversation struct {
	ID       string                      `json:"id"`
	Type     preprocess.ConversationType `json:"type"`
	Title    string                      `json:"title"`
	Messages []outMessage                `json:"messages"`
}

type messagesDocument struct {
	ExportInfo    preprocess.ExportInfo `json:"export_info"`
	Conversations []outConversation     `json:"conversations"`
	OrphanedMedia []string              `json:"orphaned_media"`
}

// msgRef ties a matched media file back to its claiming message.
type msgRef struct {
	ConvID   string
	MsgIndex int
	Msg      *chatMessage
	Overlay  *preprocess.MediaFile
}

// matchState carries the chat_media classification through the
// matching phases.
type matchState struct {
	media    []*preprocess.MediaFile
	overlays []*preprocess.MediaFile
	byID     map[string]*preprocess.MediaFile
	// ambiguous holds media and overlays parked in needs_matching,
	// keyed by pairing timestamp.
	ambiguous map[int64][2][]*preprocess.MediaFile
}

// loadChatHistory reads json/chat_history.json and parses message
// timestamps. Message order within a conversation is normalized to
// creation time.
func loadChatHistory(path string) (map[string][]*chatMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string][]*chatMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("chat_history.json: %w", err)
	}
	for _, msgs := range raw {
		for _, m := range msgs {
			m.created = parseSnapTime(m.Created)
		}
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].created.Before(msgs[j].created)
		})
	}
	return raw, nil
}

// classify splits chat_media files into overlays and base media and
// indexes media-ID carriers.
func classify(files []*preprocess.MediaFile) *matchState {
	st := &matchState{
		byID:      make(map[string]*preprocess.MediaFile),
		ambiguous: make(map[int64][2][]*preprocess.MediaFile),
	}
	for _, f := range files {
		info := parseMediaName(f.Name)
		if info.Kind == kindOverlay {
			st.overlays = append(st.overlays, f)
			continue
		}
		st.media = append(st.media, f)
		if info.Kind == kindMediaID {
			st.byID[info.ID] = f
		}
	}
	return st
}

// splitMediaIDs splits a message's "Media IDs" field.
func splitMediaIDs(s string) []string {
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// matchByID is phase one: explicit media-ID references.
func matchByID(history map[string][]*chatMessage, st *matchState) {
	for convID, msgs := range history {
		for i, msg := range msgs {
			for _, id := range splitMediaIDs(msg.MediaIDs) {
				item, ok := st.byID[id]
				if !ok || item.Matched {
					continue
				}
				item.Matched = true
				item.Metadata = &msgRef{ConvID: convID, MsgIndex: i, Msg: msg}
			}
		}
	}
}

// matchByTimestamp is phase two: an unmatched message with media claims
// the single unmatched UUID-or-hashed media file sharing its
// creation second. Ambiguous seconds are left alone.
func matchByTimestamp(history map[string][]*chatMessage, st *matchState) {
	byMtime := make(map[int64][]*preprocess.MediaFile)
	for _, f := range st.media {
		if !f.Matched {
			byMtime[mtimeKey(f.ModTime)] = append(byMtime[mtimeKey(f.ModTime)], f)
		}
	}
	for convID, msgs := range history {
		for i, msg := range msgs {
			if msg.created.IsZero() || !hasMedia(msg) {
				continue
			}
			candidates := unmatchedOf(byMtime[msg.created.Unix()])
			if len(candidates) != 1 {
				continue
			}
			item := candidates[0]
			item.Matched = true
			item.Metadata = &msgRef{ConvID: convID, MsgIndex: i, Msg: msg}
		}
	}
}

func hasMedia(msg *chatMessage) bool {
	switch strings.ToUpper(msg.MediaType) {
	case "IMAGE", "VIDEO", "NOTE", "MEDIA":
		return true
	}
	return false
}

func unmatchedOf(items []*preprocess.MediaFile) []*preprocess.MediaFile {
	var out []*preprocess.MediaFile
	for _, f := range items {
		if !f.Matched {
			out = append(out, f)
		}
	}
	return out
}

// pairOverlays is phase three: an overlay attaches to a video sharing
// its 1-second-resolution mtime, but only when the pairing is
// unambiguous. Ambiguous timestamp groups are parked for triage.
func pairOverlays(st *matchState) {
	videosByMtime := make(map[int64][]*preprocess.MediaFile)
	for _, f := range st.media {
		if f.Category == fileinspect.CategoryVideo {
			videosByMtime[mtimeKey(f.ModTime)] = append(videosByMtime[mtimeKey(f.ModTime)], f)
		}
	}
	overlaysByMtime := make(map[int64][]*preprocess.MediaFile)
	for _, ov := range st.overlays {
		overlaysByMtime[mtimeKey(ov.ModTime)] = append(overlaysByMtime[mtimeKey(ov.ModTime)], ov)
	}

	for key, overlays := range overlaysByMtime {
		videos := videosByMtime[key]
		if len(videos) == 1 && len(overlays) == 1 {
			video := videos[0]
			if ref, ok := video.Metadata.(*msgRef); ok {
				ref.Overlay = overlays[0]
			} else {
				video.Metadata = &msgRef{Overlay: overlays[0]}
			}
			overlays[0].Matched = true
			continue
		}
		if len(videos) == 0 {
			// Overlays with no video candidate stay orphaned overlays.
			continue
		}
		st.ambiguous[key] = [2][]*preprocess.MediaFile{videos, overlays}
	}
}

// matchInfo is the triage manifest written beside ambiguous groups.
type matchInfo struct {
	Timestamp string   `json:"timestamp"`
	Media     []string `json:"media"`
	Overlays  []string `json:"overlays"`
	Analysis  struct {
		Hint string `json:"hint"`
	} `json:"analysis"`
}

// writeTriage copies each ambiguous timestamp group into
// needs_matching/{timestamp}/{media,overlays}/ with a match_info.json
// listing the candidates.
func writeTriage(outputDir string, st *matchState, log zerolog.Logger) error {
	for key, group := range st.ambiguous {
		videos, overlays := group[0], group[1]
		ts := time.Unix(key, 0).UTC()
		dir := filepath.Join(outputDir, "needs_matching", timestampDirName(ts))

		info := matchInfo{Timestamp: ts.Format(snapTimeLayout)}
		info.Analysis.Hint = fmt.Sprintf(
			"%d media files and %d overlays share this timestamp; pair them manually",
			len(videos), len(overlays))

		for _, v := range videos {
			v.Matched = true // consumed by triage, not orphaned
			info.Media = append(info.Media, v.Name)
			if err := copyInto(v.Path, filepath.Join(dir, "media")); err != nil {
				log.Warn().Err(err).Str("file", v.Name).Msg("triage copy failed")
			}
		}
		for _, ov := range overlays {
			ov.Matched = true
			info.Overlays = append(info.Overlays, ov.Name)
			if err := copyInto(ov.Path, filepath.Join(dir, "overlays")); err != nil {
				log.Warn().Err(err).Str("file", ov.Name).Msg("triage copy failed")
			}
		}
		if err := preprocess.WriteJSON(filepath.Join(dir, "match_info.json"), &info); err != nil {
			return err
		}
	}
	return nil
}

func copyInto(src, dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}
	return preprocess.CopyFile(src, filepath.Join(dir, filepath.Base(src)))
}

// conversationRecord resolves a conversation's type and display title.
func conversationRecord(convID string, msgs []*chatMessage) (preprocess.ConversationType, string) {
	for _, m := range msgs {
		if m.ConversationTitle != "" {
			return preprocess.ConversationGroup, m.ConversationTitle
		}
	}
	for _, m := range msgs {
		if !m.IsSender && m.From != "" {
			return preprocess.ConversationDM, m.From
		}
	}
	return preprocess.ConversationDM, convID
}

// preprocessMessages runs the full messages pipeline.
func (p *MessagesProcessor) preprocessMessages(ctx context.Context, inputDir, outputDir string, workers int, extraPatterns []string, log zerolog.Logger) error {
	user := filepath.Base(inputDir)
	filter := pathfilter.New(extraPatterns...)
	tracker := failures.NewTracker(p.Name(), inputDir, log)

	history, err := loadChatHistory(filepath.Join(inputDir, "json", "chat_history.json"))
	if err != nil {
		return fmt.Errorf("load chat history: %w", err)
	}

	files, err := preprocess.ScanFlat(filepath.Join(inputDir, "chat_media"), filter)
	if err != nil {
		return fmt.Errorf("scan chat_media: %w", err)
	}
	st := classify(files)
	log.Info().Int("media", len(st.media)).Int("overlays", len(st.overlays)).
		Int("conversations", len(history)).Msg("scanning chat media")

	matchByID(history, st)
	matchByTimestamp(history, st)
	pairOverlays(st)
	if err := writeTriage(outputDir, st, log); err != nil {
		return err
	}

	mediaDir := filepath.Join(outputDir, "media")
	if err := os.MkdirAll(mediaDir, 0750); err != nil {
		return err
	}
	registry := preprocess.NewHashRegistry()
	stats := &preprocess.Stats{}

	// Composited videos are produced one at a time; plain files go
	// through the parallel copier afterwards.
	var plain []*preprocess.MediaFile
	for _, item := range st.media {
		ref, _ := item.Metadata.(*msgRef)
		if item.Matched && ref != nil && ref.Overlay != nil && item.Category == fileinspect.CategoryVideo {
			p.compositeVideo(ctx, item, ref, user, history, mediaDir, registry, stats, tracker, log)
			continue
		}
		if item.Matched && ref != nil {
			if t := mediaCreated(item, ref); !t.IsZero() {
				item.Name = t.UTC().Format("2006-01-02_15-04-05") + "_" + item.Name
			}
			plain = append(plain, item)
		}
	}

	copier := &preprocess.Copier{
		Workers:  workers,
		Registry: registry,
		Tracker:  tracker,
		Log:      log,
		ContextOf: func(m *preprocess.MediaFile) any {
			ref := m.Metadata.(*msgRef)
			return map[string]any{"conversation_id": ref.ConvID, "message_index": ref.MsgIndex}
		},
	}
	copyStats, err := copier.CopyAll(ctx, plain, mediaDir)
	if err != nil {
		return err
	}
	mergeStats(stats, copyStats)

	// Output timestamps follow message creation for both plain copies
	// and composited videos.
	preprocess.AlignModTimes(mediaDir, st.media, func(m *preprocess.MediaFile) time.Time {
		ref, ok := m.Metadata.(*msgRef)
		if !ok {
			return time.Time{}
		}
		return mediaCreated(m, ref)
	}, log)

	// Paired overlays are archived beside the media.
	if pairs := matchedOverlays(st); len(pairs) > 0 {
		ovCopier := &preprocess.Copier{
			Workers:  workers,
			Registry: preprocess.NewHashRegistry(),
			Tracker:  tracker,
			Log:      log,
		}
		if _, err := ovCopier.CopyAll(ctx, pairs, filepath.Join(outputDir, "overlays")); err != nil {
			return err
		}
	}

	// Everything unclaimed is orphaned.
	var orphaned []string
	for _, item := range append(unmatchedOf(st.media), unmatchedOf(st.overlays)...) {
		orphaned = append(orphaned, item.Name)
		tracker.AddOrphanedMedia(item.Path, "no message or overlay pairing claimed this file", nil)
	}
	sort.Strings(orphaned)

	// Attach output filenames to messages, then emit.
	for _, item := range st.media {
		if ref, ok := item.Metadata.(*msgRef); ok && ref.Msg != nil && item.OutputName != "" {
			ref.Msg.files = append(ref.Msg.files, item.OutputName)
		}
	}

	doc := &messagesDocument{
		ExportInfo:    preprocess.NewExportInfo(inputDir, user),
		Conversations: buildConversations(history),
		OrphanedMedia: orphaned,
	}
	doc.ExportInfo["conversations"] = len(history)
	doc.ExportInfo.AddStats(stats)
	if err := preprocess.WriteMetadata(outputDir, doc); err != nil {
		return err
	}
	tracker.HandleFailures(outputDir)
	return nil
}

// compositeVideo runs the four-pass overlay pipeline for one matched
// video, deduplicating on the source content hash.
func (p *MessagesProcessor) compositeVideo(ctx context.Context, item *preprocess.MediaFile, ref *msgRef, user string, history map[string][]*chatMessage, mediaDir string, registry *preprocess.HashRegistry, stats *preprocess.Stats, tracker *failures.Tracker, log zerolog.Logger) {
	stats.Total.Add(1)

	hash := hashOrUnique(item, log)
	outName := compositeName(item, ref)
	claimCtx := map[string]any{"conversation_id": ref.ConvID, "message_index": ref.MsgIndex}
	assigned, first := registry.Claim(hash, outName, item.Path, claimCtx)
	item.Hash = hash
	item.OutputName = assigned
	if !first {
		stats.Duplicates.Add(1)
		return
	}

	if p.compositor == nil {
		registry.Release(hash)
		stats.Failed.Add(1)
		tracker.AddProcessingFailure(item.Path, "no video pipeline available", nil)
		return
	}

	_, title := conversationRecord(ref.ConvID, history[ref.ConvID])
	meta := overlay.VideoMetadata{
		Created:     mediaCreated(item, ref),
		Description: overlay.MessagesDescription(user, title, senderOf(ref), contentOf(ref)),
	}
	if !p.compositor.CreateVideoWithOverlay(ctx, item.Path, ref.Overlay.Path, filepath.Join(mediaDir, assigned), meta) {
		registry.Release(hash)
		stats.Failed.Add(1)
		tracker.AddProcessingFailure(item.Path, "overlay compositing failed", map[string]any{
			"overlay": ref.Overlay.Name,
		})
		return
	}
	stats.Unique.Add(1)
	stats.Bytes.Add(item.Size)
}

func hashOrUnique(item *preprocess.MediaFile, log zerolog.Logger) string {
	hash, err := checksum.File(item.Path)
	if err != nil {
		log.Warn().Err(err).Str("file", item.Path).Msg("hash failed, treating file as unique")
		return "unhashed:" + item.Path
	}
	return hash
}

func compositeName(item *preprocess.MediaFile, ref *msgRef) string {
	stem := strings.TrimSuffix(item.Name, filepath.Ext(item.Name))
	if t := mediaCreated(item, ref); !t.IsZero() {
		return t.UTC().Format("2006-01-02_15-04-05") + "_" + stem + ".mkv"
	}
	return stem + ".mkv"
}

func mediaCreated(item *preprocess.MediaFile, ref *msgRef) time.Time {
	if ref.Msg != nil && !ref.Msg.created.IsZero() {
		return ref.Msg.created
	}
	return item.ModTime
}

func senderOf(ref *msgRef) string {
	if ref.Msg != nil {
		return ref.Msg.From
	}
	return ""
}

func contentOf(ref *msgRef) string {
	if ref.Msg != nil {
		return ref.Msg.Content
	}
	return ""
}

func matchedOverlays(st *matchState) []*preprocess.MediaFile {
	var out []*preprocess.MediaFile
	for _, ov := range st.overlays {
		if ov.Matched {
			out = append(out, ov)
		}
	}
	return out
}

func mergeStats(dst, src *preprocess.Stats) {
	dst.Total.Add(src.Total.Load())
	dst.Unique.Add(src.Unique.Load())
	dst.Duplicates.Add(src.Duplicates.Load())
	dst.Failed.Add(src.Failed.Load())
	dst.Bytes.Add(src.Bytes.Load())
}

// buildConversations renders the emitted conversation list in stable
// order.
func buildConversations(history map[string][]*chatMessage) []outConversation {
	ids := make([]string, 0, len(history))
	for id := range history {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]outConversation, 0, len(ids))
	for _, id := range ids {
		msgs := history[id]
		ctype, title := conversationRecord(id, msgs)
		conv := outConversation{ID: id, Type: ctype, Title: title}
		for _, m := range msgs {
			conv.Messages = append(conv.Messages, outMessage{
				Sender:     m.From,
				Created:    m.Created,
				MediaType:  m.MediaType,
				Content:    m.Content,
				IsSender:   m.IsSender,
				MediaIDs:   m.MediaIDs,
				MediaFiles: m.files,
			})
		}
		out = append(out, conv)
	}
	return out
}
