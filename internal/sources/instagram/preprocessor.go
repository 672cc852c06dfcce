// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package instagram

import (
	"context"
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

// itemRef ties a matched media file to its claiming message or post.
type itemRef struct {
	ConvID string
	Msg    *inboxMessage
	Post   *postItem
}

func (r *itemRef) when() time.Time {
	if r.Msg != nil {
		return r.Msg.When
	}
	if r.Post != nil {
		return r.Post.When
	}
	return time.Time{}
}

type outMessage struct {
	Sender     string   `json:"sender"`
	Created    string   `json:"created,omitempty"`
	Text       string   `json:"text,omitempty"`
	MediaFiles []string `json:"media_files,omitempty"`
}

type outConversation struct {
	ID       string                      `json:"id"`
	Type     preprocess.ConversationType `json:"type"`
	Title    string                      `json:"title"`
	Messages []outMessage                `json:"messages"`
}

type outPost struct {
	Kind       string   `json:"kind"`
	Caption    string   `json:"caption,omitempty"`
	Created    string   `json:"created,omitempty"`
	Latitude   float64  `json:"latitude,omitempty"`
	Longitude  float64  `json:"longitude,omitempty"`
	MediaFiles []string `json:"media_files,omitempty"`
}

type document struct {
	ExportInfo    preprocess.ExportInfo `json:"export_info"`
	Conversations []outConversation     `json:"conversations"`
	Posts         []outPost             `json:"posts"`
	OrphanedMedia []string              `json:"orphaned_media"`
}

// preprocessResult hands the parsed state to the finalize step.
type preprocessResult struct {
	doc     *document
	posts   []*postItem
	matched []*preprocess.MediaFile
}

// preprocessRun parses the inbox and public media pages, resolves
// every media reference, copies unique files and emits the document.
func (p *Processor) preprocessRun(ctx context.Context, inputDir, outputDir string, workers int, extraPatterns []string, log zerolog.Logger) (*preprocessResult, error) {
	filter := pathfilter.New(extraPatterns...)
	tracker := failures.NewTracker(p.Name(), inputDir, log)
	claimed := map[string]bool{}

	var matched []*preprocess.MediaFile
	var conversations []*conversation

	// Direct messages.
	if inboxRoot := findInboxRoot(inputDir); inboxRoot != "" {
		entries, err := os.ReadDir(inboxRoot)
		if err != nil {
			return nil, err
		}
		deletedSeq := 0
		for _, e := range entries {
			if !e.IsDir() || filter.Banned(filepath.Join(inboxRoot, e.Name())) {
				continue
			}
			convDir := filepath.Join(inboxRoot, e.Name())
			conv, err := parseConversation(convDir, e.Name(), &deletedSeq)
			if err != nil {
				tracker.AddProcessingFailure(convDir, "unparseable conversation", map[string]any{"error": err.Error()})
				continue
			}
			conversations = append(conversations, conv)
			for _, msg := range conv.Msgs {
				items := resolveRefs(inputDir, convDir, msg.MediaRefs, claimed, tracker, map[string]any{"conversation": conv.ID})
				for _, item := range items {
					item.Metadata = &itemRef{ConvID: conv.ID, Msg: msg}
					applyDatePrefix(item, msg.When)
					matched = append(matched, item)
				}
			}
		}
		log.Info().Int("conversations", len(conversations)).Msg("scanned message inbox")
	}

	// Public media.
	posts, err := parsePublicMedia(inputDir)
	if err != nil {
		return nil, err
	}
	for _, post := range posts {
		items := resolveRefs(inputDir, "", post.MediaRefs, claimed, tracker, map[string]any{"kind": post.kind})
		for _, item := range items {
			item.Metadata = &itemRef{Post: post}
			applyDatePrefix(item, post.When)
			matched = append(matched, item)
		}
	}
	if len(posts) > 0 {
		log.Info().Int("posts", len(posts)).Msg("scanned public media pages")
	}

	// Files under the media trees that nothing referenced.
	orphaned := collectOrphans(inputDir, claimed, filter, tracker)

	copier := &preprocess.Copier{
		Workers:  workers,
		Registry: preprocess.NewHashRegistry(),
		Tracker:  tracker,
		Log:      log,
		ContextOf: func(m *preprocess.MediaFile) any {
			ref := m.Metadata.(*itemRef)
			if ref.Msg != nil {
				return map[string]any{"conversation": ref.ConvID}
			}
			return map[string]any{"post_kind": ref.Post.kind}
		},
	}
	stats, err := copier.CopyAll(ctx, matched, filepath.Join(outputDir, "media"))
	if err != nil {
		return nil, err
	}
	for _, m := range matched {
		ref := m.Metadata.(*itemRef)
		if m.OutputName == "" {
			continue
		}
		if ref.Msg != nil {
			ref.Msg.files = append(ref.Msg.files, m.OutputName)
		} else {
			ref.Post.files = append(ref.Post.files, m.OutputName)
		}
	}

	doc := &document{
		ExportInfo:    preprocess.NewExportInfo(inputDir, ""),
		Conversations: buildConversations(conversations),
		Posts:         buildPosts(posts),
		OrphanedMedia: orphaned,
	}
	doc.ExportInfo["conversations"] = len(conversations)
	doc.ExportInfo["posts"] = len(posts)
	doc.ExportInfo.AddStats(stats)
	if err := preprocess.WriteMetadata(outputDir, doc); err != nil {
		return nil, err
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

	return &preprocessResult{doc: doc, posts: posts, matched: matched}, nil
}

// resolveRefs maps export-relative references onto files. A reference
// resolves against the export root first, then against the owning
// conversation directory by basename. Unresolvable references are
// orphaned metadata.
func resolveRefs(inputDir, convDir string, refs []string, claimed map[string]bool, tracker *failures.Tracker, context map[string]any) []*preprocess.MediaFile {
	var out []*preprocess.MediaFile
	for _, ref := range refs {
		path := resolveOne(inputDir, convDir, ref)
		if path == "" {
			tracker.AddOrphanedMetadata(baseName(ref), nil, "referenced media missing from export", context)
			continue
		}
		if claimed[path] {
			continue
		}
		claimed[path] = true
		item, err := preprocess.StatMedia(path)
		if err != nil {
			tracker.AddProcessingFailure(path, "unreadable media file", map[string]any{"error": err.Error()})
			continue
		}
		out = append(out, item)
	}
	return out
}

func resolveOne(inputDir, convDir, ref string) string {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return ""
	}
	if path := filepath.Join(inputDir, clean); fileExists(path) {
		return path
	}
	if convDir != "" {
		if path := filepath.Join(convDir, clean); fileExists(path) {
			return path
		}
		// Last resort: the reference basename somewhere under the
		// conversation's media folders.
		base := baseName(ref)
		for _, sub := range []string{"photos", "videos", "audio", "gifs", "files"} {
			if path := filepath.Join(convDir, sub, base); fileExists(path) {
				return path
			}
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// collectOrphans walks the inbox media folders and reports files no
// reference claimed.
func collectOrphans(inputDir string, claimed map[string]bool, filter *pathfilter.Filter, tracker *failures.Tracker) []string {
	var orphaned []string
	inboxRoot := findInboxRoot(inputDir)
	if inboxRoot == "" {
		return nil
	}
	files, err := preprocess.ScanMedia(inboxRoot, filter)
	if err != nil {
		return nil
	}
	for _, f := range files {
		if claimed[f.Path] || strings.EqualFold(filepath.Ext(f.Name), ".html") {
			continue
		}
		orphaned = append(orphaned, f.Name)
		tracker.AddOrphanedMedia(f.Path, "no message references this file", nil)
	}
	sort.Strings(orphaned)
	return orphaned
}

func applyDatePrefix(item *preprocess.MediaFile, when time.Time) {
	if !when.IsZero() {
		item.Name = when.UTC().Format("2006-01-02_15-04-05") + "_" + item.Name
	}
}

func buildConversations(convs []*conversation) []outConversation {
	sort.Slice(convs, func(i, j int) bool { return convs[i].ID < convs[j].ID })
	out := make([]outConversation, 0, len(convs))
	for _, c := range convs {
		ctype := preprocess.ConversationDM
		if c.Group {
			ctype = preprocess.ConversationGroup
		}
		conv := outConversation{ID: c.ID, Type: ctype, Title: c.Title}
		for _, msg := range c.Msgs {
			created := ""
			if !msg.When.IsZero() {
				created = msg.When.Format(time.RFC3339)
			}
			conv.Messages = append(conv.Messages, outMessage{
				Sender:     msg.Sender,
				Created:    created,
				Text:       msg.Text,
				MediaFiles: msg.files,
			})
		}
		out = append(out, conv)
	}
	return out
}

func buildPosts(posts []*postItem) []outPost {
	out := make([]outPost, 0, len(posts))
	for _, p := range posts {
		created := ""
		if !p.When.IsZero() {
			created = p.When.Format(time.RFC3339)
		}
		op := outPost{
			Kind:       p.kind,
			Caption:    p.Caption,
			Created:    created,
			MediaFiles: p.files,
		}
		if p.HasGPS {
			op.Latitude = p.Latitude
			op.Longitude = p.Longitude
		}
		out = append(out, op)
	}
	return out
}
