// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"memoria/internal/checksum"
	"memoria/internal/docmeta"
	"memoria/internal/failures"
	"memoria/internal/preprocess"
)

type outMessage struct {
	ID         string   `json:"id"`
	Created    string   `json:"created,omitempty"`
	Content    string   `json:"content,omitempty"`
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
}

// job is one attachment download.
type job struct {
	channelID string
	msg       *rawMessage
	url       string
	dest      string
	name      string
}

// downloadRate caps CDN requests per second.
const downloadRate = 4.0

// preprocessRun downloads every attachment, deduplicates the results
// by content hash, and emits the normalized channel document.
func (p *Processor) preprocessRun(ctx context.Context, messagesRoot, outputDir string, workers int, log zerolog.Logger) error {
	tracker := failures.NewTracker(p.Name(), messagesRoot, log)

	channels, err := loadChannels(messagesRoot)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}

	mediaDir := filepath.Join(outputDir, "media")
	if err := os.MkdirAll(mediaDir, 0750); err != nil {
		return err
	}

	var jobs []*job
	used := map[string]bool{}
	for _, ch := range channels {
		for _, msg := range ch.Messages {
			for _, u := range msg.attachmentURLs() {
				// Two attachments sharing a basename (same message or not)
				// must land on disk under distinct names; the hash dedupe
				// below unlinks non-canonical paths.
				name := uniqueName(used, attachmentName(msg.ID.String(), u))
				jobs = append(jobs, &job{
					channelID: ch.Info.ID,
					msg:       msg,
					url:       u,
					dest:      filepath.Join(mediaDir, name),
					name:      name,
				})
			}
		}
	}
	log.Info().Int("channels", len(channels)).Int("attachments", len(jobs)).Msg("scanning data package")

	downloaded := p.download(ctx, jobs, tracker, workers, log)

	stats := &preprocess.Stats{}
	registry := preprocess.NewHashRegistry()
	documents := map[string]*docmeta.Info{}

	// Deterministic dedupe order regardless of download completion.
	sort.Slice(downloaded, func(i, j int) bool { return downloaded[i].name < downloaded[j].name })
	for _, j := range downloaded {
		stats.Total.Add(1)
		hash, err := checksum.File(j.dest)
		if err != nil {
			log.Warn().Err(err).Str("file", j.name).Msg("hash failed, treating file as unique")
			hash = "unhashed:" + j.dest
		}
		claimCtx := map[string]any{"channel_id": j.channelID, "message_id": j.msg.ID.String()}
		assigned, first := registry.Claim(hash, j.name, j.url, claimCtx)
		if !first {
			// The canonical copy already exists; drop this download and
			// point the message at the canonical name.
			os.Remove(j.dest)
			stats.Duplicates.Add(1)
			j.msg.files = append(j.msg.files, assigned)
			continue
		}
		stats.Unique.Add(1)
		if info, err := os.Stat(j.dest); err == nil {
			stats.Bytes.Add(info.Size())
		}
		j.msg.files = append(j.msg.files, assigned)
		if !j.msg.created.IsZero() {
			if err := os.Chtimes(j.dest, j.msg.created, j.msg.created); err != nil {
				log.Debug().Err(err).Str("file", j.name).Msg("utime failed")
			}
		}

		if docmeta.IsPDF(j.dest) {
			if info, err := docmeta.Inspect(j.dest); err == nil {
				documents[assigned] = info
			} else {
				log.Debug().Err(err).Str("file", assigned).Msg("pdf inspection failed")
			}
		}
	}

	doc := &document{
		ExportInfo:    preprocess.NewExportInfo(messagesRoot, ""),
		Conversations: buildConversations(channels),
		Documents:     documents,
	}
	doc.ExportInfo["channels"] = len(channels)
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

// download runs the bounded fetch pool and returns the jobs whose
// files landed on disk.
func (p *Processor) download(ctx context.Context, jobs []*job, tracker *failures.Tracker, workers int, log zerolog.Logger) []*job {
	var mu sync.Mutex
	var downloaded []*job

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preprocess.Workers(workers))
	for _, j := range jobs {
		j := j
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.downloader.Fetch(ctx, j.url, j.dest); err != nil {
				if IsTerminal(err) {
					tracker.AddOrphanedMetadata(j.name, j.msg, "attachment expired or deleted", map[string]any{
						"channel_id": j.channelID,
						"url":        j.url,
					})
				} else {
					tracker.AddProcessingFailure(j.url, "download failed", map[string]any{
						"channel_id": j.channelID,
						"error":      err.Error(),
					})
				}
				log.Warn().Err(err).Str("url", j.url).Msg("attachment fetch failed")
				return nil
			}
			mu.Lock()
			downloaded = append(downloaded, j)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return downloaded
}

func buildConversations(channels []*channel) []outConversation {
	out := make([]outConversation, 0, len(channels))
	for _, ch := range channels {
		ctype, title := conversationIdentity(ch.Info)
		// A channel whose own JSON yields no usable name falls back to
		// the package index's description.
		if (title == "" || title == ch.Info.ID) && ch.IndexName != "" {
			title = ch.IndexName
		}
		conv := outConversation{ID: ch.Info.ID, Type: preprocess.ConversationType(ctype), Title: title}
		for _, msg := range ch.Messages {
			created := ""
			if !msg.created.IsZero() {
				created = msg.created.Format(time.RFC3339)
			}
			conv.Messages = append(conv.Messages, outMessage{
				ID:         msg.ID.String(),
				Created:    created,
				Content:    msg.Contents,
				MediaFiles: msg.files,
			})
		}
		out = append(out, conv)
	}
	return out
}
