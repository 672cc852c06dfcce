// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package discord ingests Discord data-package exports: the Messages
// tree of per-channel directories, downloading the CDN-hosted
// attachments the messages reference.
package discord

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// channelInfo is c{id}/channel.json.
type channelInfo struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Name       string   `json:"name,omitempty"`
	Recipients []string `json:"recipients,omitempty"`
	Guild      *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"guild,omitempty"`
}

// rawMessage is one entry of c{id}/messages.json.
type rawMessage struct {
	ID          json.Number `json:"ID"`
	Timestamp   string      `json:"Timestamp"`
	Contents    string      `json:"Contents,omitempty"`
	Attachments string      `json:"Attachments,omitempty"`

	created time.Time
	files   []string
}

// channel is one parsed channel directory. IndexName carries the
// package-level index.json description when one exists.
type channel struct {
	Info      channelInfo
	IndexName string
	Messages  []*rawMessage
}

// messageTimeLayouts covers the export generations' timestamp forms.
var messageTimeLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseMessageTime(s string) time.Time {
	for _, layout := range messageTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// findMessagesRoot locates the Messages directory of a data package.
func findMessagesRoot(inputDir string) string {
	candidates := []string{
		filepath.Join(inputDir, "Messages"),
		filepath.Join(inputDir, "messages"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(filepath.Join(c, "index.json")); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

// loadIndex reads Messages/index.json, the package's channel-ID to
// description map. Deleted channels carry null entries.
func loadIndex(messagesRoot string) map[string]string {
	data, err := os.ReadFile(filepath.Join(messagesRoot, "index.json"))
	if err != nil {
		return nil
	}
	var raw map[string]*string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	index := make(map[string]string, len(raw))
	for id, desc := range raw {
		if desc != nil && *desc != "" {
			index[id] = *desc
		}
	}
	return index
}

// loadChannels reads every c{id} directory under the Messages root,
// sorted by channel ID for stable output.
func loadChannels(messagesRoot string) ([]*channel, error) {
	entries, err := os.ReadDir(messagesRoot)
	if err != nil {
		return nil, err
	}
	index := loadIndex(messagesRoot)
	var channels []*channel
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "c") {
			continue
		}
		dir := filepath.Join(messagesRoot, e.Name())
		ch, err := loadChannel(dir)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", e.Name(), err)
		}
		ch.IndexName = index[ch.Info.ID]
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].Info.ID < channels[j].Info.ID })
	return channels, nil
}

func loadChannel(dir string) (*channel, error) {
	var ch channel
	data, err := os.ReadFile(filepath.Join(dir, "channel.json"))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &ch.Info); err != nil {
		return nil, err
	}

	data, err = os.ReadFile(filepath.Join(dir, "messages.json"))
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &ch.Messages); err != nil {
		return nil, err
	}
	for _, m := range ch.Messages {
		m.created = parseMessageTime(m.Timestamp)
	}
	sort.SliceStable(ch.Messages, func(i, j int) bool {
		return ch.Messages[i].created.Before(ch.Messages[j].created)
	})
	return &ch, nil
}

// attachmentURLs splits a message's space-separated attachment list.
func (m *rawMessage) attachmentURLs() []string {
	var out []string
	for _, u := range strings.Fields(m.Attachments) {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			out = append(out, u)
		}
	}
	return out
}

// conversationIdentity maps a channel onto the normalized type/title
// pair. Guild channels read "{name} in {guild}".
func conversationIdentity(info channelInfo) (string, string) {
	switch info.Type {
	case "DM":
		title := info.Name
		if title == "" && len(info.Recipients) > 0 {
			title = strings.Join(info.Recipients, ", ")
		}
		if title == "" {
			title = info.ID
		}
		return "dm", title
	case "GROUP_DM":
		title := info.Name
		if title == "" {
			title = strings.Join(info.Recipients, ", ")
		}
		return "group", title
	case "GUILD_TEXT", "PUBLIC_THREAD", "PRIVATE_THREAD":
		title := info.Name
		if info.Guild != nil && info.Guild.Name != "" {
			title = fmt.Sprintf("%s in %s", info.Name, info.Guild.Name)
		}
		return "server", title
	default:
		title := info.Name
		if title == "" {
			title = info.ID
		}
		return "unknown", title
	}
}
