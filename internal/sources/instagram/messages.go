// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package instagram

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// inboxMessage is one parsed direct message.
type inboxMessage struct {
	Sender    string
	When      time.Time
	Text      string
	MediaRefs []string

	files []string
}

// conversation is one inbox directory's parsed content.
type conversation struct {
	ID    string
	Title string
	Group bool
	Msgs  []*inboxMessage
}

// findInboxRoot locates the messages inbox in either export layout.
func findInboxRoot(inputDir string) string {
	candidates := []string{
		filepath.Join(inputDir, "your_instagram_activity", "messages", "inbox"),
		filepath.Join(inputDir, "messages", "inbox"),
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return ""
}

// deletedUserPrefix is the synthetic directory prefix the export uses
// for accounts that no longer exist.
const deletedUserPrefix = "instagramuser"

// conversationTitle derives the display title from the inbox directory
// name "{participant}_{id}". Deleted accounts get a stable synthetic
// name per directory.
func conversationTitle(dirName string, deletedSeq *int) string {
	name := dirName
	if i := strings.LastIndex(name, "_"); i > 0 {
		name = name[:i]
	}
	if strings.HasPrefix(strings.ToLower(name), deletedUserPrefix) {
		*deletedSeq++
		return fmt.Sprintf("deleted_%d", *deletedSeq)
	}
	return name
}

// parseConversation parses every message_*.html of one inbox
// directory, oldest page last as exported, and returns messages in
// chronological order.
func parseConversation(convDir, dirName string, deletedSeq *int) (*conversation, error) {
	pages, err := filepath.Glob(filepath.Join(convDir, "message_*.html"))
	if err != nil {
		return nil, err
	}
	sort.Strings(pages)

	conv := &conversation{ID: dirName, Title: conversationTitle(dirName, deletedSeq)}
	senders := map[string]bool{}
	for _, page := range pages {
		root, err := parseHTMLFile(page)
		if err != nil {
			return nil, err
		}
		walk(root, func(n *html.Node) bool {
			if !hasClass(n, messageContainerClass) || !hasClass(n, messageChromeClass) {
				return true
			}
			msg := parseMessageNode(n)
			conv.Msgs = append(conv.Msgs, msg)
			if msg.Sender != "" {
				senders[msg.Sender] = true
			}
			return false
		})
	}
	sort.SliceStable(conv.Msgs, func(i, j int) bool { return conv.Msgs[i].When.Before(conv.Msgs[j].When) })
	conv.Group = len(senders) > 2
	return conv, nil
}

// parseMessageNode extracts one message from its container div. The
// sender and timestamp divs are identified by their class pairs and
// pruned; media elements are collected and pruned; the text nodes that
// remain are the message body.
func parseMessageNode(n *html.Node) *inboxMessage {
	msg := &inboxMessage{}
	var bodyTexts []string
	walk(n, func(c *html.Node) bool {
		if c == n {
			return true
		}
		if c.Type == html.TextNode {
			if t := strings.TrimSpace(c.Data); t != "" {
				bodyTexts = append(bodyTexts, t)
			}
			return true
		}
		if c.Type != html.ElementNode {
			return true
		}
		switch c.Data {
		case "div":
			switch {
			case hasClass(c, senderClass):
				msg.Sender = textContent(c)
				return false
			case hasClass(c, timestampClass):
				msg.When = parseExportTime(textContent(c))
				return false
			case hasClass(c, mediaMetaClass):
				// Sibling metadata block for public media pages.
				return false
			}
			return true
		case "img", "video", "audio", "source":
			if src := attr(c, "src"); src != "" && !strings.HasPrefix(src, "data:") {
				msg.MediaRefs = append(msg.MediaRefs, src)
				return false
			}
			// A bare <video> holds its src in a <source> child.
			return c.Data == "video" || c.Data == "audio"
		case "a":
			href := attr(c, "href")
			if href != "" && !strings.Contains(href, "://") && hasMediaExt(href) {
				msg.MediaRefs = append(msg.MediaRefs, href)
				return false
			}
			return true
		}
		return true
	})
	msg.Text = strings.Join(bodyTexts, "\n")
	return msg
}
