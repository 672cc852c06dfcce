// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package googlevoice ingests Google Voice Takeout exports: the
// Voice/Calls directory of per-thread HTML transcripts and the media
// files they reference.
package googlevoice

import (
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// threadKind is the middle token of a Calls filename.
type threadKind string

const (
	kindText      threadKind = "Text"
	kindVoicemail threadKind = "Voicemail"
	kindPlaced    threadKind = "Placed"
	kindReceived  threadKind = "Received"
	kindMissed    threadKind = "Missed"
)

// fileTimeLayout is the timestamp embedded in Calls filenames, with
// colons flattened to underscores.
const fileTimeLayout = "2006-01-02T15_04_05Z"

var threadNameRe = regexp.MustCompile(`^(.*) - (Text|Voicemail|Placed|Received|Missed) - (\d{4}-\d{2}-\d{2}T\d{2}_\d{2}_\d{2}Z)$`)

// threadName is the parsed identity of one Calls HTML file.
type threadName struct {
	Contact string
	Kind    threadKind
	Started time.Time
}

// parseThreadName splits "{contact} - {kind} - {timestamp}.html".
// Unknown contacts yield an empty Contact.
func parseThreadName(name string) (threadName, bool) {
	stem := strings.TrimSuffix(name, ".html")
	m := threadNameRe.FindStringSubmatch(stem)
	if m == nil {
		return threadName{}, false
	}
	t, err := time.Parse(fileTimeLayout, m[3])
	if err != nil {
		return threadName{}, false
	}
	return threadName{Contact: m[1], Kind: threadKind(m[2]), Started: t.UTC()}, true
}

// voiceMessage is one parsed message of a thread transcript.
type voiceMessage struct {
	Sender    string
	When      time.Time
	Text      string
	MediaRefs []string

	files []string
}

// parseTranscript extracts the messages of one Calls HTML file.
func parseTranscript(path string) ([]*voiceMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	root, err := html.Parse(f)
	if err != nil {
		return nil, err
	}

	var msgs []*voiceMessage
	walk(root, func(n *html.Node) bool {
		if !hasClass(n, "message") {
			return true
		}
		msgs = append(msgs, parseMessageNode(n))
		return false
	})
	return msgs, nil
}

func parseMessageNode(n *html.Node) *voiceMessage {
	msg := &voiceMessage{}
	walk(n, func(c *html.Node) bool {
		switch {
		case c.Type == html.ElementNode && c.Data == "abbr" && hasClass(c, "dt"):
			msg.When = parseDTTitle(attr(c, "title"))
		case c.Type == html.ElementNode && c.Data == "cite" && hasClass(c, "sender"):
			msg.Sender = strings.TrimSpace(textContent(c))
			return false
		case c.Type == html.ElementNode && c.Data == "q":
			msg.Text = strings.TrimSpace(textContent(c))
			return false
		case c.Type == html.ElementNode && c.Data == "img":
			if src := attr(c, "src"); src != "" {
				msg.MediaRefs = append(msg.MediaRefs, baseName(src))
			}
		case c.Type == html.ElementNode && c.Data == "audio":
			if src := attr(c, "src"); src != "" {
				msg.MediaRefs = append(msg.MediaRefs, baseName(src))
			}
		case c.Type == html.ElementNode && c.Data == "a" && hasClass(c, "vcard"):
			if href := attr(c, "href"); strings.HasSuffix(href, ".vcf") {
				msg.MediaRefs = append(msg.MediaRefs, baseName(href))
			}
		}
		return true
	})
	return msg
}

// parseDTTitle parses the abbr.dt title, an RFC 3339 timestamp with
// millisecond precision.
func parseDTTitle(s string) time.Time {
	for _, layout := range []string{"2006-01-02T15:04:05.000-07:00", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// walk visits nodes depth-first; fn returning false prunes the subtree.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, f := range strings.Fields(attr(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}

// baseName strips any path component from an HTML reference.
func baseName(ref string) string {
	if i := strings.LastIndexAny(ref, "/\\"); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}
