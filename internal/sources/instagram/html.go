// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package instagram ingests Instagram data exports: direct-message
// inboxes and public media (posts, stories, profile photos), in both
// the current your_instagram_activity layout and the legacy flat
// layout.
package instagram

import (
	"os"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Message markup class sets. The export's obfuscated class names have
// been stable across generations; the container carries the uiBoxWhite
// chrome, sender and timestamp their own class pairs.
const (
	messageContainerClass = "pam"
	messageChromeClass    = "uiBoxWhite"
	senderClass           = "_2pim"
	timestampClass        = "_a6-o"
	mediaMetaClass        = "_a6-q"
)

// timeLayouts covers the export generations: the older form without a
// comma before the time and lowercase meridiem, the newer with both.
var timeLayouts = []string{
	"Jan 2, 2006 3:04 pm",
	"Jan 2, 2006, 3:04 PM",
	"Jan 2, 2006, 3:04 pm",
	"Jan 2, 2006 3:04 PM",
}

// parseExportTime parses an Instagram export timestamp, normalizing
// narrow no-break spaces. Returns the zero time on failure.
func parseExportTime(s string) time.Time {
	s = strings.ReplaceAll(s, "\u202f", " ")
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseHTMLFile(path string) (*html.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return html.Parse(f)
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
	return strings.TrimSpace(b.String())
}

// mediaSources collects img/video/audio/source src attributes and
// media-looking anchors below n.
func mediaSources(n *html.Node) []string {
	var refs []string
	walk(n, func(c *html.Node) bool {
		if c.Type != html.ElementNode {
			return true
		}
		switch c.Data {
		case "img", "video", "audio", "source":
			if src := attr(c, "src"); src != "" && !strings.HasPrefix(src, "data:") {
				refs = append(refs, src)
			}
		case "a":
			href := attr(c, "href")
			if href != "" && !strings.Contains(href, "://") && strings.Contains(href, "/") && hasMediaExt(href) {
				refs = append(refs, href)
			}
		}
		return true
	})
	return refs
}

func hasMediaExt(ref string) bool {
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".mp4", ".mov", ".m4a", ".mp3", ".wav", ".aac"} {
		if strings.HasSuffix(strings.ToLower(ref), ext) {
			return true
		}
	}
	return false
}

// baseName strips any path component from an export-relative ref.
func baseName(ref string) string {
	if i := strings.LastIndexAny(ref, "/\\"); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}
