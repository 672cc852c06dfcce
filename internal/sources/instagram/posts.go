// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package instagram

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// postItem is one public media item (post, archived post, reel, IGTV
// video, story, profile photo or other content).
type postItem struct {
	Caption   string
	When      time.Time
	Latitude  float64
	Longitude float64
	HasGPS    bool
	MediaRefs []string

	kind  string
	files []string
}

// publicMediaFiles lists the export's public-media HTML pages and the
// item kind each contributes.
func publicMediaFiles(inputDir string) map[string]string {
	roots := []string{
		filepath.Join(inputDir, "your_instagram_activity", "media"),
		filepath.Join(inputDir, "your_instagram_activity", "content"),
		filepath.Join(inputDir, "content"),
		filepath.Join(inputDir, "media"),
	}
	found := map[string]string{}
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := strings.ToLower(e.Name())
			var kind string
			switch {
			case strings.HasPrefix(name, "posts_") && strings.HasSuffix(name, ".html"):
				kind = "post"
			case name == "archived_posts.html":
				kind = "archived_post"
			case name == "reels.html":
				kind = "reel"
			case name == "igtv_videos.html":
				kind = "igtv"
			case name == "stories.html":
				kind = "story"
			case name == "profile_photos.html":
				kind = "profile_photo"
			case name == "other_content.html":
				kind = "other"
			default:
				continue
			}
			path := filepath.Join(root, e.Name())
			if _, dup := found[path]; !dup {
				found[path] = kind
			}
		}
		if len(found) > 0 {
			break
		}
	}
	return found
}

var (
	latRe = regexp.MustCompile(`Latitude[:\s]+(-?\d+(?:\.\d+)?)`)
	lonRe = regexp.MustCompile(`Longitude[:\s]+(-?\d+(?:\.\d+)?)`)
)

// parsePostsFile extracts every public media item of one HTML page.
func parsePostsFile(path, kind string) ([]*postItem, error) {
	root, err := parseHTMLFile(path)
	if err != nil {
		return nil, err
	}
	var items []*postItem
	walk(root, func(n *html.Node) bool {
		if !hasClass(n, messageContainerClass) || !hasClass(n, messageChromeClass) {
			return true
		}
		items = append(items, parsePostNode(n, kind))
		return false
	})
	return items, nil
}

// parsePostNode reads one post container: media refs, caption text,
// creation time, and the optional location metadata block.
func parsePostNode(n *html.Node, kind string) *postItem {
	item := &postItem{kind: kind}
	msg := parseMessageNode(n)
	item.Caption = msg.Text
	item.When = msg.When
	item.MediaRefs = msg.MediaRefs

	// The metadata sibling block is pruned by parseMessageNode; scan it
	// separately for coordinates.
	walk(n, func(c *html.Node) bool {
		if c != n && hasClass(c, mediaMetaClass) {
			meta := textContent(c)
			if item.When.IsZero() {
				item.When = parseExportTime(meta)
			}
			lat, latOK := matchFloat(latRe, meta)
			lon, lonOK := matchFloat(lonRe, meta)
			if latOK && lonOK {
				item.Latitude, item.Longitude, item.HasGPS = lat, lon, true
			}
			return false
		}
		return true
	})
	return item
}

func matchFloat(re *regexp.Regexp, s string) (float64, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// parsePublicMedia parses every public media page, posts first in page
// order.
func parsePublicMedia(inputDir string) ([]*postItem, error) {
	pages := publicMediaFiles(inputDir)
	paths := make([]string, 0, len(pages))
	for p := range pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var items []*postItem
	for _, path := range paths {
		pageItems, err := parsePostsFile(path, pages[path])
		if err != nil {
			return nil, err
		}
		items = append(items, pageItems...)
	}
	return items, nil
}
