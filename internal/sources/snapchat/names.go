// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package snapchat ingests Snapchat data exports: chat history with
// chat_media attachments, and the pre-flattened memories archive. Both
// pipelines composite Snapchat's transparent overlays onto the base
// media.
package snapchat

import (
	"regexp"
	"strings"
	"time"
)

// mediaKind classifies chat_media filenames by their naming scheme.
type mediaKind int

const (
	kindUnknown mediaKind = iota
	// kindMediaID carries a "b~..." media ID referenced by messages.
	kindMediaID
	// kindUUID is an anonymous media file named media~{UUID}.
	kindUUID
	// kindOverlay is a transparent overlay named overlay~{UUID}.
	kindOverlay
	// kindHashed is the {date}_{md5} scheme.
	kindHashed
)

var (
	mediaIDRe = regexp.MustCompile(`(b~[A-Za-z0-9_=+/-]+)`)
	uuidRe    = regexp.MustCompile(`media~(?:zip-)?([0-9a-fA-F-]{36})`)
	overlayRe = regexp.MustCompile(`overlay~(?:zip-)?([0-9a-fA-F-]{36})`)
	hashedRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}_[0-9a-fA-F]{32}$`)
)

// nameInfo is the parsed identity of one chat_media filename.
type nameInfo struct {
	Kind mediaKind
	// ID is the media ID ("b~...") or UUID, depending on Kind.
	ID string
}

// parseMediaName classifies a chat_media filename and extracts the
// embedded identifier, if any.
func parseMediaName(name string) nameInfo {
	stem := name
	if idx := strings.LastIndex(stem, "."); idx >= 0 {
		stem = stem[:idx]
	}
	if m := overlayRe.FindStringSubmatch(stem); m != nil {
		return nameInfo{Kind: kindOverlay, ID: strings.ToLower(m[1])}
	}
	if m := uuidRe.FindStringSubmatch(stem); m != nil {
		return nameInfo{Kind: kindUUID, ID: strings.ToLower(m[1])}
	}
	if m := mediaIDRe.FindStringSubmatch(stem); m != nil {
		return nameInfo{Kind: kindMediaID, ID: m[1]}
	}
	if hashedRe.MatchString(stem) {
		return nameInfo{Kind: kindHashed}
	}
	return nameInfo{Kind: kindUnknown}
}

// snapTimeLayout is the "2020-01-01 00:00:00 UTC" form used throughout
// the export.
const snapTimeLayout = "2006-01-02 15:04:05 MST"

// parseSnapTime parses an export timestamp, returning the zero time on
// failure.
func parseSnapTime(s string) time.Time {
	t, err := time.Parse(snapTimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// timestampDirName renders a pairing timestamp the way the triage tree
// names its per-timestamp directories: 2020-01-01_00-00-00_UTC.
func timestampDirName(t time.Time) string {
	return t.UTC().Format("2006-01-02_15-04-05") + "_UTC"
}

// mtimeKey truncates a modification time to the export's 1-second
// resolution for overlay pairing.
func mtimeKey(t time.Time) int64 {
	return t.UTC().Truncate(time.Second).Unix()
}
