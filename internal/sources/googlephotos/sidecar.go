// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package googlephotos ingests Google Photos Takeout exports: album
// directories of media files with per-file sidecar JSON whose naming
// conventions vary across exporter versions.
package googlephotos

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// Sidecar is the per-file supplemental metadata record.
type Sidecar struct {
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	CreationTime   *UnixTime `json:"creationTime,omitempty"`
	PhotoTakenTime *UnixTime `json:"photoTakenTime,omitempty"`
	GeoData        *GeoData  `json:"geoData,omitempty"`
	GeoDataExif    *GeoData  `json:"geoDataExif,omitempty"`
	People         []Person  `json:"people,omitempty"`
	Archived       bool      `json:"archived,omitempty"`
	Favorited      bool      `json:"favorited,omitempty"`
	Trashed        bool      `json:"trashed,omitempty"`
	Origin         any       `json:"googlePhotosOrigin,omitempty"`
}

// UnixTime is Google's epoch-seconds-as-string timestamp shape.
type UnixTime struct {
	Timestamp string `json:"timestamp"`
	Formatted string `json:"formatted,omitempty"`
}

// Time parses the epoch seconds, returning the zero time on failure.
func (u *UnixTime) Time() time.Time {
	if u == nil {
		return time.Time{}
	}
	secs, err := strconv.ParseInt(u.Timestamp, 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}

// GeoData is a coordinate triple; zeroed coordinates mean absent.
type GeoData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude,omitempty"`
}

// Valid reports whether the pair carries a real location.
func (g *GeoData) Valid() bool {
	return g != nil && (g.Latitude != 0 || g.Longitude != 0)
}

// Person is one tagged person.
type Person struct {
	Name string `json:"name"`
}

// AlbumMeta is the album-level metadata.json Takeout writes beside the
// media.
type AlbumMeta struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Access      string `json:"access,omitempty"`
}

// sidecarRef ties a parsed sidecar to the media filename it points at.
type sidecarRef struct {
	Path string
	// MediaName is the referenced media filename with the duplicate
	// index applied ("IMG_0004(1).PNG").
	MediaName string
	// DupIndex is the duplicate index carried by the sidecar name, -1
	// when absent.
	DupIndex int
	Data     *Sidecar
}

// supplemental sidecar names truncate the word in various ways:
// .supplemental-metadata.json, .supplemental-meta.json, .supple.json.
const supplementalFull = "supplemental-metadata"

var dupSuffixRe = regexp.MustCompile(`^(.*)\((\d+)\)$`)

// splitDupIndex splits a trailing "(N)" duplicate marker off a name
// fragment, returning the bare fragment and the index (or -1).
func splitDupIndex(fragment string) (string, int) {
	m := dupSuffixRe.FindStringSubmatch(fragment)
	if m == nil {
		return fragment, -1
	}
	idx, err := strconv.Atoi(m[2])
	if err != nil {
		return fragment, -1
	}
	return m[1], idx
}

// applyDupIndex inserts "(N)" before the filename's extension, the way
// Takeout names duplicate media.
func applyDupIndex(name string, idx int) string {
	if idx < 0 {
		return name
	}
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + "(" + strconv.Itoa(idx) + ")" + ext
}

// isSupplementalSegment reports whether a filename segment is a
// truncation of "supplemental-metadata".
func isSupplementalSegment(seg string) bool {
	seg = strings.ToLower(seg)
	return len(seg) >= 4 && strings.HasPrefix(supplementalFull, seg)
}

// parseSidecarName derives the referenced media filename and duplicate
// index from a sidecar's own filename. It returns ok=false for JSON
// files that are not per-media sidecars (album metadata and the like).
func parseSidecarName(jsonName string) (mediaName string, dupIndex int, ok bool) {
	base := strings.TrimSuffix(jsonName, filepath.Ext(jsonName))
	if base == "" || strings.EqualFold(base, "metadata") ||
		strings.EqualFold(base, "print-subscriptions") ||
		strings.EqualFold(base, "shared_album_comments") ||
		strings.EqualFold(base, "user-generated-memory-titles") {
		return "", -1, false
	}

	base, dupIndex = splitDupIndex(base)

	// Strip the supplemental segment when present:
	// "IMG.jpg.supplemental-metadata" -> "IMG.jpg".
	if idx := strings.LastIndex(base, "."); idx >= 0 {
		if isSupplementalSegment(base[idx+1:]) {
			base = base[:idx]
		}
	}
	if base == "" {
		return "", -1, false
	}
	return applyDupIndex(base, dupIndex), dupIndex, true
}

// loadSidecar reads and parses one sidecar file.
func loadSidecar(path string) (*Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

// takenTime resolves the capture time for a matched media file:
// sidecar photoTakenTime, then creationTime, then embedded EXIF
// DateTimeOriginal, then filesystem mtime.
func takenTime(sc *Sidecar, mediaPath string, modTime time.Time) time.Time {
	if sc != nil {
		if t := sc.PhotoTakenTime.Time(); !t.IsZero() {
			return t
		}
		if t := sc.CreationTime.Time(); !t.IsZero() {
			return t
		}
	}
	if t := exifDateTime(mediaPath); !t.IsZero() {
		return t
	}
	return modTime
}

// exifDateTime reads DateTimeOriginal from the image itself. Errors
// mean "no usable date"; video files and most PNGs land here.
func exifDateTime(path string) time.Time {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}
	}
	return t
}
