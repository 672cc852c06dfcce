// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package exiftool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseErrors(t *testing.T) {
	stderr := `Warning: Minor issues - /out/a.jpg
Error: File not found - /out/missing.jpg
Error: Format error in file - /out/bad.mp4
`
	failures := parseErrors(stderr)
	assert.Len(t, failures, 2)
	assert.Equal(t, "/out/missing.jpg", failures[0].Path)
	assert.Equal(t, "File not found", failures[0].Message)
	assert.Equal(t, "/out/bad.mp4", failures[1].Path)
}

func TestParseErrors_Empty(t *testing.T) {
	assert.Empty(t, parseErrors(""))
	assert.Empty(t, parseErrors("1 image files updated\n"))
}

func TestDateTags(t *testing.T) {
	ts := time.Date(2017, 9, 22, 6, 33, 0, 0, time.UTC)
	tags := DateTags(ts)
	assert.Equal(t, "2017:09:22 06:33:00", tags["DateTimeOriginal"])
	assert.Equal(t, "2017:09:22 06:33:00", tags["CreateDate"])
}

func TestGPSTags(t *testing.T) {
	tags := GPSTags(-33.8688, 151.2093)
	assert.Equal(t, "S", tags["GPSLatitudeRef"])
	assert.Equal(t, "E", tags["GPSLongitudeRef"])
	assert.Equal(t, "33.868800", tags["GPSLatitude"])
	assert.Equal(t, "151.209300", tags["GPSLongitude"])
}

func TestMerge(t *testing.T) {
	merged := Merge(
		map[string]string{"A": "1", "B": "2"},
		map[string]string{"B": "3"},
		PeopleTags([]string{"Ada", "Grace"}),
	)
	assert.Equal(t, "1", merged["A"])
	assert.Equal(t, "3", merged["B"])
	assert.Equal(t, "Ada, Grace", merged["XMP-dc:Subject"])
}
