// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package exiftool

import (
	"fmt"
	"strings"
	"time"
)

// DateTags returns the capture-date tag set in exiftool's expected
// format.
func DateTags(t time.Time) map[string]string {
	v := t.UTC().Format("2006:01:02 15:04:05")
	return map[string]string{
		"DateTimeOriginal": v,
		"CreateDate":       v,
	}
}

// GPSTags returns the coordinate tag set with hemisphere refs.
func GPSTags(lat, lon float64) map[string]string {
	latRef, lonRef := "N", "E"
	if lat < 0 {
		latRef = "S"
	}
	if lon < 0 {
		lonRef = "W"
	}
	return map[string]string{
		"GPSLatitude":     fmt.Sprintf("%f", abs(lat)),
		"GPSLatitudeRef":  latRef,
		"GPSLongitude":    fmt.Sprintf("%f", abs(lon)),
		"GPSLongitudeRef": lonRef,
	}
}

// DescriptionTag returns the XMP description tag.
func DescriptionTag(text string) map[string]string {
	return map[string]string{"XMP:Description": text}
}

// PeopleTags returns the XMP-dc subject list for tagged people.
func PeopleTags(names []string) map[string]string {
	if len(names) == 0 {
		return nil
	}
	return map[string]string{"XMP-dc:Subject": strings.Join(names, ", ")}
}

// Merge combines tag maps; later maps win on conflicts.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
