// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// StreamInfo is the subset of ffprobe stream output the pipeline needs.
type StreamInfo struct {
	Index       int               `json:"index"`
	CodecType   string            `json:"codec_type"`
	CodecName   string            `json:"codec_name"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	BitRate     string            `json:"bit_rate"`
	Tags        map[string]string `json:"tags"`
	SideDataLst []sideData        `json:"side_data_list"`
}

type sideData struct {
	SideDataType string          `json:"side_data_type"`
	Rotation     json.RawMessage `json:"rotation"`
}

type formatInfo struct {
	BitRate  string `json:"bit_rate"`
	Duration string `json:"duration"`
}

// ProbeResult is a parsed ffprobe -show_streams -show_format run.
type ProbeResult struct {
	Streams []StreamInfo `json:"streams"`
	Format  formatInfo   `json:"format"`
}

// ProbeFile runs ffprobe on path and parses the JSON output.
func (r *Runner) ProbeFile(ctx context.Context, path string) (*ProbeResult, error) {
	out, err := r.Probe(ctx,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	if err != nil {
		return nil, err
	}
	var res ProbeResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("ffprobe output for %s: %w", path, err)
	}
	return &res, nil
}

// VideoStream returns the first video stream, or nil.
func (p *ProbeResult) VideoStream() *StreamInfo {
	for i := range p.Streams {
		if p.Streams[i].CodecType == "video" {
			return &p.Streams[i]
		}
	}
	return nil
}

// HasAudio reports whether any audio stream is present.
func (p *ProbeResult) HasAudio() bool {
	for _, s := range p.Streams {
		if s.CodecType == "audio" {
			return true
		}
	}
	return false
}

// VideoStreamCount counts video streams, used to verify dual-track
// mux output.
func (p *ProbeResult) VideoStreamCount() int {
	n := 0
	for _, s := range p.Streams {
		if s.CodecType == "video" {
			n++
		}
	}
	return n
}

// Rotation returns the display-matrix rotation of the first video
// stream, normalized to [0, 360). Both the tag form ("rotate") and the
// side-data form are consulted.
func (p *ProbeResult) Rotation() int {
	v := p.VideoStream()
	if v == nil {
		return 0
	}
	if tag, ok := v.Tags["rotate"]; ok {
		if r, err := strconv.Atoi(tag); err == nil {
			return normalizeRotation(r)
		}
	}
	for _, sd := range v.SideDataLst {
		if sd.SideDataType != "Display Matrix" || len(sd.Rotation) == 0 {
			continue
		}
		// ffprobe emits the rotation as a number, but some builds quote it.
		var rf float64
		if err := json.Unmarshal(sd.Rotation, &rf); err == nil {
			return normalizeRotation(int(rf))
		}
		var rs string
		if err := json.Unmarshal(sd.Rotation, &rs); err == nil {
			if r, err := strconv.Atoi(rs); err == nil {
				return normalizeRotation(r)
			}
		}
	}
	return 0
}

func normalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	return r
}

// VideoBitrate returns the video stream bitrate in bits/sec, falling
// back to the container bitrate, or 0 when neither is detectable.
func (p *ProbeResult) VideoBitrate() int64 {
	if v := p.VideoStream(); v != nil {
		if b, err := strconv.ParseInt(v.BitRate, 10, 64); err == nil && b > 0 {
			return b
		}
	}
	if b, err := strconv.ParseInt(p.Format.BitRate, 10, 64); err == nil && b > 0 {
		return b
	}
	return 0
}
