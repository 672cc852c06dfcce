// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"memoria/internal/ffmpeg"
)

// VideoMetadata is the call-site-supplied metadata embedded in Pass 4.
type VideoMetadata struct {
	Created     time.Time
	Latitude    float64
	Longitude   float64
	HasLocation bool
	Description string
}

// Compositor runs the four-pass video overlay pipeline:
// rotate -> overlay -> dual-track mux -> metadata embed.
// Passes are strictly sequential; every transient file lives in the
// process temp directory and is unlinked on every exit path.
type Compositor struct {
	runner   *ffmpeg.Runner
	selector *ffmpeg.Selector
	log      zerolog.Logger
}

// NewCompositor creates a compositor using the given tool runner and
// encoder selector.
func NewCompositor(runner *ffmpeg.Runner, selector *ffmpeg.Selector, log zerolog.Logger) *Compositor {
	return &Compositor{runner: runner, selector: selector, log: log}
}

// tempSet tracks transient artifacts for unconditional cleanup.
type tempSet struct {
	paths []string
}

func (t *tempSet) New(ext string) string {
	p := filepath.Join(os.TempDir(), "memoria-"+uuid.NewString()+ext)
	t.paths = append(t.paths, p)
	return p
}

func (t *tempSet) CleanupAll() {
	for _, p := range t.paths {
		os.Remove(p)
	}
}

// rotateResult is Pass 1's output contract.
type rotateResult struct {
	path    string
	width   int
	height  int
	bitrate int64 // 0 when not detectable
}

// CreateVideoWithOverlay runs the full pipeline and writes the final
// dual-track MKV to outputPath. It returns false on failure; the caller
// records a processing failure. A hardware encode failure in Pass 1 or
// Pass 2 is retried once on the software encoder; Passes 3 and 4 do no
// encoding and are never retried.
func (c *Compositor) CreateVideoWithOverlay(ctx context.Context, videoPath, overlayPath, outputPath string, meta VideoMetadata) bool {
	temps := &tempSet{}
	defer temps.CleanupAll()

	profile := c.selector.Profile(ctx)
	if profile == nil {
		c.log.Error().Str("video", videoPath).Msg("no video encoder available")
		return false
	}

	rotated, profile, err := c.rotate(ctx, videoPath, profile, temps)
	if err != nil {
		c.log.Error().Err(err).Str("video", videoPath).Msg("rotation pass failed")
		return false
	}

	withOverlay, err := c.applyOverlay(ctx, rotated, overlayPath, profile, temps)
	if err != nil {
		c.log.Error().Err(err).Str("video", videoPath).Msg("overlay pass failed")
		return false
	}

	muxed, err := c.muxDualTrack(ctx, withOverlay, rotated.path, videoPath, temps)
	if err != nil {
		c.log.Error().Err(err).Str("video", videoPath).Msg("mux pass failed")
		return false
	}

	if err := c.embedMetadata(ctx, muxed, outputPath, meta); err != nil {
		c.log.Error().Err(err).Str("video", videoPath).Msg("metadata pass failed")
		os.Remove(outputPath)
		return false
	}
	return true
}

// runEncode executes an encoding invocation built from the given
// profile; a hardware-classified failure is retried once with the
// software profile. The profile actually used is returned so later
// passes stay on the same path.
func (c *Compositor) runEncode(ctx context.Context, profile *ffmpeg.EncoderProfile, build func(p *ffmpeg.EncoderProfile) []string) (*ffmpeg.EncoderProfile, error) {
	err := c.runner.Run(ctx, ffmpeg.EncodeTimeout, build(profile)...)
	if err == nil {
		return profile, nil
	}
	if profile.Hardware && ffmpeg.IsHardwareToolError(err) {
		c.log.Warn().Str("encoder", profile.Name).Msg("hardware encode failed, retrying on software")
		sw := ffmpeg.Software()
		if err := c.runner.Run(ctx, ffmpeg.EncodeTimeout, build(sw)...); err != nil {
			return nil, err
		}
		return sw, nil
	}
	return nil, err
}

// rotate is Pass 1: bake display-matrix rotation into the pixels and
// strip the side data so downstream consumers cannot re-apply it.
func (c *Compositor) rotate(ctx context.Context, videoPath string, profile *ffmpeg.EncoderProfile, temps *tempSet) (*rotateResult, *ffmpeg.EncoderProfile, error) {
	probe, err := c.runner.ProbeFile(ctx, videoPath)
	if err != nil {
		return nil, nil, fmt.Errorf("probe: %w", err)
	}
	v := probe.VideoStream()
	if v == nil {
		return nil, nil, fmt.Errorf("no video stream in %s", videoPath)
	}

	rotation := probe.Rotation()
	// H.265 encoders require even dimensions.
	width, height := evenUp(v.Width), evenUp(v.Height)
	finalW, finalH := width, height
	if rotation == 90 || rotation == 270 {
		finalW, finalH = height, width
	}
	bitrate := probe.VideoBitrate()
	out := temps.New(".mp4")

	build := func(p *ffmpeg.EncoderProfile) []string {
		args := []string{"-hide_banner", "-y", "-noautorotate"}
		args = append(args, p.InputArgs...)
		args = append(args, "-i", videoPath)
		args = append(args, "-vf", p.WrapFilter(rotateFilter(rotation, v.Width, v.Height)))
		args = append(args, p.EncodeArgs(bitrate)...)
		args = append(args, "-c:a", "copy", out)
		return args
	}

	used, err := c.runEncode(ctx, profile, build)
	if err != nil {
		return nil, nil, err
	}
	return &rotateResult{path: out, width: finalW, height: finalH, bitrate: bitrate}, used, nil
}

// rotateFilter builds the CPU-side filter chain for a given rotation.
// The DISPLAYMATRIX side data is deleted in every branch.
func rotateFilter(rotation, width, height int) string {
	const dropMatrix = "sidedata=mode=delete:type=DISPLAYMATRIX"

	chain := ""
	if width%2 != 0 || height%2 != 0 {
		chain = fmt.Sprintf("scale=%d:%d,", evenUp(width), evenUp(height))
	}
	switch rotation {
	case 90:
		return chain + "transpose=2," + dropMatrix
	case 180:
		return chain + "hflip,vflip," + dropMatrix
	case 270:
		return chain + "transpose=1," + dropMatrix
	default:
		return chain + dropMatrix
	}
}

func evenUp(n int) int {
	if n%2 != 0 {
		return n + 1
	}
	return n
}

// applyOverlay is Pass 2: bake the scaled overlay PNG onto the rotated
// video. The scaled PNG is cleaned up unconditionally with the rest of
// the temp set.
func (c *Compositor) applyOverlay(ctx context.Context, rotated *rotateResult, overlayPath string, profile *ffmpeg.EncoderProfile, temps *tempSet) (string, error) {
	scaledPNG := temps.New(".png")
	if err := scaleToPNG(overlayPath, scaledPNG, rotated.width, rotated.height); err != nil {
		return "", fmt.Errorf("scale overlay: %w", err)
	}

	out := temps.New(".mp4")
	build := func(p *ffmpeg.EncoderProfile) []string {
		filter := overlayFilter(p)
		args := []string{"-hide_banner", "-y"}
		args = append(args, p.InputArgs...)
		args = append(args, "-i", rotated.path, "-i", scaledPNG)
		args = append(args, "-filter_complex", filter)
		args = append(args, p.EncodeArgs(rotated.bitrate)...)
		args = append(args, "-c:a", "copy", out)
		return args
	}

	if _, err := c.runEncode(ctx, profile, build); err != nil {
		return "", err
	}
	return out, nil
}

// overlayFilter builds the Pass 2 filter graph. VAAPI frames are
// downloaded to CPU memory before the overlay and uploaded after.
func overlayFilter(p *ffmpeg.EncoderProfile) string {
	const compose = "overlay=0:0,sidedata=mode=delete:type=DISPLAYMATRIX"
	if p.FilterPrefix != "" {
		return "[0:v]" + "hwdownload,format=nv12" + "[base];[base][1:v]" + compose + ",hwupload"
	}
	return "[0:v][1:v]" + compose
}

// muxDualTrack is Pass 3: produce an MKV with the composited video as
// default track 0 and the original rotation-corrected video as track 1,
// stream copy only. Audio, when present, is taken from the original.
func (c *Compositor) muxDualTrack(ctx context.Context, withOverlayPath, rotatedPath, originalPath string, temps *tempSet) (string, error) {
	probe, err := c.runner.ProbeFile(ctx, originalPath)
	if err != nil {
		return "", fmt.Errorf("probe original: %w", err)
	}

	out := temps.New(".mkv")
	args := []string{
		"-hide_banner", "-y",
		"-noautorotate", "-i", withOverlayPath,
		"-noautorotate", "-i", rotatedPath,
	}
	if probe.HasAudio() {
		args = append(args, "-i", originalPath)
	}
	args = append(args, "-map", "0:v:0", "-map", "1:v:0")
	if probe.HasAudio() {
		args = append(args, "-map", "2:a:0")
	}
	args = append(args,
		"-c", "copy",
		"-map_metadata", "-1",
		"-metadata:s:v:0", "title=With Overlay",
		"-metadata:s:v:1", "title=Original",
		"-disposition:v:0", "default",
		"-disposition:v:1", "0",
		out,
	)
	if err := c.runner.Run(ctx, ffmpeg.EncodeTimeout, args...); err != nil {
		return "", err
	}

	// Contract check: exactly two video streams.
	verify, err := c.runner.ProbeFile(ctx, out)
	if err != nil {
		return "", fmt.Errorf("verify mux: %w", err)
	}
	if n := verify.VideoStreamCount(); n != 2 {
		return "", fmt.Errorf("mux produced %d video streams, want 2", n)
	}
	return out, nil
}

// embedMetadata is Pass 4: copy all streams to the final destination,
// re-applying titles and dispositions, and add creation time, location
// and description tags.
func (c *Compositor) embedMetadata(ctx context.Context, muxedPath, outputPath string, meta VideoMetadata) error {
	args := []string{
		"-hide_banner", "-y",
		"-i", muxedPath,
		"-map", "0",
		"-c", "copy",
		"-metadata:s:v:0", "title=With Overlay",
		"-metadata:s:v:1", "title=Original",
		"-disposition:v:0", "default",
		"-disposition:v:1", "0",
	}
	if !meta.Created.IsZero() {
		args = append(args, "-metadata",
			"creation_time="+meta.Created.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if meta.HasLocation {
		loc := locationTag(meta.Latitude, meta.Longitude)
		args = append(args, "-metadata", "location="+loc, "-metadata", "location-eng="+loc)
	}
	if meta.Description != "" {
		args = append(args, "-metadata", "description="+meta.Description)
	}
	args = append(args, outputPath)
	return c.runner.Run(ctx, ffmpeg.EncodeTimeout, args...)
}

// locationTag renders "lat,lon" with shortest round-trip decimals.
func locationTag(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}
