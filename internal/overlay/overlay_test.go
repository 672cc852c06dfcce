// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package overlay

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memoria/internal/ffmpeg"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestComposeImage_OpaqueOverlayWins(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.png")
	ov := filepath.Join(dir, "overlay.png")
	out := filepath.Join(dir, "out.png")

	writePNG(t, base, 8, 8, color.RGBA{R: 255, A: 255})
	writePNG(t, ov, 8, 8, color.RGBA{B: 255, A: 255})

	require.NoError(t, ComposeImage(base, ov, out, 0))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	_, _, b, _ := img.At(4, 4).RGBA()
	assert.EqualValues(t, 0xffff, b, "opaque overlay pixel should replace base")
}

func TestComposeImage_TransparentOverlayKeepsBase(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.png")
	ov := filepath.Join(dir, "overlay.png")
	out := filepath.Join(dir, "out.png")

	writePNG(t, base, 8, 8, color.RGBA{G: 255, A: 255})
	writePNG(t, ov, 8, 8, color.RGBA{}) // fully transparent

	require.NoError(t, ComposeImage(base, ov, out, 0))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	_, g, _, _ := img.At(2, 2).RGBA()
	assert.EqualValues(t, 0xffff, g)
}

func TestComposeImage_ResizesOverlay(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.png")
	ov := filepath.Join(dir, "overlay.png")
	out := filepath.Join(dir, "out.jpg")

	writePNG(t, base, 16, 16, color.RGBA{R: 255, A: 255})
	writePNG(t, ov, 4, 4, color.RGBA{B: 255, A: 255}) // smaller, gets scaled up

	require.NoError(t, ComposeImage(base, ov, out, 90))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestComposeImage_MissingOverlayLeavesNoOutput(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.png")
	out := filepath.Join(dir, "out.png")
	writePNG(t, base, 4, 4, color.RGBA{R: 255, A: 255})

	err := ComposeImage(base, filepath.Join(dir, "missing.png"), out, 0)
	require.Error(t, err)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr), "no partial output may remain")
}

func TestRotateFilter(t *testing.T) {
	const drop = "sidedata=mode=delete:type=DISPLAYMATRIX"
	cases := []struct {
		rotation, w, h int
		want           string
	}{
		{0, 1920, 1080, drop},
		{90, 1920, 1080, "transpose=2," + drop},
		{180, 1920, 1080, "hflip,vflip," + drop},
		{270, 1920, 1080, "transpose=1," + drop},
		{90, 1919, 1080, "scale=1920:1080,transpose=2," + drop},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, rotateFilter(tc.rotation, tc.w, tc.h), "rotation %d", tc.rotation)
	}
}

func TestOverlayFilter(t *testing.T) {
	sw := ffmpeg.Software()
	assert.Equal(t,
		"[0:v][1:v]overlay=0:0,sidedata=mode=delete:type=DISPLAYMATRIX",
		overlayFilter(sw))

	vaapi := &ffmpeg.EncoderProfile{FilterPrefix: "hwdownload,format=nv12,", FilterSuffix: ",hwupload"}
	assert.Equal(t,
		"[0:v]hwdownload,format=nv12[base];[base][1:v]overlay=0:0,sidedata=mode=delete:type=DISPLAYMATRIX,hwupload",
		overlayFilter(vaapi))
}

func TestEvenUp(t *testing.T) {
	assert.Equal(t, 1920, evenUp(1919))
	assert.Equal(t, 1080, evenUp(1080))
}

func TestLocationTag(t *testing.T) {
	assert.Equal(t, "40.741,-73.9896", locationTag(40.741, -73.9896))
	assert.Equal(t, "40.5,-73", locationTag(40.5, -73))
	assert.Equal(t, "0,0", locationTag(0, 0))
}

func TestDescriptions(t *testing.T) {
	d := MessagesDescription("alice", "Ski Trip", "bob", "look at this")
	assert.Contains(t, d, "Source: Snapchat/alice/messages")
	assert.Contains(t, d, `Conversation: "Ski Trip"`)
	assert.Contains(t, d, `Sender: "bob"`)
	assert.Contains(t, d, `Content: "look at this"`)

	noText := MessagesDescription("alice", "Ski Trip", "bob", "")
	assert.NotContains(t, noText, "Content:")

	assert.Equal(t, "Source: Snapchat/carol/memories", MemoriesDescription("carol"))
}
