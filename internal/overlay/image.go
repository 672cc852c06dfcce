// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package overlay composites Snapchat-style transparent overlays onto
// base photos and videos.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	_ "image/gif"

	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality is used when the caller does not specify one.
const DefaultJPEGQuality = 95

// ComposeImage alpha-composites overlayPath onto basePath and writes
// the result to outputPath. The overlay is resized to the base's
// dimensions with a high-quality resampling kernel when they differ.
// JPEG outputs are flattened onto a white background first, since JPEG
// has no alpha channel. No partial output is left on failure.
func ComposeImage(basePath, overlayPath, outputPath string, jpegQuality int) error {
	base, err := decodeRGBA(basePath)
	if err != nil {
		return fmt.Errorf("overlay: base image: %w", err)
	}
	ov, err := decodeRGBA(overlayPath)
	if err != nil {
		return fmt.Errorf("overlay: overlay image: %w", err)
	}

	if ov.Bounds().Size() != base.Bounds().Size() {
		scaled := image.NewRGBA(base.Bounds())
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), ov, ov.Bounds(), draw.Over, nil)
		ov = scaled
	}

	composed := image.NewRGBA(base.Bounds())
	draw.Draw(composed, composed.Bounds(), base, base.Bounds().Min, draw.Src)
	draw.Draw(composed, composed.Bounds(), ov, ov.Bounds().Min, draw.Over)

	return writeImage(composed, outputPath, jpegQuality)
}

func decodeRGBA(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

func writeImage(img *image.RGBA, outputPath string, jpegQuality int) error {
	tmp, err := os.CreateTemp(filepath.Dir(outputPath), ".compose-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	ext := strings.ToLower(filepath.Ext(outputPath))
	switch ext {
	case ".jpg", ".jpeg":
		if jpegQuality <= 0 {
			jpegQuality = DefaultJPEGQuality
		}
		err = jpeg.Encode(tmp, flattenOnWhite(img), &jpeg.Options{Quality: jpegQuality})
	default:
		err = png.Encode(tmp, img)
	}
	if err != nil {
		tmp.Close()
		return fmt.Errorf("encode %s: %w", outputPath, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), outputPath)
}

// flattenOnWhite blends the image onto an opaque white background
// using its alpha channel as mask.
func flattenOnWhite(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Over)
	return out
}

// scaleToPNG resizes an overlay image to the given dimensions and
// writes it as a temporary PNG for the video pipeline.
func scaleToPNG(overlayPath, destPath string, width, height int) error {
	ov, err := decodeRGBA(overlayPath)
	if err != nil {
		return err
	}
	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), ov, ov.Bounds(), draw.Over, nil)

	f, err := os.Create(destPath)
	if err != nil {
		return err
	}
	if err := png.Encode(f, scaled); err != nil {
		f.Close()
		os.Remove(destPath)
		return err
	}
	return f.Close()
}
