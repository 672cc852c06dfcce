// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package fileinspect infers media types from magic bytes and decides
// whether a declared file extension should be corrected.
package fileinspect

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Category is the top-level media category of a file.
type Category string

const (
	CategoryImage   Category = "image"
	CategoryVideo   Category = "video"
	CategoryAudio   Category = "audio"
	CategoryUnknown Category = "unknown"
)

// Result describes the outcome of type inference for one file.
type Result struct {
	// MIME is the detected MIME type, empty when inference failed.
	MIME string
	// Extension is the extension the file should carry, without dot,
	// lowercase. Equal to the declared extension unless Corrected.
	Extension string
	// Category is the category of the resulting extension.
	Category Category
	// Corrected reports whether the declared extension was replaced.
	Corrected bool
}

// headerSize covers the filetype matchers (262 bytes), the hand-coded
// signature table (32 bytes), and the EBML DocType scan (next 4 KiB).
const headerSize = 32 + 4096

var extCategories = map[string]Category{
	"jpg": CategoryImage, "jpeg": CategoryImage, "png": CategoryImage,
	"gif": CategoryImage, "webp": CategoryImage, "bmp": CategoryImage,
	"tif": CategoryImage, "tiff": CategoryImage, "heic": CategoryImage,
	"heif": CategoryImage, "avif": CategoryImage, "ico": CategoryImage,

	"mp4": CategoryVideo, "mov": CategoryVideo, "m4v": CategoryVideo,
	"avi": CategoryVideo, "mkv": CategoryVideo, "webm": CategoryVideo,
	"wmv": CategoryVideo, "mpg": CategoryVideo, "mpeg": CategoryVideo,
	"3gp": CategoryVideo, "ts": CategoryVideo, "mts": CategoryVideo,
	"m2ts": CategoryVideo, "flv": CategoryVideo,

	"mp3": CategoryAudio, "m4a": CategoryAudio, "aac": CategoryAudio,
	"wav": CategoryAudio, "flac": CategoryAudio, "ogg": CategoryAudio,
	"opus": CategoryAudio, "wma": CategoryAudio, "amr": CategoryAudio,
	"aiff": CategoryAudio, "caf": CategoryAudio,
}

// equivalent extensions are never reported as corrections.
var extAliases = map[string]string{
	"jpeg": "jpg",
	"tif":  "tiff",
	"heif": "heic",
	"mpeg": "mpg",
	"m4v":  "mp4",
}

// CategoryOf returns the top-level category for an extension
// (with or without a leading dot).
func CategoryOf(ext string) Category {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if c, ok := extCategories[ext]; ok {
		return c
	}
	return CategoryUnknown
}

// Infer reads the file's magic bytes and decides the extension the file
// should carry. When inference fails the declared extension is retained.
// When allowCrossCategory is false, a correction is suppressed whenever
// the declared and inferred extensions fall into different top-level
// categories; this prevents spurious image-to-video reclassifications on
// short files the magic matchers misreport.
func Infer(path, declaredName string, allowCrossCategory bool) Result {
	declared := strings.ToLower(strings.TrimPrefix(filepath.Ext(declaredName), "."))
	fallback := Result{Extension: declared, Category: CategoryOf(declared)}

	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	n, _ := f.Read(buf)
	if n == 0 {
		return fallback
	}
	buf = buf[:n]

	mime, inferred := sniff(buf)
	if inferred == "" {
		return fallback
	}

	if canonical(inferred) == canonical(declared) {
		return Result{MIME: mime, Extension: declared, Category: CategoryOf(declared)}
	}

	inferredCat := CategoryOf(inferred)
	declaredCat := CategoryOf(declared)
	if !allowCrossCategory && declared != "" && declaredCat != inferredCat {
		// Same-category policy: keep the declared extension.
		return Result{MIME: mime, Extension: declared, Category: declaredCat}
	}

	return Result{MIME: mime, Extension: inferred, Category: inferredCat, Corrected: true}
}

func canonical(ext string) string {
	if alias, ok := extAliases[ext]; ok {
		return alias
	}
	return ext
}

// sniff returns (mime, extension) or ("", "") when the bytes are not
// recognized by the magic database or the signature table.
func sniff(buf []byte) (string, string) {
	if t, err := filetype.Match(buf); err == nil && t != filetype.Unknown {
		return t.MIME.Value, t.Extension
	}
	return sniffSignature(buf)
}

// sniffSignature is a second-chance table over the leading 32 bytes for
// formats the magic database misses on short or truncated files.
func sniffSignature(buf []byte) (string, string) {
	if len(buf) < 12 {
		return "", ""
	}
	switch {
	case bytes.HasPrefix(buf, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg", "jpg"
	case bytes.HasPrefix(buf, []byte("\x89PNG")):
		return "image/png", "png"
	case bytes.HasPrefix(buf, []byte("GIF87a")) || bytes.HasPrefix(buf, []byte("GIF89a")):
		return "image/gif", "gif"
	case bytes.HasPrefix(buf, []byte("RIFF")) && bytes.Equal(buf[8:12], []byte("WEBP")):
		return "image/webp", "webp"
	case bytes.HasPrefix(buf, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		// EBML container: WebM and Matroska share the header, the
		// DocType string within the first few KiB tells them apart.
		if bytes.Contains(buf[:min(len(buf), 32+4096)], []byte("webm")) {
			return "video/webm", "webm"
		}
		return "video/x-matroska", "mkv"
	case bytes.Equal(buf[4:8], []byte("ftyp")):
		if bytes.HasPrefix(buf[8:12], []byte("qt")) {
			return "video/quicktime", "mov"
		}
		return "video/mp4", "mp4"
	case bytes.Equal(buf[4:8], []byte("moov")) || bytes.Equal(buf[4:8], []byte("mdat")) ||
		bytes.Equal(buf[4:8], []byte("wide")) || bytes.Equal(buf[4:8], []byte("free")):
		return "video/quicktime", "mov"
	}
	return "", ""
}
