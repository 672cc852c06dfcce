// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package docmeta reads structural metadata from document attachments
// (page count, encryption, info dictionary). It never extracts content.
package docmeta

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Info is the structural metadata recorded for a document attachment.
type Info struct {
	Pages     int    `json:"pages"`
	Encrypted bool   `json:"encrypted,omitempty"`
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	Producer  string `json:"producer,omitempty"`
}

// IsPDF reports whether the filename looks like a PDF attachment.
func IsPDF(name string) bool {
	return strings.EqualFold(strings.TrimPrefix(pathExt(name), "."), "pdf")
}

func pathExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[idx:]
	}
	return ""
}

// Inspect reads a PDF's structural metadata. Unreadable or encrypted
// documents degrade to whatever could be determined; a nil Info with an
// error means the file is not a parseable PDF at all.
func Inspect(path string) (*Info, error) {
	ctx, err := api.ReadContextFile(path)
	if err != nil {
		// Encrypted documents fail the default read; record that much.
		if strings.Contains(err.Error(), "encrypt") {
			return &Info{Encrypted: true}, nil
		}
		return nil, err
	}
	if ctx.PageCount == 0 {
		if err := ctx.EnsurePageCount(); err != nil {
			return nil, err
		}
	}

	info := &Info{
		Pages:     ctx.PageCount,
		Encrypted: ctx.E != nil,
	}
	if ctx.Title != "" {
		info.Title = ctx.Title
	}
	if ctx.Author != "" {
		info.Author = ctx.Author
	}
	if ctx.Producer != "" {
		info.Producer = ctx.Producer
	}
	return info, nil
}
