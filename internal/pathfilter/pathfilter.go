// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package pathfilter

import (
	"path/filepath"
	"strings"
	"sync"
)

// Filter classifies filesystem entries as ignorable system artifacts.
// The decision consults only the path's basename, so the same filter
// works for both directory recursion targets and yielded leaves.
type Filter struct {
	exact    map[string]struct{}
	prefixes []string
}

// Default patterns cover NAS system directories, thumbnail and catalog
// directories, macOS metadata, and application sidecar directories.
var (
	defaultExact = []string{
		"@eaDir",
		"@__thumb",
		".@__thumb",
		"@Recycle",
		"#recycle",
		"@Transcode",
		"@tmp",
		".DS_Store",
		".AppleDouble",
		".Spotlight-V100",
		".Trashes",
		"__MACOSX",
		"Thumbs.db",
		"desktop.ini",
		".thumbnails",
		".picasaoriginals",
		".picasa.ini",
		".comments",
	}
	defaultPrefixes = []string{
		"SYNOFILE_THUMB_",
		"._",
	}
)

// New builds a filter from the default pattern set plus any extra
// patterns contributed by the caller. An extra pattern ending in "*"
// is treated as a prefix pattern.
func New(extra ...string) *Filter {
	f := &Filter{
		exact:    make(map[string]struct{}, len(defaultExact)+len(extra)),
		prefixes: make([]string, 0, len(defaultPrefixes)),
	}
	for _, name := range defaultExact {
		f.exact[name] = struct{}{}
	}
	f.prefixes = append(f.prefixes, defaultPrefixes...)
	for _, p := range extra {
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "*") {
			if trimmed := strings.TrimSuffix(p, "*"); trimmed != "" {
				f.prefixes = append(f.prefixes, trimmed)
			}
			continue
		}
		f.exact[p] = struct{}{}
	}
	return f
}

// Banned reports whether the entry at path is a system artifact that
// must not be scanned or copied.
func (f *Filter) Banned(path string) bool {
	base := filepath.Base(path)
	if _, ok := f.exact[base]; ok {
		return true
	}
	for _, prefix := range f.prefixes {
		if strings.HasPrefix(base, prefix) {
			return true
		}
	}
	return false
}

var (
	defaultOnce   sync.Once
	defaultFilter *Filter
)

// Default returns the process-wide filter built from the default
// pattern set. It is initialized on first use and never mutated.
func Default() *Filter {
	defaultOnce.Do(func() {
		defaultFilter = New()
	})
	return defaultFilter
}
