// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package preprocess

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// HashEntry records the canonical output file for one content hash and
// every source-specific context that referenced it.
type HashEntry struct {
	FileName   string `json:"file_name"`
	SourcePath string `json:"source_path"`
	Contexts   []any  `json:"contexts,omitempty"`
}

// HashRegistry maps content hashes to their canonical output files.
// The first item to claim a hash becomes canonical; concurrent
// subsequent writers under the same hash observe the first writer's
// output filename and append their context instead of creating a new
// file.
type HashRegistry struct {
	mu      sync.Mutex
	entries map[string]*HashEntry
	names   map[string]int
}

// NewHashRegistry creates an empty registry.
func NewHashRegistry() *HashRegistry {
	return &HashRegistry{
		entries: make(map[string]*HashEntry),
		names:   make(map[string]int),
	}
}

// Claim registers hash under the desired output filename. The first
// caller per hash wins and receives a collision-free output name with
// first=true; later callers receive the canonical name with
// first=false and their context appended.
func (r *HashRegistry) Claim(hash, fileName, sourcePath string, context any) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[hash]; ok {
		if context != nil {
			e.Contexts = append(e.Contexts, context)
		}
		return e.FileName, false
	}

	assigned := r.uniqueName(fileName)
	e := &HashEntry{FileName: assigned, SourcePath: sourcePath}
	if context != nil {
		e.Contexts = append(e.Contexts, context)
	}
	r.entries[hash] = e
	return assigned, true
}

// Release removes a claim whose copy failed, so the registry only ever
// points at files that exist.
func (r *HashRegistry) Release(hash string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, hash)
}

// Get returns the entry for hash, or nil.
func (r *HashRegistry) Get(hash string) *HashEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[hash]
}

// Len returns the number of unique hashes.
func (r *HashRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Each visits every entry. Not safe to call concurrently with writers;
// the pipeline only reads after all copies complete.
func (r *HashRegistry) Each(fn func(hash string, e *HashEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h, e := range r.entries {
		fn(h, e)
	}
}

// uniqueName resolves output filename collisions with a numeric
// suffix. Comparison is case-insensitive so the output tree behaves on
// case-preserving filesystems.
func (r *HashRegistry) uniqueName(name string) string {
	key := strings.ToLower(name)
	n := r.names[key]
	r.names[key] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}
