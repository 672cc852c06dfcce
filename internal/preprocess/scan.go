// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package preprocess

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"memoria/internal/fileinspect"
	"memoria/internal/pathfilter"
)

// ScanMedia walks root recursively and returns every regular file that
// passes the banned-path filter. Both recursion targets and leaves are
// filtered.
func ScanMedia(root string, filter *pathfilter.Filter) ([]*MediaFile, error) {
	var files []*MediaFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if filter.Banned(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		files = append(files, newMediaFile(path, info))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// ScanFlat returns the regular files directly inside dir, filtered.
func ScanFlat(dir string, filter *pathfilter.Filter) ([]*MediaFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []*MediaFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if filter.Banned(path) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, newMediaFile(path, info))
	}
	return files, nil
}

// StatMedia builds a MediaFile for one known path. Used by sources
// whose metadata carries resolvable relative paths instead of bare
// filenames.
func StatMedia(path string) (*MediaFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	return newMediaFile(path, info), nil
}

func newMediaFile(path string, info fs.FileInfo) *MediaFile {
	name := filepath.Base(path)
	return &MediaFile{
		Path:     path,
		Name:     name,
		Category: fileinspect.CategoryOf(filepath.Ext(name)),
		Size:     info.Size(),
		ModTime:  info.ModTime(),
		DupIndex: -1,
	}
}
