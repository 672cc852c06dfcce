// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package checksum computes content hashes used for deduplication.
// xxHash-64 is non-cryptographic and chosen for throughput.
package checksum

import (
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
)

// chunkSize is the read size for file hashing.
const chunkSize = 64 * 1024

// File returns the xxHash-64 of the file's contents as lowercase hex.
// I/O errors are surfaced to the caller; callers should treat a file
// that cannot be hashed as unique rather than abort the run.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("checksum: open %s: %w", path, err)
	}
	defer f.Close()
	return Reader(f)
}

// Reader hashes the full contents of r in fixed-size chunks.
func Reader(r io.Reader) (string, error) {
	h := xxhash.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("checksum: read: %w", err)
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
