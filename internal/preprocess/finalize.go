// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package preprocess

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// AlignModTimes sets each copied file's filesystem timestamps to the
// capture time derived by when. Items without an output name or a
// known time are skipped; per-file failures are logged and never abort
// the pass.
func AlignModTimes(mediaDir string, items []*MediaFile, when func(*MediaFile) time.Time, log zerolog.Logger) {
	for _, m := range items {
		if m.OutputName == "" {
			continue
		}
		t := when(m)
		if t.IsZero() {
			continue
		}
		path := filepath.Join(mediaDir, m.OutputName)
		if err := os.Chtimes(path, t, t); err != nil {
			log.Debug().Err(err).Str("file", m.OutputName).Msg("utime failed")
		}
	}
}
