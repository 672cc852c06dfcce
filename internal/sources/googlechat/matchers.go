// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlechat

import (
	"strings"

	"memoria/internal/preprocess"
)

// sanitizeExportName maps an attachment's recorded export_name onto
// the name Takeout actually writes to disk: the characters `=`, `?`
// and `'` come out as underscores.
func sanitizeExportName(name string) string {
	return strings.NewReplacer("=", "_", "?", "_", "'", "_").Replace(name)
}

// truncationFloor is the shortest shared prefix accepted as evidence
// that the on-disk name was cut by the exporter's filename limit.
const truncationFloor = 30

// matcherChain orders the attachment matching strategies from
// strictest to loosest.
func matcherChain() *preprocess.Chain {
	return &preprocess.Chain{
		Strategies: []preprocess.Strategy{
			{
				Name:  "exact",
				Exact: true,
				Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
					return strings.EqualFold(m.Name, r.Name)
				},
			},
			{
				Name: "sanitized",
				Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
					return strings.EqualFold(m.Name, sanitizeExportName(r.Name))
				},
			},
			{
				Name: "truncated",
				Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
					if !strings.EqualFold(m.Ext(), r.Ext()) && r.Ext() != "" {
						return false
					}
					mStem := strings.ToLower(m.Stem())
					rStem := strings.ToLower(sanitizeExportName(r.Stem()))
					short, long := mStem, rStem
					if len(short) > len(long) {
						short, long = long, short
					}
					return len(short) >= truncationFloor && strings.HasPrefix(long, short)
				},
			},
		},
	}
}
