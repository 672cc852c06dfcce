// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlevoice

import (
	"strings"

	"memoria/internal/preprocess"
)

// prefixFloor is the shortest shared prefix accepted by the loosest
// strategy.
const prefixFloor = 20

// matcherChain orders the transcript-reference matching strategies.
// References inside the HTML often lack the extension the exporter
// gave the file on disk, and either side can pick up a "-1"
// disambiguator the other lacks.
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
				Name: "extension-appended",
				Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
					return r.Ext() == "" && strings.EqualFold(m.Stem(), r.Name)
				},
			},
			{
				Name: "counter-suffix",
				Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
					if r.Ext() != "" && !strings.EqualFold(m.Ext(), r.Ext()) {
						return false
					}
					mStem := strings.TrimSuffix(m.Stem(), "-1")
					rStem := strings.TrimSuffix(r.Stem(), "-1")
					return strings.EqualFold(mStem, rStem)
				},
			},
			{
				Name: "prefix",
				Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
					mStem := strings.ToLower(m.Stem())
					rStem := strings.ToLower(r.Stem())
					short, long := mStem, rStem
					if len(short) > len(long) {
						short, long = long, short
					}
					return len(short) >= prefixFloor && strings.HasPrefix(long, short)
				},
			},
		},
	}
}
