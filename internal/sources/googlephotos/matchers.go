// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package googlephotos

import (
	"strings"

	"memoria/internal/preprocess"
)

// editedSuffixes are the localized "-edited" markers Google appends to
// re-exported edits of a photo.
var editedSuffixes = []string{
	"-edited",
	"-modifié",
	"-bearbeitet",
	"-modificato",
	"-editado",
	"-bewerkt",
	"-edytowane",
}

// stemNoDup returns the stem with any trailing "(N)" marker removed.
func stemNoDup(stem string) string {
	base, _ := splitDupIndex(stem)
	return base
}

// matcherChain builds the ordered strategy list, strongest signal
// first. All strategies are pure; tie-breaking lives in the shared
// chain.
func matcherChain() *preprocess.Chain {
	return &preprocess.Chain{Strategies: []preprocess.Strategy{
		{
			Name:  "exact",
			Exact: true,
			Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
				return strings.EqualFold(m.Name, r.Name)
			},
		},
		{
			// Same stem with duplicate-index propagation across
			// extensions: covers Live Photo JPG/MOV pairs and
			// "IMG_0004(1).PNG" against "IMG_0004.PNG.json".
			Name: "normal",
			Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
				return m.DupIndex == r.DupIndex &&
					strings.EqualFold(stemNoDup(m.Stem()), stemNoDup(r.Stem()))
			},
		},
		{
			Name: "live-photo-duplicates",
			Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
				if m.DupIndex < 0 || m.DupIndex != r.DupIndex {
					return false
				}
				ms, rs := strings.ToLower(stemNoDup(m.Stem())), strings.ToLower(stemNoDup(r.Stem()))
				return strings.HasPrefix(ms, rs) || strings.HasPrefix(rs, ms)
			},
		},
		{
			Name: "trailing-chars",
			Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
				trim := func(s string) string {
					return strings.TrimRight(stemNoDup(s), "-_.")
				}
				return strings.EqualFold(trim(m.Stem()), trim(r.Stem()))
			},
		},
		{
			// Filesystem-truncated names: one stem is a long prefix of
			// the other, same extension.
			Name: "truncated",
			Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
				if !strings.EqualFold(m.Ext(), r.Ext()) && r.Ext() != "" {
					return false
				}
				return isLongPrefix(stemNoDup(m.Stem()), stemNoDup(r.Stem()), 30)
			},
		},
		{
			Name: "edited",
			Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
				ms := strings.ToLower(stemNoDup(m.Stem()))
				rs := strings.ToLower(stemNoDup(r.Stem()))
				if !strings.HasPrefix(ms, rs) {
					return false
				}
				suffix := ms[len(rs):]
				for _, es := range editedSuffixes {
					if suffix == es {
						return true
					}
				}
				return false
			},
		},
		{
			// Long UUID-style stems from Live Photo variants share a
			// near-complete prefix but diverge in the last characters.
			Name: "live-photo-variants",
			Match: func(m *preprocess.MediaFile, r *preprocess.Record) bool {
				ms, rs := stemNoDup(m.Stem()), stemNoDup(r.Stem())
				if len(ms) < 40 || len(rs) < 40 {
					return false
				}
				shorter := len(ms)
				if len(rs) < shorter {
					shorter = len(rs)
				}
				common := commonPrefixLen(strings.ToLower(ms), strings.ToLower(rs))
				return float64(common) >= 0.95*float64(shorter)
			},
		},
	}}
}

// isLongPrefix reports whether one of a, b is a prefix of the other and
// the shorter is at least minLen characters.
func isLongPrefix(a, b string, minLen int) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	shorter := la
	if len(lb) < len(la) {
		shorter = lb
	}
	if len(shorter) < minLen {
		return false
	}
	return strings.HasPrefix(la, lb) || strings.HasPrefix(lb, la)
}

func commonPrefixLen(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return n
}
