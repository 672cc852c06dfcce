// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package preprocess

// Strategy is one named matching rule. Strategies are pure predicates
// over a (media, record) pair; ordering in the chain carries the
// strongest-signal-first convention.
type Strategy struct {
	Name string
	// Exact marks the strategy whose matches always win tie-breaking.
	Exact bool
	Match func(media *MediaFile, rec *Record) bool
}

// Chain runs an ordered strategy list with the common resolution
// policy: all matches are collected across all strategies, then an
// exact match wins, then a duplicate-index agreement, then the first
// strategy's first candidate in enumeration order.
type Chain struct {
	Strategies []Strategy
}

type candidate struct {
	strategy int
	rec      *Record
}

// MatchOne resolves the record claimed by one media file, or nil. The
// winning record is marked matched and its claim count incremented; a
// record may be claimed more than once (live-photo pairs, true
// duplicates), which callers surface through Record.Claims.
func (c *Chain) MatchOne(media *MediaFile, records []*Record) *Record {
	var matches []candidate
	for si, s := range c.Strategies {
		for _, rec := range records {
			if s.Match(media, rec) {
				matches = append(matches, candidate{strategy: si, rec: rec})
			}
		}
	}
	if len(matches) == 0 {
		return nil
	}

	winner := matches[0].rec
	if w := c.tieBreak(media, matches); w != nil {
		winner = w
	}
	winner.Matched = true
	winner.Claims++
	media.Matched = true
	return winner
}

func (c *Chain) tieBreak(media *MediaFile, matches []candidate) *Record {
	for _, m := range matches {
		if c.Strategies[m.strategy].Exact {
			return m.rec
		}
	}
	for _, m := range matches {
		if m.rec.DupIndex >= 0 && m.rec.DupIndex == media.DupIndex {
			return m.rec
		}
	}
	return nil
}

// MatchAll runs MatchOne for every media file and returns the media
// files that no record claimed.
func (c *Chain) MatchAll(media []*MediaFile, records []*Record, attach func(m *MediaFile, r *Record)) []*MediaFile {
	var unmatched []*MediaFile
	for _, m := range media {
		rec := c.MatchOne(m, records)
		if rec == nil {
			unmatched = append(unmatched, m)
			continue
		}
		if attach != nil {
			attach(m, rec)
		}
	}
	return unmatched
}

// UnmatchedRecords returns the records no media file claimed.
func UnmatchedRecords(records []*Record) []*Record {
	var out []*Record
	for _, r := range records {
		if !r.Matched {
			out = append(out, r)
		}
	}
	return out
}
