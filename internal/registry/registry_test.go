// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"strings"
	"testing"
)

type fakeProcessor struct {
	name     string
	priority int
	match    string
}

func (f *fakeProcessor) Name() string               { return f.name }
func (f *fakeProcessor) Priority() int              { return f.priority }
func (f *fakeProcessor) Detect(inputDir string) bool {
	return strings.Contains(inputDir, f.match)
}
func (f *fakeProcessor) Process(context.Context, string, string, Options) error { return nil }
func (f *fakeProcessor) SupportsConsolidation() bool                            { return false }

func TestDetectAll_PriorityOrder(t *testing.T) {
	r := New()
	r.Register(&fakeProcessor{name: "low", priority: 10, match: "export"})
	r.Register(&fakeProcessor{name: "high", priority: 90, match: "export"})
	r.Register(&fakeProcessor{name: "nomatch", priority: 100, match: "other"})

	got := r.DetectAll("/data/export")
	if len(got) != 2 {
		t.Fatalf("DetectAll returned %d processors, want 2", len(got))
	}
	if got[0].Name() != "high" || got[1].Name() != "low" {
		t.Errorf("order = [%s, %s], want [high, low]", got[0].Name(), got[1].Name())
	}
}

func TestGet(t *testing.T) {
	r := New()
	r.Register(&fakeProcessor{name: "discord"})

	if _, err := r.Get("discord"); err != nil {
		t.Errorf("Get(discord): %v", err)
	}
	if _, err := r.Get("missing"); err == nil {
		t.Error("Get(missing) should fail")
	}
}
