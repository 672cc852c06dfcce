// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package preprocess

import (
	"fmt"
	"sync"
	"testing"
)

func TestClaim_FirstWriterWins(t *testing.T) {
	r := NewHashRegistry()

	name, first := r.Claim("abc", "photo.jpg", "/in/photo.jpg", "album-1")
	if !first || name != "photo.jpg" {
		t.Fatalf("first claim = (%s, %v)", name, first)
	}
	name, first = r.Claim("abc", "other.jpg", "/in/other.jpg", "album-2")
	if first || name != "photo.jpg" {
		t.Fatalf("second claim = (%s, %v), want canonical photo.jpg", name, first)
	}

	e := r.Get("abc")
	if e == nil || len(e.Contexts) != 2 {
		t.Fatalf("entry = %+v, want 2 contexts", e)
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}

func TestClaim_NameCollision(t *testing.T) {
	r := NewHashRegistry()

	n1, _ := r.Claim("h1", "img.jpg", "/a/img.jpg", nil)
	n2, _ := r.Claim("h2", "img.jpg", "/b/img.jpg", nil)
	n3, _ := r.Claim("h3", "IMG.JPG", "/c/IMG.JPG", nil)

	if n1 != "img.jpg" || n2 != "img_1.jpg" || n3 != "IMG_2.JPG" {
		t.Errorf("names = %s, %s, %s", n1, n2, n3)
	}
}

func TestClaim_Concurrent(t *testing.T) {
	r := NewHashRegistry()
	var wg sync.WaitGroup
	firsts := make(chan bool, 64)

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, first := r.Claim("same-hash", "file.mp4", fmt.Sprintf("/in/%d.mp4", i), i)
			firsts <- first
		}(i)
	}
	wg.Wait()
	close(firsts)

	count := 0
	for f := range firsts {
		if f {
			count++
		}
	}
	if count != 1 {
		t.Errorf("first-writer count = %d, want exactly 1", count)
	}
	if e := r.Get("same-hash"); len(e.Contexts) != 64 {
		t.Errorf("contexts = %d, want 64", len(e.Contexts))
	}
}

func TestRelease(t *testing.T) {
	r := NewHashRegistry()
	r.Claim("h", "f.jpg", "/f.jpg", nil)
	r.Release("h")
	if r.Get("h") != nil {
		t.Error("entry should be gone after Release")
	}
}
