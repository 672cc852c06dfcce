// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"memoria/internal/preprocess"
)

const (
	requestTimeout = 30 * time.Second
	maxTries       = 3
	// maxNameLen bounds the sanitized original filename inside an
	// attachment's output name.
	maxNameLen = 150
)

// Downloader fetches CDN attachments with rate limiting and retries.
type Downloader struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewDownloader creates a downloader capped at rps requests per
// second.
func NewDownloader(rps float64) *Downloader {
	return &Downloader{
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// terminalStatus reports whether an HTTP status will never succeed on
// retry. Expired or deleted CDN objects answer 403/404.
func terminalStatus(code int) bool {
	return code == http.StatusForbidden || code == http.StatusNotFound
}

// Fetch downloads url into destPath, creating parent directories.
// Transient failures are retried with exponential backoff; terminal
// statuses fail immediately.
func (d *Downloader) Fetch(ctx context.Context, rawURL, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0750); err != nil {
		return err
	}
	if err := d.limiter.Wait(ctx); err != nil {
		return err
	}

	op := func() (struct{}, error) {
		err := d.fetchOnce(ctx, rawURL, destPath)
		if err == nil {
			return struct{}{}, nil
		}
		var se *statusError
		if errors.As(err, &se) && terminalStatus(se.Code) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(bo), backoff.WithMaxTries(maxTries))
	return err
}

// IsTerminal reports whether a Fetch error was a permanent CDN
// refusal (expired or deleted attachment) rather than a transient
// failure.
func IsTerminal(err error) bool {
	var se *statusError
	return errors.As(err, &se) && terminalStatus(se.Code)
}

type statusError struct {
	Code int
	URL  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Code)
}

func (d *Downloader) fetchOnce(ctx context.Context, rawURL, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{Code: resp.StatusCode, URL: rawURL}
	}

	out, err := os.Create(destPath)
	if err != nil {
		return backoff.Permanent(err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(destPath)
		return err
	}
	return out.Close()
}

// attachmentName derives the output filename for one attachment:
// "{message_id}_{sanitized original}" with the original name bounded
// and its extension preserved.
func attachmentName(messageID, rawURL string) string {
	base := "attachment"
	if u, err := url.Parse(rawURL); err == nil {
		if b := filepath.Base(u.Path); b != "." && b != "/" && b != "" {
			base = b
		}
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	stem = preprocess.SanitizeFilename(stem, maxNameLen)
	return messageID + "_" + stem + strings.ToLower(ext)
}

// uniqueName returns base, or base with a numeric counter inserted
// before the extension when an earlier attachment in the run already
// produced it. Keys are lowercased so the suffixing agrees with the
// registry's case-insensitive collision rules.
func uniqueName(used map[string]bool, base string) string {
	key := strings.ToLower(base)
	if !used[key] {
		used[key] = true
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if key = strings.ToLower(candidate); !used[key] {
			used[key] = true
			return candidate
		}
	}
}
