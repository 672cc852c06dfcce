// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package ffmpeg

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// VAAPIDevice is the conventional render node used for VAAPI encoding.
const VAAPIDevice = "/dev/dri/renderD128"

// EncoderProfile describes one accepted encoder. Once selected the
// profile is immutable for the process lifetime; fallback swaps to the
// software profile at call sites instead of mutating the selection.
type EncoderProfile struct {
	// Name is the ffmpeg encoder name, e.g. "hevc_vaapi".
	Name string
	// InputArgs precede the input file on the invocation (VAAPI only).
	InputArgs []string
	// QualityArgs select the encoder's native constant-quality knob.
	QualityArgs []string
	// FilterPrefix/FilterSuffix wrap CPU-side filter chains for
	// encoders whose frames live in device memory.
	FilterPrefix string
	FilterSuffix string
	// Hardware marks profiles whose failures are retryable on software.
	Hardware bool
}

// BitrateArgs returns rate-control arguments targeting the given
// bitrate with 1.15x headroom, maxrate 1.2x and bufsize 2x.
func (p *EncoderProfile) BitrateArgs(bitrate int64) []string {
	target := int64(float64(bitrate) * 1.15)
	return []string{
		"-b:v", fmt.Sprintf("%d", target),
		"-maxrate", fmt.Sprintf("%d", int64(float64(target)*1.2)),
		"-bufsize", fmt.Sprintf("%d", target*2),
	}
}

// EncodeArgs returns the output-side encoder arguments: codec selection
// plus either bitrate rate control (when the source bitrate is known)
// or the constant-quality default.
func (p *EncoderProfile) EncodeArgs(sourceBitrate int64) []string {
	args := []string{"-c:v", p.Name}
	if sourceBitrate > 0 {
		return append(args, p.BitrateArgs(sourceBitrate)...)
	}
	return append(args, p.QualityArgs...)
}

// WrapFilter rewrites a CPU filter chain for this encoder. For VAAPI
// the frames are downloaded to system memory, filtered, and uploaded
// again; other encoders take the chain unchanged.
func (p *EncoderProfile) WrapFilter(chain string) string {
	if p.FilterPrefix == "" && p.FilterSuffix == "" {
		return chain
	}
	return p.FilterPrefix + chain + p.FilterSuffix
}

// Software returns the libx265 profile used for per-operation fallback
// when a hardware invocation fails.
func Software() *EncoderProfile {
	return &EncoderProfile{
		Name:        "libx265",
		QualityArgs: []string{"-crf", "18"},
	}
}

// candidates in priority order. VideoToolbox is macOS only, VAAPI is
// Linux only.
func candidates() []*EncoderProfile {
	var list []*EncoderProfile
	list = append(list, &EncoderProfile{
		Name:        "hevc_nvenc",
		QualityArgs: []string{"-cq", "18"},
		Hardware:    true,
	})
	if runtime.GOOS == "darwin" {
		list = append(list, &EncoderProfile{
			Name:        "hevc_videotoolbox",
			QualityArgs: []string{"-q:v", "20"},
			Hardware:    true,
		})
	}
	if runtime.GOOS == "linux" {
		list = append(list, &EncoderProfile{
			Name: "hevc_vaapi",
			InputArgs: []string{
				"-init_hw_device", "vaapi=va:" + VAAPIDevice,
				"-hwaccel", "vaapi",
				"-hwaccel_output_format", "vaapi",
			},
			QualityArgs:  []string{"-qp", "18"},
			FilterPrefix: "hwdownload,format=nv12,",
			FilterSuffix: ",hwupload",
			Hardware:     true,
		})
	}
	list = append(list,
		&EncoderProfile{
			Name:        "hevc_qsv",
			QualityArgs: []string{"-global_quality", "18"},
			Hardware:    true,
		},
		&EncoderProfile{
			Name:        "hevc_amf",
			QualityArgs: []string{"-rc", "cqp", "-qp_i", "18", "-qp_p", "18"},
			Hardware:    true,
		},
		Software(),
	)
	return list
}

// Selector probes encoders once and caches the accepted profile.
type Selector struct {
	runner *Runner
	log    zerolog.Logger

	once    sync.Once
	profile *EncoderProfile
}

// NewSelector creates a selector bound to a runner.
func NewSelector(runner *Runner, log zerolog.Logger) *Selector {
	return &Selector{runner: runner, log: log}
}

// Profile returns the selected encoder profile, probing on first use.
// libx265 always probes successfully on a working ffmpeg install, so a
// nil profile is only possible when ffmpeg itself is absent.
func (s *Selector) Profile(ctx context.Context) *EncoderProfile {
	s.once.Do(func() {
		s.profile = s.detect(ctx)
	})
	return s.profile
}

// ForceProfile pins the selection to a named encoder, bypassing the
// probe. Unknown names fall back to detection.
func (s *Selector) ForceProfile(ctx context.Context, name string) *EncoderProfile {
	for _, c := range candidates() {
		if c.Name == name {
			s.once.Do(func() { s.profile = c })
			return s.profile
		}
	}
	return s.Profile(ctx)
}

func (s *Selector) detect(ctx context.Context) *EncoderProfile {
	available, err := s.listedEncoders(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("cannot list encoders, assuming software only")
	}

	for _, c := range candidates() {
		if available != nil && !available[c.Name] {
			continue
		}
		if err := s.probeEncode(ctx, c); err != nil {
			s.log.Debug().Str("encoder", c.Name).Err(err).Msg("encoder probe failed")
			continue
		}
		s.log.Info().Str("encoder", c.Name).Bool("hardware", c.Hardware).Msg("selected video encoder")
		return c
	}
	s.log.Warn().Msg("no encoder probe succeeded")
	return nil
}

// listedEncoders parses `ffmpeg -encoders` into a name set.
func (s *Selector) listedEncoders(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	out, err := s.runner.exec(ctx, s.runner.FFmpegPath, ProbeTimeout, []string{"-hide_banner", "-encoders"})
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		// " V....D hevc_nvenc   NVIDIA NVENC hevc encoder"
		if len(fields) >= 2 && strings.HasPrefix(fields[0], "V") {
			names[fields[1]] = true
		}
	}
	return names, nil
}

// probeEncode runs a 0.1-second null-output encode of a synthetic
// 320x240 black frame through the candidate encoder.
func (s *Selector) probeEncode(ctx context.Context, p *EncoderProfile) error {
	args := []string{"-hide_banner", "-v", "error"}
	args = append(args, p.InputArgs...)
	args = append(args, "-f", "lavfi", "-i", "color=black:s=320x240", "-t", "0.1")
	if p.FilterPrefix != "" {
		// Device-memory encoders need the synthetic CPU frame uploaded.
		args = append(args, "-vf", "format=nv12,hwupload")
	}
	args = append(args, "-c:v", p.Name)
	args = append(args, p.QualityArgs...)
	args = append(args, "-f", "null", "-")

	return s.runner.Run(ctx, 30*time.Second, args...)
}
