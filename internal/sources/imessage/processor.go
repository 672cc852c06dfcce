// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package imessage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"memoria/internal/help"
	"memoria/internal/observability"
	"memoria/internal/registry"
)

// Processor ingests iMessage attachment exports.
type Processor struct{}

// New creates the processor.
func New() *Processor { return &Processor{} }

func (p *Processor) Name() string  { return "imessage" }
func (p *Processor) Priority() int { return 65 }

// SupportsConsolidation is true: per-device exports of the same message
// history are merged into one output directory across runs.
func (p *Processor) SupportsConsolidation() bool { return true }

// Detect looks for attachment-named files, transcript sidecars or a
// Messages database at the top level.
func (p *Processor) Detect(inputDir string) bool {
	if findChatDB(inputDir) != "" {
		return true
	}
	if paths, _ := filepath.Glob(filepath.Join(inputDir, "Messages - *.csv")); len(paths) > 0 {
		return true
	}
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stem := e.Name()
		if ext := filepath.Ext(stem); ext != "" {
			stem = stem[:len(stem)-len(ext)]
		}
		if _, ok := parseAttachmentName(stem); ok {
			return true
		}
	}
	return false
}

// GetProcessorInfo implements help.Provider.
func (p *Processor) GetProcessorInfo() help.ProcessorInfo {
	return help.ProcessorInfo{
		Name:             p.Name(),
		ShortDescription: "iMessage attachment exports with CSV transcripts and chat.db context",
		DetailedDescription: "Processes iMessage attachments exported by desktop backup tools " +
			"as \"{date} - {contact} - {file}\" names. Groups attachments into per-contact " +
			"conversations (\" & \" in the contact field marks a group chat) and recovers " +
			"message text and sender from \"Messages - {contact}.csv\" sidecars or from a " +
			"chat.db/sms.db copied alongside the export. Repeated runs into one output " +
			"directory consolidate: existing files absorb this run's duplicates and " +
			"conversations merge.",
		InputLayout: []string{
			"2021-03-14 09 26 53 - Alice - IMG_0042.jpeg",
			"2021-03-15 18 00 01 - Alice & Bob - video.mov",
			"Messages - Alice.csv",
			"chat.db",
		},
		Priority:      p.Priority(),
		Consolidation: true,
		Examples: []string{
			"memoria ~/exports/phone-a -o ./archive --processor imessage",
			"memoria ~/exports/phone-b -o ./archive --processor imessage",
		},
	}
}

// Process runs the pipeline for one export.
func (p *Processor) Process(ctx context.Context, inputDir, outputDir string, opts registry.Options) error {
	log, err := observability.NewRunLogger(outputDir, opts.Verbose)
	if err != nil {
		return err
	}
	defer log.Close()
	log.Info().Str("input", inputDir).Str("output", outputDir).Msg("imessage run starting")

	if err := p.preprocessRun(ctx, inputDir, outputDir, opts.Workers, opts.ExtraBannedPatterns, log.Logger); err != nil {
		return fmt.Errorf("imessage preprocess: %w", err)
	}
	return nil
}
