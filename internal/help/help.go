// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package help

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
)

// ProcessorInfo contains standardized information about a processor
type ProcessorInfo struct {
	Name                string   // Stable name used by --processor (e.g., "google-photos")
	ShortDescription    string   // Short description for the processor list
	DetailedDescription string   // Detailed description of the export format handled
	InputLayout         []string // Directory/file layout the detector looks for
	Priority            int      // Detection priority; higher runs first
	Consolidation       bool     // Whether multiple exports may merge into one output
	Examples            []string // Usage examples
}

// Provider defines the interface for help content providers
type Provider interface {
	GetProcessorInfo() ProcessorInfo
}

// System manages help content for the application
type System struct {
	providers map[string]ProcessorInfo
	colors    map[string]*color.Color
}

// NewSystem creates a new help system
func NewSystem(noColor bool) *System {
	if noColor {
		color.NoColor = true
	}
	return &System{
		providers: make(map[string]ProcessorInfo),
		colors: map[string]*color.Color{
			"title":    color.New(color.FgWhite, color.Bold),
			"subtitle": color.New(color.FgCyan, color.Bold),
			"header":   color.New(color.FgBlue, color.Bold),
			"item":     color.New(color.FgCyan),
			"emphasis": color.New(color.FgWhite, color.Bold),
			"positive": color.New(color.FgGreen),
			"warning":  color.New(color.FgYellow),
			"example":  color.New(color.FgMagenta),
		},
	}
}

// RegisterProvider adds a help provider to the system
func (h *System) RegisterProvider(provider Provider) {
	info := provider.GetProcessorInfo()
	h.providers[strings.ToLower(info.Name)] = info
}

// ShowGeneralHelp displays general help information
func (h *System) ShowGeneralHelp() {
	h.colors["title"].Println("Memoria - Media Export Archival Tool")
	fmt.Println("====================================")
	fmt.Println()
	h.colors["header"].Println("USAGE:")
	fmt.Println("  memoria INPUT_DIR [options]")
	fmt.Println()

	h.colors["header"].Println("OPTIONS:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  -o, --output\t<path>\tOutput directory (default: ./memoria-output)")
	fmt.Fprintln(w, "  --processor\t<name>\tRun only the named processor instead of auto-detection")
	fmt.Fprintln(w, "  --workers\t<n>\tWorker pool size (default: CPU count - 1)")
	fmt.Fprintln(w, "  --config\t<path>\tPath to configuration file (YAML)")
	fmt.Fprintln(w, "  --skip-upload\t\tSkip the post-processing upload hand-off")
	fmt.Fprintln(w, "  --list-processors\t\tList available processors and exit")
	fmt.Fprintln(w, "  --encoder\t<name>\tPin the video encoder instead of probing")
	fmt.Fprintln(w, "  --verbose\t\tEnable debug logging")
	fmt.Fprintln(w, "  --no-color\t\tDisable colored output")
	fmt.Fprintln(w, "  --version\t\tPrint version information and exit")
	w.Flush()
	fmt.Println()

	h.colors["header"].Println("PROCESSORS:")
	fmt.Println("  Use --list-processors for the full list with detection details.")
}

// ShowProcessorList prints every registered processor sorted by
// priority descending.
func (h *System) ShowProcessorList() {
	infos := make([]ProcessorInfo, 0, len(h.providers))
	for _, info := range h.providers {
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Priority != infos[j].Priority {
			return infos[i].Priority > infos[j].Priority
		}
		return infos[i].Name < infos[j].Name
	})

	h.colors["title"].Println("Available processors")
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tPRIORITY\tCONSOLIDATION\tDESCRIPTION")
	for _, info := range infos {
		consolidation := "no"
		if info.Consolidation {
			consolidation = "yes"
		}
		fmt.Fprintf(w, "  %s\t%d\t%s\t%s\n",
			info.Name, info.Priority, consolidation, info.ShortDescription)
	}
	w.Flush()
}

// ShowProcessorHelp displays detailed help for one processor.
func (h *System) ShowProcessorHelp(name string) bool {
	info, ok := h.providers[strings.ToLower(name)]
	if !ok {
		return false
	}

	h.colors["title"].Printf("%s\n", info.Name)
	fmt.Println(strings.Repeat("=", len(info.Name)))
	fmt.Println()
	fmt.Println(info.DetailedDescription)
	fmt.Println()

	if len(info.InputLayout) > 0 {
		h.colors["header"].Println("EXPECTED INPUT LAYOUT:")
		for _, line := range info.InputLayout {
			h.colors["item"].Printf("  %s\n", line)
		}
		fmt.Println()
	}
	if len(info.Examples) > 0 {
		h.colors["header"].Println("EXAMPLES:")
		for _, ex := range info.Examples {
			h.colors["example"].Printf("  %s\n", ex)
		}
		fmt.Println()
	}
	return true
}
