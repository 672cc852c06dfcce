// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"memoria/internal/config"
	"memoria/internal/ffmpeg"
	"memoria/internal/help"
	"memoria/internal/registry"
	"memoria/internal/sources/discord"
	"memoria/internal/sources/googlechat"
	"memoria/internal/sources/googlephotos"
	"memoria/internal/sources/googlevoice"
	"memoria/internal/sources/imessage"
	"memoria/internal/sources/instagram"
	"memoria/internal/sources/snapchat"
	"memoria/internal/version"
)

// cliFlags holds the parsed command line.
type cliFlags struct {
	outputDir      string
	processorName  string
	workers        int
	configFile     string
	skipUpload     bool
	listProcessors bool
	encoder        string
	verbose        bool
	noColor        bool
	showVersion    bool
	showHelp       bool
}

func parseFlags() *cliFlags {
	f := &cliFlags{}
	flag.StringVar(&f.outputDir, "o", "", "Output directory (default: ./memoria-output)")
	flag.StringVar(&f.outputDir, "output", "", "Output directory (default: ./memoria-output)")
	flag.StringVar(&f.processorName, "processor", "", "Run only the named processor instead of auto-detection")
	flag.IntVar(&f.workers, "workers", 0, "Worker pool size (default: CPU count - 1)")
	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&f.skipUpload, "skip-upload", false, "Skip the post-processing upload hand-off")
	flag.BoolVar(&f.listProcessors, "list-processors", false, "List available processors and exit")
	flag.StringVar(&f.encoder, "encoder", "", "Pin the video encoder instead of probing (e.g. libx264, h264_videotoolbox)")
	flag.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")
	flag.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&f.showVersion, "version", false, "Print version information and exit")
	flag.BoolVar(&f.showHelp, "help", false, "Show help information")
	flag.Parse()
	return f
}

// isFlagSet reports whether a flag was explicitly passed.
func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

// loadConfiguration loads the config file or falls back to defaults.
func loadConfiguration(configFile string) *config.Config {
	path := configFile
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: error loading config file: %v\n", err)
		fmt.Fprintln(os.Stderr, "Using default configuration")
		cfg, _ = config.LoadConfig("")
	}
	return cfg
}

// buildRegistry wires every source processor. The snapchat processors
// share one ffmpeg runner and encoder selector.
func buildRegistry(runner *ffmpeg.Runner, selector *ffmpeg.Selector) *registry.Registry {
	reg := registry.New()
	reg.Register(googlephotos.New())
	reg.Register(googlechat.New())
	reg.Register(googlevoice.New())
	reg.Register(instagram.New())
	reg.Register(snapchat.NewMessages(runner, selector))
	reg.Register(snapchat.NewMemories(runner, selector))
	reg.Register(imessage.New())
	reg.Register(discord.New())
	return reg
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Println(version.Info())
		return
	}

	// Disable color for pipes and CI regardless of the flag.
	if !term.IsTerminal(int(os.Stderr.Fd())) || os.Getenv("CI") != "" {
		flags.noColor = true
	}

	cfg := loadConfiguration(flags.configFile)

	// Flags override config, config overrides defaults.
	outputDir := cfg.Defaults.OutputDir
	if flags.outputDir != "" {
		outputDir = flags.outputDir
	}
	workers := cfg.Defaults.Workers
	if isFlagSet("workers") {
		workers = flags.workers
	}
	verbose := cfg.Defaults.Verbose || flags.verbose
	noColor := cfg.Defaults.NoColor || flags.noColor
	skipUpload := cfg.Defaults.SkipUpload || flags.skipUpload
	encoder := cfg.Tools.Encoder
	if flags.encoder != "" {
		encoder = flags.encoder
	}

	console := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		NoColor:    noColor,
		TimeFormat: time.Kitchen,
	}).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	if verbose {
		console = console.Level(zerolog.DebugLevel)
	}

	runner := ffmpeg.NewRunner(cfg.Tools.FFmpeg, cfg.Tools.FFprobe)
	selector := ffmpeg.NewSelector(runner, console)
	reg := buildRegistry(runner, selector)

	helpSystem := help.NewSystem(noColor)
	for _, p := range reg.All() {
		if provider, ok := p.(help.Provider); ok {
			helpSystem.RegisterProvider(provider)
		}
	}

	if flags.listProcessors {
		helpSystem.ShowProcessorList()
		return
	}
	if flags.showHelp {
		args := flag.Args()
		switch {
		case len(args) == 0:
			helpSystem.ShowGeneralHelp()
		case len(args) == 1:
			if !helpSystem.ShowProcessorHelp(args[0]) {
				fmt.Fprintf(os.Stderr, "Unknown processor %q\n", args[0])
				os.Exit(1)
			}
		default:
			fmt.Fprintln(os.Stderr, "Error: too many arguments for help command")
			fmt.Fprintln(os.Stderr, "Use 'memoria --help' or 'memoria --help <processor>'")
			os.Exit(1)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: exactly one input directory is required")
		fmt.Fprintln(os.Stderr, "Usage: memoria INPUT_DIR [options]  (see --help)")
		os.Exit(2)
	}
	inputDir, err := filepath.Abs(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid input path: %v\n", err)
		os.Exit(2)
	}
	if info, err := os.Stat(inputDir); err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "Error: %s is not a directory\n", inputDir)
		os.Exit(2)
	}

	opts := registry.Options{
		Workers:             workers,
		Verbose:             verbose,
		SkipUpload:          skipUpload,
		ExtraBannedPatterns: cfg.Defaults.ExcludePatterns,
		FFmpegPath:          cfg.Tools.FFmpeg,
		FFprobePath:         cfg.Tools.FFprobe,
		ExifToolPath:        cfg.Tools.ExifTool,
		ForceEncoder:        encoder,
	}

	var selected []registry.Processor
	if flags.processorName != "" {
		p, err := reg.Get(flags.processorName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintln(os.Stderr, "Use --list-processors for the available names")
			os.Exit(2)
		}
		if !cfg.ProcessorEnabled(p.Name()) {
			fmt.Fprintf(os.Stderr, "Error: processor %s is disabled by configuration\n", p.Name())
			os.Exit(2)
		}
		selected = []registry.Processor{p}
	} else {
		for _, p := range reg.DetectAll(inputDir) {
			if cfg.ProcessorEnabled(p.Name()) {
				selected = append(selected, p)
			} else {
				console.Info().Str("processor", p.Name()).Msg("detected but disabled by configuration")
			}
		}
		if len(selected) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no processor recognizes %s\n", inputDir)
			fmt.Fprintln(os.Stderr, "Use --processor to force one, or --list-processors to see what each expects")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var failed []string
	for _, p := range selected {
		dest := filepath.Join(outputDir, p.Name())
		console.Info().Str("processor", p.Name()).Str("output", dest).Msg("processing")
		if err := p.Process(ctx, inputDir, dest, opts); err != nil {
			console.Error().Err(err).Str("processor", p.Name()).Msg("processing failed")
			failed = append(failed, p.Name())
			if ctx.Err() != nil {
				break
			}
			continue
		}
		console.Info().Str("processor", p.Name()).Msg("done")
	}

	if len(failed) > 0 {
		fmt.Fprintf(os.Stderr, "Error: %d of %d processors failed: %s\n",
			len(failed), len(selected), strings.Join(failed, ", "))
		os.Exit(1)
	}
}
