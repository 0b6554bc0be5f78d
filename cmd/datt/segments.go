package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ndbaker1/datt/internal/config"
	"github.com/ndbaker1/datt/internal/downloader"
	datthttp "github.com/ndbaker1/datt/internal/http"
	"github.com/ndbaker1/datt/internal/progress"
)

// runSegments downloads a segmented stream into a work area and reassembles
// it into one output file. Segments already in the work area are reused.
func runSegments(args []string) int {
	fs := flag.NewFlagSet("segments", flag.ContinueOnError)
	def := config.Default()

	configPath := fs.String("config", "", "YAML config file")
	url := fs.String("url", "", "Stream base URL, the segment names are appended to it (required)")
	output := fs.String("output", "", "Output file path (required)")
	workDir := fs.String("work-dir", def.WorkDir, "Local work directory")
	workBucket := fs.String("work-bucket", "", "Work area bucket URL, overrides -work-dir")
	outputBucket := fs.String("output-bucket", "", "Also upload the output to this bucket URL")
	chunkSize := fs.Int("chunk-size", def.ChunkSize, "Segments per chunk")
	parallel := fs.Int("parallel", def.Parallel, "Extra chunk workers (parallel+1 chunks in flight)")
	emptyThreshold := fs.Int("empty-threshold", 0, "Empty chunks in a row that end the stream (default chunk-size)")
	start := fs.Int("start", def.Start, "First segment index")
	formats := fs.String("formats", "", "Comma-separated format ring (default html,js,css,txt,png,webp,ico,jpg)")
	template := fs.String("template", def.NameTemplate, "Segment name template")
	keep := fs.Bool("keep", false, "Keep the work area after reassembly")
	showProgress := fs.Bool("progress", false, "Show progress output")
	logLevel := fs.String("log-level", def.LogLevel, "Log level (trace, debug, info, warn, error)")
	timeout := fs.Duration("timeout", def.Timeout, "Per-request timeout")
	retryAttempts := fs.Int("retry-attempts", def.Retry.Attempts, "Retries per request on transport errors and 5xx")
	retryBackoff := fs.Duration("retry-backoff", def.Retry.Backoff, "Initial retry backoff")
	retryMaxBackoff := fs.Duration("retry-max-backoff", def.Retry.MaxBackoff, "Max retry backoff")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: datt segments [options]

Download a segmented stream whose segments are named by index and a cycling
format suffix, then reassemble it into one file. Rerunning with the same work
area resumes without refetching segments already downloaded.

Settings are read from defaults, then -config, then DATT_* environment
variables, then flags.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitInvalidArgs
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	// Only flags given on the command line override file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.URL = *url
		case "output":
			cfg.Output = *output
		case "work-dir":
			cfg.WorkDir = *workDir
		case "work-bucket":
			cfg.WorkBucket = *workBucket
		case "output-bucket":
			cfg.OutputBucket = *outputBucket
		case "chunk-size":
			cfg.ChunkSize = *chunkSize
		case "parallel":
			cfg.Parallel = *parallel
		case "empty-threshold":
			cfg.EmptyThreshold = *emptyThreshold
		case "start":
			cfg.Start = *start
		case "formats":
			cfg.Formats = config.SplitList(*formats)
		case "template":
			cfg.NameTemplate = *template
		case "keep":
			cfg.Keep = *keep
		case "progress":
			cfg.Progress = *showProgress
		case "log-level":
			cfg.LogLevel = *logLevel
		case "timeout":
			cfg.Timeout = *timeout
		case "retry-attempts":
			cfg.Retry.Attempts = *retryAttempts
		case "retry-backoff":
			cfg.Retry.Backoff = *retryBackoff
		case "retry-max-backoff":
			cfg.Retry.MaxBackoff = *retryMaxBackoff
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	return downloadSegments(ctx, cfg, newLogger(cfg.LogLevel))
}

func downloadSegments(ctx context.Context, cfg config.Config, log hclog.Logger) int {
	locator, err := cfg.Locator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	area, err := openArea(ctx, cfg.WorkDir, cfg.WorkBucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening work area: %v\n", err)
		return ExitStorageError
	}
	defer area.Close()

	client := datthttp.NewClient(datthttp.Options{
		MaxIdleConnsPerHost: (cfg.Parallel + 1) * 2,
		Timeout:             cfg.Timeout,
		RetryAttempts:       cfg.Retry.Attempts,
		RetryBackoff:        cfg.Retry.Backoff,
		RetryMaxBackoff:     cfg.Retry.MaxBackoff,
	})

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			UpdateInterval: 2 * time.Second,
			SourceURL:      locator.Base(),
			ChunkSize:      cfg.ChunkSize,
			Parallel:       cfg.Parallel + 1,
		})
		reporter.Start()
	}

	log.Info("downloading stream", "url", locator.Base(), "work_area", describeArea(cfg.WorkDir, cfg.WorkBucket))

	summary, err := downloader.Download(ctx, locator, client, area, downloader.Options{
		Parallel:       cfg.Parallel,
		ChunkSize:      cfg.ChunkSize,
		EmptyThreshold: cfg.EmptyThreshold,
		Start:          cfg.Start,
		Logger:         log,
		Progress:       reporter,
	})
	if reporter != nil {
		reporter.Stop()
	}

	if err != nil {
		var storageErr *downloader.StorageError
		switch {
		case ctx.Err() != nil:
			fmt.Fprintf(os.Stderr, "[datt] Download interrupted, work area kept for resume: %s\n",
				describeArea(cfg.WorkDir, cfg.WorkBucket))
			return ExitInterrupted
		case errors.As(err, &storageErr):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitStorageError
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
	}

	log.Info("stream ended",
		"fetched", summary.Fetched, "cached", summary.Cached, "gaps", summary.Gaps,
		"last_index", summary.LastIndex, "chunks", summary.Chunks)

	if summary.Fetched+summary.Cached == 0 {
		fmt.Fprintf(os.Stderr, "Error: no segments found at %s\n", locator.Base())
		return ExitSourceNotAccess
	}

	return assemble(ctx, area, cfg.Output, cfg.OutputBucket, cfg.Keep, log)
}
