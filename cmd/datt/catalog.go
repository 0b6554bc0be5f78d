package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"gocloud.dev/blob"

	"github.com/ndbaker1/datt/internal/catalog"
	datthttp "github.com/ndbaker1/datt/internal/http"
)

// runCatalog downloads every episode of a show, one file per episode.
func runCatalog(args []string) int {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)

	url := fs.String("url", "", "URL of any episode page, ending in -<episode> (required)")
	captcha := fs.String("captcha", "", "Captcha token for the download page (required)")
	outputDir := fs.String("output-dir", "gogoanime-parts", "Directory for episode files")
	outputBucket := fs.String("output-bucket", "", "Bucket URL for episode files, overrides -output-dir")
	workers := fs.Int("workers", 5, "Concurrent episode downloads")
	attempts := fs.Int("attempts", 3, "Download attempts per episode")
	maxEpisodes := fs.Int("max-episodes", 0, "Stop after this many episodes (0 = all)")
	logLevel := fs.String("log-level", "info", "Log level")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: datt catalog [options]

Probe episode pages 1, 2, ... until the site reports "Page not found" and
download each episode's 720P file as <NN>.mp4. Episodes already saved are
skipped, so an interrupted run can simply be repeated.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	if *url == "" || *captcha == "" {
		fmt.Fprintln(os.Stderr, "Error: -url and -captcha are required")
		fs.Usage()
		return ExitInvalidArgs
	}
	if _, err := catalog.BaseURL(*url); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := newLogger(*logLevel)

	var sink catalog.Sink
	if *outputBucket != "" {
		bucket, err := blob.OpenBucket(ctx, *outputBucket)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
			return ExitStorageError
		}
		defer bucket.Close()
		sink = &catalog.BucketSink{Bucket: bucket}
	} else {
		dirSink, err := catalog.NewDirSink(*outputDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitStorageError
		}
		sink = dirSink
	}

	res, err := catalog.Run(ctx, datthttp.NewClient(datthttp.DefaultOptions()), *url, catalog.Options{
		Captcha:     *captcha,
		Sink:        sink,
		Workers:     *workers,
		Attempts:    *attempts,
		MaxEpisodes: *maxEpisodes,
		Logger:      log,
	})
	if res != nil {
		fmt.Fprintf(os.Stderr, "[datt] Episodes: %d saved | %d skipped | %d failed\n",
			res.Saved, res.Skipped, res.Failed)
	}
	if err != nil {
		switch {
		case ctx.Err() != nil:
			fmt.Fprintln(os.Stderr, "[datt] Interrupted, rerun to continue")
			return ExitInterrupted
		case errors.Is(err, catalog.ErrNoMatch):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitSourceNotAccess
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
	}
	if res.Failed > 0 {
		return ExitGeneralError
	}
	return ExitSuccess
}
