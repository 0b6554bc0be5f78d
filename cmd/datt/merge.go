package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ndbaker1/datt/internal/config"
)

// runMerge reassembles an existing work area without downloading anything,
// e.g. after a run stopped on a storage error.
func runMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	def := config.Default()

	output := fs.String("output", "", "Output file path (required)")
	workDir := fs.String("work-dir", def.WorkDir, "Local work directory")
	workBucket := fs.String("work-bucket", "", "Work area bucket URL, overrides -work-dir")
	outputBucket := fs.String("output-bucket", "", "Also upload the output to this bucket URL")
	keep := fs.Bool("keep", false, "Keep the work area after reassembly")
	logLevel := fs.String("log-level", def.LogLevel, "Log level")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: datt merge [options]

Concatenate every segment in a work area, in index order, into one file.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: -output is required")
		fs.Usage()
		return ExitInvalidArgs
	}
	if *workBucket == "" {
		if _, err := os.Stat(*workDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: work directory %s: %v\n", *workDir, err)
			return ExitStorageError
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	log := newLogger(*logLevel)

	area, err := openArea(ctx, *workDir, *workBucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening work area: %v\n", err)
		return ExitStorageError
	}
	defer area.Close()

	return assemble(ctx, area, *output, *outputBucket, *keep, log)
}
