package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/grafov/m3u8"

	"github.com/ndbaker1/datt/internal/config"
	"github.com/ndbaker1/datt/internal/segment"
	"github.com/ndbaker1/datt/pkg/workarea"
)

// runPlaylist writes an HLS VOD playlist listing every segment in a local
// work area, so a partial download can be previewed before reassembly.
func runPlaylist(args []string) int {
	fs := flag.NewFlagSet("playlist", flag.ContinueOnError)

	workDir := fs.String("work-dir", config.Default().WorkDir, "Local work directory")
	output := fs.String("output", "index.m3u8", "Playlist file path")
	duration := fs.Duration("duration", 4*time.Second, "Duration announced for each segment")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: datt playlist [options]

Write an HLS media playlist that references the segments of a local work
area in index order. Segment URIs are relative to the playlist file.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}
	if *duration <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -duration must be positive")
		return ExitInvalidArgs
	}
	if _, err := os.Stat(*workDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: work directory %s: %v\n", *workDir, err)
		return ExitStorageError
	}

	ctx, cancel := signalContext()
	defer cancel()

	area, err := workarea.OpenDir(ctx, *workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening work area: %v\n", err)
		return ExitStorageError
	}
	defer area.Close()

	keys, err := area.Keys(ctx)
	if err != nil {
		if errors.Is(err, workarea.ErrMalformedKey) {
			fmt.Fprintf(os.Stderr, "Error: work area is corrupt: %v\n", err)
			return ExitCorruptWorkArea
		}
		fmt.Fprintf(os.Stderr, "Error listing work area: %v\n", err)
		return ExitStorageError
	}
	if len(keys) == 0 {
		fmt.Fprintf(os.Stderr, "Error: work area %s has no segments\n", *workDir)
		return ExitStorageError
	}

	absOutput, err := filepath.Abs(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	rel, err := filepath.Rel(filepath.Dir(absOutput), area.Dir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	p, err := m3u8.NewMediaPlaylist(0, uint(len(keys)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	p.MediaType = m3u8.VOD
	for _, idx := range keys {
		uri := filepath.ToSlash(filepath.Join(rel, segment.CacheKey(idx)))
		if err := p.Append(uri, duration.Seconds(), ""); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitGeneralError
		}
	}
	p.Close()

	if err := os.WriteFile(absOutput, p.Encode().Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing playlist: %v\n", err)
		return ExitOutputError
	}

	fmt.Fprintf(os.Stderr, "[datt] Wrote %s: %d segments, first %d, last %d\n",
		*output, len(keys), keys[0], keys[len(keys)-1])
	return ExitSuccess
}
