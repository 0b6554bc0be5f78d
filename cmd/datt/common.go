package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ndbaker1/datt/pkg/workarea"
)

// newLogger returns the root logger for one CLI run.
func newLogger(level string) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "datt",
		Level:  lvl,
		Output: os.Stderr,
	}).With("run", uuid.NewString())
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[datt] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// openArea opens the work area at workBucket if set, else in workDir.
func openArea(ctx context.Context, workDir, workBucket string) (*workarea.Area, error) {
	if workBucket != "" {
		return workarea.Open(ctx, workBucket)
	}
	return workarea.OpenDir(ctx, workDir)
}

func describeArea(workDir, workBucket string) string {
	if workBucket != "" {
		return workBucket
	}
	return workDir
}

// assemble writes the work area to output and, if outputBucket is set,
// uploads the result there. It returns an exit code.
func assemble(ctx context.Context, area *workarea.Area, output, outputBucket string, keep bool, log hclog.Logger) int {
	var opts []workarea.AssembleOption
	if keep {
		opts = append(opts, workarea.KeepArea())
	}

	asm, err := workarea.AssembleFile(ctx, area, output, opts...)
	if err != nil {
		if errors.Is(err, workarea.ErrMalformedKey) {
			fmt.Fprintf(os.Stderr, "Error: work area is corrupt: %v\n", err)
			return ExitCorruptWorkArea
		}
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		return ExitOutputError
	}
	log.Debug("assembled output", "path", output, "segments", asm.Segments, "first", asm.First, "last", asm.Last)

	fmt.Fprintf(os.Stderr, "[datt] Wrote %s: %d segments, %s",
		output, asm.Segments, humanize.IBytes(uint64(asm.Bytes)))
	if missing := asm.Missing(); missing > 0 {
		fmt.Fprintf(os.Stderr, ", %d gaps", missing)
	}
	fmt.Fprintln(os.Stderr)

	if outputBucket != "" {
		key, err := upload(ctx, outputBucket, output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error uploading output: %v\n", err)
			return ExitOutputError
		}
		fmt.Fprintf(os.Stderr, "[datt] Uploaded %s to %s\n", key, outputBucket)
	}

	return ExitSuccess
}

// upload copies the file at path into the bucket under its base name.
func upload(ctx context.Context, bucketURL, path string) (string, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return "", fmt.Errorf("open bucket: %w", err)
	}
	defer bucket.Close()

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	// Cancelling the writer's context before Close discards the object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	key := filepath.Base(path)
	w, err := bucket.NewWriter(wctx, key, nil)
	if err != nil {
		return "", fmt.Errorf("open writer: %w", err)
	}
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		w.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}
	return key, nil
}
