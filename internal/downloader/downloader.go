package downloader

import (
	"context"
	"errors"

	"github.com/hashicorp/go-hclog"

	"github.com/ndbaker1/datt/internal/progress"
	"github.com/ndbaker1/datt/internal/segment"
)

// Options configures the downloader.
type Options struct {
	// Parallel is the number of extra chunk workers. Parallel+1 chunks are
	// in flight at any time, so 0 runs chunks one after another.
	Parallel int

	// ChunkSize is the number of indices per chunk.
	// Default: 10
	ChunkSize int

	// EmptyThreshold is how many chunks in a row may fetch nothing before
	// the stream is considered ended. Dispatch stops once the streak exceeds
	// it.
	// Default: ChunkSize
	EmptyThreshold int

	// Start is the first segment index.
	Start int

	// Logger receives run diagnostics. Default: discard.
	Logger hclog.Logger

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	Chunks    int // chunks dispatched
	Fetched   int
	Cached    int
	Gaps      int
	Attempts  int
	LastIndex int // highest confirmed index, -1 if none

	// Cursor is the ring position expected at index Next. Together they
	// let a later run continue in phase.
	Cursor int
	Next   int
}

type anchor struct {
	cursor int
	next   int
}

type outcome struct {
	res ChunkResult
	err error
}

// Download runs chunk workers over increasing index ranges of the stream
// described by locator until end of stream is detected, ctx is cancelled, or
// the store fails. Everything fetched is left in store.
//
// A cancelled run returns the summary so far together with ctx.Err(). A
// store failure returns a *StorageError.
func Download(ctx context.Context, locator *segment.Locator, fetcher Fetcher, store Store, opts Options) (*Summary, error) {
	// Apply defaults
	if opts.Parallel < 0 {
		opts.Parallel = 0
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 10
	}
	if opts.EmptyThreshold <= 0 {
		opts.EmptyThreshold = opts.ChunkSize
	}
	if opts.Start < 0 {
		opts.Start = 0
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	log := opts.Logger.Named("downloader")
	worker := NewWorker(locator, fetcher, store, log.Named("worker"), opts.Progress)
	ring := locator.Ring()

	results := make(chan outcome)
	summary := &Summary{LastIndex: -1}
	known := anchor{cursor: 0, next: opts.Start}

	var (
		nextChunk int
		inFlight  int
	)

	dispatch := func() {
		chunk := Chunk{
			Index: nextChunk,
			Start: opts.Start + nextChunk*opts.ChunkSize,
			Size:  opts.ChunkSize,
		}
		hint := ring.Advance(known.cursor, chunk.Start-known.next)
		nextChunk++
		inFlight++
		summary.Chunks++
		if opts.Progress != nil {
			opts.Progress.ChunkStarted()
		}

		go func() {
			res, err := worker.RunChunk(ctx, chunk, hint)
			results <- outcome{res: res, err: err}
		}()
	}

	log.Debug("starting download",
		"base", locator.Base(), "parallel", opts.Parallel,
		"chunk_size", opts.ChunkSize, "empty_threshold", opts.EmptyThreshold, "start", opts.Start)

	for i := 0; i <= opts.Parallel; i++ {
		dispatch()
	}

	var (
		stopping bool
		streak   int
		firstErr error
	)

	for inFlight > 0 {
		o := <-results
		inFlight--

		summary.Fetched += o.res.Fetched
		summary.Cached += o.res.Cached
		summary.Gaps += o.res.Gaps
		summary.Attempts += o.res.Attempts
		if o.res.LastIndex > summary.LastIndex {
			summary.LastIndex = o.res.LastIndex
			summary.Cursor = o.res.Cursor
			summary.Next = o.res.Next
		}

		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
				if !isCancel(o.err) {
					log.Error("chunk failed, stopping", "chunk", o.res.Chunk.Index, "error", o.err)
				}
			}
			stopping = true
			if opts.Progress != nil {
				opts.Progress.ChunkCompleted(streak)
			}
			continue
		}

		if o.res.Confirmed() {
			streak = 0
			known = anchor{cursor: o.res.Cursor, next: o.res.Next}
		} else {
			streak++
		}
		if opts.Progress != nil {
			opts.Progress.ChunkCompleted(streak)
		}

		if stopping {
			continue
		}
		if streak > opts.EmptyThreshold {
			log.Info("end of stream detected", "empty_chunks", streak, "last_index", summary.LastIndex)
			stopping = true
			continue
		}
		if ctx.Err() != nil {
			stopping = true
			continue
		}
		dispatch()
	}

	if summary.LastIndex < 0 {
		summary.Next = opts.Start
	}

	if firstErr != nil {
		if isCancel(firstErr) && ctx.Err() != nil {
			return summary, ctx.Err()
		}
		return summary, firstErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	log.Debug("download finished",
		"chunks", summary.Chunks, "fetched", summary.Fetched,
		"cached", summary.Cached, "gaps", summary.Gaps, "attempts", summary.Attempts)
	return summary, nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
