package downloader

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/ndbaker1/datt/internal/progress"
	"github.com/ndbaker1/datt/internal/segment"
)

// Fetcher retrieves one URL. Any error counts as a failed attempt.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store is the work area as seen by a worker.
type Store interface {
	Put(ctx context.Context, index int, data []byte) error
	Exists(ctx context.Context, index int) (bool, error)
}

// StorageError is returned when the work area cannot be read or written.
// It is fatal: the run stops and the work area is left as is.
type StorageError struct {
	Index int    // segment index being processed
	Op    string // "stat" or "write"
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("work area %s for segment %d: %v", e.Op, e.Index, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Chunk is the half-open index range [Start, Start+Size).
type Chunk struct {
	Index int
	Start int
	Size  int
}

// End returns the first index past the chunk.
func (c Chunk) End() int {
	return c.Start + c.Size
}

// ChunkResult reports what a worker did with its chunk.
type ChunkResult struct {
	Chunk Chunk

	// Cursor is the ring position expected at index Next. When the chunk
	// confirmed at least one segment, Next is one past the last confirmed
	// index and Cursor is one past that segment's position.
	Cursor int
	Next   int

	Fetched   int // segments downloaded
	Cached    int // segments already in the work area
	Gaps      int // indices given up after a full format search
	Attempts  int // fetch calls made
	LastIndex int // highest confirmed index, -1 if none
}

// Progress reports whether the chunk fetched at least one new segment.
func (r ChunkResult) Progress() bool {
	return r.Fetched > 0
}

// Confirmed reports whether any index in the chunk is known to exist,
// either fetched now or cached by an earlier run.
func (r ChunkResult) Confirmed() bool {
	return r.Fetched+r.Cached > 0
}

// Worker downloads chunks. It holds no per-chunk state, so one Worker may
// run many chunks concurrently.
type Worker struct {
	locator  *segment.Locator
	fetcher  Fetcher
	store    Store
	logger   hclog.Logger
	reporter *progress.Reporter
}

// NewWorker creates a chunk worker. logger and reporter may be nil.
func NewWorker(locator *segment.Locator, fetcher Fetcher, store Store, logger hclog.Logger, reporter *progress.Reporter) *Worker {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Worker{
		locator:  locator,
		fetcher:  fetcher,
		store:    store,
		logger:   logger,
		reporter: reporter,
	}
}

// RunChunk walks the chunk in increasing index order starting at ring
// position hint. It returns an error only when the context is cancelled or
// the work area fails; misses and gaps are part of the result.
func (w *Worker) RunChunk(ctx context.Context, chunk Chunk, hint int) (ChunkResult, error) {
	ring := w.locator.Ring()
	cursor := ring.Advance(hint, 0)
	lastPos := -1

	res := ChunkResult{Chunk: chunk, LastIndex: -1}
	log := w.logger.With("chunk", chunk.Index)

	for idx := chunk.Start; idx < chunk.End(); idx++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ok, err := w.store.Exists(ctx, idx)
		if err != nil {
			return res, &StorageError{Index: idx, Op: "stat", Err: err}
		}
		if ok {
			log.Trace("segment cached", "index", idx)
			res.Cached++
			res.LastIndex = idx
			lastPos = cursor
			cursor = ring.Next(cursor)
			if w.reporter != nil {
				w.reporter.SegmentCached()
			}
			continue
		}

		pos, data, found, err := w.search(ctx, idx, cursor, &res)
		if err != nil {
			return res, err
		}
		if !found {
			log.Debug("segment gap", "index", idx, "attempts", ring.Len())
			res.Gaps++
			cursor = ring.Next(cursor)
			if w.reporter != nil {
				w.reporter.SegmentSkipped()
			}
			continue
		}

		if err := w.store.Put(ctx, idx, data); err != nil {
			return res, &StorageError{Index: idx, Op: "write", Err: err}
		}
		log.Trace("segment fetched", "index", idx, "format", ring[pos], "bytes", len(data))
		res.Fetched++
		res.LastIndex = idx
		lastPos = pos
		cursor = ring.Next(pos)
		if w.reporter != nil {
			w.reporter.SegmentFetched(int64(len(data)))
		}
	}

	if res.LastIndex >= 0 {
		res.Cursor = ring.Next(lastPos)
		res.Next = res.LastIndex + 1
	} else {
		res.Cursor = cursor
		res.Next = chunk.End()
	}

	log.Debug("chunk done",
		"start", chunk.Start, "fetched", res.Fetched, "cached", res.Cached,
		"gaps", res.Gaps, "attempts", res.Attempts, "cursor", res.Cursor)
	return res, nil
}

// search fetches idx starting at ring position cursor and moving one
// position per failure. It makes at most ring.Len() attempts.
func (w *Worker) search(ctx context.Context, idx, cursor int, res *ChunkResult) (int, []byte, bool, error) {
	ring := w.locator.Ring()

	for attempt := 0; attempt < ring.Len(); attempt++ {
		pos := ring.Advance(cursor, attempt)
		url, err := w.locator.URL(idx, pos)
		if err != nil {
			return 0, nil, false, err
		}

		res.Attempts++
		data, err := w.fetcher.Fetch(ctx, url)
		if err == nil {
			if attempt > 0 {
				w.logger.Debug("format search recovered", "index", idx, "format", ring[pos], "attempt", attempt+1)
			}
			return pos, data, true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, false, ctxErr
		}
		w.logger.Trace("segment miss", "url", url, "error", err)
	}

	return 0, nil, false, nil
}
