// Package downloader fetches a segmented stream into a work area.
//
// The remote host serves a stream as numbered segments whose file suffix
// cycles through a fixed ring of formats. Neither the segment count nor the
// suffix of any given segment is announced, so the downloader discovers both
// by trying.
//
// # Chunk Worker
//
// A [Worker] owns one contiguous range of indices (a [Chunk]) and walks it in
// order. Cached indices are skipped without a request. A failed fetch starts
// a format search: the same index is retried at the following ring positions,
// at most one full turn of the ring. If no position works the index is a gap
// and the worker moves on. The worker returns the format cursor it ended with
// so the next chunk can start in phase.
//
// # Scheduler
//
// [Download] keeps Parallel+1 workers in flight over increasing,
// non-overlapping chunks. Every completion dispatches one replacement seeded
// with the last confirmed cursor. A run of chunks that fetched nothing means
// the stream has ended: once the run exceeds EmptyThreshold no more chunks
// are dispatched, the in-flight ones are drained, and Download returns.
//
// # Usage
//
//	summary, err := downloader.Download(ctx, locator, client, area, downloader.Options{
//	    Parallel:  30,
//	    ChunkSize: 10,
//	    Start:     1,
//	    Progress:  reporter,
//	})
//
// # Graceful Shutdown
//
// Cancelling the context stops workers at the next index boundary. A segment
// is written to the work area in one call, so an interrupted run never
// leaves a partial entry, and the next run resumes from what is cached.
package downloader
