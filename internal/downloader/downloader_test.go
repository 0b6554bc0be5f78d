package downloader

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	_ "gocloud.dev/blob/memblob"

	datthttp "github.com/ndbaker1/datt/internal/http"
	"github.com/ndbaker1/datt/internal/segment"
	"github.com/ndbaker1/datt/internal/testutils"
	"github.com/ndbaker1/datt/pkg/workarea"
)

// lockstepFetcher serves indices [0, n) with index i at ring position i mod F.
func lockstepFetcher(t *testing.T, loc *segment.Locator, n int) *fakeFetcher {
	t.Helper()
	f := &fakeFetcher{files: map[string][]byte{}}
	for i := 0; i < n; i++ {
		serveAt(t, f, loc, i, i%loc.Ring().Len())
	}
	return f
}

func TestDownloadStopsAfterEmptyStreak(t *testing.T) {
	loc := newTestLocator(t, "a", "b", "c")
	fetcher := lockstepFetcher(t, loc, 12)
	store := newMemStore()

	summary, err := Download(context.Background(), loc, fetcher, store, Options{
		Parallel:       0,
		ChunkSize:      5,
		EmptyThreshold: 1,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	// Chunks 0-2 make progress, 3 and 4 are empty; the second empty one
	// exceeds the threshold.
	if summary.Chunks != 5 {
		t.Errorf("Chunks = %d, want 5", summary.Chunks)
	}
	if summary.Fetched != 12 || summary.Gaps != 13 {
		t.Errorf("fetched/gaps = %d/%d, want 12/13", summary.Fetched, summary.Gaps)
	}
	// Every present index is hit on the first try.
	if summary.Attempts != 12+13*3 {
		t.Errorf("Attempts = %d, want %d", summary.Attempts, 12+13*3)
	}
	if summary.LastIndex != 11 {
		t.Errorf("LastIndex = %d, want 11", summary.LastIndex)
	}
	if summary.Cursor != 0 || summary.Next != 12 {
		t.Errorf("cursor = %d at %d, want 0 at 12", summary.Cursor, summary.Next)
	}
}

func TestDownloadParallelChunksAreDisjoint(t *testing.T) {
	loc := newTestLocator(t, "a", "b", "c")
	fetcher := lockstepFetcher(t, loc, 200)
	store := newMemStore()

	summary, err := Download(context.Background(), loc, fetcher, store, Options{
		Parallel:  7,
		ChunkSize: 6,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if summary.Fetched != 200 {
		t.Errorf("Fetched = %d, want 200", summary.Fetched)
	}
	for i := 0; i < 200; i++ {
		if store.puts[i] != 1 {
			t.Fatalf("index %d written %d times, want 1", i, store.puts[i])
		}
		if got := fetcher.callsFor(i); got != 1 {
			t.Errorf("index %d requested %d times, want 1", i, got)
		}
	}
	for i := 200; i < summary.Chunks*6; i++ {
		if got := fetcher.callsFor(i); got > 3 {
			t.Errorf("index %d requested %d times, want at most 3", i, got)
		}
	}
}

func TestDownloadResumesFromCache(t *testing.T) {
	loc := newTestLocator(t, "a", "b", "c")
	fetcher := lockstepFetcher(t, loc, 15)
	store := newMemStore()
	for i := 0; i < 10; i++ {
		store.entries[i] = []byte{byte(i)}
	}

	summary, err := Download(context.Background(), loc, fetcher, store, Options{
		ChunkSize:      10,
		EmptyThreshold: 1,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	for i := 0; i < 10; i++ {
		if got := fetcher.callsFor(i); got != 0 {
			t.Errorf("cached index %d requested %d times", i, got)
		}
	}
	if summary.Cached != 10 || summary.Fetched != 5 {
		t.Errorf("cached/fetched = %d/%d, want 10/5", summary.Cached, summary.Fetched)
	}
}

func TestDownloadCachedChunksDoNotEndStream(t *testing.T) {
	loc := newTestLocator(t, "a", "b", "c")
	fetcher := lockstepFetcher(t, loc, 40)
	store := newMemStore()
	for i := 0; i < 30; i++ {
		store.entries[i] = []byte{byte(i)}
	}

	summary, err := Download(context.Background(), loc, fetcher, store, Options{
		ChunkSize:      5,
		EmptyThreshold: 1,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if summary.Fetched != 10 {
		t.Errorf("Fetched = %d, want 10", summary.Fetched)
	}
}

func TestDownloadStorageErrorStopsDispatch(t *testing.T) {
	loc := newTestLocator(t, "a", "b", "c")
	fetcher := lockstepFetcher(t, loc, 100)
	store := newMemStore()
	store.failPut = errors.New("read-only file system")

	summary, err := Download(context.Background(), loc, fetcher, store, Options{
		Parallel:  2,
		ChunkSize: 4,
	})

	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *StorageError", err)
	}
	if summary.Chunks != 3 {
		t.Errorf("Chunks = %d, want 3 (no replacements after a storage failure)", summary.Chunks)
	}
}

func TestDownloadCancelled(t *testing.T) {
	loc := newTestLocator(t, "a", "b", "c")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := lockstepFetcher(t, loc, 50)
	fetcher.onFetch = func(url string) {
		if strings.Contains(url, "/seg-7-") {
			cancel()
		}
	}
	store := newMemStore()

	summary, err := Download(ctx, loc, fetcher, store, Options{ChunkSize: 5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if summary == nil {
		t.Fatal("summary is nil")
	}
	if summary.Fetched != 7 {
		t.Errorf("Fetched = %d, want 7", summary.Fetched)
	}
	if len(store.entries) != 7 {
		t.Errorf("stored %d entries, want 7", len(store.entries))
	}
}

func newTestClient() *datthttp.Client {
	opts := datthttp.DefaultOptions()
	opts.RetryAttempts = 0
	opts.Timeout = 5 * time.Second
	return datthttp.NewClient(opts)
}

func TestDownloadEndToEnd(t *testing.T) {
	segs := testutils.GenerateSegments(57, 64)
	segs[20] = nil

	stream := testutils.Stream{First: 1, Phase: 3, Segments: segs}
	server := testutils.StartSegmentServer(t, stream)

	ring, err := segment.NewRing(segment.DefaultFormats)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	loc, err := segment.NewLocator(server.BaseURL(), "", ring)
	if err != nil {
		t.Fatalf("NewLocator: %v", err)
	}

	ctx := context.Background()
	area, err := workarea.Open(ctx, "mem://")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer area.Close()

	summary, err := Download(ctx, loc, newTestClient(), area, Options{
		Parallel:  4,
		ChunkSize: 5,
		Start:     1,
	})
	if err != nil {
		t.Fatalf("Download: %v", err)
	}

	if summary.Fetched != 56 {
		t.Errorf("Fetched = %d, want 56", summary.Fetched)
	}
	if summary.LastIndex != 57 {
		t.Errorf("LastIndex = %d, want 57", summary.LastIndex)
	}
	if got := server.MaxRequests(); got > ring.Len() {
		t.Errorf("an index was requested %d times, want at most %d", got, ring.Len())
	}

	var out bytes.Buffer
	asm, err := workarea.Reassemble(ctx, area, &out)
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if asm.Segments != 56 {
		t.Errorf("assembled %d segments, want 56", asm.Segments)
	}
	if !bytes.Equal(out.Bytes(), stream.Expected()) {
		t.Error("assembled output does not match the stream")
	}
}

func TestDownloadResumeEndToEnd(t *testing.T) {
	segs := testutils.GenerateSegments(60, 32)
	ctx := context.Background()

	ring, err := segment.NewRing(segment.DefaultFormats)
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}

	area, err := workarea.OpenDir(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer area.Close()

	run := func(server *testutils.SegmentServer) *Summary {
		t.Helper()
		loc, err := segment.NewLocator(server.BaseURL(), "", ring)
		if err != nil {
			t.Fatalf("NewLocator: %v", err)
		}
		summary, err := Download(ctx, loc, newTestClient(), area, Options{
			Parallel:  3,
			ChunkSize: 10,
			Start:     1,
		})
		if err != nil {
			t.Fatalf("Download: %v", err)
		}
		return summary
	}

	// The first server only has half the stream.
	first := run(testutils.StartSegmentServer(t, testutils.Stream{First: 1, Segments: segs[:30]}))
	if first.Fetched != 30 {
		t.Fatalf("first run fetched %d, want 30", first.Fetched)
	}

	full := testutils.StartSegmentServer(t, testutils.Stream{First: 1, Segments: segs})
	second := run(full)
	if second.Cached != 30 || second.Fetched != 30 {
		t.Errorf("second run cached/fetched = %d/%d, want 30/30", second.Cached, second.Fetched)
	}
	for i := 1; i <= 30; i++ {
		if got := full.Requests(i); got != 0 {
			t.Errorf("cached index %d requested %d times", i, got)
		}
	}

	var out bytes.Buffer
	if _, err := workarea.Reassemble(ctx, area, &out); err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if !bytes.Equal(out.Bytes(), testutils.Stream{Segments: segs}.Expected()) {
		t.Error("resumed output does not match the stream")
	}
}
