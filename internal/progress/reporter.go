package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// SourceURL is the stream base URL (for display).
	SourceURL string

	// ChunkSize is the number of segments per chunk (for display).
	ChunkSize int

	// Parallel is the number of chunk workers (for display).
	Parallel int
}

// Reporter outputs human-readable progress information. The total segment
// count is unknown until the stream ends, so it shows counts and speed
// rather than a percentage.
type Reporter struct {
	opts Options

	mu              sync.Mutex
	fetchedBytes    atomic.Int64
	fetched         atomic.Int64
	cached          atomic.Int64
	gaps            atomic.Int64
	chunksCompleted atomic.Int64
	inFlight        atomic.Int32
	emptyStreak     atomic.Int32
	startTime       time.Time
	lastUpdate      time.Time
	lastBytes       int64
	stopCh          chan struct{}
	doneCh          chan struct{}
	started         bool
	stopped         bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information. Only the first call has
// any effect.
func (r *Reporter) Start() {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	r.startTime = time.Now()
	r.lastUpdate = r.startTime

	fmt.Fprintf(r.opts.Output, "[datt] Downloading: %s\n", r.opts.SourceURL)
	fmt.Fprintf(r.opts.Output, "[datt] Chunks: %d segments | Workers: %d\n",
		r.opts.ChunkSize,
		r.opts.Parallel,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter and prints the final status.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	// Without Start there is no update loop to wait for.
	if !started {
		return
	}
	close(r.stopCh)
	<-r.doneCh
}

// ChunkStarted marks a chunk worker as dispatched.
func (r *Reporter) ChunkStarted() {
	r.inFlight.Add(1)
}

// ChunkCompleted marks a chunk worker as settled. emptyStreak is the
// scheduler's current run of chunks without progress.
func (r *Reporter) ChunkCompleted(emptyStreak int) {
	r.inFlight.Add(-1)
	r.chunksCompleted.Add(1)
	r.emptyStreak.Store(int32(emptyStreak))
}

// SegmentFetched records a segment downloaded from the remote host.
func (r *Reporter) SegmentFetched(size int64) {
	r.fetched.Add(1)
	r.fetchedBytes.Add(size)
}

// SegmentCached records a segment found in the work area.
func (r *Reporter) SegmentCached() {
	r.cached.Add(1)
}

// SegmentSkipped records an index given up on after a full format search.
func (r *Reporter) SegmentSkipped() {
	r.gaps.Add(1)
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	now := time.Now()
	completed := r.fetchedBytes.Load()

	elapsed := now.Sub(r.lastUpdate).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	speed := float64(completed-r.lastBytes) / elapsed

	r.lastUpdate = now
	r.lastBytes = completed

	fmt.Fprintf(r.opts.Output, "\r[datt] Segments: %d fetched | %d cached | %d gaps | %s | Speed: %s/s    ",
		r.fetched.Load(),
		r.cached.Load(),
		r.gaps.Load(),
		FormatBytes(completed),
		FormatBytes(int64(speed)),
	)
	fmt.Fprintf(r.opts.Output, "\n[datt] Chunks: %d completed | %d in-flight | %d empty in a row    \033[A",
		r.chunksCompleted.Load(),
		r.inFlight.Load(),
		r.emptyStreak.Load(),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	completed := r.fetchedBytes.Load()
	duration := time.Since(r.startTime)
	avgSpeed := float64(completed) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[datt] Segments: %d fetched | %d cached | %d gaps | %s | Complete!    \n",
		r.fetched.Load(),
		r.cached.Load(),
		r.gaps.Load(),
		FormatBytes(completed),
	)
	fmt.Fprintf(r.opts.Output, "[datt] Chunks: %d completed | 0 in-flight    \n",
		r.chunksCompleted.Load(),
	)
	fmt.Fprintf(r.opts.Output, "[datt] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		FormatBytes(int64(avgSpeed)),
	)
}

// FormatBytes formats bytes as a human-readable IEC string.
func FormatBytes(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
