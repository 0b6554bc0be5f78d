// Package progress provides progress reporting for segment downloads.
//
// The number of segments in a stream is unknown until the scheduler decides
// the stream has ended, so the reporter shows running counts and transfer
// speed instead of a percentage or ETA.
//
// # Usage
//
//	reporter := progress.NewReporter(progress.Options{
//	    SourceURL: baseURL,
//	    ChunkSize: 10,
//	    Parallel:  30,
//	})
//
//	reporter.Start()
//	defer reporter.Stop()
//
//	reporter.SegmentFetched(int64(len(data)))
//
// # Output Format
//
//	[datt] Downloading: https://cdn.example.com/hls/abc
//	[datt] Chunks: 10 segments | Workers: 30
//	[datt] Segments: 812 fetched | 40 cached | 2 gaps | 1.2 GiB | Speed: 14 MiB/s
//	[datt] Chunks: 85 completed | 31 in-flight | 0 empty in a row
package progress
