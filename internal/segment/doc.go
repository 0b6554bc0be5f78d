// Package segment maps segment indices to remote names and local cache keys.
//
// The remote host names each segment after its index plus a file-type suffix
// that cycles through a fixed list (the format ring) in lockstep with the
// index. A [Locator] turns an (index, ring position) pair into a request URL;
// [CacheKey] turns an index into the key under which the segment is cached.
//
// # Usage
//
//	ring, _ := segment.NewRing(segment.DefaultFormats)
//	loc, _ := segment.NewLocator("https://cdn.example.com/hls/abc", segment.DefaultTemplate, ring)
//
//	loc.URL(42, 3)        // https://cdn.example.com/hls/abc/seg-42-v1-a1.txt
//	segment.CacheKey(42)  // 00000042
//
// Nothing in this package holds state; every function is safe for
// concurrent use.
package segment
