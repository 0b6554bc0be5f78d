// Package workarea stores downloaded segments until they are reassembled.
//
// A work area is an append-only key-value store: one object per segment,
// named by the zero-padded segment index (see segment.CacheKey). It is
// storage-agnostic via gocloud.dev/blob, so the same code runs against a local
// directory, an in-memory bucket, or an object store shared between hosts.
//
// # Opening
//
//	area, err := workarea.OpenDir(ctx, ".temp")          // local directory
//	area, err := workarea.Open(ctx, "mem://")            // in memory
//	area, err := workarea.Open(ctx, "s3://bucket?prefix=job/") // object store
//
// # Resume
//
// The presence of an entry is the only resume signal. An entry is written in
// one call and never rewritten, so a crashed run leaves either a complete
// entry or nothing.
//
// # Reassembly
//
// [Reassemble] lists every key, sorts numerically and concatenates the entries
// into a writer. [AssembleFile] does the same into a local file and then
// destroys the work area. Keys that do not parse as unsigned integers are
// reported as [ErrMalformedKey]; nothing is written in that case.
//
// # Storage Layout
//
//	{area}/00000001
//	{area}/00000002
//	{area}/00000004   (index 3 was a gap)
package workarea
