package workarea

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"github.com/ndbaker1/datt/internal/segment"
)

// ErrMalformedKey is returned when the work area holds an entry whose name is
// not a cache key. It means the area was corrupted or shared with something
// else, and is never retried.
var ErrMalformedKey = errors.New("workarea: malformed cache key")

// Area is a segment store backed by a blob bucket. Writers must use disjoint
// indices; Area itself does no locking.
type Area struct {
	bucket  *blob.Bucket
	dir     string // local directory backing the bucket, if any
	owned   bool   // bucket is closed by Close
	created bool   // dir did not exist before OpenDir
}

// Open opens the work area at a gocloud bucket URL such as "mem://",
// "file:///tmp/work?create_dir=true" or "s3://bucket?prefix=job/".
func Open(ctx context.Context, bucketURL string) (*Area, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("workarea: open bucket: %w", err)
	}
	return &Area{bucket: bucket, owned: true}, nil
}

// OpenDir opens a work area in a local directory, creating it if needed.
// Creation is idempotent. A directory created here is removed again by Close
// if nothing was written to it.
func OpenDir(ctx context.Context, dir string) (*Area, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("workarea: resolve %s: %w", dir, err)
	}

	_, statErr := os.Stat(abs)
	created := os.IsNotExist(statErr)

	bucket, err := fileblob.OpenBucket(abs, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("workarea: open dir %s: %w", abs, err)
	}
	return &Area{bucket: bucket, dir: abs, owned: true, created: created}, nil
}

// FromBucket wraps an existing bucket. The caller keeps ownership of it.
func FromBucket(bucket *blob.Bucket) *Area {
	return &Area{bucket: bucket}
}

// Dir returns the local directory backing the area, or "" for remote areas.
func (a *Area) Dir() string {
	return a.dir
}

// Put stores the segment for index. The entry becomes visible only once the
// whole payload is written.
func (a *Area) Put(ctx context.Context, index int, data []byte) error {
	key := segment.CacheKey(index)
	if err := a.bucket.WriteAll(ctx, key, data, nil); err != nil {
		return fmt.Errorf("workarea: write %s: %w", key, err)
	}
	return nil
}

// Exists reports whether the segment for index has been stored.
func (a *Area) Exists(ctx context.Context, index int) (bool, error) {
	ok, err := a.bucket.Exists(ctx, segment.CacheKey(index))
	if err != nil {
		return false, fmt.Errorf("workarea: stat %s: %w", segment.CacheKey(index), err)
	}
	return ok, nil
}

// NewReader opens the stored segment for index.
func (a *Area) NewReader(ctx context.Context, index int) (io.ReadCloser, error) {
	r, err := a.bucket.NewReader(ctx, segment.CacheKey(index), nil)
	if err != nil {
		return nil, fmt.Errorf("workarea: open %s: %w", segment.CacheKey(index), err)
	}
	return r, nil
}

// Keys returns every stored index in ascending order.
// It fails with ErrMalformedKey if any entry is not a cache key.
func (a *Area) Keys(ctx context.Context) ([]int, error) {
	entries, err := a.entries(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]int, len(entries))
	for i, e := range entries {
		keys[i] = e.index
	}
	return keys, nil
}

// entry is a listed object and the index its name parses to.
type entry struct {
	index int
	key   string
}

// entries lists the area sorted by index. A name that is not exactly a
// cache key is ErrMalformedKey, so each index has at most one entry.
func (a *Area) entries(ctx context.Context) ([]entry, error) {
	var list []entry

	err := a.walk(ctx, func(key string) error {
		idx, err := segment.ParseCacheKey(key)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrMalformedKey, key)
		}
		list = append(list, entry{index: idx, key: key})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(list, func(i, j int) bool { return list[i].index < list[j].index })
	return list, nil
}

// Destroy deletes every entry and, for local areas, the directory itself.
func (a *Area) Destroy(ctx context.Context) error {
	var names []string
	if err := a.walk(ctx, func(key string) error {
		names = append(names, key)
		return nil
	}); err != nil {
		return err
	}

	for _, key := range names {
		if err := a.bucket.Delete(ctx, key); err != nil && !isNotExist(err) {
			return fmt.Errorf("workarea: delete %s: %w", key, err)
		}
	}

	if a.dir != "" {
		if err := os.RemoveAll(a.dir); err != nil {
			return fmt.Errorf("workarea: remove %s: %w", a.dir, err)
		}
	}
	return nil
}

// Close releases the bucket if the area opened it, and removes a directory
// OpenDir created if it is still empty.
func (a *Area) Close() error {
	if !a.owned {
		return nil
	}
	err := a.bucket.Close()
	if a.created {
		// os.Remove refuses non-empty directories; a missing one was destroyed.
		_ = os.Remove(a.dir)
	}
	return err
}

// walk calls fn for every object key in the area.
func (a *Area) walk(ctx context.Context, fn func(key string) error) error {
	iter := a.bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("workarea: list: %w", err)
		}
		if obj.IsDir {
			continue
		}
		if err := fn(obj.Key); err != nil {
			return err
		}
	}
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}
