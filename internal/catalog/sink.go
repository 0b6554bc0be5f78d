package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gocloud.dev/blob"
)

// Sink stores downloaded episodes by file name.
type Sink interface {
	Exists(ctx context.Context, name string) (bool, error)
	Write(ctx context.Context, name string, data []byte) error
}

// DirSink writes episodes as plain files in a local directory.
type DirSink struct {
	Dir string
}

// NewDirSink creates dir if needed and returns a sink for it.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("catalog: create %s: %w", dir, err)
	}
	return &DirSink{Dir: dir}, nil
}

func (s *DirSink) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(filepath.Join(s.Dir, name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// Write stores data under a temporary name and renames it into place, so
// an interrupted write never looks like a finished episode.
func (s *DirSink) Write(ctx context.Context, name string, data []byte) error {
	path := filepath.Join(s.Dir, name)
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// BucketSink writes episodes as objects in a blob bucket.
type BucketSink struct {
	Bucket *blob.Bucket
}

func (s *BucketSink) Exists(ctx context.Context, name string) (bool, error) {
	return s.Bucket.Exists(ctx, name)
}

func (s *BucketSink) Write(ctx context.Context, name string, data []byte) error {
	return s.Bucket.WriteAll(ctx, name, data, &blob.WriterOptions{ContentType: "video/mp4"})
}
