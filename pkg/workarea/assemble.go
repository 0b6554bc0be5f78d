package workarea

import (
	"context"
	"fmt"
	"io"
	"os"
)

// Assembly summarizes a reassembled output.
type Assembly struct {
	Segments int   // entries copied
	Bytes    int64 // bytes written
	First    int   // lowest index, -1 when empty
	Last     int   // highest index, -1 when empty
}

// Missing returns how many indices between First and Last had no entry.
// Gaps are expected (skipped segments) and only reported, never filled.
func (a *Assembly) Missing() int {
	if a.Segments == 0 {
		return 0
	}
	return a.Last - a.First + 1 - a.Segments
}

type assembleOptions struct {
	keep bool
}

// AssembleOption configures AssembleFile.
type AssembleOption func(*assembleOptions)

// KeepArea leaves the work area in place after a successful assembly.
func KeepArea() AssembleOption {
	return func(o *assembleOptions) {
		o.keep = true
	}
}

// Reassemble copies every entry of area into w in ascending index order.
func Reassemble(ctx context.Context, area *Area, w io.Writer) (*Assembly, error) {
	entries, err := area.entries(ctx)
	if err != nil {
		return nil, err
	}
	return copyEntries(ctx, area, entries, w)
}

// AssembleFile reassembles area into a new file at path and then destroys the
// area. The output file is only created once the key listing has been
// validated, so a corrupt area never produces an artifact.
func AssembleFile(ctx context.Context, area *Area, path string, options ...AssembleOption) (*Assembly, error) {
	var opts assembleOptions
	for _, opt := range options {
		opt(&opts)
	}

	entries, err := area.entries(ctx)
	if err != nil {
		return nil, err
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("workarea: create output: %w", err)
	}

	asm, err := copyEntries(ctx, area, entries, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, fmt.Errorf("workarea: sync output: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("workarea: close output: %w", err)
	}

	if !opts.keep {
		if err := area.Destroy(ctx); err != nil {
			return asm, err
		}
	}
	return asm, nil
}

// copyEntries reads each entry by the name it was listed under.
func copyEntries(ctx context.Context, area *Area, entries []entry, w io.Writer) (*Assembly, error) {
	asm := &Assembly{First: -1, Last: -1}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r, err := area.bucket.NewReader(ctx, e.key, nil)
		if err != nil {
			return nil, fmt.Errorf("workarea: open %s: %w", e.key, err)
		}
		n, err := io.Copy(w, r)
		r.Close()
		if err != nil {
			return nil, fmt.Errorf("workarea: copy segment %d: %w", e.index, err)
		}

		if asm.First < 0 {
			asm.First = e.index
		}
		asm.Last = e.index
		asm.Segments++
		asm.Bytes += n
	}

	return asm, nil
}
