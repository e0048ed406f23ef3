package linker

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// headers are pulled in by other sources, never built on their own
var headerExts = []string{".h", ".hpp"}

// ListPatches returns the patch sources under the patches directory, in the
// order they are built.
func ListPatches(lc *Context) ([]string, error) {
	dir := lc.Args.PatchesDir()
	entries, err := afero.ReadDir(lc.Fs, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}

	var patches []string
	for _, e := range entries {
		if e.IsDir() || slices.Contains(headerExts, filepath.Ext(e.Name())) {
			continue
		}
		patches = append(patches, filepath.Join(dir, e.Name()))
	}

	slices.SortFunc(patches, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return patches, nil
}

func ReadInputFiles(ctx context.Context, lc *Context) error {
	patches, err := ListPatches(lc)
	if err != nil {
		return err
	}

	for _, patch := range patches {
		chunks, err := ParseChunks(ctx, lc, patch)
		if err != nil {
			return errors.Wrap(err, patch)
		}
		lc.Log.V(1).Info("parsed patch", "patch", patch, "chunks", len(chunks))
		lc.Chunks = append(lc.Chunks, chunks...)
	}
	return CheckChunkNames(lc.Chunks)
}

// CheckChunkNames fails if two chunks would share intermediate files in the
// working directory, e.g. the first free space block of foo.asm and a
// source named foo_block0.c. Names are compared case-insensitively.
func CheckChunkNames(chunks []*Chunk) error {
	seen := make(map[string]*Chunk)
	for _, c := range chunks {
		name := filepath.Base(c.Path())
		key := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		if prev, ok := seen[key]; ok {
			return newError(ParseError, "%s and %s would both be built as %s", prev.Path(), c.Path(), key)
		}
		seen[key] = c
	}
	return nil
}
