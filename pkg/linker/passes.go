package linker

import (
	"cmp"
	"context"
	"debug/elf"
	"slices"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"wwhdasm/pkg/utils"
)

// Patch is the final content of one placed chunk.
type Patch struct {
	Origin uint32
	Data   []byte
}

// SourceDiff collects the patches and deferred relocations of every chunk
// parsed from one source file.
type SourceDiff struct {
	Source      string
	Patches     []Patch
	Relocations []Rela
}

type Result struct {
	Diffs   []*SourceDiff
	Globals *SymbolTable
}

// AllocateFreeSpace gives every chunk without a fixed origin the next free
// address, packing them in chunk order by compiled .text size.
func AllocateFreeSpace(ctx context.Context, lc *Context) error {
	for _, c := range lc.Chunks {
		if c.Placed() {
			continue
		}

		obj, err := c.Compile(ctx, lc)
		if err != nil {
			return wrapChunk(err, c)
		}

		origin := lc.FreeSpace.Allocate(obj.TextSize())
		c.Origin = &origin
		lc.Log.V(1).Info("allocated free space", "chunk", c.Path(), "origin", utils.Hex(origin), "size", obj.TextSize())
	}
	return nil
}

// FindGlobals computes the absolute address of every branch label and
// every defined global symbol.
func FindGlobals(ctx context.Context, lc *Context) error {
	for _, c := range lc.Chunks {
		if err := findChunkGlobals(ctx, lc, c); err != nil {
			return wrapChunk(err, c)
		}
	}
	return nil
}

func findChunkGlobals(ctx context.Context, lc *Context, c *Chunk) error {
	if !c.Placed() {
		return errNotPlaced
	}
	obj, err := c.Compile(ctx, lc)
	if err != nil {
		return err
	}

	for _, sym := range obj.Symtab() {
		if addr, ok := c.Labels[sym.Name]; ok {
			if err := lc.Globals.Define(sym.Name, addr, c); err != nil {
				return err
			}
			continue
		}

		if sym.Bind != elf.STB_GLOBAL || sym.IsUndef() {
			continue
		}
		if err := lc.Globals.Define(sym.Name, *c.Origin+sym.Value, c); err != nil {
			return err
		}
	}
	return nil
}

// CheckOverlaps fails if any two placed chunks share bytes.
func CheckOverlaps(ctx context.Context, lc *Context) error {
	for _, c := range lc.Chunks {
		if !c.Placed() {
			return wrapChunk(errNotPlaced, c)
		}
	}

	placed := slices.Clone(lc.Chunks)
	slices.SortStableFunc(placed, func(a, b *Chunk) int {
		return cmp.Compare(*a.Origin, *b.Origin)
	})

	var prev *Chunk
	var prevEnd uint64
	for _, c := range placed {
		obj, err := c.Compile(ctx, lc)
		if err != nil {
			return wrapChunk(err, c)
		}

		if prev != nil && uint64(*c.Origin) < prevEnd {
			return newError(ParseError, "%s at %#x overlaps %s, which ends at %#x",
				c.Path(), *c.Origin, prev.Path(), prevEnd)
		}

		if obj.TextSize() > 0 {
			prev, prevEnd = c, uint64(*c.Origin)+uint64(obj.TextSize())
		}
	}
	return nil
}

// MakeLinkerScript appends the globals to the base linker script and
// writes the result to the working directory, returning its path.
func MakeLinkerScript(lc *Context) (string, error) {
	base, err := afero.ReadFile(lc.Fs, lc.Args.BaseScript())
	if err != nil {
		return "", errors.Wrap(err, "failed to read base linker script")
	}

	script := string(base) + "\n\n" + lc.Globals.Script() + "\n"
	return lc.Toolchain.WriteFile("linker.ld", []byte(script))
}

// LinkChunks links every chunk and groups the output by source, keeping
// the order sources were first seen in.
func LinkChunks(ctx context.Context, lc *Context, script string) ([]*SourceDiff, error) {
	var diffs []*SourceDiff
	bySource := make(map[string]*SourceDiff)

	for _, c := range lc.Chunks {
		text, rels, err := c.Link(ctx, lc, script)
		if err != nil {
			return nil, wrapChunk(err, c)
		}

		diff, ok := bySource[c.Source]
		if !ok {
			diff = &SourceDiff{Source: c.Source}
			bySource[c.Source] = diff
			diffs = append(diffs, diff)
		}
		diff.Patches = append(diff.Patches, Patch{Origin: *c.Origin, Data: text})
		diff.Relocations = append(diff.Relocations, rels...)

		lc.Log.V(1).Info("linked chunk", "chunk", c.Path(), "origin", utils.Hex(*c.Origin),
			"size", len(text), "relocations", len(rels))
	}
	return diffs, nil
}

// Build runs every pass over the patch corpus.
func Build(ctx context.Context, lc *Context) (*Result, error) {
	if err := ReadInputFiles(ctx, lc); err != nil {
		return nil, err
	}
	lc.Log.Info("parsed patches", "chunks", len(lc.Chunks))

	if err := AllocateFreeSpace(ctx, lc); err != nil {
		return nil, err
	}
	lc.Log.Info("allocated free space", "start", utils.Hex(lc.FreeSpace.Start),
		"used", lc.FreeSpace.Next-lc.FreeSpace.Start)

	if err := FindGlobals(ctx, lc); err != nil {
		return nil, err
	}
	if err := CheckOverlaps(ctx, lc); err != nil {
		return nil, err
	}

	script, err := MakeLinkerScript(lc)
	if err != nil {
		return nil, err
	}
	lc.Log.V(1).Info("wrote linker script", "path", script, "symbols", lc.Globals.Len())

	diffs, err := LinkChunks(ctx, lc, script)
	if err != nil {
		return nil, err
	}
	return &Result{Diffs: diffs, Globals: lc.Globals}, nil
}
