package linker

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/utils/ptr"
)

var (
	commentPat = regexp.MustCompile(`[#;].*$`)
	orgHexPat  = regexp.MustCompile(`^\.org\s+0x([0-9a-fA-F]+)$`)
	orgFreePat = regexp.MustCompile(`^\.org\s+@NextFreeSpace$`)
	branchPat  = regexp.MustCompile(`^(?:b|beq|bne|blt|bgt|ble|bge)\s+0x([0-9a-fA-F]+)(?:$|\s)`)
)

var (
	// asm sources end in .asm rather than .S, so the language is forced
	AsmFlags = []string{"-mregnames", "-x", "assembler"}
	asmExts  = []string{".asm", ".S"}
)

// Chunk is one origin-addressed unit of patch source, compiled and linked on
// its own.
type Chunk struct {
	Source string
	// Tag tells apart the chunks of one source: the hex origin, or
	// blockN for free space. Empty for C and C++ sources.
	Tag string
	// Origin is nil until free space has been allocated.
	Origin *uint32
	Code   string
	// Labels maps synthetic branch labels to the addresses they stand for.
	Labels map[string]uint32
	Flags  []string

	obj *ObjectFile
}

func NewChunk(source, tag string, origin *uint32) *Chunk {
	return &Chunk{
		Source: source,
		Tag:    tag,
		Origin: origin,
		Labels: make(map[string]uint32),
	}
}

// Path is a unique name for the chunk, derived from its source.
func (c *Chunk) Path() string {
	if c.Tag == "" {
		return c.Source
	}
	ext := filepath.Ext(c.Source)
	stem := strings.TrimSuffix(filepath.Base(c.Source), ext)
	return filepath.Join(filepath.Dir(c.Source), stem+"_"+c.Tag+ext)
}

func (c *Chunk) String() string {
	return c.Path()
}

// Placed reports whether the chunk has an origin.
func (c *Chunk) Placed() bool {
	return c.Origin != nil
}

// Compile builds the chunk into an object file. The result is cached, so
// later passes reuse the object compiled to measure free space.
func (c *Chunk) Compile(ctx context.Context, lc *Context) (*ObjectFile, error) {
	if c.obj != nil {
		return c.obj, nil
	}

	name := filepath.Base(c.Path())
	path, contents, err := lc.Toolchain.Compile(ctx, name, []byte(c.Code), c.Flags)
	if err != nil {
		return nil, err
	}

	obj, err := NewObjectFile(path, contents)
	if err != nil {
		return nil, err
	}

	lc.Log.V(1).Info("compiled chunk", "chunk", c.Path(), "text", obj.TextSize(), "object", path)
	c.obj = obj
	return obj, nil
}

// Link places the compiled chunk at its origin against the symbols in
// script, then resolves what it can of the remaining relocations.
func (c *Chunk) Link(ctx context.Context, lc *Context, script string) ([]byte, []Rela, error) {
	if !c.Placed() {
		return nil, nil, errNotPlaced
	}

	obj, err := c.Compile(ctx, lc)
	if err != nil {
		return nil, nil, err
	}

	contents, err := lc.Toolchain.Link(ctx, obj.Path, *c.Origin, script)
	if err != nil {
		return nil, nil, err
	}

	binary, err := NewInputFile(&File{Name: strings.TrimSuffix(obj.Path, filepath.Ext(obj.Path)) + ".elf", Contents: contents})
	if err != nil {
		return nil, nil, err
	}

	r, err := NewRelocator(*c.Origin, binary, lc.Args.Layout)
	if err != nil {
		return nil, nil, err
	}
	return r.ApplyRelocations()
}

// ParseChunks splits one source file into chunks.
func ParseChunks(ctx context.Context, lc *Context, path string) ([]*Chunk, error) {
	if slices.Contains(asmExts, filepath.Ext(path)) {
		return parseAsmFile(ctx, lc, path)
	}

	c, err := parseCppFile(lc, path)
	if err != nil {
		return nil, err
	}
	return []*Chunk{c}, nil
}

func parseCppFile(lc *Context, path string) (*Chunk, error) {
	file, err := NewFile(lc.Fs, path)
	if err != nil {
		return nil, err
	}

	std := "-std=c++20"
	if filepath.Ext(path) == ".c" {
		std = "-std=c17"
	}

	c := NewChunk(path, "", nil)
	c.Code = string(file.Contents)
	c.Flags = append(slices.Clone(lc.Args.CFlags), std)
	return c, nil
}

func parseAsmFile(ctx context.Context, lc *Context, path string) ([]*Chunk, error) {
	text, err := lc.Toolchain.Preprocess(ctx, path)
	if err != nil {
		return nil, err
	}
	return ParseAsm(path, string(text), lc.Args.Layout)
}

// ParseAsm splits preprocessed assembly into chunks at each .org directive.
func ParseAsm(path, text string, layout MemoryMap) ([]*Chunk, error) {
	var chunks []*Chunk
	fixed := make(map[uint32]bool)
	index := 0

	for n, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(commentPat.ReplaceAllString(line, ""))
		if line == "" {
			continue
		}

		if m := orgHexPat.FindStringSubmatch(line); m != nil {
			origin, err := strconv.ParseUint(m[1], 16, 32)
			if err != nil {
				return nil, newError(ParseError, "line %d: bad origin %s", n+1, m[1])
			}
			offset := uint32(origin)

			if layout.InFreeSpace(offset) {
				return nil, newError(ParseError,
					"tried to manually set the origin point to after the start of free space at %#x; "+
						"use \".org @NextFreeSpace\" instead to get an automatically assigned free space offset", offset)
			}
			if fixed[offset] {
				return nil, newError(ParseError, "line %d: duplicate origin %#x", n+1, offset)
			}
			fixed[offset] = true

			chunks = append(chunks, NewChunk(path, fmt.Sprintf("%#x", offset), ptr.To(offset)))
			index++
			continue
		}

		if orgFreePat.MatchString(line) {
			chunks = append(chunks, NewChunk(path, fmt.Sprintf("block%d", index), nil))
			index++
			continue
		}

		if len(chunks) == 0 {
			return nil, newError(ParseError, "line %d: found code before an .org directive", n+1)
		}
		cur := chunks[len(chunks)-1]

		// branches to literal addresses become labels the linker script
		// pins to that address
		if m := branchPat.FindStringSubmatch(line); m != nil {
			dst, err := strconv.ParseUint(m[1], 16, 32)
			if err != nil {
				return nil, newError(ParseError, "line %d: bad branch target %s", n+1, m[1])
			}
			label := fmt.Sprintf("%s%X", LabelPrefix, dst)
			cur.Labels[label] = uint32(dst)
			line = strings.Replace(line, "0x"+m[1], label, 1)
		}

		cur.Code += "\n" + line
	}

	for _, c := range chunks {
		c.Flags = slices.Clone(AsmFlags)
	}
	return chunks, nil
}

// wrapChunk prefixes err with the chunk that caused it.
func wrapChunk(err error, c *Chunk) error {
	return errors.Wrap(err, c.Path())
}
