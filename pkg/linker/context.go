package linker

import (
	"context"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/afero"
)

// MemoryMap is the address layout of the patched executable.
type MemoryMap struct {
	// FreeSpaceStart is where chunks without a fixed origin are packed.
	FreeSpaceStart uint32
	TextStart      uint32
	DataStart      uint32
}

var DefaultMemoryMap = MemoryMap{
	FreeSpaceStart: 0x028F87F4,
	TextStart:      0x02000000,
	DataStart:      0x10000000,
}

// Base returns the fixed address of a base section.
func (m MemoryMap) Base(base BaseSection) uint32 {
	switch base {
	case BaseCode:
		return m.TextStart
	case BaseData:
		return m.DataStart
	}
	return 0
}

// InFreeSpace reports whether a fixed origin would land in the free space
// region. Data region addresses are exempt.
func (m MemoryMap) InFreeSpace(addr uint32) bool {
	return addr >= m.FreeSpaceStart && addr < m.DataStart
}

type ContextArgs struct {
	// Root holds patches/, patch_diffs/ and the base linker.ld.
	Root   string
	Layout MemoryMap
	CFlags []string
}

func (a ContextArgs) PatchesDir() string {
	return filepath.Join(a.Root, "patches")
}

func (a ContextArgs) BaseScript() string {
	return filepath.Join(a.Root, "linker.ld")
}

// Toolchain is what the passes need from the external tools.
type Toolchain interface {
	Preprocess(ctx context.Context, src string) ([]byte, error)
	Compile(ctx context.Context, name string, code []byte, flags []string) (string, []byte, error)
	Link(ctx context.Context, obj string, origin uint32, script string) ([]byte, error)
	WriteFile(name string, data []byte) (string, error)
}

// FreeSpace hands out consecutive addresses from the free space region.
type FreeSpace struct {
	Start uint32
	Next  uint32
}

func NewFreeSpace(start uint32) *FreeSpace {
	return &FreeSpace{Start: start, Next: start}
}

// Allocate reserves size bytes and returns their address. There is no
// padding; alignment is whatever the compiler emitted.
func (f *FreeSpace) Allocate(size uint32) uint32 {
	origin := f.Next
	f.Next += size
	return origin
}

// Context is the state threaded through the passes. The free space cursor
// and the global symbol table are sequential accumulators; passes run in
// order and must not be parallelised.
type Context struct {
	Args      ContextArgs
	Log       logr.Logger
	Fs        afero.Fs
	Toolchain Toolchain

	Chunks    []*Chunk
	FreeSpace *FreeSpace
	Globals   *SymbolTable
}

func NewContext(args ContextArgs, fs afero.Fs, tc Toolchain, log logr.Logger) *Context {
	return &Context{
		Args:      args,
		Log:       log,
		Fs:        fs,
		Toolchain: tc,
		FreeSpace: NewFreeSpace(args.Layout.FreeSpaceStart),
		Globals:   NewSymbolTable(),
	}
}
