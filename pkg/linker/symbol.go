package linker

import (
	"debug/elf"
	"fmt"
	"strings"
)

// LabelPrefix starts the synthetic labels that stand in for literal branch
// targets. They never appear in the public symbol table.
const LabelPrefix = ".L_"

// Sym is one entry of an object's symbol table with its name resolved.
type Sym struct {
	Name  string
	Value uint32
	Size  uint32
	Type  elf.SymType
	Bind  elf.SymBind
	Other uint8
	Shndx uint16
}

func NewSym(esym Sym32) Sym {
	return Sym{
		Value: esym.Value,
		Size:  esym.Size,
		Type:  elf.SymType(esym.Info & 0xf),
		Bind:  elf.SymBind(esym.Info >> 4),
		Other: esym.Other,
		Shndx: esym.Shndx,
	}
}

func (s *Sym) IsUndef() bool {
	return elf.SectionIndex(s.Shndx) == elf.SHN_UNDEF
}

func (s *Sym) IsAbs() bool {
	return elf.SectionIndex(s.Shndx) == elf.SHN_ABS
}

// Symbol is a resolved global: a name pinned to an absolute address by the
// chunk that defines it.
type Symbol struct {
	Name    string
	Address uint32
	Chunk   *Chunk
}

// SymbolTable keeps globals in the order they were first defined, which is
// also the order they are written to the linker script.
type SymbolTable struct {
	names   []string
	symbols map[string]*Symbol
}

func NewSymbolTable() *SymbolTable {
	return &SymbolTable{symbols: make(map[string]*Symbol)}
}

func (t *SymbolTable) Len() int {
	return len(t.names)
}

func (t *SymbolTable) Get(name string) (*Symbol, bool) {
	sym, ok := t.symbols[name]
	return sym, ok
}

// Define records name at addr. Redefining a name at the same address is
// allowed; branch labels routinely repeat across chunks.
func (t *SymbolTable) Define(name string, addr uint32, chunk *Chunk) error {
	if prev, ok := t.symbols[name]; ok {
		if prev.Address == addr {
			return nil
		}
		return newError(RelocationError, "symbol %s defined at %#x by %s and at %#x by %s",
			name, prev.Address, prev.Chunk.Path(), addr, chunk.Path())
	}

	t.names = append(t.names, name)
	t.symbols[name] = &Symbol{Name: name, Address: addr, Chunk: chunk}
	return nil
}

// Symbols returns every symbol in definition order.
func (t *SymbolTable) Symbols() []*Symbol {
	syms := make([]*Symbol, 0, len(t.names))
	for _, name := range t.names {
		syms = append(syms, t.symbols[name])
	}
	return syms
}

// Public returns name -> address for everything except branch labels.
func (t *SymbolTable) Public() map[string]uint32 {
	public := make(map[string]uint32)
	for _, sym := range t.symbols {
		if strings.HasPrefix(sym.Name, LabelPrefix) {
			continue
		}
		public[sym.Name] = sym.Address
	}
	return public
}

// Script renders the table as linker script assignments.
func (t *SymbolTable) Script() string {
	lines := make([]string, 0, len(t.names))
	for _, sym := range t.Symbols() {
		lines = append(lines, fmt.Sprintf("%s = %#x;", sym.Name, sym.Address))
	}
	return strings.Join(lines, "\n")
}
