package linker

import (
	"bytes"
	"debug/elf"

	"github.com/pkg/errors"

	"wwhdasm/pkg/utils"
)

// Rela is one relocation entry. Once deferred to the runtime loader, Offset
// is absolute, Sym names a BaseSection and Addend is relative to that base.
type Rela struct {
	Offset uint32
	Type   elf.R_PPC
	Sym    uint32
	Addend int32
}

func NewRela(r Rela32) Rela {
	return Rela{
		Offset: r.Offset,
		Type:   elf.R_PPC(r.Info & 0xff),
		Sym:    r.Info >> 8,
		Addend: r.Addend,
	}
}

func (r Rela) Info() uint32 {
	return r.Sym<<8 | uint32(r.Type)&0xff
}

// BaseSection is one of the fixed reference points deferred relocations are
// expressed against.
type BaseSection uint32

const (
	BaseNull BaseSection = 0
	BaseCode BaseSection = 1
	BaseData BaseSection = 2
)

// branchField describes the displacement field of a relative branch.
type branchField struct {
	name    string
	mask    uint32
	signBit int
}

var (
	rel24Field = branchField{name: "24-bit", mask: 0x03FFFFFC, signBit: 25}
	rel14Field = branchField{name: "14-bit", mask: 0x0000FFFC, signBit: 15}
)

// limit is the first displacement that no longer fits, in either direction.
func (f branchField) limit() int64 {
	return 1 << f.signBit
}

func (f branchField) encode(inst uint32, disp int64) uint32 {
	return inst&^f.mask | uint32(disp)&f.mask
}

func (f branchField) decode(inst uint32) int64 {
	return utils.SignExtend(uint64(inst&f.mask), f.signBit)
}

// localField reports whether relocations of type t are relative branches
// resolved at build time.
func localField(t elf.R_PPC) (branchField, bool) {
	switch t {
	case elf.R_PPC_REL24:
		return rel24Field, true
	case elf.R_PPC_REL14:
		return rel14Field, true
	default:
		return branchField{}, false
	}
}

// BranchTarget decodes the destination of the relative branch inst located
// at src.
func BranchTarget(t elf.R_PPC, inst, src uint32) (uint32, bool) {
	field, ok := localField(t)
	if !ok {
		return 0, false
	}
	return uint32(int64(src) + field.decode(inst)), true
}

func lo(addr uint32) uint16 {
	return uint16(utils.Bits(addr, 15, 0))
}

func hi(addr uint32) uint16 {
	return uint16(utils.Bits(addr, 31, 16))
}

// ha is the high half adjusted for the low half being added as a signed
// value by addi/lwz and friends.
func ha(addr uint32) uint16 {
	return uint16(utils.Bits(addr, 31, 16) + utils.Bit(addr, 15))
}

// Relocator resolves the relocations of one linked chunk.
type Relocator struct {
	Origin uint32
	Binary *InputFile
	Layout MemoryMap

	text      *Cursor
	textIndex int
	symtab    []Sym
}

func NewRelocator(origin uint32, binary *InputFile, layout MemoryMap) (*Relocator, error) {
	text, ok := binary.SectionsByName[".text"]
	if !ok {
		return nil, newError(ObjectError, "%s: no .text section", binary.File.Name)
	}

	return &Relocator{
		Origin:    origin,
		Binary:    binary,
		Layout:    layout,
		text:      NewCursor(bytes.Clone(text.Contents)),
		textIndex: binary.SectionIndex(text.Name),
		symtab:    binary.Symbols[".symtab"],
	}, nil
}

// ApplyRelocations patches .text and returns it along with the relocations
// the runtime loader still has to apply.
func (r *Relocator) ApplyRelocations() ([]byte, []Rela, error) {
	rels, ok := r.Binary.Relocations[".rela.text"]
	if !ok {
		return r.text.Bytes(), nil, nil
	}

	var deferred []Rela
	for i, rel := range rels {
		if int(rel.Sym) >= len(r.symtab) {
			return nil, nil, newError(RelocationError,
				"relocation %d at %#x references symbol %d, but the symbol table has %d entries",
				i, rel.Offset, rel.Sym, len(r.symtab))
		}
		sym := &r.symtab[rel.Sym]

		if sym.IsUndef() {
			return nil, nil, newError(RelocationError,
				"tried to apply relocation against symbol %s with undefined address", sym.Name)
		}

		done, err := r.local(rel, sym)
		if err != nil {
			return nil, nil, err
		}
		if done {
			continue
		}

		if err := r.nonlocal(&rel, sym); err != nil {
			return nil, nil, err
		}
		deferred = append(deferred, rel)
	}

	return r.text.Bytes(), deferred, nil
}

// local resolves relative branches inside the executable, since the runtime
// loader does not have the symbols to do it.
func (r *Relocator) local(rel Rela, sym *Sym) (bool, error) {
	field, ok := localField(rel.Type)
	if !ok {
		return false, nil
	}

	src := int64(r.Origin) + int64(rel.Offset)
	dst := int64(sym.Value)
	if sym.IsAbs() {
		dst += int64(rel.Addend)
	} else {
		// relative to the start of this chunk
		dst += int64(r.Origin)
	}

	disp := (dst - src) &^ 0b11
	if disp < -field.limit() || disp >= field.limit() {
		return false, newError(RelocationError,
			"cannot branch from %#x to %#x with a %s relative offset", src, dst, field.name)
	}

	inst, err := r.text.ReadU32At(int(rel.Offset))
	if err != nil {
		return false, errors.Wrapf(err, "relocation at %#x", rel.Offset)
	}
	inst = field.encode(inst, disp)
	if err := r.text.WriteU32At(int(rel.Offset), inst); err != nil {
		return false, errors.Wrapf(err, "relocation at %#x", rel.Offset)
	}

	if got, _ := BranchTarget(rel.Type, inst, uint32(src)); got != uint32(src+disp) {
		return false, newError(RelocationError,
			"branch at %#x decodes to %#x instead of %#x", src, got, src+disp)
	}
	return true, nil
}

// nonlocal rewrites rel against a base section and pre-applies it to .text
// as if the code and data regions were never moved.
func (r *Relocator) nonlocal(rel *Rela, sym *Sym) error {
	var base BaseSection
	var addr uint32

	switch {
	case sym.IsAbs():
		addr = sym.Value
		switch {
		case addr >= r.Layout.DataStart:
			base = BaseData
		case addr >= r.Layout.TextStart:
			base = BaseCode
		default:
			return newError(RelocationError,
				"invalid nonlocal relocation: absolute address %#x of %s is below the code region", addr, sym.Name)
		}
	case int(sym.Shndx) == r.textIndex:
		base = BaseCode
		addr = r.Origin + sym.Value
	default:
		return newError(RelocationError,
			"invalid nonlocal relocation: unexpected section index %#x", sym.Shndx)
	}

	offset := int(rel.Offset)
	var err error
	switch rel.Type {
	case elf.R_PPC_ADDR32:
		err = r.text.WriteU32At(offset, addr)
	case elf.R_PPC_ADDR16_LO:
		err = r.text.WriteU16At(offset, lo(addr))
	case elf.R_PPC_ADDR16_HI:
		err = r.text.WriteU16At(offset, hi(addr))
	case elf.R_PPC_ADDR16_HA:
		err = r.text.WriteU16At(offset, ha(addr))
	default:
		return newError(RelocationError, "unexpected non-local relocation type %v", rel.Type)
	}
	if err != nil {
		return errors.Wrapf(err, "relocation at %#x", rel.Offset)
	}

	rel.Offset += r.Origin
	rel.Sym = uint32(base)
	rel.Addend = int32(addr - r.Layout.Base(base))
	return nil
}
