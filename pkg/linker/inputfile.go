package linker

import (
	"bytes"
	"debug/elf"
	"unsafe"

	"github.com/pkg/errors"

	"wwhdasm/pkg/utils"
)

type SectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
	Entsize   uint32
}

type Sym32 struct {
	Name  uint32 /* String table index of name. */
	Value uint32 /* Symbol value. */
	Size  uint32 /* Size of associated object. */
	Info  uint8  /* Type and binding information. */
	Other uint8  /* Reserved (not used). */
	Shndx uint16 /* Section index of symbol. */
}

type Rela32 struct {
	Offset uint32
	Info   uint32
	Addend int32
}

const (
	ELFHeaderSize     = 0x34
	SectionHeaderSize = int(unsafe.Sizeof(SectionHeader{}))
	SymbolSize        = int(unsafe.Sizeof(Sym32{}))
	RelaSize          = int(unsafe.Sizeof(Rela32{}))
)

// fixed offsets into the ELF32 file header
const (
	shoffOffset    = 0x20
	shnumOffset    = 0x30
	shstrndxOffset = 0x32
)

// InputFile is a parsed, read-only view of one ELF object or relocatable
// binary.
type InputFile struct {
	File           *File
	Sections       []*InputSection
	SectionsByName map[string]*InputSection

	// keyed by the name of the relocation and symbol table sections
	Relocations map[string][]Rela
	Symbols     map[string][]Sym
}

func CheckMagic(contents []byte) bool {
	return bytes.HasPrefix(contents, []byte(elf.ELFMAG))
}

func NewInputFile(file *File) (*InputFile, error) {
	f := &InputFile{
		File:           file,
		SectionsByName: make(map[string]*InputSection),
		Relocations:    make(map[string][]Rela),
		Symbols:        make(map[string][]Sym),
	}

	if len(file.Contents) < ELFHeaderSize {
		return nil, errors.Errorf("%s: ELF file too small", file.Name)
	}
	if !CheckMagic(file.Contents) {
		return nil, errors.Errorf("%s: not an ELF file", file.Name)
	}

	if err := f.readSections(); err != nil {
		return nil, errors.Wrap(err, file.Name)
	}
	if err := f.readTables(); err != nil {
		return nil, errors.Wrap(err, file.Name)
	}
	return f, nil
}

func (f *InputFile) readSections() error {
	data := NewCursor(f.File.Contents)

	shoff, err := data.ReadU32At(shoffOffset)
	if err != nil {
		return err
	}
	shnum, err := data.ReadU16At(shnumOffset)
	if err != nil {
		return err
	}
	shstrndx, err := data.ReadU16At(shstrndxOffset)
	if err != nil {
		return err
	}

	end := uint64(shoff) + uint64(shnum)*uint64(SectionHeaderSize)
	if end > uint64(data.Len()) {
		return errors.Errorf("%d section headers at %#x do not fit in %#x bytes", shnum, shoff, data.Len())
	}

	offset := int(shoff)
	for i := 0; i < int(shnum); i++ {
		raw, err := data.ReadAt(offset, SectionHeaderSize)
		if err != nil {
			return err
		}

		s, err := NewInputSection(f, uint32(i), utils.Read[SectionHeader](raw), data)
		if err != nil {
			return errors.Wrapf(err, "section %d", i)
		}
		f.Sections = append(f.Sections, s)
		offset += SectionHeaderSize
	}

	if int(shstrndx) >= len(f.Sections) {
		return errors.Errorf("section name table index %d out of range (%d sections)", shstrndx, len(f.Sections))
	}

	shstrtab := NewCursor(f.Sections[shstrndx].Contents)
	for _, s := range f.Sections {
		s.Name, err = shstrtab.ReadString(int(s.Shdr.Name))
		if err != nil {
			return errors.Wrapf(err, "name of section %d", s.Shndx)
		}
		f.SectionsByName[s.Name] = s
	}
	return nil
}

func (f *InputFile) readTables() error {
	for _, s := range f.Sections {
		switch s.Type() {
		case elf.SHT_RELA:
			if len(s.Contents)%RelaSize != 0 {
				return errors.Errorf("%s: size %#x is not a multiple of %#x", s.Name, len(s.Contents), RelaSize)
			}

			raw := utils.ReadSlice[Rela32](s.Contents, RelaSize)
			rels := make([]Rela, 0, len(raw))
			for _, r := range raw {
				rels = append(rels, NewRela(r))
			}
			f.Relocations[s.Name] = rels

		case elf.SHT_SYMTAB:
			if len(s.Contents)%SymbolSize != 0 {
				return errors.Errorf("%s: size %#x is not a multiple of %#x", s.Name, len(s.Contents), SymbolSize)
			}

			strtab, ok := f.SectionsByName[".strtab"]
			if !ok {
				return errors.Errorf("%s: no .strtab section to name symbols from", s.Name)
			}
			names := NewCursor(strtab.Contents)

			raw := utils.ReadSlice[Sym32](s.Contents, SymbolSize)
			syms := make([]Sym, 0, len(raw))
			for i, esym := range raw {
				sym := NewSym(esym)

				var err error
				sym.Name, err = names.ReadString(int(esym.Name))
				if err != nil {
					return errors.Wrapf(err, "%s: name of symbol %d", s.Name, i)
				}
				syms = append(syms, sym)
			}
			f.Symbols[s.Name] = syms
		}
	}
	return nil
}

// FindSection returns the first section of the given type.
func (f *InputFile) FindSection(ty elf.SectionType) *InputSection {
	for _, s := range f.Sections {
		if s.Type() == ty {
			return s
		}
	}
	return nil
}

// SectionIndex returns the header index of the named section, or -1.
func (f *InputFile) SectionIndex(name string) int {
	if s, ok := f.SectionsByName[name]; ok {
		return int(s.Shndx)
	}
	return -1
}
