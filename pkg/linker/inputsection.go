package linker

import (
	"debug/elf"

	"github.com/pkg/errors"
)

// shtNum is the end of the generic section type range; some toolchains
// emit it as a placeholder.
const shtNum elf.SectionType = 0x13

type InputSection struct {
	File     *InputFile
	Shndx    uint32
	Shdr     SectionHeader
	Name     string
	Contents []byte
}

// NewInputSection slices the section payload out of the file. Names are
// resolved later, once every header is known.
func NewInputSection(file *InputFile, shndx uint32, shdr SectionHeader, data *Cursor) (*InputSection, error) {
	s := &InputSection{
		File:  file,
		Shndx: shndx,
		Shdr:  shdr,
	}

	if !knownSectionType(s.Type()) {
		return nil, errors.Errorf("unknown section type %#x", shdr.Type)
	}

	if s.Type() == elf.SHT_NOBITS || s.Type() == elf.SHT_NULL {
		return s, nil
	}

	contents, err := data.ReadAt(int(shdr.Offset), int(shdr.Size))
	if err != nil {
		return nil, errors.Wrap(err, "section header is out of range")
	}
	s.Contents = contents
	return s, nil
}

func (i *InputSection) Type() elf.SectionType {
	return elf.SectionType(i.Shdr.Type)
}

func knownSectionType(t elf.SectionType) bool {
	switch t {
	case elf.SHT_NULL, elf.SHT_PROGBITS, elf.SHT_SYMTAB, elf.SHT_STRTAB,
		elf.SHT_RELA, elf.SHT_HASH, elf.SHT_DYNAMIC, elf.SHT_NOTE,
		elf.SHT_NOBITS, elf.SHT_REL, elf.SHT_SHLIB, elf.SHT_DYNSYM,
		elf.SHT_INIT_ARRAY, elf.SHT_FINI_ARRAY, elf.SHT_PREINIT_ARRAY,
		elf.SHT_GROUP, elf.SHT_SYMTAB_SHNDX, shtNum,
		elf.SHT_GNU_ATTRIBUTES:
		return true
	}
	return false
}
