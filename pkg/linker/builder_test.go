package linker

import (
	"debug/elf"
	"encoding/binary"

	"wwhdasm/pkg/utils"
)

type testSym struct {
	name  string
	value uint32
	bind  elf.SymBind
	typ   elf.SymType
	shndx uint16
}

type testRela struct {
	offset uint32
	typ    elf.R_PPC
	sym    uint32
	addend int32
}

type testSection struct {
	name string
	typ  elf.SectionType
	data []byte
	link uint32
}

// testObject assembles a minimal big-endian ELF32 PowerPC object. .text is
// always section 1; symbol i of syms gets index i+1.
type testObject struct {
	text  []byte
	syms  []testSym
	relas []testRela
	extra []testSection
}

func textSym(name string, value uint32) testSym {
	return testSym{name: name, value: value, bind: elf.STB_GLOBAL, typ: elf.STT_FUNC, shndx: 1}
}

func absSym(name string, value uint32) testSym {
	return testSym{name: name, value: value, bind: elf.STB_GLOBAL, shndx: uint16(elf.SHN_ABS)}
}

func undefSym(name string) testSym {
	return testSym{name: name, bind: elf.STB_GLOBAL, shndx: uint16(elf.SHN_UNDEF)}
}

func words(ws ...uint32) []byte {
	b := make([]byte, 4*len(ws))
	for i, w := range ws {
		binary.BigEndian.PutUint32(b[4*i:], w)
	}
	return b
}

func encode[T any](v T, size int) []byte {
	b := make([]byte, size)
	utils.Write(b, v)
	return b
}

func (o testObject) build() []byte {
	secs := []testSection{{}, {name: ".text", typ: elf.SHT_PROGBITS, data: o.text}}

	strtab := []byte{0}
	symtab := make([]byte, SymbolSize)
	for _, s := range o.syms {
		name := uint32(len(strtab))
		strtab = append(append(strtab, s.name...), 0)
		symtab = append(symtab, encode(Sym32{
			Name:  name,
			Value: s.value,
			Info:  uint8(s.bind)<<4 | uint8(s.typ)&0xf,
			Shndx: s.shndx,
		}, SymbolSize)...)
	}

	if len(o.relas) > 0 {
		var rela []byte
		for _, r := range o.relas {
			rela = append(rela, encode(Rela32{
				Offset: r.offset,
				Info:   r.sym<<8 | uint32(r.typ),
				Addend: r.addend,
			}, RelaSize)...)
		}
		secs = append(secs, testSection{name: ".rela.text", typ: elf.SHT_RELA, data: rela})
	}
	secs = append(secs, o.extra...)

	symtabIndex := uint32(len(secs))
	secs = append(secs,
		testSection{name: ".symtab", typ: elf.SHT_SYMTAB, data: symtab, link: symtabIndex + 1},
		testSection{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab},
		testSection{name: ".shstrtab", typ: elf.SHT_STRTAB},
	)

	shstrtab := []byte{0}
	names := make([]uint32, len(secs))
	for i := 1; i < len(secs); i++ {
		names[i] = uint32(len(shstrtab))
		shstrtab = append(append(shstrtab, secs[i].name...), 0)
	}
	secs[len(secs)-1].data = shstrtab

	out := make([]byte, ELFHeaderSize)
	copy(out, elf.ELFMAG)
	out[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	out[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	out[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	binary.BigEndian.PutUint16(out[16:], uint16(elf.ET_REL))
	binary.BigEndian.PutUint16(out[18:], uint16(elf.EM_PPC))

	align := func() {
		for len(out)%4 != 0 {
			out = append(out, 0)
		}
	}

	offsets := make([]uint32, len(secs))
	for i := 1; i < len(secs); i++ {
		align()
		offsets[i] = uint32(len(out))
		out = append(out, secs[i].data...)
	}
	align()

	shoff := uint32(len(out))
	for i, s := range secs {
		var entsize uint32
		switch s.typ {
		case elf.SHT_SYMTAB:
			entsize = uint32(SymbolSize)
		case elf.SHT_RELA:
			entsize = uint32(RelaSize)
		}
		out = append(out, encode(SectionHeader{
			Name:    names[i],
			Type:    uint32(s.typ),
			Offset:  offsets[i],
			Size:    uint32(len(s.data)),
			Link:    s.link,
			Entsize: entsize,
		}, SectionHeaderSize)...)
	}

	binary.BigEndian.PutUint32(out[shoffOffset:], shoff)
	binary.BigEndian.PutUint16(out[0x2e:], uint16(SectionHeaderSize))
	binary.BigEndian.PutUint16(out[shnumOffset:], uint16(len(secs)))
	binary.BigEndian.PutUint16(out[shstrndxOffset:], uint16(len(secs)-1))
	return out
}

// ParseELF parses contents that did not come from a named file.
func ParseELF(contents []byte) (*InputFile, error) {
	return NewInputFile(&File{Name: "<memory>", Contents: contents})
}
