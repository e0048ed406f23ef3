package linker

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseELF(t *testing.T) {
	obj := testObject{
		text: words(0x48000001, 0x4e800020),
		syms: []testSym{
			{name: "patch.asm", typ: elf.STT_FILE, bind: elf.STB_LOCAL, shndx: uint16(elf.SHN_ABS)},
			textSym("entry", 0),
			undefSym(".L_80003100"),
		},
		relas: []testRela{{offset: 0, typ: elf.R_PPC_REL24, sym: 3}},
	}

	f, err := ParseELF(obj.build())
	require.NoError(t, err)

	var names []string
	for _, s := range f.Sections {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"", ".text", ".rela.text", ".symtab", ".strtab", ".shstrtab"}, names)

	text := f.SectionsByName[".text"]
	require.NotNil(t, text)
	assert.Equal(t, elf.SHT_PROGBITS, text.Type())
	assert.Equal(t, obj.text, text.Contents)
	assert.Equal(t, 1, f.SectionIndex(".text"))
	assert.Equal(t, -1, f.SectionIndex(".data"))
	assert.Equal(t, f.SectionsByName[".symtab"], f.FindSection(elf.SHT_SYMTAB))

	want := []Sym{
		{},
		{Name: "patch.asm", Type: elf.STT_FILE, Bind: elf.STB_LOCAL, Shndx: uint16(elf.SHN_ABS)},
		{Name: "entry", Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Shndx: 1},
		{Name: ".L_80003100", Bind: elf.STB_GLOBAL},
	}
	if diff := cmp.Diff(want, f.Symbols[".symtab"]); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}

	rels := f.Relocations[".rela.text"]
	require.Len(t, rels, 1)
	assert.Equal(t, Rela{Offset: 0, Type: elf.R_PPC_REL24, Sym: 3}, rels[0])
	assert.Equal(t, uint32(3<<8|10), rels[0].Info())
}

func TestParseELFNegativeAddend(t *testing.T) {
	obj := testObject{
		text:  words(0x3c600000),
		syms:  []testSym{absSym("target", 0x80001000)},
		relas: []testRela{{offset: 2, typ: elf.R_PPC_ADDR16_HA, sym: 1, addend: -8}},
	}

	f, err := ParseELF(obj.build())
	require.NoError(t, err)
	assert.Equal(t, int32(-8), f.Relocations[".rela.text"][0].Addend)
}

func TestParseELFErrors(t *testing.T) {
	valid := testObject{text: words(0x60000000)}.build()

	t.Run("too small", func(t *testing.T) {
		_, err := ParseELF(valid[:0x20])
		assert.ErrorContains(t, err, "too small")
	})

	t.Run("bad magic", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[0] = 'X'
		_, err := ParseELF(data)
		assert.ErrorContains(t, err, "not an ELF file")
	})

	t.Run("section count past end", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		binary.BigEndian.PutUint16(data[shnumOffset:], 0x100)
		_, err := ParseELF(data)
		assert.ErrorContains(t, err, "section headers")
	})

	t.Run("unknown section type", func(t *testing.T) {
		data := testObject{
			text:  words(0x60000000),
			extra: []testSection{{name: ".weird", typ: 0x1234, data: []byte{1}}},
		}.build()
		_, err := ParseELF(data)
		assert.ErrorContains(t, err, "unknown section type 0x1234")
	})

	t.Run("string table index out of range", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		binary.BigEndian.PutUint16(data[shstrndxOffset:], 0x40)
		_, err := ParseELF(data)
		assert.ErrorContains(t, err, "out of range")
	})
}

func TestMachineType(t *testing.T) {
	data := testObject{text: words(0x60000000)}.build()
	assert.Equal(t, MachineTypePPC32, GetMachineTypeFromContents(data))

	le := append([]byte(nil), data...)
	le[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	assert.Equal(t, MachineTypeNone, GetMachineTypeFromContents(le))

	other := append([]byte(nil), data...)
	binary.BigEndian.PutUint16(other[18:], uint16(elf.EM_MIPS))
	assert.Equal(t, MachineTypeNone, GetMachineTypeFromContents(other))

	_, err := NewObjectFile("patch.o", other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible file type unknown")
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, ObjectError, kind)
}

func TestObjectFileValidate(t *testing.T) {
	t.Run("empty data is fine", func(t *testing.T) {
		data := testObject{
			text:  words(0x60000000),
			extra: []testSection{{name: ".data", typ: elf.SHT_PROGBITS}},
		}.build()
		obj, err := NewObjectFile("patch.o", data)
		require.NoError(t, err)
		assert.Equal(t, uint32(4), obj.TextSize())
		assert.Len(t, obj.Symtab(), 1)
	})

	t.Run("globals", func(t *testing.T) {
		data := testObject{
			text:  words(0x60000000),
			extra: []testSection{{name: ".data.counter", typ: elf.SHT_PROGBITS, data: []byte{0, 0, 0, 1}}},
		}.build()
		_, err := NewObjectFile("patch.o", data)
		assert.ErrorContains(t, err, "declaring globals is not supported")
	})

	t.Run("extra text", func(t *testing.T) {
		data := testObject{
			text:  words(0x60000000),
			extra: []testSection{{name: ".text._ZN4Foo3barEv", typ: elf.SHT_PROGBITS, data: words(0x4e800020)}},
		}.build()
		_, err := NewObjectFile("patch.o", data)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "found extra .text section .text._ZN4Foo3barEv")
		assert.Contains(t, err.Error(), "template or virtual functions")
	})
}
