package linker

import (
	"debug/elf"
	"strings"
)

// ObjectFile is the compiled form of one chunk.
type ObjectFile struct {
	*InputFile

	// Path is where the object lives on disk, for the link pass.
	Path string
}

func NewObjectFile(path string, contents []byte) (*ObjectFile, error) {
	if mt := GetMachineTypeFromContents(contents); mt != MachineTypePPC32 {
		return nil, newError(ObjectError, "%s: incompatible file type %s, want 32-bit big-endian %s",
			path, MachineTypeStringer{mt}, MachineTypeStringer{MachineTypePPC32})
	}

	in, err := NewInputFile(&File{Name: path, Contents: contents})
	if err != nil {
		return nil, err
	}

	o := &ObjectFile{InputFile: in, Path: path}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate rejects section layouts that cannot be placed: mutable globals
// and code the compiler split out of .text.
func (o *ObjectFile) Validate() error {
	for _, s := range o.Sections {
		if strings.HasPrefix(s.Name, ".data") && len(s.Contents) != 0 {
			return newError(ObjectError, "%s: declaring globals is not supported", s.Name)
		}

		if strings.HasPrefix(s.Name, ".text") && s.Name != ".text" {
			return newError(ObjectError,
				"found extra .text section %s, probably due to template or virtual functions", s.Name)
		}
	}
	return nil
}

func (o *ObjectFile) Text() *InputSection {
	return o.SectionsByName[".text"]
}

// TextSize is the number of bytes the chunk occupies once placed.
func (o *ObjectFile) TextSize() uint32 {
	if text := o.Text(); text != nil {
		return uint32(len(text.Contents))
	}
	return 0
}

func (o *ObjectFile) Symtab() []Sym {
	if s := o.FindSection(elf.SHT_SYMTAB); s != nil {
		return o.Symbols[s.Name]
	}
	return nil
}
