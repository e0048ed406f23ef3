package linker

import (
	"debug/elf"

	"wwhdasm/pkg/utils"
)

type MachineType = uint8

const (
	MachineTypeNone  MachineType = iota
	MachineTypePPC32 MachineType = iota
)

// GetMachineTypeFromContents recognises 32-bit big-endian PowerPC objects,
// the only kind the toolchain is expected to produce.
func GetMachineTypeFromContents(contents []byte) MachineType {
	if len(contents) < ELFHeaderSize || !CheckMagic(contents) {
		return MachineTypeNone
	}

	if elf.Class(contents[elf.EI_CLASS]) != elf.ELFCLASS32 ||
		elf.Data(contents[elf.EI_DATA]) != elf.ELFDATA2MSB {
		return MachineTypeNone
	}

	machine := elf.Machine(utils.Read[uint16](contents[18:]))
	if machine == elf.EM_PPC {
		return MachineTypePPC32
	}
	return MachineTypeNone
}

type MachineTypeStringer struct {
	MachineType
}

func (m MachineTypeStringer) String() string {
	switch m.MachineType {
	case MachineTypePPC32:
		return "ppc32"
	}
	return "unknown"
}
