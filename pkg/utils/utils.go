package utils

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fatih/color"
	"golang.org/x/exp/constraints"
)

var fatalLabel = color.New(color.Bold, color.FgRed).SprintFunc()

func Fatal(v any) {
	fmt.Fprintf(os.Stderr, "wwhdasm:\n\t%s: %v\n", fatalLabel("fatal"), v)
	os.Exit(1)
}

func MustNo(err error) {
	if err != nil {
		Fatal(err.Error())
	}
}

// Read decodes a big-endian T from the start of data. Callers check the
// length first; a short buffer is a programming error.
func Read[T any](data []byte) (val T) {
	reader := bytes.NewReader(data)
	err := binary.Read(reader, binary.BigEndian, &val)

	MustNo(err)

	return val
}

// ReadSlice decodes consecutive entries of size sz until data runs out.
func ReadSlice[T any](data []byte, sz int) []T {
	nums := len(data) / sz
	res := make([]T, 0, nums)
	for nums > 0 {
		res = append(res, Read[T](data))
		data = data[sz:]
		nums--
	}

	return res
}

func Write[T any](data []byte, e T) {
	buf := &bytes.Buffer{}
	err := binary.Write(buf, binary.BigEndian, e)
	MustNo(err)
	copy(data, buf.Bytes())
}

// Hex formats an address the way the linker and linker scripts spell it.
func Hex[T constraints.Unsigned](v T) string {
	return fmt.Sprintf("%#x", v)
}

func Bit[T constraints.Integer](val T, pos int) T {
	return (val >> pos) & 1
}

// Bits returns bits hi..lo of val, shifted down to bit 0.
func Bits[T constraints.Unsigned](val T, hi, lo int) T {
	return (val >> lo) & ((1 << (hi - lo + 1)) - 1)
}

// SignExtend treats bit size of val as the sign bit.
func SignExtend(val uint64, size int) int64 {
	shift := 63 - size
	return int64(val<<shift) >> shift
}
