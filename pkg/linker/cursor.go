package linker

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/japanese"

	"wwhdasm/pkg/utils"
)

// Cursor reads and patches big-endian values in a fixed-size buffer. Writes
// overwrite existing bytes and never grow the buffer.
type Cursor struct {
	data []byte
	pos  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

func (c *Cursor) Len() int {
	return len(c.data)
}

// Bytes returns the backing buffer, including any patches applied to it.
func (c *Cursor) Bytes() []byte {
	return c.data
}

func (c *Cursor) Tell() int {
	return c.pos
}

func (c *Cursor) Seek(offset int) {
	c.pos = offset
}

func (c *Cursor) outOfBounds(offset, n int) error {
	return errors.Errorf("%d bytes at offset %#x is past the end of the data (length %#x)", n, offset, len(c.data))
}

func (c *Cursor) span(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(c.data) {
		return nil, c.outOfBounds(offset, n)
	}
	return c.data[offset : offset+n], nil
}

// Read returns the next n bytes and advances the cursor.
func (c *Cursor) Read(n int) ([]byte, error) {
	b, err := c.ReadAt(c.pos, n)
	if err != nil {
		return nil, err
	}
	c.pos += n
	return b, nil
}

// ReadAt returns n bytes at offset without moving the cursor.
func (c *Cursor) ReadAt(offset, n int) ([]byte, error) {
	return c.span(offset, n)
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadU8At, ReadU16At and ReadU32At seek to offset before reading, leaving
// the cursor just past the value.
func (c *Cursor) ReadU8At(offset int) (uint8, error) {
	c.Seek(offset)
	return c.ReadU8()
}

func (c *Cursor) ReadU16At(offset int) (uint16, error) {
	c.Seek(offset)
	return c.ReadU16()
}

func (c *Cursor) ReadU32At(offset int) (uint32, error) {
	c.Seek(offset)
	return c.ReadU32()
}

func (c *Cursor) WriteU16At(offset int, v uint16) error {
	b, err := c.span(offset, 2)
	if err != nil {
		return err
	}
	utils.Write(b, v)
	c.pos = offset + 2
	return nil
}

func (c *Cursor) WriteU32At(offset int, v uint32) error {
	b, err := c.span(offset, 4)
	if err != nil {
		return err
	}
	utils.Write(b, v)
	c.pos = offset + 4
	return nil
}

// ReadString decodes the Shift-JIS, NUL-terminated string at offset. The
// cursor position is left untouched.
func (c *Cursor) ReadString(offset int) (string, error) {
	if offset < 0 || offset > len(c.data) {
		return "", c.outOfBounds(offset, 0)
	}

	end := bytes.IndexByte(c.data[offset:], 0)
	if end < 0 {
		return "", errors.Errorf("unterminated string at offset %#x", offset)
	}

	raw := c.data[offset : offset+end]
	s, err := japanese.ShiftJIS.NewDecoder().Bytes(raw)
	if err != nil {
		return "", errors.Wrapf(err, "invalid string at offset %#x", offset)
	}
	return string(s), nil
}
