package raster

import "encoding/binary"

// Cursor is a sequential reader over a fixed byte buffer. Every read is
// bounds-checked; nothing ever indexes past the end of the buffer.
type Cursor struct {
	buf []byte
	pos int
}

func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

func (c *Cursor) Offset() int64 { return int64(c.pos) }

func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

// Read returns the next n bytes and advances past them. The returned slice
// aliases the underlying buffer.
func (c *Cursor) Read(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, formatErr(ErrUnexpectedEndOfInput, c.Offset(), "need %d bytes, have %d", n, c.Remaining())
	}
	b := c.buf[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *Cursor) Skip(n int) error {
	_, err := c.Read(n)
	return err
}

// PeekTag returns the next four bytes without advancing.
func (c *Cursor) PeekTag() ([4]byte, error) {
	var tag [4]byte
	if c.Remaining() < 4 {
		return tag, formatErr(ErrUnexpectedEndOfInput, c.Offset(), "need 4 bytes, have %d", c.Remaining())
	}
	copy(tag[:], c.buf[c.pos:])
	return tag, nil
}

func (c *Cursor) Uint8() (uint8, error) {
	b, err := c.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) Uint16BE() (uint16, error) {
	b, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (c *Cursor) Uint16LE() (uint16, error) {
	b, err := c.Read(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) Uint32BE() (uint32, error) {
	b, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (c *Cursor) Uint32LE() (uint32, error) {
	b, err := c.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}
