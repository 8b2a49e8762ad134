package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor(t *testing.T) {
	t.Run("reads advance", func(t *testing.T) {
		c := NewCursor([]byte{1, 2, 3, 4, 5})
		b, err := c.Read(2)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2}, b)
		assert.Equal(t, int64(2), c.Offset())
		assert.Equal(t, 3, c.Remaining())
	})
	t.Run("short read fails without advancing", func(t *testing.T) {
		c := NewCursor([]byte{1, 2, 3})
		require.NoError(t, c.Skip(1))
		_, err := c.Read(3)
		assert.ErrorIs(t, err, ErrUnexpectedEndOfInput)
		assert.ErrorIs(t, err, ErrTruncatedStream)
		assert.Equal(t, int64(1), OffsetOf(err))
		assert.Equal(t, int64(1), c.Offset())
	})
	t.Run("byte order is per call", func(t *testing.T) {
		buf := []byte{0x00, 0x00, 0x01, 0x02, 0x00, 0x00, 0x01, 0x02}
		c := NewCursor(buf)
		be, err := c.Uint32BE()
		require.NoError(t, err)
		le, err := c.Uint32LE()
		require.NoError(t, err)
		assert.Equal(t, uint32(0x0102), be)
		assert.Equal(t, uint32(0x02010000), le)

		c = NewCursor([]byte{0x42, 0x4D, 0x42, 0x4D})
		v, _ := c.Uint16LE()
		assert.Equal(t, uint16(0x4D42), v)
		v, _ = c.Uint16BE()
		assert.Equal(t, uint16(0x424D), v)
	})
	t.Run("peek does not advance", func(t *testing.T) {
		c := NewCursor([]byte("IDATxx"))
		tag, err := c.PeekTag()
		require.NoError(t, err)
		assert.Equal(t, [4]byte{'I', 'D', 'A', 'T'}, tag)
		assert.Equal(t, int64(0), c.Offset())

		require.NoError(t, c.Skip(3))
		_, err = c.PeekTag()
		assert.ErrorIs(t, err, ErrUnexpectedEndOfInput)
	})
	t.Run("negative length", func(t *testing.T) {
		_, err := NewCursor([]byte{1}).Read(-1)
		assert.ErrorIs(t, err, ErrUnexpectedEndOfInput)
	})
}
