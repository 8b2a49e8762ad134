package raster

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rle8File assembles a BITMAPINFOHEADER bitmap with an RGB palette and an
// already encoded BI_RLE8 stream.
func rle8File(width, height int32, palette [][3]byte, stream []byte) []byte {
	offset := fileHeaderSize + 40 + len(palette)*4
	data := make([]byte, offset, offset+len(stream))

	binary.LittleEndian.PutUint16(data[0:], bmpSignature)
	binary.LittleEndian.PutUint32(data[2:], uint32(offset+len(stream)))
	binary.LittleEndian.PutUint32(data[10:], uint32(offset))
	binary.LittleEndian.PutUint32(data[14:], 40)
	binary.LittleEndian.PutUint32(data[18:], uint32(width))
	binary.LittleEndian.PutUint32(data[22:], uint32(height))
	binary.LittleEndian.PutUint16(data[26:], 1)
	binary.LittleEndian.PutUint16(data[28:], 8)
	binary.LittleEndian.PutUint32(data[30:], compressionRLE8)
	binary.LittleEndian.PutUint32(data[34:], uint32(len(stream)))
	binary.LittleEndian.PutUint32(data[46:], uint32(len(palette)))

	for i, c := range palette {
		off := fileHeaderSize + 40 + i*4
		data[off], data[off+1], data[off+2] = c[2], c[1], c[0]
	}
	return append(data, stream...)
}

var (
	red         = [4]byte{255, 0, 0, 255}
	green       = [4]byte{0, 255, 0, 255}
	blue        = [4]byte{0, 0, 255, 255}
	transparent = [4]byte{}
)

func rgbaRows(px ...[4]byte) []byte {
	var out []byte
	for _, p := range px {
		out = append(out, p[:]...)
	}
	return out
}

func TestRLE8(t *testing.T) {
	palette := [][3]byte{{255, 0, 0}, {0, 0, 255}, {0, 255, 0}}

	t.Run("encoded and absolute runs", func(t *testing.T) {
		stream := []byte{
			3, 0, 0, 0, // three of index 0, end of line
			0, 3, 1, 2, 1, 0, // absolute run of three, padded
			1, 2, // one of index 2
			0, 1, // end of bitmap
		}
		b, err := ParseBMP(rle8File(4, 2, palette, stream))
		require.NoError(t, err)

		out, err := b.ToBMP()
		require.NoError(t, err)
		assert.True(t, out.canonical())
		assert.Equal(t, rgbaRows(
			red, red, red, transparent,
			blue, green, blue, green,
		), out.Pixels)
	})

	t.Run("delta leaves pixels transparent", func(t *testing.T) {
		stream := []byte{
			1, 1,
			0, 2, 2, 1, // move right 2, up 1
			1, 2,
			0, 1,
		}
		b, err := ParseBMP(rle8File(4, 2, palette, stream))
		require.NoError(t, err)

		out, err := b.ToBMP()
		require.NoError(t, err)
		assert.Equal(t, rgbaRows(
			blue, transparent, transparent, transparent,
			transparent, transparent, transparent, green,
		), out.Pixels)
	})

	t.Run("runs past the row end are clipped", func(t *testing.T) {
		b, err := ParseBMP(rle8File(2, 1, palette, []byte{5, 1, 0, 1}))
		require.NoError(t, err)

		out, err := b.ToBMP()
		require.NoError(t, err)
		assert.Equal(t, rgbaRows(blue, blue), out.Pixels)
	})

	t.Run("truncated stream", func(t *testing.T) {
		b, err := ParseBMP(rle8File(2, 2, palette, []byte{2, 0, 0}))
		require.NoError(t, err)

		_, err = b.ToBMP()
		assert.ErrorIs(t, err, ErrTruncatedStream)
	})

	t.Run("pixel limit", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MaxPixels = 10
		img, err := Load(Source{Path: "big.bmp"}, rle8File(4, 4, palette, []byte{0, 1}), opts)
		require.NoError(t, err)

		_, err = img.ToBMP()
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestFillRGBA(t *testing.T) {
	buf := make([]byte, 5*4)
	fillRGBA(buf, 1, 3, 1, 2, 3, 4)
	assert.Equal(t, []byte{
		0, 0, 0, 0,
		1, 2, 3, 4,
		1, 2, 3, 4,
		1, 2, 3, 4,
		0, 0, 0, 0,
	}, buf)

	fillRGBA(buf, 4, 10, 9, 9, 9, 9)
	assert.Equal(t, []byte{9, 9, 9, 9}, buf[16:])
}
