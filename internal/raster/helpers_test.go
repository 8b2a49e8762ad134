package raster

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

type testChunk struct {
	tag     string
	payload []byte
	badCRC  bool
}

func buildPNG(chunks ...testChunk) []byte {
	var b bytes.Buffer
	b.WriteString(pngSignature)
	for _, c := range chunks {
		b.Write(encodeChunk(c))
	}
	return b.Bytes()
}

func encodeChunk(c testChunk) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, uint32(len(c.payload)))
	b.WriteString(c.tag)
	b.Write(c.payload)
	crc := crc32.ChecksumIEEE(append([]byte(c.tag), c.payload...))
	if c.badCRC {
		crc ^= 0xFFFFFFFF
	}
	binary.Write(&b, binary.BigEndian, crc)
	return b.Bytes()
}

func ihdr(width, height uint32, depth, colorType, interlace byte) testChunk {
	p := make([]byte, 13)
	binary.BigEndian.PutUint32(p[0:], width)
	binary.BigEndian.PutUint32(p[4:], height)
	p[8] = depth
	p[9] = colorType
	p[12] = interlace
	return testChunk{tag: "IHDR", payload: p}
}

func rgbaIHDR(width, height uint32) testChunk {
	return ihdr(width, height, 8, 6, 0)
}

func iend() testChunk {
	return testChunk{tag: "IEND"}
}

func idat(p []byte) testChunk {
	return testChunk{tag: "IDAT", payload: p}
}

func compress(t *testing.T, raw []byte) []byte {
	t.Helper()
	var b bytes.Buffer
	zw := zlib.NewWriter(&b)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return b.Bytes()
}

// filterRow is the encoding direction of defilterRow, used to build fixtures.
// cur and prev are unfiltered rows; prev is nil for the first row.
func filterRow(ft FilterType, cur, prev []byte) []byte {
	out := make([]byte, len(cur))
	for i := range cur {
		var left, up, upLeft byte
		if i >= bytesPerPixel {
			left = cur[i-bytesPerPixel]
		}
		if prev != nil {
			up = prev[i]
			if i >= bytesPerPixel {
				upLeft = prev[i-bytesPerPixel]
			}
		}
		switch ft {
		case FilterNone:
			out[i] = cur[i]
		case FilterSub:
			out[i] = cur[i] - left
		case FilterUp:
			out[i] = cur[i] - up
		case FilterAverage:
			out[i] = cur[i] - byte((int(left)+int(up))/2)
		case FilterPaeth:
			out[i] = cur[i] - paeth(left, up, upLeft)
		}
	}
	return out
}

// filterImage filters every row of raw with the filter chosen by pick.
func filterImage(raw []byte, width, height int, pick func(y int) FilterType) []byte {
	stride := width * bytesPerPixel
	var out []byte
	for y := range height {
		cur := raw[y*stride : (y+1)*stride]
		var prev []byte
		if y > 0 {
			prev = raw[(y-1)*stride : y*stride]
		}
		ft := pick(y)
		out = append(out, byte(ft))
		out = append(out, filterRow(ft, cur, prev)...)
	}
	return out
}
