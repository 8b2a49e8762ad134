package raster

import (
	"bytes"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/klauspost/compress/zlib"
)

const (
	zlibMethodDeflate = 8
	zlibFlagDict      = 0x20

	// maxDeflateRatio bounds how many output bytes one input byte of a
	// deflate stream can produce.
	maxDeflateRatio = 1032
)

// Pooled zlib readers to amortize the inflater's window allocation across
// conversions.
var zlibReaderPool sync.Pool

func getZlibReader(r io.Reader) (io.ReadCloser, error) {
	if zr, ok := zlibReaderPool.Get().(io.ReadCloser); ok {
		if err := zr.(zlib.Resetter).Reset(r, nil); err != nil {
			return nil, err
		}
		return zr, nil
	}
	return zlib.NewReader(r)
}

func putZlibReader(zr io.ReadCloser) {
	zr.Close()
	zlibReaderPool.Put(zr)
}

// checkZlibHeader validates the two-byte zlib stream header before any
// inflation is attempted.
func checkZlibHeader(payload []byte) error {
	if len(payload) < 2 {
		return formatErr(ErrDecompressionFailure, 0, "zlib stream is %d bytes", len(payload))
	}
	cmf, flg := payload[0], payload[1]

	if (uint16(cmf)<<8|uint16(flg))%31 != 0 {
		return formatErr(ErrDecompressionFailure, 0, "zlib header check bits %02x%02x", cmf, flg)
	}
	if method := cmf & 0x0f; method != zlibMethodDeflate {
		return formatErr(ErrUnsupportedCompression, 0, "zlib method %d", method)
	}
	if flg&zlibFlagDict != 0 {
		return formatErr(ErrUnsupportedCompression, 1, "zlib preset dictionary")
	}
	return nil
}

// Inflate decompresses a zlib stream that must produce exactly expected bytes.
// Offsets in returned errors are positions in the decompressed output.
func Inflate(payload []byte, expected int) ([]byte, error) {
	if err := checkZlibHeader(payload); err != nil {
		return nil, err
	}

	zr, err := getZlibReader(bytes.NewReader(payload))
	if err != nil {
		return nil, formatErr(ErrDecompressionFailure, 0, "%v", err)
	}
	defer putZlibReader(zr)

	// The header only claims a size. Grow with the data actually inflated,
	// starting from the most deflate can produce from this payload.
	out := make([]byte, 0, min(expected, len(payload)*maxDeflateRatio))
	for len(out) < expected {
		if len(out) == cap(out) {
			out = slices.Grow(out, min(cap(out), expected-len(out)))
		}
		m, err := zr.Read(out[len(out):min(cap(out), expected)])
		out = out[:len(out)+m]
		if err == io.EOF {
			if len(out) == expected {
				break
			}
			return nil, formatErr(ErrSizeMismatch, int64(len(out)), "inflated %d bytes, expected %d", len(out), expected)
		}
		if err != nil {
			return nil, formatErr(ErrDecompressionFailure, int64(len(out)), "%v", err)
		}
	}

	// The stream must end exactly here. Reading to EOF also verifies the
	// Adler-32 trailer.
	var probe [1]byte
	_, err = io.ReadFull(zr, probe[:])
	switch {
	case err == nil:
		return nil, formatErr(ErrSizeMismatch, int64(expected), "inflated data continues past %d bytes", expected)
	case errors.Is(err, io.EOF):
		return out, nil
	default:
		return nil, formatErr(ErrDecompressionFailure, int64(expected), "%v", err)
	}
}
