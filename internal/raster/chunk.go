package raster

import (
	"bytes"
	"hash/crc32"
	"math"

	"github.com/alefaraci/GoRaster/internal/logging"
)

// pngSignature is 89 50 4E 47 0D 0A 1A 0A.
const pngSignature = "\x89PNG\r\n\x1a\n"

const ihdrLength = 13

// ChunkTag enumerates the chunk types the parser understands. Anything else
// maps to TagUnknown and is skipped.
type ChunkTag int

const (
	TagUnknown ChunkTag = iota
	TagIHDR
	TagIDAT
	TagIEND
	TagSRGB
	TagGAMA
	TagPHYS
	TagCHRM
	TagTEXT
	TagZTXT
	TagITXT
)

var chunkTags = map[[4]byte]ChunkTag{
	{'I', 'H', 'D', 'R'}: TagIHDR,
	{'I', 'D', 'A', 'T'}: TagIDAT,
	{'I', 'E', 'N', 'D'}: TagIEND,
	{'s', 'R', 'G', 'B'}: TagSRGB,
	{'g', 'A', 'M', 'A'}: TagGAMA,
	{'p', 'H', 'Y', 's'}: TagPHYS,
	{'c', 'H', 'R', 'M'}: TagCHRM,
	{'t', 'E', 'X', 't'}: TagTEXT,
	{'z', 'T', 'X', 't'}: TagZTXT,
	{'i', 'T', 'X', 't'}: TagITXT,
}

func LookupTag(raw [4]byte) ChunkTag {
	return chunkTags[raw]
}

// Chunk is one length/tag/payload/CRC record. Payload aliases the input buffer.
type Chunk struct {
	Raw     [4]byte
	Tag     ChunkTag
	Length  uint32
	Payload []byte
	CRC     uint32
	Offset  int64
}

func (c Chunk) Name() string {
	return string(c.Raw[:])
}

// Header is the decoded IHDR chunk.
type Header struct {
	Width       uint32
	Height      uint32
	BitDepth    uint8
	ColorType   uint8
	Compression uint8
	Filter      uint8
	Interlace   uint8
}

const (
	colorTypeRGBA = 6
	bytesPerPixel = 4
)

// Stride is the number of pixel bytes in one unfiltered row.
func (h Header) Stride() int {
	return int(h.Width) * bytesPerPixel
}

// FilteredSize is the exact inflated size: each row carries one filter byte.
// It fails when the image cannot be addressed in memory or stored in a
// bitmap, whose sizes are 32-bit.
func (h Header) FilteredSize() (int, error) {
	stride := uint64(h.Width) * bytesPerPixel
	filtered := (stride + 1) * uint64(h.Height)
	if filtered > math.MaxInt || stride*uint64(h.Height) > math.MaxUint32-bmpDataOffset {
		return 0, formatErr(ErrUnsupportedFormat, -1, "%dx%d image is too large", h.Width, h.Height)
	}
	return int(filtered), nil
}

type PhysicalDims struct {
	PixelsPerUnitX uint32
	PixelsPerUnitY uint32
	Unit           uint8 // 1 = meter, 0 = aspect ratio only
}

type Chromaticities struct {
	WhiteX, WhiteY uint32
	RedX, RedY     uint32
	GreenX, GreenY uint32
	BlueX, BlueY   uint32
}

type TextEntry struct {
	Keyword string
	Text    string
}

// Metadata holds the ancillary chunks. Nil fields were absent from the file.
// None of it takes part in pixel reconstruction.
type Metadata struct {
	RenderingIntent *uint8
	Gamma           *uint32
	Physical        *PhysicalDims
	Chroma          *Chromaticities
	Text            []TextEntry
	// Counts of zTXt/iTXt chunks seen. Their content is compressed or
	// international text and is not decoded.
	DroppedText int
	Unknown     []string
}

// ParseOptions controls optional validation during chunk parsing.
type ParseOptions struct {
	VerifyCRC bool
	// MaxPixels bounds width*height. Zero means no limit.
	MaxPixels uint64
}

// Stream is the result of walking a PNG chunk stream.
type Stream struct {
	Header     Header
	Meta       Metadata
	Compressed []byte
}

// ParseChunks validates the signature and walks every chunk up to IEND.
func ParseChunks(data []byte, opts ParseOptions) (*Stream, error) {
	cur := NewCursor(data)

	sig, err := cur.Read(len(pngSignature))
	if err != nil || string(sig) != pngSignature {
		return nil, formatErr(ErrInvalidSignature, 0, "not a PNG datastream")
	}

	var (
		s          Stream
		seenHeader bool
		payload    bytes.Buffer
	)

	for first := true; ; first = false {
		c, err := readChunk(cur, opts.VerifyCRC)
		if err != nil {
			return nil, err
		}

		logging.Debug().
			Str("chunk", c.Name()).
			Uint32("length", c.Length).
			Int64("offset", c.Offset).
			Msg("read chunk")

		if first && c.Tag != TagIHDR {
			return nil, formatErr(ErrMalformedChunk, c.Offset, "first chunk is %q, expected IHDR", c.Name())
		}

		switch c.Tag {
		case TagIHDR:
			if seenHeader {
				return nil, formatErr(ErrMalformedChunk, c.Offset, "duplicate IHDR")
			}
			h, err := parseIHDR(c, opts.MaxPixels)
			if err != nil {
				return nil, err
			}
			s.Header = h
			seenHeader = true

		case TagIDAT:
			payload.Write(c.Payload)

		case TagIEND:
			s.Compressed = payload.Bytes()
			return &s, nil

		case TagSRGB:
			if len(c.Payload) >= 1 {
				intent := c.Payload[0]
				s.Meta.RenderingIntent = &intent
			}

		case TagGAMA:
			if v, ok := be32s(c.Payload, 1); ok {
				s.Meta.Gamma = &v[0]
			}

		case TagPHYS:
			if v, ok := be32s(c.Payload, 2); ok && len(c.Payload) >= 9 {
				s.Meta.Physical = &PhysicalDims{
					PixelsPerUnitX: v[0],
					PixelsPerUnitY: v[1],
					Unit:           c.Payload[8],
				}
			}

		case TagCHRM:
			if v, ok := be32s(c.Payload, 8); ok {
				s.Meta.Chroma = &Chromaticities{
					WhiteX: v[0], WhiteY: v[1],
					RedX: v[2], RedY: v[3],
					GreenX: v[4], GreenY: v[5],
					BlueX: v[6], BlueY: v[7],
				}
			}

		case TagTEXT:
			s.Meta.Text = append(s.Meta.Text, parseText(c.Payload))

		case TagZTXT, TagITXT:
			s.Meta.DroppedText++

		default:
			s.Meta.Unknown = append(s.Meta.Unknown, c.Name())
		}
	}
}

// readChunk reads one chunk. Running out of input anywhere inside the loop
// means IEND was never reached.
func readChunk(cur *Cursor, verifyCRC bool) (Chunk, error) {
	c := Chunk{Offset: cur.Offset()}

	if cur.Remaining() == 0 {
		return c, formatErr(ErrTruncatedStream, c.Offset, "input ended before IEND")
	}

	length, err := cur.Uint32BE()
	if err != nil {
		return c, err
	}
	raw, err := cur.PeekTag()
	if err != nil {
		return c, err
	}
	typeAndData, err := cur.Read(4 + int(length))
	if err != nil {
		return c, formatErr(ErrTruncatedStream, c.Offset, "chunk %q declares %d bytes, %d remain", string(raw[:]), length, cur.Remaining())
	}
	crc, err := cur.Uint32BE()
	if err != nil {
		return c, err
	}

	c.Raw = raw
	c.Tag = LookupTag(raw)
	c.Length = length
	c.Payload = typeAndData[4:]
	c.CRC = crc

	if verifyCRC {
		if sum := crc32.ChecksumIEEE(typeAndData); sum != crc {
			return c, formatErr(ErrChecksumMismatch, c.Offset, "chunk %q crc %08x, computed %08x", c.Name(), crc, sum)
		}
	}
	return c, nil
}

func parseIHDR(c Chunk, maxPixels uint64) (Header, error) {
	if len(c.Payload) != ihdrLength {
		return Header{}, formatErr(ErrMalformedChunk, c.Offset, "IHDR is %d bytes, expected %d", len(c.Payload), ihdrLength)
	}

	cur := NewCursor(c.Payload)
	var h Header
	// Length was checked above, so none of these reads can fail.
	h.Width, _ = cur.Uint32BE()
	h.Height, _ = cur.Uint32BE()
	h.BitDepth, _ = cur.Uint8()
	h.ColorType, _ = cur.Uint8()
	h.Compression, _ = cur.Uint8()
	h.Filter, _ = cur.Uint8()
	h.Interlace, _ = cur.Uint8()

	switch {
	case h.Width == 0 || h.Height == 0:
		return h, formatErr(ErrMalformedChunk, c.Offset, "zero image size %dx%d", h.Width, h.Height)
	case h.Width > 1<<31-1 || h.Height > 1<<31-1:
		return h, formatErr(ErrMalformedChunk, c.Offset, "image size %dx%d out of range", h.Width, h.Height)
	case h.BitDepth != 8:
		return h, formatErr(ErrUnsupportedFormat, c.Offset, "bit depth %d", h.BitDepth)
	case h.ColorType != colorTypeRGBA:
		return h, formatErr(ErrUnsupportedFormat, c.Offset, "color type %d", h.ColorType)
	case h.Compression != 0:
		return h, formatErr(ErrUnsupportedFormat, c.Offset, "compression method %d", h.Compression)
	case h.Filter != 0:
		return h, formatErr(ErrUnsupportedFormat, c.Offset, "filter method %d", h.Filter)
	case h.Interlace != 0:
		return h, formatErr(ErrUnsupportedFormat, c.Offset, "interlace method %d", h.Interlace)
	}

	if maxPixels > 0 && uint64(h.Width)*uint64(h.Height) > maxPixels {
		return h, formatErr(ErrUnsupportedFormat, c.Offset, "%dx%d exceeds the %d pixel limit", h.Width, h.Height, maxPixels)
	}
	if _, err := h.FilteredSize(); err != nil {
		return h, formatErr(ErrUnsupportedFormat, c.Offset, "%dx%d image is too large", h.Width, h.Height)
	}
	return h, nil
}

func parseText(payload []byte) TextEntry {
	keyword, text, found := bytes.Cut(payload, []byte{0})
	if !found {
		return TextEntry{Keyword: string(payload)}
	}
	return TextEntry{Keyword: string(keyword), Text: string(text)}
}

// be32s decodes n consecutive big-endian uint32 values from the front of p.
func be32s(p []byte, n int) ([]uint32, bool) {
	if len(p) < 4*n {
		return nil, false
	}
	cur := NewCursor(p)
	out := make([]uint32, n)
	for i := range n {
		out[i], _ = cur.Uint32BE()
	}
	return out, true
}
