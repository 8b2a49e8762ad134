package raster

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/draw"
	"io"

	"golang.org/x/image/bmp"
)

const (
	bmpSignature      = 0x4D42 // "BM" when written little-endian
	fileHeaderSize    = 14
	v4HeaderSize      = 108
	bmpDataOffset     = fileHeaderSize + v4HeaderSize
	compressionRGB    = 0
	compressionFields = 3

	maskRed   = 0x000000FF
	maskGreen = 0x0000FF00
	maskBlue  = 0x00FF0000
	maskAlpha = 0xFF000000
)

// FileHeader is the 14-byte BITMAPFILEHEADER.
type FileHeader struct {
	Signature  uint16
	FileSize   uint32
	Reserved   uint32
	DataOffset uint32
}

// InfoHeader is a BITMAPV4HEADER. Headers read from files with a shorter DIB
// header leave the trailing fields zero.
type InfoHeader struct {
	Size            uint32
	Width           int32
	Height          int32
	Planes          uint16
	BitsPerPixel    uint16
	Compression     uint32
	ImageSize       uint32
	XPixelsPerM     int32
	YPixelsPerM     int32
	ColorsUsed      uint32
	ImportantColors uint32
	RedMask         uint32
	GreenMask       uint32
	BlueMask        uint32
	AlphaMask       uint32
	ColorSpace      uint32
	Endpoints       [36]byte
	RedGamma        uint32
	GreenGamma      uint32
	BlueGamma       uint32
}

// BMP is a bitmap file: headers plus the pixel array as stored on disk.
type BMP struct {
	src       Source
	data      []byte
	maxPixels uint64

	File   FileHeader
	DIB    InfoHeader
	Pixels []byte
}

// NewBMP builds a 32-bit RGBA bitmap with a V4 header around pixels, which
// must already be in bottom-up row order.
func NewBMP(width, height int, pixels []byte, xRes, yRes int32) *BMP {
	size := uint32(len(pixels))
	return &BMP{
		File: FileHeader{
			Signature:  bmpSignature,
			FileSize:   bmpDataOffset + size,
			DataOffset: bmpDataOffset,
		},
		DIB: InfoHeader{
			Size:         v4HeaderSize,
			Width:        int32(width),
			Height:       int32(height),
			Planes:       1,
			BitsPerPixel: 32,
			Compression:  compressionFields,
			ImageSize:    size,
			XPixelsPerM:  xRes,
			YPixelsPerM:  yRes,
			RedMask:      maskRed,
			GreenMask:    maskGreen,
			BlueMask:     maskBlue,
			AlphaMask:    maskAlpha,
		},
		Pixels: pixels,
	}
}

// WriteTo writes the file header, the V4 header and the pixel array.
func (b *BMP) WriteTo(w io.Writer) (int64, error) {
	var hdr bytes.Buffer
	hdr.Grow(bmpDataOffset)
	// Writes to a bytes.Buffer cannot fail.
	_ = binary.Write(&hdr, binary.LittleEndian, &b.File)
	_ = binary.Write(&hdr, binary.LittleEndian, &b.DIB)

	n, err := w.Write(hdr.Bytes())
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(b.Pixels)
	return int64(n + m), err
}

// Bytes returns the complete file.
func (b *BMP) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(bmpDataOffset + len(b.Pixels))
	_, _ = b.WriteTo(&buf)
	return buf.Bytes()
}

// ParseBMP reads the file and DIB headers of a bitmap. The pixel array is
// kept as stored.
func ParseBMP(data []byte) (*BMP, error) {
	cur := NewCursor(data)
	b := &BMP{data: data}

	sig, err := cur.Uint16LE()
	if err != nil || sig != bmpSignature {
		return nil, formatErr(ErrInvalidSignature, 0, "not a BMP file")
	}
	if b.File.FileSize, err = cur.Uint32LE(); err != nil {
		return nil, err
	}
	if b.File.Reserved, err = cur.Uint32LE(); err != nil {
		return nil, err
	}
	if b.File.DataOffset, err = cur.Uint32LE(); err != nil {
		return nil, err
	}
	b.File.Signature = sig

	dibStart := cur.Offset()
	if b.DIB.Size, err = cur.Uint32LE(); err != nil {
		return nil, err
	}
	if b.DIB.Size < 40 {
		return nil, formatErr(ErrUnsupportedFormat, dibStart, "DIB header size %d", b.DIB.Size)
	}
	dib, err := cur.Read(int(b.DIB.Size) - 4)
	if err != nil {
		return nil, err
	}

	// The V4 layout is a prefix-compatible extension of BITMAPINFOHEADER, so
	// decode whatever part of it the file carries.
	raw := make([]byte, v4HeaderSize)
	binary.LittleEndian.PutUint32(raw, b.DIB.Size)
	copy(raw[4:], dib)
	// raw is exactly the size of InfoHeader.
	_ = binary.Read(bytes.NewReader(raw), binary.LittleEndian, &b.DIB)

	if int(b.File.DataOffset) > len(data) {
		return nil, formatErr(ErrTruncatedStream, int64(len(data)), "pixel data offset %d beyond end of file", b.File.DataOffset)
	}
	b.Pixels = data[b.File.DataOffset:]
	if n := int(b.DIB.ImageSize); n > 0 && n <= len(b.Pixels) {
		b.Pixels = b.Pixels[:n]
	}
	return b, nil
}

// canonical reports whether b already has the layout NewBMP produces.
func (b *BMP) canonical() bool {
	in := b.DIB
	return in.Size == v4HeaderSize &&
		in.BitsPerPixel == 32 &&
		in.Compression == compressionFields &&
		in.RedMask == maskRed && in.GreenMask == maskGreen &&
		in.BlueMask == maskBlue && in.AlphaMask == maskAlpha &&
		in.Width > 0 && in.Height != 0 &&
		len(b.Pixels) == int(in.Width)*b.rows()*bytesPerPixel
}

// rows is the pixel height; a negative header height marks top-down storage.
func (b *BMP) rows() int {
	if h := int(b.DIB.Height); h < 0 {
		return -h
	}
	return int(b.DIB.Height)
}

// bottomUp re-stores a top-down canonical bitmap in bottom-up row order.
func (b *BMP) bottomUp() *BMP {
	width := int(b.DIB.Width)
	out := NewBMP(width, b.rows(), FlipRows(b.Pixels, width*bytesPerPixel), b.DIB.XPixelsPerM, b.DIB.YPixelsPerM)
	out.src = b.src
	return out
}

// normalize decodes any bitmap x/image/bmp understands and re-encodes it in
// the 32-bit RGBA layout.
func (b *BMP) normalize() (*BMP, error) {
	if err := b.checkPixels(); err != nil {
		return nil, err
	}
	img, err := bmp.Decode(bytes.NewReader(b.data))
	if err != nil {
		return nil, formatErr(ErrUnsupportedFormat, -1, "%v", err)
	}

	bounds := img.Bounds()
	nrgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, draw.Src)

	out := NewBMP(bounds.Dx(), bounds.Dy(), FlipRows(nrgba.Pix, nrgba.Stride), b.DIB.XPixelsPerM, b.DIB.YPixelsPerM)
	out.src = b.src
	return out, nil
}

// checkPixels applies the pixel limit before a bitmap is decoded.
func (b *BMP) checkPixels() error {
	w, h := int64(b.DIB.Width), int64(b.DIB.Height)
	if h < 0 {
		h = -h
	}
	if b.maxPixels > 0 && w > 0 && uint64(w)*uint64(h) > b.maxPixels {
		return formatErr(ErrUnsupportedFormat, fileHeaderSize+4, "%dx%d exceeds the %d pixel limit", w, h, b.maxPixels)
	}
	return nil
}
