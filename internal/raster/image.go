package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Format int

const (
	FormatPNG Format = iota
	FormatBMP
)

func (f Format) String() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatBMP:
		return "bmp"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatForPath selects a format from a file extension, case-insensitively.
func FormatForPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return FormatPNG, nil
	case ".bmp":
		return FormatBMP, nil
	default:
		return 0, formatErr(ErrUnknownFileType, -1, "cannot read file type %q", ext)
	}
}

// Source describes where an image's bytes came from. Size is the on-disk
// size and is only used for reporting.
type Source struct {
	Path string
	Size int64
}

// Field is one line of an image report.
type Field struct {
	Name  string
	Value any
}

// Image is implemented by exactly *PNG and *BMP.
type Image interface {
	Format() Format
	Source() Source
	Info() []Field
	ToBMP() (*BMP, error)

	sealed()
}

var (
	_ Image = (*PNG)(nil)
	_ Image = (*BMP)(nil)
)

type Options struct {
	ParseOptions
	// KeepResolution carries pHYs pixel density into the BMP header.
	KeepResolution bool
}

func DefaultOptions() Options {
	return Options{
		ParseOptions: ParseOptions{
			VerifyCRC: true,
			MaxPixels: 1 << 28,
		},
		KeepResolution: true,
	}
}

// Load decodes data as the format selected by src.Path's extension.
func Load(src Source, data []byte, opts Options) (Image, error) {
	format, err := FormatForPath(src.Path)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatPNG:
		p, err := DecodePNG(data, opts)
		if err != nil {
			return nil, err
		}
		p.src = src
		return p, nil
	default:
		b, err := ParseBMP(data)
		if err != nil {
			return nil, err
		}
		b.src = src
		b.maxPixels = opts.MaxPixels
		return b, nil
	}
}

// Open reads the file at path and decodes it with Load.
func Open(path string, opts Options) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(Source{Path: path, Size: int64(len(data))}, data, opts)
}

// ViewName is path with its extension replaced by ext.
func ViewName(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + "." + ext
}

func (b *BMP) Format() Format { return FormatBMP }
func (b *BMP) Source() Source { return b.src }
func (b *BMP) sealed()        {}

func (b *BMP) Info() []Field {
	return []Field{
		{"Original File", b.src.Path},
		{"View", ViewName(b.src.Path, "bmp")},
		{"File Size", b.File.FileSize},
		{"BMP Header", b.DIB.Size},
		{"Width", b.DIB.Width},
		{"Height", b.DIB.Height},
		{"Planes", b.DIB.Planes},
		{"Bits Per Pixel", b.DIB.BitsPerPixel},
		{"Compression", compressionName(b.DIB.Compression)},
		{"Image Size", len(b.Pixels)},
	}
}

// ToBMP returns b itself when it is already a bottom-up 32-bit RGBA V4 bitmap
// and a re-encoded copy otherwise.
func (b *BMP) ToBMP() (*BMP, error) {
	switch {
	case b.canonical() && b.DIB.Height < 0:
		return b.bottomUp(), nil
	case b.canonical():
		return b, nil
	case b.DIB.Compression == compressionRLE8 && b.DIB.BitsPerPixel == 8:
		return b.expandRLE8()
	}
	return b.normalize()
}

func compressionName(c uint32) string {
	switch c {
	case compressionRGB:
		return "0 (BI_RGB)"
	case compressionRLE8:
		return "1 (BI_RLE8)"
	case compressionFields:
		return "3 (BI_BITFIELDS)"
	default:
		return fmt.Sprint(c)
	}
}
