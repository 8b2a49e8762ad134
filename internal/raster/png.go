package raster

import (
	"fmt"
	"strings"
)

// PNG is a parsed 8-bit RGBA PNG. Pixel data stays compressed until Pixels
// or ToBMP is called.
type PNG struct {
	src    Source
	opts   Options
	Header Header
	Meta   Metadata
	// Compressed is the concatenation of every IDAT payload in file order.
	Compressed []byte
}

// DecodePNG walks the chunk stream of data.
func DecodePNG(data []byte, opts Options) (*PNG, error) {
	s, err := ParseChunks(data, opts.ParseOptions)
	if err != nil {
		return nil, err
	}
	return &PNG{
		opts:       opts,
		Header:     s.Header,
		Meta:       s.Meta,
		Compressed: s.Compressed,
	}, nil
}

func (p *PNG) Format() Format { return FormatPNG }
func (p *PNG) Source() Source { return p.src }
func (p *PNG) sealed()        {}

// Pixels inflates and defilters the image data into width*height*4 bytes,
// top row first, in R, G, B, A order.
func (p *PNG) Pixels() ([]byte, error) {
	size, err := p.Header.FilteredSize()
	if err != nil {
		return nil, err
	}
	filtered, err := Inflate(p.Compressed, size)
	if err != nil {
		return nil, err
	}
	return Defilter(filtered, int(p.Header.Width), int(p.Header.Height))
}

// ToBMP converts the image into a 32-bit RGBA bitmap.
func (p *PNG) ToBMP() (*BMP, error) {
	pixels, err := p.Pixels()
	if err != nil {
		return nil, err
	}

	var xRes, yRes int32
	if phys := p.Meta.Physical; phys != nil && p.opts.KeepResolution {
		xRes, yRes = int32(phys.PixelsPerUnitX), int32(phys.PixelsPerUnitY)
	}

	b := NewBMP(int(p.Header.Width), int(p.Header.Height), FlipRows(pixels, p.Header.Stride()), xRes, yRes)
	b.src = Source{Path: ViewName(p.src.Path, "bmp")}
	return b, nil
}

func (p *PNG) Info() []Field {
	h := p.Header
	fields := []Field{
		{"Original File", p.src.Path},
		{"View", ViewName(p.src.Path, "png")},
		{"File Size", p.src.Size},
		{"Width", h.Width},
		{"Height", h.Height},
		{"Bit Depth", h.BitDepth},
		{"Color Type", h.ColorType},
		{"Compression", h.Compression},
		{"Filter", h.Filter},
		{"Interlace", h.Interlace},
		{"Compressed Size", len(p.Compressed)},
	}

	m := p.Meta
	if m.RenderingIntent != nil {
		fields = append(fields, Field{"Rendering Intent", *m.RenderingIntent})
	}
	if m.Gamma != nil {
		fields = append(fields, Field{"Gamma", fmt.Sprintf("%.5f", float64(*m.Gamma)/100000)})
	}
	if m.Physical != nil {
		unit := "unknown unit"
		if m.Physical.Unit == 1 {
			unit = "m"
		}
		fields = append(fields, Field{"Pixels Per Unit", fmt.Sprintf("%d x %d per %s", m.Physical.PixelsPerUnitX, m.Physical.PixelsPerUnitY, unit)})
	}
	if c := m.Chroma; c != nil {
		fields = append(fields, Field{"White Point", fmt.Sprintf("%d, %d", c.WhiteX, c.WhiteY)})
	}
	for _, t := range m.Text {
		fields = append(fields, Field{t.Keyword, t.Text})
	}
	if m.DroppedText > 0 {
		fields = append(fields, Field{"Skipped Text Chunks", m.DroppedText})
	}
	if len(m.Unknown) > 0 {
		fields = append(fields, Field{"Unknown Chunks", strings.Join(m.Unknown, " ")})
	}
	return fields
}
