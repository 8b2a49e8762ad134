package raster

const compressionRLE8 = 1

// Palette maps 8-bit color indices to RGBA.
type Palette struct {
	Colors [256][4]byte
}

// readPalette reads the BGRX color table that follows the DIB header.
func (b *BMP) readPalette() (*Palette, error) {
	n := int(b.DIB.ColorsUsed)
	if n == 0 || n > 256 {
		n = 256
	}
	cur := NewCursor(b.data)
	if err := cur.Skip(fileHeaderSize + int(b.DIB.Size)); err != nil {
		return nil, err
	}
	entries, err := cur.Read(n * 4)
	if err != nil {
		return nil, err
	}

	p := &Palette{}
	for i := range n {
		e := entries[i*4 : i*4+4]
		p.Colors[i] = [4]byte{e[2], e[1], e[0], 0xFF}
	}
	return p, nil
}

// decodeRLE8 runs the BI_RLE8 state machine and calls emit for each run.
// emit receives the pixel position in stored (bottom-up) order, the run
// length, and the color index. Pixels skipped by deltas or early line ends
// are never emitted.
func decodeRLE8(data []byte, width, height int, emit func(pos, length int, index byte)) error {
	cur := NewCursor(data)
	x, y := 0, 0

	for y < height {
		count, err := cur.Uint8()
		if err != nil {
			return err
		}
		code, err := cur.Uint8()
		if err != nil {
			return err
		}

		if count > 0 {
			if n := min(int(count), width-x); n > 0 {
				emit(y*width+x, n, code)
			}
			x += int(count)
			continue
		}

		switch code {
		case 0: // end of line
			x, y = 0, y+1
		case 1: // end of bitmap
			return nil
		case 2: // delta
			dx, err := cur.Uint8()
			if err != nil {
				return err
			}
			dy, err := cur.Uint8()
			if err != nil {
				return err
			}
			x += int(dx)
			y += int(dy)
		default: // absolute run, padded to a 16-bit boundary
			lit, err := cur.Read(int(code))
			if err != nil {
				return err
			}
			for i, v := range lit {
				if x+i < width {
					emit(y*width+x+i, 1, v)
				}
			}
			x += int(code)
			if code&1 == 1 {
				if err := cur.Skip(1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func decodeRLE8ToRGBA(data []byte, rgba []byte, width, height int, p *Palette) error {
	return decodeRLE8(data, width, height, func(pos, length int, index byte) {
		c := p.Colors[index]
		fillRGBA(rgba, pos, length, c[0], c[1], c[2], c[3])
	})
}

func fillRGBA(rgba []byte, pos, count int, r, g, b, alpha byte) {
	start := pos * bytesPerPixel
	end := min(start+count*bytesPerPixel, len(rgba))
	if start >= end {
		return
	}
	rgba[start] = r
	rgba[start+1] = g
	rgba[start+2] = b
	rgba[start+3] = alpha
	for filled := bytesPerPixel; filled < end-start; filled *= 2 {
		copy(rgba[start+filled:end], rgba[start:start+filled])
	}
}

// expandRLE8 decodes a run-length encoded 8-bit bitmap into the 32-bit RGBA
// layout. Skipped pixels stay fully transparent.
func (b *BMP) expandRLE8() (*BMP, error) {
	width, height := int(b.DIB.Width), int(b.DIB.Height)
	if width <= 0 || height <= 0 {
		return nil, formatErr(ErrUnsupportedFormat, fileHeaderSize+4, "RLE8 bitmap with %dx%d pixels", width, height)
	}
	if err := b.checkPixels(); err != nil {
		return nil, err
	}

	p, err := b.readPalette()
	if err != nil {
		return nil, err
	}

	rgba := make([]byte, width*height*bytesPerPixel)
	if err := decodeRLE8ToRGBA(b.Pixels, rgba, width, height, p); err != nil {
		return nil, err
	}

	out := NewBMP(width, height, rgba, b.DIB.XPixelsPerM, b.DIB.YPixelsPerM)
	out.src = b.src
	return out, nil
}
