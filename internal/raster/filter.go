package raster

// FilterType is the per-scanline selector byte.
type FilterType uint8

const (
	FilterNone FilterType = iota
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
)

func (f FilterType) String() string {
	switch f {
	case FilterNone:
		return "None"
	case FilterSub:
		return "Sub"
	case FilterUp:
		return "Up"
	case FilterAverage:
		return "Average"
	case FilterPaeth:
		return "Paeth"
	default:
		return "Invalid"
	}
}

// Defilter reverses the scanline filters of a width x height RGBA image.
// filtered holds height rows of one filter byte plus width*4 pixel bytes.
//
// Reconstruction is a single forward pass: left, up and upLeft always come
// from already reconstructed output, never from the filtered input.
func Defilter(filtered []byte, width, height int) ([]byte, error) {
	stride := width * bytesPerPixel
	if len(filtered) != (stride+1)*height {
		return nil, formatErr(ErrSizeMismatch, -1, "filtered data is %d bytes, expected %d", len(filtered), (stride+1)*height)
	}

	out := make([]byte, stride*height)
	for y := range height {
		in := filtered[y*(stride+1):]
		ft := FilterType(in[0])
		src := in[1 : stride+1]
		cur := out[y*stride : (y+1)*stride]
		var prev []byte
		if y > 0 {
			prev = out[(y-1)*stride : y*stride]
		}

		if err := defilterRow(ft, cur, src, prev); err != nil {
			return nil, formatErr(ErrInvalidFilterType, int64(y*(stride+1)), "row %d has filter type %d", y, uint8(ft))
		}
	}
	return out, nil
}

// defilterRow reconstructs one row into cur. prev is nil for the first row,
// in which case every up and upLeft reference is zero.
func defilterRow(ft FilterType, cur, src, prev []byte) error {
	const bpp = bytesPerPixel

	switch ft {
	case FilterNone:
		copy(cur, src)

	case FilterSub:
		for i := range src {
			var left byte
			if i >= bpp {
				left = cur[i-bpp]
			}
			cur[i] = src[i] + left
		}

	case FilterUp:
		if prev == nil {
			copy(cur, src)
			break
		}
		for i := range src {
			cur[i] = src[i] + prev[i]
		}

	case FilterAverage:
		for i := range src {
			var left, up int
			if i >= bpp {
				left = int(cur[i-bpp])
			}
			if prev != nil {
				up = int(prev[i])
			}
			cur[i] = src[i] + byte((left+up)/2)
		}

	case FilterPaeth:
		for i := range src {
			var left, up, upLeft byte
			if i >= bpp {
				left = cur[i-bpp]
			}
			if prev != nil {
				up = prev[i]
				if i >= bpp {
					upLeft = prev[i-bpp]
				}
			}
			cur[i] = src[i] + paeth(left, up, upLeft)
		}

	default:
		return ErrInvalidFilterType
	}
	return nil
}

// paeth picks whichever of a (left), b (up), c (upLeft) is closest to
// a+b-c, preferring a, then b, then c on ties.
func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))

	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
