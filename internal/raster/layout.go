package raster

// FlipRows returns a copy of pixels with the row order reversed: row i moves
// to row rows-1-i and bytes within a row are untouched. PNG stores rows top
// to bottom, BMP (with a positive height) bottom to top.
func FlipRows(pixels []byte, stride int) []byte {
	out := make([]byte, len(pixels))
	if stride <= 0 {
		copy(out, pixels)
		return out
	}

	rows := len(pixels) / stride
	for i := range rows {
		j := rows - 1 - i
		copy(out[j*stride:(j+1)*stride], pixels[i*stride:(i+1)*stride])
	}
	return out
}
