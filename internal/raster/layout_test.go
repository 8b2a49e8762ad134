package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlipRows(t *testing.T) {
	t.Run("reverses rows only", func(t *testing.T) {
		in := []byte{
			1, 2, 3, 4, 5, 6, 7, 8,
			9, 10, 11, 12, 13, 14, 15, 16,
			17, 18, 19, 20, 21, 22, 23, 24,
		}
		out := FlipRows(in, 8)
		assert.Equal(t, []byte{
			17, 18, 19, 20, 21, 22, 23, 24,
			9, 10, 11, 12, 13, 14, 15, 16,
			1, 2, 3, 4, 5, 6, 7, 8,
		}, out)
		assert.Equal(t, byte(1), in[0], "input must not be modified")
	})

	t.Run("involution", func(t *testing.T) {
		for _, rows := range []int{1, 2, 3, 10} {
			in := randomPixels(int64(rows), rows*12)
			assert.Equal(t, in, FlipRows(FlipRows(in, 12), 12))
		}
	})

	t.Run("single row is unchanged", func(t *testing.T) {
		in := []byte{1, 2, 3, 4}
		assert.Equal(t, in, FlipRows(in, 4))
	})
}
