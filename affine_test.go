package geotiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAffineApply(t *testing.T) {
	tr := Affine{A: 10, C: 1000, E: -10, F: 2000}
	x, y := tr.Apply(3, 2)
	assert.Equal(t, 1030.0, x)
	assert.Equal(t, 1980.0, y)
}

func TestAffineMulComposes(t *testing.T) {
	tr := Affine{A: 10, C: 1000, E: -10, F: 2000}
	shifted := tr.Mul(Translation(5, 7))

	// Applying the composition equals applying the translation first.
	wantX, wantY := tr.Apply(5+1, 7+2)
	x, y := shifted.Apply(1, 2)
	assert.Equal(t, wantX, x)
	assert.Equal(t, wantY, y)

	scaled := tr.Mul(Scaling(2, 2))
	assert.Equal(t, 20.0, scaled.A)
	assert.Equal(t, -20.0, scaled.E)
	assert.Equal(t, 1000.0, scaled.C)
}

func TestAffineInvertRoundTrip(t *testing.T) {
	tr := Affine{A: 10, B: 0.5, C: 1000, D: -0.25, E: -10, F: 2000}
	inv, err := tr.Invert()
	require.NoError(t, err)

	x, y := tr.Apply(12, 34)
	col, row := inv.Apply(x, y)
	assert.InDelta(t, 12, col, 1e-9)
	assert.InDelta(t, 34, row, 1e-9)
}

func TestAffineInvertSingular(t *testing.T) {
	_, err := Affine{}.Invert()
	require.Error(t, err)
}

func TestAffineRes(t *testing.T) {
	x, y := Affine{A: 10, E: -10}.res()
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 10.0, y)

	// Rotation preserves the pixel size.
	x, y = Affine{A: 6, D: 8, B: -8, E: 6}.res()
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 10.0, y)
}

func TestPixelAnchors(t *testing.T) {
	tr := Affine{A: 10, C: 1000, E: -10, F: 2000}

	tests := []struct {
		offset PixelOffset
		x, y   float64
	}{
		{OffsetUL, 1020, 1970},
		{OffsetUR, 1030, 1970},
		{OffsetLL, 1020, 1960},
		{OffsetLR, 1030, 1960},
		{OffsetCenter, 1025, 1965},
	}
	for _, tt := range tests {
		x, y, err := tr.xy(3, 2, tt.offset)
		require.NoError(t, err)
		assert.Equal(t, tt.x, x, string(tt.offset))
		assert.Equal(t, tt.y, y, string(tt.offset))
	}

	_, _, err := tr.xy(0, 0, PixelOffset("middle"))
	require.Error(t, err)
}

func TestAffineIndex(t *testing.T) {
	tr := Affine{A: 10, C: 1000, E: -10, F: 2000}

	// Anywhere inside pixel (3, 2) indexes back to it.
	row, col, err := tr.index(1025, 1961)
	require.NoError(t, err)
	assert.Equal(t, 3, row)
	assert.Equal(t, 2, col)

	row, col, err = tr.index(1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, 0, row)
	assert.Equal(t, 0, col)
}
