package raster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grid44 is a 100x90 image on a 32x32 tile grid: 4 tiles across, 3 down.
func grid44(bands int, planar bool) Geometry {
	n := 4 * 3
	if planar {
		n *= bands
	}
	offsets := make([]uint64, n)
	counts := make([]uint64, n)
	for i := range offsets {
		offsets[i] = uint64(1000 + i*100)
		counts[i] = 100
	}
	return Geometry{
		Width: 100, Height: 90, Bands: bands, DType: Uint8,
		TileWidth: 32, TileHeight: 32,
		Planar: planar, Offsets: offsets, ByteCounts: counts,
	}
}

func TestGeometryGrid(t *testing.T) {
	g := grid44(1, false)
	assert.Equal(t, 4, g.TilesAcross())
	assert.Equal(t, 3, g.TilesDown())
	assert.Equal(t, 32, g.TileRows(0))
	assert.Equal(t, 26, g.TileRows(2)) // 90 - 2*32
	require.NoError(t, g.Validate())

	g.Offsets = g.Offsets[:5]
	assert.Error(t, g.Validate())
}

func TestTileBoundsClipped(t *testing.T) {
	g := grid44(1, false)
	b := TileDescriptor{Row: 2, Col: 3}.Bounds(g)
	assert.Equal(t, Window{ColOff: 96, RowOff: 64, Width: 4, Height: 26}, b)
}

func TestLocateChunky(t *testing.T) {
	g := grid44(3, false)

	// A window inside one tile maps to exactly that tile.
	descs, err := Locate(g, Window{ColOff: 40, RowOff: 40, Width: 10, Height: 10}, []int{0, 1, 2})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, 1, descs[0].Row)
	assert.Equal(t, 1, descs[0].Col)
	assert.Equal(t, 0, descs[0].Plane)
	assert.Equal(t, uint64(1000+5*100), descs[0].Offset)

	// A window crossing tile seams maps to every intersecting tile, in
	// row-major order.
	descs, err = Locate(g, Window{ColOff: 30, RowOff: 30, Width: 40, Height: 40}, []int{0})
	require.NoError(t, err)
	require.Len(t, descs, 9)
	assert.Equal(t, 0, descs[0].Row)
	assert.Equal(t, 0, descs[0].Col)
	assert.Equal(t, 2, descs[8].Row)
	assert.Equal(t, 2, descs[8].Col)
}

func TestLocatePlanar(t *testing.T) {
	g := grid44(3, true)
	descs, err := Locate(g, Window{ColOff: 0, RowOff: 0, Width: 33, Height: 10}, []int{0, 2})
	require.NoError(t, err)
	require.Len(t, descs, 4)

	// Plane-major ordering, plane index taken from the requested bands.
	assert.Equal(t, 0, descs[0].Plane)
	assert.Equal(t, 0, descs[1].Plane)
	assert.Equal(t, 2, descs[2].Plane)
	assert.Equal(t, 2, descs[3].Plane)

	// Band 2's grid starts after two full grids of 12 tiles.
	assert.Equal(t, uint64(1000+24*100), descs[2].Offset)
}

func TestLocateSparseTiles(t *testing.T) {
	g := grid44(1, false)
	g.ByteCounts[5] = 0
	descs, err := Locate(g, Window{ColOff: 40, RowOff: 40, Width: 10, Height: 10}, []int{0})
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.True(t, descs[0].Empty)
}

func TestLocateRejectsBadWindow(t *testing.T) {
	g := grid44(1, false)
	for _, win := range []Window{
		{ColOff: 0, RowOff: 0, Width: 0, Height: 10},
		{ColOff: -1, RowOff: 0, Width: 10, Height: 10},
		{ColOff: 95, RowOff: 0, Width: 10, Height: 10},
		{ColOff: 0, RowOff: 85, Width: 10, Height: 10},
	} {
		_, err := Locate(g, win, []int{0})
		assert.ErrorIs(t, err, ErrWindowOutOfBounds, win.String())
	}
}

func TestDecodedSize(t *testing.T) {
	g := grid44(3, false)
	g.DType = Uint16
	assert.Equal(t, 32*32*3*2, g.DecodedSize(TileDescriptor{Row: 0}))
	assert.Equal(t, 32*26*3*2, g.DecodedSize(TileDescriptor{Row: 2}))

	p := grid44(3, true)
	assert.Equal(t, 32*32, p.DecodedSize(TileDescriptor{Row: 0, Plane: 1}))
}

func TestWindowIntersect(t *testing.T) {
	a := Window{ColOff: 10, RowOff: 10, Width: 20, Height: 20}
	b := Window{ColOff: 25, RowOff: 5, Width: 20, Height: 10}
	got, ok := a.Intersect(b)
	require.True(t, ok)
	assert.Equal(t, Window{ColOff: 25, RowOff: 10, Width: 5, Height: 5}, got)

	_, ok = a.Intersect(Window{ColOff: 100, RowOff: 100, Width: 5, Height: 5})
	assert.False(t, ok)
}

func TestDTypeFor(t *testing.T) {
	d, err := DTypeFor(16, SampleFormatUint)
	require.NoError(t, err)
	assert.Equal(t, Uint16, d)

	d, err = DTypeFor(32, SampleFormatFloat)
	require.NoError(t, err)
	assert.Equal(t, Float32, d)

	d, err = DTypeFor(8, 0) // missing SampleFormat defaults to unsigned
	require.NoError(t, err)
	assert.Equal(t, Uint8, d)

	_, err = DTypeFor(1, SampleFormatUint)
	assert.Error(t, err)
	_, err = DTypeFor(16, SampleFormatFloat)
	assert.Error(t, err)
}

func TestSampleRoundTrip(t *testing.T) {
	for _, d := range []DType{Uint8, Uint16, Uint32, Int8, Int16, Int32, Int64, Float32, Float64} {
		buf := make([]byte, 4*d.Size())
		d.PutSample(buf, 2, 42)
		assert.Equal(t, 42.0, d.SampleAt(buf, 2), d.String())
		assert.Equal(t, 0.0, d.SampleAt(buf, 1), d.String())
	}

	buf := make([]byte, 8)
	Int16.PutSample(buf, 0, -5)
	assert.Equal(t, -5.0, Int16.SampleAt(buf, 0))
	Float64.PutSample(buf, 0, 2.75)
	assert.Equal(t, 2.75, Float64.SampleAt(buf, 0))
}
