package geotiff

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scigolib/geotiff/internal/tifftest"
)

func TestReadFullImage(t *testing.T) {
	data := tifftest.Build(false, pixelPage(64, 48, 32, 32, 3, gradient))
	g, _ := openMem(t, data)

	arr, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	bands, h, w := arr.Shape()
	assert.Equal(t, 3, bands)
	assert.Equal(t, 48, h)
	assert.Equal(t, 64, w)
	assert.Nil(t, arr.Mask)

	for b := 0; b < 3; b++ {
		for r := 0; r < 48; r++ {
			for c := 0; c < 64; c++ {
				require.Equal(t, float64(gradient(b, r, c)), arr.Value(b, r, c),
					"band %d row %d col %d", b, r, c)
			}
		}
	}
}

func TestReadWindowMatchesFullRead(t *testing.T) {
	data := tifftest.Build(false, pixelPage(64, 48, 32, 32, 2, gradient))
	g, _ := openMem(t, data)
	ctx := context.Background()

	full, err := g.Read(ctx, nil)
	require.NoError(t, err)

	// A window crossing all tile seams must equal the same crop of the full
	// read.
	win := Window{ColOff: 17, RowOff: 9, Width: 30, Height: 25}
	crop, err := g.Read(ctx, &win)
	require.NoError(t, err)
	assert.Equal(t, 25, crop.Height)
	assert.Equal(t, 30, crop.Width)
	for b := 0; b < 2; b++ {
		for r := 0; r < 25; r++ {
			for c := 0; c < 30; c++ {
				require.Equal(t, full.Value(b, r+9, c+17), crop.Value(b, r, c))
			}
		}
	}

	// The window transform shifts the origin by the window offset.
	assert.Equal(t, 1000.0+17*10, crop.Transform.C)
	assert.Equal(t, 2000.0-9*10, crop.Transform.F)
}

func TestReadIsIdempotent(t *testing.T) {
	data := tifftest.Build(false, pixelPage(64, 64, 32, 32, 2, gradient))
	g, _ := openMem(t, data)
	ctx := context.Background()

	win := Window{ColOff: 5, RowOff: 5, Width: 40, Height: 40}
	a, err := g.Read(ctx, &win)
	require.NoError(t, err)
	b, err := g.Read(ctx, &win)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, a.Mask, b.Mask)
}

func TestReadBandSubsetAndOrder(t *testing.T) {
	data := tifftest.Build(false, pixelPage(32, 32, 16, 16, 3, gradient))
	g, _ := openMem(t, data)
	ctx := context.Background()

	arr, err := g.Read(ctx, nil, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, arr.Bands)
	assert.Equal(t, float64(gradient(2, 0, 0)), arr.Value(0, 0, 0))
	assert.Equal(t, float64(gradient(0, 5, 7)), arr.Value(1, 5, 7))

	_, err = g.Read(ctx, nil, 3)
	assert.ErrorIs(t, err, ErrWindowOutOfBounds)
}

func TestReadWindowOutOfBounds(t *testing.T) {
	data := tifftest.Build(false, pixelPage(32, 32, 16, 16, 1, gradient))
	g, _ := openMem(t, data)
	ctx := context.Background()

	for _, win := range []Window{
		{ColOff: 0, RowOff: 0, Width: 33, Height: 8},
		{ColOff: 30, RowOff: 30, Width: 8, Height: 8},
		{ColOff: -1, RowOff: 0, Width: 8, Height: 8},
		{ColOff: 0, RowOff: 0, Width: 0, Height: 8},
	} {
		_, err := g.Read(ctx, &win)
		assert.ErrorIs(t, err, ErrWindowOutOfBounds, win.String())
	}

	// A failed window read leaves the handle usable.
	_, err := g.Read(ctx, nil)
	require.NoError(t, err)
}

// The canonical nodata scenario: 256x256 tiles, 3 bands, nodata 0. The mask
// must be true exactly where all three bands are 0.
func TestReadNodataMask(t *testing.T) {
	f := func(b, r, c int) int {
		if r < 10 && c < 10 {
			return 0
		}
		return gradient(b, r, c)
	}
	page := pixelPage(512, 512, 256, 256, 3, f)
	page.NoData = "0"
	g, _ := openMem(t, tifftest.Build(false, page))

	arr, err := g.Read(context.Background(), &Window{Width: 512, Height: 512})
	require.NoError(t, err)
	bands, h, w := arr.Shape()
	assert.Equal(t, 3, bands)
	assert.Equal(t, 512, h)
	assert.Equal(t, 512, w)
	require.NotNil(t, arr.Mask)

	for r := 0; r < 512; r++ {
		for c := 0; c < 512; c++ {
			require.Equal(t, r < 10 && c < 10, arr.Masked(r, c), "row %d col %d", r, c)
		}
	}
}

func TestReadSparseTilesFilledWithNodata(t *testing.T) {
	page := pixelPage(64, 64, 32, 32, 1, gradient)
	page.NoData = "255"
	page.Tiles[3] = nil // bottom-right tile is sparse
	g, _ := openMem(t, tifftest.Build(false, page))

	arr, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 255.0, arr.Value(0, 50, 50))
	assert.True(t, arr.Masked(50, 50))
	assert.Equal(t, float64(gradient(0, 10, 10)), arr.Value(0, 10, 10))
	assert.False(t, arr.Masked(10, 10))
}

func TestReadSparseTilesWithoutNodata(t *testing.T) {
	page := pixelPage(64, 64, 32, 32, 1, gradient)
	page.Tiles[0] = nil
	g, _ := openMem(t, tifftest.Build(false, page))

	arr, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	// No nodata declared: holes read as zero and are masked.
	assert.Equal(t, 0.0, arr.Value(0, 0, 0))
	assert.True(t, arr.Masked(0, 0))
	assert.False(t, arr.Masked(40, 40))
}

func TestReadMaskPagePrecedence(t *testing.T) {
	image := pixelPage(8, 8, 8, 8, 1, func(b, r, c int) int { return 5 })
	// Scalar nodata matches every pixel, but the mask page must win.
	image.NoData = "5"
	mask := tifftest.Page{
		Width: 8, Height: 8, Bands: 1, Bits: 1,
		RowsPerStrip: 8,
		Photometric:  4,
		SubfileType:  4,
		Tiles:        [][]byte{{0xF0, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0, 0xF0}},
	}
	g, _ := openMem(t, tifftest.Build(false, image, mask))

	arr, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			assert.Equal(t, c >= 4, arr.Masked(r, c), "row %d col %d", r, c)
		}
	}
}

func TestReadStriped(t *testing.T) {
	// 8x8 single band in strips of 3 rows; the final strip holds 2 rows.
	strips := [][]byte{
		make([]byte, 8*3),
		make([]byte, 8*3),
		make([]byte, 8*2),
	}
	for s, strip := range strips {
		for i := range strip {
			r, c := s*3+i/8, i%8
			strip[i] = byte(gradient(0, r, c))
		}
	}
	page := tifftest.Page{
		Width: 8, Height: 8, Bands: 1,
		RowsPerStrip: 3,
		Photometric:  1,
		Tiles:        strips,
		GeoKeys:      tifftest.DefaultGeoKeys(),
		PixelScale:   []float64{10, 10, 0},
		Tiepoint:     []float64{0, 0, 0, 1000, 2000, 0},
	}
	g, _ := openMem(t, tifftest.Build(false, page))
	assert.False(t, g.Full().IsTiled())

	arr, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			require.Equal(t, float64(gradient(0, r, c)), arr.Value(0, r, c))
		}
	}

	// A window confined to the middle strip.
	win := Window{ColOff: 2, RowOff: 3, Width: 4, Height: 3}
	crop, err := g.Read(context.Background(), &win)
	require.NoError(t, err)
	assert.Equal(t, float64(gradient(0, 3, 2)), crop.Value(0, 0, 0))
}

func TestReadPlanar(t *testing.T) {
	// 4x4 two-band planar image: one 16-byte plane per band.
	plane := func(b int) []byte {
		data := make([]byte, 16)
		for i := range data {
			data[i] = byte(gradient(b, i/4, i%4))
		}
		return data
	}
	page := tifftest.Page{
		Width: 4, Height: 4, Bands: 2,
		TileWidth: 4, TileHeight: 4,
		PlanarConfig: 2,
		Photometric:  1,
		Tiles:        [][]byte{plane(0), plane(1)},
		GeoKeys:      tifftest.DefaultGeoKeys(),
		PixelScale:   []float64{10, 10, 0},
		Tiepoint:     []float64{0, 0, 0, 1000, 2000, 0},
	}
	g, _ := openMem(t, tifftest.Build(false, page))

	arr, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	for b := 0; b < 2; b++ {
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				require.Equal(t, float64(gradient(b, r, c)), arr.Value(b, r, c))
			}
		}
	}
}

func TestReadDeflateWithPredictor(t *testing.T) {
	// One 8x8 tile, horizontally differenced then zlib compressed.
	raw := make([]byte, 64)
	for i := range raw {
		raw[i] = byte(gradient(0, i/8, i%8))
	}
	enc := make([]byte, 64)
	copy(enc, raw)
	for r := 0; r < 8; r++ {
		row := enc[r*8 : (r+1)*8]
		for i := 7; i >= 1; i-- {
			row[i] -= row[i-1]
		}
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(enc)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	page := tifftest.Page{
		Width: 8, Height: 8, Bands: 1,
		TileWidth: 8, TileHeight: 8,
		Compression: 8,
		Predictor:   2,
		Photometric: 1,
		Tiles:       [][]byte{buf.Bytes()},
		GeoKeys:     tifftest.DefaultGeoKeys(),
		PixelScale:  []float64{10, 10, 0},
		Tiepoint:    []float64{0, 0, 0, 1000, 2000, 0},
	}
	g, _ := openMem(t, tifftest.Build(false, page))
	assert.Equal(t, CompressionDeflate, g.Full().Compression())

	arr, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	for r := 0; r < 8; r++ {
		for c := 0; c < 8; c++ {
			require.Equal(t, float64(gradient(0, r, c)), arr.Value(0, r, c))
		}
	}
}

func TestReadUnsupportedCompression(t *testing.T) {
	page := pixelPage(16, 16, 16, 16, 1, gradient)
	page.Compression = 34712 // JPEG2000, no registered decoder
	g, _ := openMem(t, tifftest.Build(false, page))

	// Open succeeds; only reads of the unsupported page fail, before any
	// tile fetch.
	_, err := g.Read(context.Background(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedCompression)
}

func TestReadRejectsCraftedTileSpans(t *testing.T) {
	// TileOffsets and ByteCounts are untrusted input; a span pointing past
	// the file or wrapping uint64 must fail the read, not panic a fetch
	// worker. Both files carry a single inline offset that is corrupted
	// after building.
	t.Run("offset past file extent", func(t *testing.T) {
		data := tifftest.Build(false, pixelPage(16, 16, 16, 16, 1, gradient))
		// Directory entry: tag 324, type LONG, count 1.
		entry := bytes.Index(data, []byte{0x44, 0x01, 0x04, 0x00, 0x01, 0x00, 0x00, 0x00})
		require.GreaterOrEqual(t, entry, 0)
		binary.LittleEndian.PutUint32(data[entry+8:], 0xFFFFFF00)

		g, _ := openMem(t, data)
		_, err := g.Read(context.Background(), nil)
		require.ErrorIs(t, err, ErrOutOfBoundsOffset)
	})

	t.Run("offset plus byte count overflows", func(t *testing.T) {
		data := tifftest.Build(true, pixelPage(16, 16, 16, 16, 1, gradient))
		// Directory entry: tag 324, type LONG8, count 1.
		entry := bytes.Index(data, []byte{0x44, 0x01, 0x10, 0x00, 1, 0, 0, 0, 0, 0, 0, 0})
		require.GreaterOrEqual(t, entry, 0)
		binary.LittleEndian.PutUint64(data[entry+12:], ^uint64(0)-4)

		g, _ := openMem(t, data)
		_, err := g.Read(context.Background(), nil)
		require.ErrorIs(t, err, ErrOutOfBoundsOffset)
	})
}

func TestReadBigTIFF(t *testing.T) {
	data := tifftest.Build(true, pixelPage(64, 64, 32, 32, 2, gradient))
	g, _ := openMem(t, data)

	arr, err := g.Read(context.Background(), &Window{ColOff: 20, RowOff: 20, Width: 24, Height: 24})
	require.NoError(t, err)
	assert.Equal(t, float64(gradient(1, 20, 20)), arr.Value(1, 0, 0))
	assert.Equal(t, float64(gradient(0, 43, 43)), arr.Value(0, 23, 23))
}

func TestReadCoalescesTileFetches(t *testing.T) {
	data := tifftest.Build(false, pixelPage(64, 64, 16, 16, 1, gradient))
	g, src := openMem(t, data)

	// 16 adjacent tiny tiles within the default merge gap cost one request.
	before := src.Calls()
	_, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Calls()-before)
}

func TestReadCancelled(t *testing.T) {
	data := tifftest.Build(false, pixelPage(64, 64, 32, 32, 1, gradient))
	g, _ := openMem(t, data)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Read(ctx, nil)
	require.Error(t, err)

	// Cancellation leaves the handle usable.
	arr, err := g.Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, float64(gradient(0, 0, 0)), arr.Value(0, 0, 0))
}

func TestReadTile(t *testing.T) {
	data := tifftest.Build(false, pixelPage(80, 50, 32, 32, 1, gradient))
	g, _ := openMem(t, data)
	ctx := context.Background()

	arr, err := g.Full().ReadTile(ctx, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, 32, arr.Width)
	assert.Equal(t, 32, arr.Height)
	assert.Equal(t, float64(gradient(0, 0, 32)), arr.Value(0, 0, 0))

	// Edge tiles clip to the image bounds.
	arr, err = g.Full().ReadTile(ctx, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 16, arr.Width) // 80 - 2*32
	assert.Equal(t, 18, arr.Height)

	_, err = g.Full().ReadTile(ctx, 3, 0)
	assert.ErrorIs(t, err, ErrWindowOutOfBounds)
}

func TestReadOverviewLevel(t *testing.T) {
	full := pixelPage(64, 64, 32, 32, 1, gradient)
	ov := pixelPage(32, 32, 32, 32, 1, func(b, r, c int) int { return gradient(b, r*2, c*2) })
	ov.GeoKeys = nil
	ov.PixelScale = nil
	ov.Tiepoint = nil
	ov.SubfileType = 1

	g, _ := openMem(t, tifftest.Build(false, full, ov))
	require.Len(t, g.Overviews(), 2)

	arr, err := g.Overviews()[1].Read(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 32, arr.Width)
	assert.Equal(t, float64(gradient(0, 10, 14)), arr.Value(0, 5, 7))
	// The overview's array transform carries the doubled pixel size.
	assert.Equal(t, 20.0, arr.Transform.A)
}
