package geotiff

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/scigolib/geotiff/internal/codec"
	"github.com/scigolib/geotiff/internal/fetch"
	"github.com/scigolib/geotiff/internal/raster"
)

// tileSlot routes a fetched byte span to its decode target: an image tile
// or a mask tile.
type tileSlot struct {
	mask bool
	i    int
}

// Read reads pixel data for a window of the overview. A nil window reads
// the whole overview; no bands means every band, otherwise bands are
// 0-based indices selecting and ordering the output planes.
//
// Fetching and decoding pipeline per tile: each tile's decode is submitted
// the moment its bytes arrive, so network latency for later tiles overlaps
// decompression of earlier ones. The assembled result is deterministic
// regardless of arrival order. Cancelling the context abandons outstanding
// work and leaves the handle usable.
func (o *Overview) Read(ctx context.Context, win *Window, bands ...int) (*Array, error) {
	w := Window{Width: o.geom.Width, Height: o.geom.Height}
	if win != nil {
		w = *win
	}
	if len(bands) == 0 {
		bands = make([]int, o.geom.Bands)
		for i := range bands {
			bands[i] = i
		}
	}
	for _, b := range bands {
		if b < 0 || b >= o.geom.Bands {
			return nil, fmt.Errorf("%w: band %d of %d-band image", ErrWindowOutOfBounds, b, o.geom.Bands)
		}
	}

	descs, err := raster.Locate(o.geom, w, bands)
	if err != nil {
		return nil, err
	}
	// Fail before any I/O when the compression has no decoder.
	if !codec.Supported(o.compression) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, o.compression)
	}

	var maskDescs []raster.TileDescriptor
	if o.maskIFD != nil {
		if maskDescs, err = raster.Locate(o.maskGeom.Geometry, w, []int{0}); err != nil {
			return nil, err
		}
	}

	tiles := make([]raster.TileData, len(descs))
	for i, d := range descs {
		tiles[i].Desc = d
	}
	maskTiles := make([]raster.TileData, len(maskDescs))
	for i, d := range maskDescs {
		maskTiles[i].Desc = d
	}

	if err := o.fetchAndDecode(ctx, tiles, maskTiles); err != nil {
		return nil, err
	}

	out, err := raster.Assemble(o.geom, w, bands, tiles, o.g.header.Order)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	fill := raster.Fill{}
	if o.nodata != nil {
		fill = raster.Fill{Value: *o.nodata, Valid: true}
	}
	filled := raster.FillEmpty(out, o.geom, w, bands, tiles, fill)

	// Mask precedence: an attached mask page wins over scalar nodata;
	// sparse holes are masked even without either.
	var mask []bool
	switch {
	case o.maskIFD != nil:
		if mask, err = raster.AssembleMask(o.maskGeom, w, maskTiles); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	case o.nodata != nil:
		mask = raster.NodataMask(out, o.geom.DType, len(bands), w.Height, w.Width, *o.nodata)
	case filled:
		mask = raster.EmptyMask(o.geom, w, tiles)
	}

	transform, err := o.Transform()
	if err != nil {
		return nil, err
	}

	return &Array{
		Data:      out,
		Bands:     len(bands),
		Height:    w.Height,
		Width:     w.Width,
		DType:     o.geom.DType,
		Transform: transform.Mul(Translation(float64(w.ColOff), float64(w.RowOff))),
		Mask:      mask,
	}, nil
}

// fetchAndDecode runs the fetch/decode pipeline for one read call. Tile
// ranges are merged and fetched concurrently; each tile's decode job is
// queued on the worker pool as soon as its merged request lands.
func (o *Overview) fetchAndDecode(ctx context.Context, tiles, maskTiles []raster.TileData) error {
	var ranges []fetch.Range
	var slots []tileSlot
	for i, t := range tiles {
		if !t.Desc.Empty {
			if err := o.g.checkTileSpan(t.Desc); err != nil {
				return err
			}
			ranges = append(ranges, fetch.Range{Offset: t.Desc.Offset, Length: t.Desc.ByteCount})
			slots = append(slots, tileSlot{mask: false, i: i})
		}
	}
	for i, t := range maskTiles {
		if !t.Desc.Empty {
			if err := o.g.checkTileSpan(t.Desc); err != nil {
				return err
			}
			ranges = append(ranges, fetch.Range{Offset: t.Desc.Offset, Length: t.Desc.ByteCount})
			slots = append(slots, tileSlot{mask: true, i: i})
		}
	}
	if len(ranges) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var decodeErr error
	fail := func(err error) {
		mu.Lock()
		if decodeErr == nil {
			decodeErr = err
			cancel()
		}
		mu.Unlock()
	}

	fetchErr := o.g.sched.FetchEach(ctx, o.g.src, o.g.path, ranges, func(idx int, data []byte) error {
		s := slots[idx]
		wg.Add(1)
		if err := o.g.pool.Submit(ctx, func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := o.decodeTile(s, data, tiles, maskTiles); err != nil {
				fail(err)
			}
		}); err != nil {
			wg.Done()
			return err
		}
		return nil
	})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if decodeErr != nil {
		return decodeErr
	}
	return fetchErr
}

// checkTileSpan validates a tile's byte span from TileOffsets/ByteCounts
// against the file extent before any fetch is planned. Offsets and counts
// come from untrusted directory data; a crafted span must fail here, not
// inside a fetch worker.
func (g *GeoTIFF) checkTileSpan(d raster.TileDescriptor) error {
	if d.Offset > math.MaxUint64-d.ByteCount {
		return fmt.Errorf("%w: tile (%d,%d) plane %d span [%d,+%d) overflows",
			ErrOutOfBoundsOffset, d.Row, d.Col, d.Plane, d.Offset, d.ByteCount)
	}
	if g.extent != 0 && d.Offset+d.ByteCount > g.extent {
		return fmt.Errorf("%w: tile (%d,%d) plane %d span [%d,+%d) past file extent %d",
			ErrOutOfBoundsOffset, d.Row, d.Col, d.Plane, d.Offset, d.ByteCount, g.extent)
	}
	return nil
}

// decodeTile decompresses one fetched tile into its slot.
func (o *Overview) decodeTile(s tileSlot, data []byte, tiles, maskTiles []raster.TileData) error {
	if s.mask {
		desc := maskTiles[s.i].Desc
		raw, err := codec.Decode(o.maskCompression, data, codec.Params{
			Predictor:     o.maskPredictor,
			Width:         o.maskGeom.TileWidth,
			Height:        o.maskGeom.TileRows(desc.Row),
			Bands:         1,
			BitsPerSample: o.maskGeom.Bits,
			Expected:      o.maskGeom.DecodedSize(desc),
			Order:         o.g.header.Order,
		})
		if err != nil {
			return fmt.Errorf("mask tile (%d,%d): %w", desc.Row, desc.Col, err)
		}
		maskTiles[s.i].Data = raw
		return nil
	}

	desc := tiles[s.i].Desc
	bandsInTile := o.geom.Bands
	if o.geom.Planar {
		bandsInTile = 1
	}
	raw, err := codec.Decode(o.compression, data, codec.Params{
		Predictor:     o.predictor,
		Width:         o.geom.TileWidth,
		Height:        o.geom.TileRows(desc.Row),
		Bands:         bandsInTile,
		BitsPerSample: o.geom.DType.Size() * 8,
		Photometric:   o.photometric,
		Expected:      o.geom.DecodedSize(desc),
		JPEGTables:    o.jpegTables,
		Order:         o.g.header.Order,
	})
	if err != nil {
		return fmt.Errorf("tile (%d,%d) plane %d: %w", desc.Row, desc.Col, desc.Plane, err)
	}
	tiles[s.i].Data = raw
	return nil
}

// ReadTile reads the single tile at grid position (x, y) of the overview,
// clipped to the image bounds at the right and bottom edges.
func (o *Overview) ReadTile(ctx context.Context, x, y int) (*Array, error) {
	if x < 0 || y < 0 || x >= o.geom.TilesAcross() || y >= o.geom.TilesDown() {
		return nil, fmt.Errorf("%w: tile (%d,%d) of %dx%d grid",
			ErrWindowOutOfBounds, x, y, o.geom.TilesAcross(), o.geom.TilesDown())
	}
	win := raster.TileDescriptor{Row: y, Col: x}.Bounds(o.geom)
	return o.Read(ctx, &win)
}
