package raster

import "fmt"

// Geometry describes how one overview stores its pixels: image and tile
// dimensions, band layout, and the byte location of every tile. Strips are
// modeled as a one-column tile grid whose tiles span the image width, which
// lets the locator and assembler treat both layouts identically. Immutable
// after construction.
type Geometry struct {
	Width  int
	Height int
	Bands  int
	DType  DType

	TileWidth  int
	TileHeight int

	// Planar is true for band-sequential storage, where each grid cell
	// stores one band's plane per tile slot.
	Planar bool

	// Offsets and ByteCounts locate tile i at row*TilesAcross+col, with
	// planar files appending one full grid per band.
	Offsets    []uint64
	ByteCounts []uint64
}

// TilesAcross returns the number of tile columns.
func (g Geometry) TilesAcross() int {
	return (g.Width + g.TileWidth - 1) / g.TileWidth
}

// TilesDown returns the number of tile rows.
func (g Geometry) TilesDown() int {
	return (g.Height + g.TileHeight - 1) / g.TileHeight
}

// TileRows returns the pixel height of the tile at the given grid row;
// the final strip of a stripped file may fall short of the nominal height.
func (g Geometry) TileRows(row int) int {
	if rows := g.Height - row*g.TileHeight; rows < g.TileHeight {
		return rows
	}
	return g.TileHeight
}

// Validate checks the geometry against its own tile grid.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("image size %dx%d", g.Width, g.Height)
	}
	if g.TileWidth <= 0 || g.TileHeight <= 0 {
		return fmt.Errorf("tile size %dx%d", g.TileWidth, g.TileHeight)
	}
	if g.Bands <= 0 {
		return fmt.Errorf("band count %d", g.Bands)
	}
	want := g.TilesAcross() * g.TilesDown()
	if g.Planar {
		want *= g.Bands
	}
	if len(g.Offsets) < want || len(g.ByteCounts) < want {
		return fmt.Errorf("tile grid needs %d entries, file declares %d offsets and %d byte counts",
			want, len(g.Offsets), len(g.ByteCounts))
	}
	return nil
}

// TileDescriptor identifies one tile to fetch and decode: its grid cell,
// the plane it belongs to (0 for chunky layouts), and its byte extent.
// Sparse files may declare tiles with no data; those are flagged Empty and
// assemble as fill without being fetched.
type TileDescriptor struct {
	Row   int
	Col   int
	Plane int

	Offset    uint64
	ByteCount uint64
	Empty     bool
}

// Bounds returns the pixel region the descriptor's cell covers, clipped to
// the image.
func (t TileDescriptor) Bounds(g Geometry) Window {
	return Window{
		ColOff: t.Col * g.TileWidth,
		RowOff: t.Row * g.TileHeight,
		Width:  min(g.TileWidth, g.Width-t.Col*g.TileWidth),
		Height: min(g.TileHeight, g.Height-t.Row*g.TileHeight),
	}
}

// Locate maps a window to the descriptors of every tile whose pixel extent
// intersects it. Chunky layouts yield one descriptor per grid cell; planar
// layouts yield one per cell and requested band. The mapping is pure and
// deterministic: descriptors are ordered by plane, then grid row, then
// column.
func Locate(g Geometry, win Window, bands []int) ([]TileDescriptor, error) {
	if err := win.Validate(g.Width, g.Height); err != nil {
		return nil, err
	}

	colStart := win.ColOff / g.TileWidth
	colEnd := (win.ColOff + win.Width - 1) / g.TileWidth
	rowStart := win.RowOff / g.TileHeight
	rowEnd := (win.RowOff + win.Height - 1) / g.TileHeight

	across, down := g.TilesAcross(), g.TilesDown()
	planes := []int{0}
	if g.Planar {
		planes = bands
	}

	var descs []TileDescriptor
	for _, plane := range planes {
		for row := rowStart; row <= rowEnd; row++ {
			for col := colStart; col <= colEnd; col++ {
				if row >= down || col >= across {
					// Padded grid cell past the image edge.
					continue
				}
				i := row*across + col
				if g.Planar {
					i += plane * across * down
				}
				if i >= len(g.Offsets) {
					return nil, fmt.Errorf("tile (%d,%d) plane %d has no offset entry", row, col, plane)
				}
				d := TileDescriptor{
					Row:       row,
					Col:       col,
					Plane:     plane,
					Offset:    g.Offsets[i],
					ByteCount: g.ByteCounts[i],
				}
				d.Empty = d.ByteCount == 0
				descs = append(descs, d)
			}
		}
	}
	return descs, nil
}

// DecodedSize returns the expected decoded byte length of the descriptor's
// tile: full tile width, clipped rows for trailing strips, and either all
// bands (chunky) or one plane (planar).
func (g Geometry) DecodedSize(t TileDescriptor) int {
	bands := g.Bands
	if g.Planar {
		bands = 1
	}
	return g.TileWidth * g.TileRows(t.Row) * bands * g.DType.Size()
}
