package raster

import (
	"encoding/binary"
	"fmt"
)

// TileData pairs a descriptor with its decoded pixel bytes, still in the
// file's byte order. Data is nil for empty (sparse) tiles.
type TileData struct {
	Desc TileDescriptor
	Data []byte
}

// Fill is the value written into regions covered by empty sparse tiles.
type Fill struct {
	Value float64
	Valid bool
}

// Assemble copies the decoded tiles into one contiguous output buffer of
// shape (len(bands), win.Height, win.Width) in native byte order. Only the
// pixels where a tile intersects the window are copied; empty tiles write
// the fill value. The result is deterministic regardless of tile order in
// the input slice, because every tile lands at its fixed grid position.
func Assemble(g Geometry, win Window, bands []int, tiles []TileData, order binary.ByteOrder) ([]byte, error) {
	size := g.DType.Size()
	out := make([]byte, len(bands)*win.Height*win.Width*size)

	// Position of each source band within the output band axis.
	bandPos := make(map[int]int, len(bands))
	for i, b := range bands {
		if b < 0 || b >= g.Bands {
			return nil, fmt.Errorf("band %d out of range for %d-band image", b, g.Bands)
		}
		bandPos[b] = i
	}

	swap := size > 1 && order.Uint16([]byte{0x01, 0x02}) != binary.NativeEndian.Uint16([]byte{0x01, 0x02})
	pixels := win.Height * win.Width

	for _, tile := range tiles {
		overlap, ok := win.Intersect(tile.Desc.Bounds(g))
		if !ok {
			continue
		}
		if tile.Desc.Empty {
			continue
		}
		if want := g.DecodedSize(tile.Desc); len(tile.Data) < want {
			return nil, fmt.Errorf("tile (%d,%d) plane %d decoded to %d bytes, need %d",
				tile.Desc.Row, tile.Desc.Col, tile.Desc.Plane, len(tile.Data), want)
		}

		srcBands := []int{tile.Desc.Plane}
		srcStride := 1
		if !g.Planar {
			srcBands = bands
			srcStride = g.Bands
		}

		tileColOff := tile.Desc.Col * g.TileWidth
		tileRowOff := tile.Desc.Row * g.TileHeight
		for _, band := range srcBands {
			dstPlane := bandPos[band] * pixels
			srcBand := 0
			if !g.Planar {
				srcBand = band
			}
			for r := 0; r < overlap.Height; r++ {
				sr := overlap.RowOff - tileRowOff + r
				dr := overlap.RowOff - win.RowOff + r
				srcRow := (sr*g.TileWidth + (overlap.ColOff - tileColOff)) * srcStride
				dstRow := dstPlane + dr*win.Width + (overlap.ColOff - win.ColOff)
				copyRow(out, tile.Data, dstRow, srcRow+srcBand, overlap.Width, srcStride, size, swap)
			}
		}
	}
	return out, nil
}

// copyRow copies n samples from src to dst, converting to native byte
// order and dropping interleaved neighbor bands via the source stride.
func copyRow(dst, src []byte, dstIdx, srcIdx, n, srcStride, size int, swap bool) {
	if srcStride == 1 && !swap {
		copy(dst[dstIdx*size:(dstIdx+n)*size], src[srcIdx*size:(srcIdx+n)*size])
		return
	}
	for i := 0; i < n; i++ {
		s := (srcIdx + i*srcStride) * size
		d := (dstIdx + i) * size
		if swap {
			for b := 0; b < size; b++ {
				dst[d+b] = src[s+size-1-b]
			}
		} else {
			copy(dst[d:d+size], src[s:s+size])
		}
	}
}

// FillEmpty writes the fill value into the output region of every empty
// tile and returns whether any pixel was filled.
func FillEmpty(out []byte, g Geometry, win Window, bands []int, tiles []TileData, fill Fill) bool {
	value := 0.0
	if fill.Valid {
		value = fill.Value
	}
	pixels := win.Height * win.Width
	bandPos := make(map[int]int, len(bands))
	for i, b := range bands {
		bandPos[b] = i
	}

	filled := false
	for _, tile := range tiles {
		if !tile.Desc.Empty {
			continue
		}
		overlap, ok := win.Intersect(tile.Desc.Bounds(g))
		if !ok {
			continue
		}
		filled = true
		targets := []int{tile.Desc.Plane}
		if !g.Planar {
			targets = bands
		}
		for _, band := range targets {
			dstPlane := bandPos[band] * pixels
			for r := 0; r < overlap.Height; r++ {
				dr := overlap.RowOff - win.RowOff + r
				row := dstPlane + dr*win.Width + (overlap.ColOff - win.ColOff)
				for c := 0; c < overlap.Width; c++ {
					g.DType.PutSample(out, row+c, value)
				}
			}
		}
	}
	return filled
}
