package raster

import "fmt"

// MaskGeometry describes a transparency-mask page. Mask pages share their
// parent overview's pixel grid but store one sample per pixel, usually
// bit-packed.
type MaskGeometry struct {
	Geometry

	// Bits is the mask's bits per sample: 1 (bit-packed rows, MSB first)
	// or 8.
	Bits int
}

// DecodedSize returns the expected decoded byte length of a mask tile,
// accounting for bit-packed rows padded to a byte boundary.
func (m MaskGeometry) DecodedSize(t TileDescriptor) int {
	rowStride := (m.TileWidth*m.Bits + 7) / 8
	return rowStride * m.TileRows(t.Row)
}

// AssembleMask builds the boolean nodata mask for a window from decoded
// mask tiles. True marks a masked (nodata) pixel: the mask page stores
// nonzero for valid data, so a zero sample masks the pixel. Pixels not
// covered by any tile stay unmasked.
func AssembleMask(m MaskGeometry, win Window, tiles []TileData) ([]bool, error) {
	if m.Bits != 1 && m.Bits != 8 {
		return nil, fmt.Errorf("mask page with %d bits per sample", m.Bits)
	}
	mask := make([]bool, win.Height*win.Width)
	rowStride := (m.TileWidth*m.Bits + 7) / 8

	for _, tile := range tiles {
		overlap, ok := win.Intersect(tile.Desc.Bounds(m.Geometry))
		if !ok {
			continue
		}
		if tile.Desc.Empty {
			// A sparse mask tile means no valid data in its extent.
			markRegion(mask, win, overlap, true)
			continue
		}
		if want := m.DecodedSize(tile.Desc); len(tile.Data) < want {
			return nil, fmt.Errorf("mask tile (%d,%d) decoded to %d bytes, need %d",
				tile.Desc.Row, tile.Desc.Col, len(tile.Data), want)
		}
		tileColOff := tile.Desc.Col * m.TileWidth
		tileRowOff := tile.Desc.Row * m.TileHeight
		for r := 0; r < overlap.Height; r++ {
			sr := overlap.RowOff - tileRowOff + r
			dr := overlap.RowOff - win.RowOff + r
			for c := 0; c < overlap.Width; c++ {
				sc := overlap.ColOff - tileColOff + c
				var valid bool
				if m.Bits == 1 {
					valid = tile.Data[sr*rowStride+sc/8]&(0x80>>uint(sc%8)) != 0
				} else {
					valid = tile.Data[sr*rowStride+sc] != 0
				}
				if !valid {
					mask[dr*win.Width+(overlap.ColOff-win.ColOff)+c] = true
				}
			}
		}
	}
	return mask, nil
}

func markRegion(mask []bool, win, region Window, value bool) {
	for r := 0; r < region.Height; r++ {
		dr := region.RowOff - win.RowOff + r
		base := dr*win.Width + (region.ColOff - win.ColOff)
		for c := 0; c < region.Width; c++ {
			mask[base+c] = value
		}
	}
}

// EmptyMask marks the pixels covered by empty sparse tiles, for files
// that declare neither a mask page nor a nodata value.
func EmptyMask(g Geometry, win Window, tiles []TileData) []bool {
	mask := make([]bool, win.Height*win.Width)
	for _, tile := range tiles {
		if !tile.Desc.Empty {
			continue
		}
		if overlap, ok := win.Intersect(tile.Desc.Bounds(g)); ok {
			markRegion(mask, win, overlap, true)
		}
	}
	return mask
}

// NodataMask derives the boolean mask from a scalar nodata value: a pixel
// is masked when every band equals nodata. The buffer must be in native
// byte order as produced by Assemble.
func NodataMask(out []byte, d DType, nBands, height, width int, nodata float64) []bool {
	pixels := height * width
	mask := make([]bool, pixels)
	for i := 0; i < pixels; i++ {
		masked := true
		for b := 0; b < nBands; b++ {
			if d.SampleAt(out, b*pixels+i) != nodata {
				masked = false
				break
			}
		}
		mask[i] = masked
	}
	return mask
}
