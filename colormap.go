package geotiff

import (
	"fmt"

	"github.com/scigolib/geotiff/internal/tiff"
)

// Colormap is the palette of a palette-color image: 16-bit RGB values
// indexed by sample value. TIFF stores the palette as all reds, then all
// greens, then all blues.
type Colormap struct {
	values []uint16
	nodata *float64
}

func parseColormap(d *tiff.IFD, nodata *float64) (*Colormap, error) {
	t, ok := d.Tag(tiff.TagColorMap)
	if !ok {
		return nil, nil
	}
	values, err := t.UintSlice16()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 || len(values)%3 != 0 {
		return nil, fmt.Errorf("%w: colormap holds %d values, need a multiple of 3", tiff.ErrMalformedTag, len(values))
	}
	return &Colormap{values: values, nodata: nodata}, nil
}

// Len returns the number of palette entries.
func (c *Colormap) Len() int { return len(c.values) / 3 }

// RGB returns the 16-bit color components of entry i.
func (c *Colormap) RGB(i int) (r, g, b uint16) {
	n := c.Len()
	return c.values[i], c.values[n+i], c.values[2*n+i]
}

// Palette returns the palette as an N-by-3 table of 16-bit components.
func (c *Colormap) Palette() [][3]uint16 {
	n := c.Len()
	out := make([][3]uint16, n)
	for i := range out {
		out[i] = [3]uint16{c.values[i], c.values[n+i], c.values[2*n+i]}
	}
	return out
}

// RGBA8 returns the palette as a map from index to 8-bit RGBA. Alpha is
// 255 everywhere except the nodata index, which gets 0.
func (c *Colormap) RGBA8() map[int][4]uint8 {
	out := make(map[int][4]uint8, c.Len())
	for i := 0; i < c.Len(); i++ {
		r, g, b := c.RGB(i)
		alpha := uint8(255)
		if c.nodata != nil && float64(i) == *c.nodata {
			alpha = 0
		}
		out[i] = [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), alpha}
	}
	return out
}
