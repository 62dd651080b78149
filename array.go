package geotiff

import (
	"fmt"

	"github.com/scigolib/geotiff/internal/raster"
)

// DType is the element type of a decoded array.
type DType = raster.DType

// Supported element types.
const (
	Uint8   = raster.Uint8
	Uint16  = raster.Uint16
	Uint32  = raster.Uint32
	Uint64  = raster.Uint64
	Int8    = raster.Int8
	Int16   = raster.Int16
	Int32   = raster.Int32
	Int64   = raster.Int64
	Float32 = raster.Float32
	Float64 = raster.Float64
)

// Window is a rectangular pixel region of an overview, addressed by
// column/row offset and size. It must lie within the overview's bounds.
type Window = raster.Window

// Array is the result of a read: a contiguous band-major pixel buffer with
// the window's derived transform and optional nodata mask. The caller owns
// the array exclusively; the reader never touches it again.
type Array struct {
	// Data holds the samples in native byte order, laid out band by band,
	// each band row-major: sample (b, r, c) lives at index
	// (b*Height+r)*Width + c.
	Data []byte

	Bands  int
	Height int
	Width  int
	DType  DType

	// Transform maps the array's pixel coordinates to the dataset's
	// reference system.
	Transform Affine

	// Mask marks nodata pixels with true, one entry per (row, col). Nil
	// when the file carries neither a mask page nor a nodata value.
	Mask []bool
}

// Shape returns (bands, height, width).
func (a *Array) Shape() (int, int, int) { return a.Bands, a.Height, a.Width }

// Value returns the sample at (band, row, col) widened to float64.
func (a *Array) Value(band, row, col int) float64 {
	return a.DType.SampleAt(a.Data, (band*a.Height+row)*a.Width+col)
}

// Masked reports whether the pixel at (row, col) is nodata.
func (a *Array) Masked(row, col int) bool {
	return a.Mask != nil && a.Mask[row*a.Width+col]
}

// Float64s returns every sample widened to float64, in Data order.
func (a *Array) Float64s() []float64 {
	out := make([]float64, a.Bands*a.Height*a.Width)
	for i := range out {
		out[i] = a.DType.SampleAt(a.Data, i)
	}
	return out
}

// Bounds returns the array's extent in the units of its reference system
// as (left, bottom, right, top).
func (a *Array) Bounds() (float64, float64, float64, float64) {
	left, top := a.Transform.Apply(0, 0)
	right, bottom := a.Transform.Apply(float64(a.Width), float64(a.Height))
	return left, bottom, right, top
}

func (a *Array) String() string {
	return fmt.Sprintf("geotiff.Array(%d, %d, %d) %s", a.Bands, a.Height, a.Width, a.DType)
}
