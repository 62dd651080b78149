package geotiff

import (
	"fmt"
	"math"
)

// Affine is a 2D affine transform in the six-coefficient georeferencing
// convention:
//
//	x' = A*col + B*row + C
//	y' = D*col + E*row + F
//
// where (col, row) are pixel coordinates and (x', y') are coordinates in
// the dataset's reference system.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Translation returns a transform that offsets by (dx, dy).
func Translation(dx, dy float64) Affine {
	return Affine{A: 1, C: dx, E: 1, F: dy}
}

// Scaling returns a transform that scales by (sx, sy).
func Scaling(sx, sy float64) Affine {
	return Affine{A: sx, E: sy}
}

// Mul composes two transforms; the result applies o first, then t.
func (t Affine) Mul(o Affine) Affine {
	return Affine{
		A: t.A*o.A + t.B*o.D,
		B: t.A*o.B + t.B*o.E,
		C: t.A*o.C + t.B*o.F + t.C,
		D: t.D*o.A + t.E*o.D,
		E: t.D*o.B + t.E*o.E,
		F: t.D*o.C + t.E*o.F + t.F,
	}
}

// Apply maps a coordinate through the transform.
func (t Affine) Apply(x, y float64) (float64, float64) {
	return t.A*x + t.B*y + t.C, t.D*x + t.E*y + t.F
}

// Invert returns the inverse transform.
func (t Affine) Invert() (Affine, error) {
	det := t.A*t.E - t.B*t.D
	if det == 0 {
		return Affine{}, fmt.Errorf("transform %v is not invertible", t)
	}
	inv := Affine{
		A: t.E / det,
		B: -t.B / det,
		D: -t.D / det,
		E: t.A / det,
	}
	inv.C = -(inv.A*t.C + inv.B*t.F)
	inv.F = -(inv.D*t.C + inv.E*t.F)
	return inv, nil
}

// Coefficients returns the six coefficients in (A, B, C, D, E, F) order.
func (t Affine) Coefficients() [6]float64 {
	return [6]float64{t.A, t.B, t.C, t.D, t.E, t.F}
}

func (t Affine) String() string {
	return fmt.Sprintf("|%g %g %g|\n|%g %g %g|", t.A, t.B, t.C, t.D, t.E, t.F)
}

// res returns the pixel size implied by the transform, rotation-aware.
func (t Affine) res() (float64, float64) {
	return math.Hypot(t.A, t.D), math.Hypot(t.B, t.E)
}

// PixelOffset anchors a pixel coordinate for XY lookups.
type PixelOffset string

// Pixel anchor positions.
const (
	OffsetCenter PixelOffset = "center"
	OffsetUL     PixelOffset = "ul"
	OffsetUR     PixelOffset = "ur"
	OffsetLL     PixelOffset = "ll"
	OffsetLR     PixelOffset = "lr"
)

// xy maps a (row, col) pixel index to reference-system coordinates at the
// requested anchor within the pixel.
func (t Affine) xy(row, col int, offset PixelOffset) (float64, float64, error) {
	c, r := float64(col), float64(row)
	switch offset {
	case OffsetCenter:
		c, r = c+0.5, r+0.5
	case OffsetUL:
	case OffsetUR:
		c++
	case OffsetLL:
		r++
	case OffsetLR:
		c++
		r++
	default:
		return 0, 0, fmt.Errorf("invalid pixel offset %q", offset)
	}
	x, y := t.Apply(c, r)
	return x, y, nil
}

// index maps reference-system coordinates to the (row, col) pixel index
// containing them.
func (t Affine) index(x, y float64) (int, int, error) {
	inv, err := t.Invert()
	if err != nil {
		return 0, 0, err
	}
	colFrac, rowFrac := inv.Apply(x, y)
	return int(math.Floor(rowFrac)), int(math.Floor(colFrac)), nil
}
