package raster

import (
	"errors"
	"fmt"
)

// ErrWindowOutOfBounds is returned when a requested window does not lie
// within the overview it targets. It fails that read call only.
var ErrWindowOutOfBounds = errors.New("window out of bounds")

// Window is a rectangular pixel region of an overview's grid, addressed by
// column/row offset and size.
type Window struct {
	ColOff int
	RowOff int
	Width  int
	Height int
}

func (w Window) String() string {
	return fmt.Sprintf("window(col=%d, row=%d, %dx%d)", w.ColOff, w.RowOff, w.Width, w.Height)
}

// Validate checks that the window is non-empty and lies within an image of
// the given size.
func (w Window) Validate(imageWidth, imageHeight int) error {
	if w.Width <= 0 || w.Height <= 0 {
		return fmt.Errorf("%w: %v has empty extent", ErrWindowOutOfBounds, w)
	}
	if w.ColOff < 0 || w.RowOff < 0 {
		return fmt.Errorf("%w: %v has negative offset", ErrWindowOutOfBounds, w)
	}
	if w.ColOff+w.Width > imageWidth || w.RowOff+w.Height > imageHeight {
		return fmt.Errorf("%w: %v extends past %dx%d image", ErrWindowOutOfBounds, w, imageWidth, imageHeight)
	}
	return nil
}

// Intersect returns the overlap of two windows and whether one exists.
func (w Window) Intersect(o Window) (Window, bool) {
	colOff := max(w.ColOff, o.ColOff)
	rowOff := max(w.RowOff, o.RowOff)
	colEnd := min(w.ColOff+w.Width, o.ColOff+o.Width)
	rowEnd := min(w.RowOff+w.Height, o.RowOff+o.Height)
	if colEnd <= colOff || rowEnd <= rowOff {
		return Window{}, false
	}
	return Window{ColOff: colOff, RowOff: rowOff, Width: colEnd - colOff, Height: rowEnd - rowOff}, true
}
