package geotiff

import (
	"github.com/scigolib/geotiff/internal/codec"
	"github.com/scigolib/geotiff/internal/raster"
	"github.com/scigolib/geotiff/internal/tiff"
)

// Error taxonomy. The parser-level errors are fatal to Open; the read-level
// errors fail one Read call and leave the handle usable. Errors from the
// byte-range source are propagated verbatim, wrapped only with context.
var (
	// ErrMalformedHeader marks a file whose header fails validation.
	ErrMalformedHeader = tiff.ErrMalformedHeader

	// ErrUnsupportedVariant marks a header or sample layout this reader
	// does not speak.
	ErrUnsupportedVariant = tiff.ErrUnsupportedVariant

	// ErrMalformedTag marks a directory entry that contradicts the format.
	ErrMalformedTag = tiff.ErrMalformedTag

	// ErrOutOfBoundsOffset marks an offset pointing outside the file
	// extent; such offsets are rejected, never fetched speculatively.
	ErrOutOfBoundsOffset = tiff.ErrOutOfBoundsOffset

	// ErrWindowOutOfBounds marks a read window outside the overview grid.
	ErrWindowOutOfBounds = raster.ErrWindowOutOfBounds

	// ErrUnsupportedCompression marks a compression code with no decoder.
	ErrUnsupportedCompression = codec.ErrUnsupportedCompression

	// ErrDecode marks tile bytes that failed to decompress or validate.
	ErrDecode = codec.ErrDecode
)
