// Package tiff parses TIFF and BigTIFF image file directories from a
// byte-range source. It decodes headers, tag entries, and GeoKey
// directories into typed values, validating every offset and count against
// the file extent before following it. Nothing here interprets pixels; the
// package stops at a typed tag mapping per IFD.
package tiff

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Parser-level errors. All are fatal to the open/parse step.
var (
	ErrMalformedHeader    = errors.New("malformed header")
	ErrUnsupportedVariant = errors.New("unsupported format variant")
	ErrMalformedTag       = errors.New("malformed tag")
	ErrOutOfBoundsOffset  = errors.New("offset out of bounds")
)

// Baseline and GeoTIFF tag identifiers used by the reader.
const (
	TagNewSubfileType            uint16 = 254
	TagImageWidth                uint16 = 256
	TagImageLength               uint16 = 257
	TagBitsPerSample             uint16 = 258
	TagCompression               uint16 = 259
	TagPhotometricInterpretation uint16 = 262
	TagStripOffsets              uint16 = 273
	TagSamplesPerPixel           uint16 = 277
	TagRowsPerStrip              uint16 = 278
	TagStripByteCounts           uint16 = 279
	TagPlanarConfiguration       uint16 = 284
	TagPredictor                 uint16 = 317
	TagColorMap                  uint16 = 320
	TagTileWidth                 uint16 = 322
	TagTileLength                uint16 = 323
	TagTileOffsets               uint16 = 324
	TagTileByteCounts            uint16 = 325
	TagSampleFormat              uint16 = 339
	TagJPEGTables                uint16 = 347
	TagModelPixelScale           uint16 = 33550
	TagModelTiepoint             uint16 = 33922
	TagModelTransformation       uint16 = 34264
	TagGeoKeyDirectory           uint16 = 34735
	TagGeoDoubleParams           uint16 = 34736
	TagGeoAsciiParams            uint16 = 34737
	TagGDALMetadata              uint16 = 42112
	TagGDALNoData                uint16 = 42113
)

// NewSubfileType bit flags.
const (
	SubfileReducedImage uint64 = 0x1
	SubfileMask         uint64 = 0x4
)

// FieldType is a TIFF tag value type.
type FieldType uint16

// TIFF field types. LONG8 through IFD8 exist only in BigTIFF files.
const (
	TypeByte      FieldType = 1
	TypeASCII     FieldType = 2
	TypeShort     FieldType = 3
	TypeLong      FieldType = 4
	TypeRational  FieldType = 5
	TypeSByte     FieldType = 6
	TypeUndefined FieldType = 7
	TypeSShort    FieldType = 8
	TypeSLong     FieldType = 9
	TypeSRational FieldType = 10
	TypeFloat     FieldType = 11
	TypeDouble    FieldType = 12
	TypeLong8     FieldType = 16
	TypeSLong8    FieldType = 17
	TypeIFD8      FieldType = 18
)

var fieldSizes = map[FieldType]uint64{
	TypeByte:      1,
	TypeASCII:     1,
	TypeShort:     2,
	TypeLong:      4,
	TypeRational:  8,
	TypeSByte:     1,
	TypeUndefined: 1,
	TypeSShort:    2,
	TypeSLong:     4,
	TypeSRational: 8,
	TypeFloat:     4,
	TypeDouble:    8,
	TypeLong8:     8,
	TypeSLong8:    8,
	TypeIFD8:      8,
}

// Size returns the byte width of one value of the type, or 0 if the type
// is not in the format's type table.
func (t FieldType) Size() uint64 { return fieldSizes[t] }

func (t FieldType) String() string {
	switch t {
	case TypeByte:
		return "BYTE"
	case TypeASCII:
		return "ASCII"
	case TypeShort:
		return "SHORT"
	case TypeLong:
		return "LONG"
	case TypeRational:
		return "RATIONAL"
	case TypeSByte:
		return "SBYTE"
	case TypeUndefined:
		return "UNDEFINED"
	case TypeSShort:
		return "SSHORT"
	case TypeSLong:
		return "SLONG"
	case TypeSRational:
		return "SRATIONAL"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeLong8:
		return "LONG8"
	case TypeSLong8:
		return "SLONG8"
	case TypeIFD8:
		return "IFD8"
	}
	return fmt.Sprintf("type(%d)", uint16(t))
}

// Tag is one resolved directory entry: identifier, declared type, value
// count, and the raw value bytes in the file's byte order. Typed access
// goes through the accessor methods, which enforce the declared type.
type Tag struct {
	ID    uint16
	Type  FieldType
	Count uint64

	data  []byte
	order binary.ByteOrder
}

// Uint returns the first value of an unsigned integer tag.
func (t Tag) Uint() (uint64, error) {
	vs, err := t.UintSlice()
	if err != nil {
		return 0, err
	}
	if len(vs) == 0 {
		return 0, fmt.Errorf("%w: tag %d has no values", ErrMalformedTag, t.ID)
	}
	return vs[0], nil
}

// UintSlice returns all values of an unsigned integer tag
// (BYTE, SHORT, LONG, or LONG8).
func (t Tag) UintSlice() ([]uint64, error) {
	size := t.Type.Size()
	switch t.Type {
	case TypeByte, TypeShort, TypeLong, TypeLong8:
	default:
		return nil, fmt.Errorf("%w: tag %d declared %s, want unsigned integer", ErrMalformedTag, t.ID, t.Type)
	}
	if uint64(len(t.data)) < t.Count*size {
		return nil, fmt.Errorf("%w: tag %d value truncated", ErrMalformedTag, t.ID)
	}
	out := make([]uint64, t.Count)
	for i := range out {
		b := t.data[uint64(i)*size:]
		switch t.Type {
		case TypeByte:
			out[i] = uint64(b[0])
		case TypeShort:
			out[i] = uint64(t.order.Uint16(b))
		case TypeLong:
			out[i] = uint64(t.order.Uint32(b))
		case TypeLong8:
			out[i] = t.order.Uint64(b)
		}
	}
	return out, nil
}

// Float64Slice returns all values of a FLOAT, DOUBLE, or RATIONAL tag.
func (t Tag) Float64Slice() ([]float64, error) {
	size := t.Type.Size()
	switch t.Type {
	case TypeFloat, TypeDouble, TypeRational:
	default:
		return nil, fmt.Errorf("%w: tag %d declared %s, want floating point", ErrMalformedTag, t.ID, t.Type)
	}
	if uint64(len(t.data)) < t.Count*size {
		return nil, fmt.Errorf("%w: tag %d value truncated", ErrMalformedTag, t.ID)
	}
	out := make([]float64, t.Count)
	for i := range out {
		b := t.data[uint64(i)*size:]
		switch t.Type {
		case TypeFloat:
			out[i] = float64(math32(t.order.Uint32(b)))
		case TypeDouble:
			out[i] = math64(t.order.Uint64(b))
		case TypeRational:
			num := t.order.Uint32(b)
			den := t.order.Uint32(b[4:])
			if den == 0 {
				return nil, fmt.Errorf("%w: tag %d rational with zero denominator", ErrMalformedTag, t.ID)
			}
			out[i] = float64(num) / float64(den)
		}
	}
	return out, nil
}

// ASCII returns the value of an ASCII tag with the trailing NUL removed.
func (t Tag) ASCII() (string, error) {
	if t.Type != TypeASCII {
		return "", fmt.Errorf("%w: tag %d declared %s, want ASCII", ErrMalformedTag, t.ID, t.Type)
	}
	b := t.data
	if uint64(len(b)) > t.Count {
		b = b[:t.Count]
	}
	for len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}

// Bytes returns the raw value bytes of the tag.
func (t Tag) Bytes() []byte { return t.data }

// UintSlice16 returns the values of a SHORT tag as uint16, preserving the
// declared width. Used for ColorMap and GeoKey directories.
func (t Tag) UintSlice16() ([]uint16, error) {
	if t.Type != TypeShort {
		return nil, fmt.Errorf("%w: tag %d declared %s, want SHORT", ErrMalformedTag, t.ID, t.Type)
	}
	if uint64(len(t.data)) < t.Count*2 {
		return nil, fmt.Errorf("%w: tag %d value truncated", ErrMalformedTag, t.ID)
	}
	out := make([]uint16, t.Count)
	for i := range out {
		out[i] = t.order.Uint16(t.data[i*2:])
	}
	return out, nil
}
