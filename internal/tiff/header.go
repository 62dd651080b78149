package tiff

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Variant distinguishes the two TIFF container layouts.
type Variant uint8

// Supported format variants.
const (
	// Classic is the original TIFF layout with 32-bit offsets.
	Classic Variant = iota
	// BigTIFF is the large-file layout with 64-bit offsets.
	BigTIFF
)

func (v Variant) String() string {
	if v == BigTIFF {
		return "BigTIFF"
	}
	return "TIFF"
}

// HeaderSize is the number of bytes needed to parse either header variant.
const HeaderSize = 16

// Header holds the byte order, format variant, and first-IFD offset parsed
// from the start of the file. It is immutable once parsed.
type Header struct {
	Order    binary.ByteOrder
	Variant  Variant
	FirstIFD uint64
}

// ParseHeader validates the byte-order marker and magic number and returns
// the parsed header. Classic headers need 8 bytes, BigTIFF headers 16.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < 8 {
		return Header{}, fmt.Errorf("%w: %d bytes, need at least 8", ErrMalformedHeader, len(b))
	}

	var order binary.ByteOrder
	switch {
	case b[0] == 'I' && b[1] == 'I':
		order = binary.LittleEndian
	case b[0] == 'M' && b[1] == 'M':
		order = binary.BigEndian
	default:
		return Header{}, fmt.Errorf("%w: bad byte-order marker %q", ErrMalformedHeader, b[:2])
	}

	switch magic := order.Uint16(b[2:4]); magic {
	case 42:
		return Header{
			Order:    order,
			Variant:  Classic,
			FirstIFD: uint64(order.Uint32(b[4:8])),
		}, nil
	case 43:
		if len(b) < HeaderSize {
			return Header{}, fmt.Errorf("%w: %d bytes, BigTIFF header needs 16", ErrMalformedHeader, len(b))
		}
		// Offset size and pad are fixed by the BigTIFF format; anything else
		// is a variant this reader does not speak.
		if offsetSize := order.Uint16(b[4:6]); offsetSize != 8 {
			return Header{}, fmt.Errorf("%w: BigTIFF offset size %d", ErrUnsupportedVariant, offsetSize)
		}
		if pad := order.Uint16(b[6:8]); pad != 0 {
			return Header{}, fmt.Errorf("%w: BigTIFF header pad %d", ErrMalformedHeader, pad)
		}
		return Header{
			Order:    order,
			Variant:  BigTIFF,
			FirstIFD: order.Uint64(b[8:16]),
		}, nil
	default:
		return Header{}, fmt.Errorf("%w: magic number %d", ErrUnsupportedVariant, magic)
	}
}

// offsetSize returns the width in bytes of offsets and entry value fields.
func (h Header) offsetSize() uint64 {
	if h.Variant == BigTIFF {
		return 8
	}
	return 4
}

// entrySize returns the size of one directory entry.
func (h Header) entrySize() uint64 {
	if h.Variant == BigTIFF {
		return 20
	}
	return 12
}

// countSize returns the size of the entry-count field preceding an IFD.
func (h Header) countSize() uint64 {
	if h.Variant == BigTIFF {
		return 8
	}
	return 2
}

func math32(bits uint32) float32 { return math.Float32frombits(bits) }
func math64(bits uint64) float64 { return math.Float64frombits(bits) }
