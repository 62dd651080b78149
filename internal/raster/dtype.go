// Package raster holds the pixel-domain pieces of the reader: sample type
// handling, window math, the tile grid locator, and the assembly of decoded
// tiles into one contiguous output buffer. Everything here is pure
// computation; no I/O happens in this package.
package raster

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Sample format codes from the SampleFormat tag.
const (
	SampleFormatUint  = 1
	SampleFormatInt   = 2
	SampleFormatFloat = 3
)

// DType is the element type of a decoded array.
type DType uint8

// Supported element types.
const (
	Uint8 DType = iota
	Uint16
	Uint32
	Uint64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
)

// DTypeFor maps a (bits per sample, sample format) pair to an element type.
func DTypeFor(bits int, format uint64) (DType, error) {
	switch format {
	case SampleFormatUint, 0:
		switch bits {
		case 8:
			return Uint8, nil
		case 16:
			return Uint16, nil
		case 32:
			return Uint32, nil
		case 64:
			return Uint64, nil
		}
	case SampleFormatInt:
		switch bits {
		case 8:
			return Int8, nil
		case 16:
			return Int16, nil
		case 32:
			return Int32, nil
		case 64:
			return Int64, nil
		}
	case SampleFormatFloat:
		switch bits {
		case 32:
			return Float32, nil
		case 64:
			return Float64, nil
		}
	}
	return 0, fmt.Errorf("unsupported sample type: %d bits, format %d", bits, format)
}

// Size returns the width of one sample in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	default:
		return 8
	}
}

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Uint16:
		return "uint16"
	case Uint32:
		return "uint32"
	case Uint64:
		return "uint64"
	case Int8:
		return "int8"
	case Int16:
		return "int16"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// SampleAt reads sample i of a native-order buffer as float64.
func (d DType) SampleAt(buf []byte, i int) float64 {
	b := buf[i*d.Size():]
	switch d {
	case Uint8:
		return float64(b[0])
	case Int8:
		return float64(int8(b[0]))
	case Uint16:
		return float64(binary.NativeEndian.Uint16(b))
	case Int16:
		return float64(int16(binary.NativeEndian.Uint16(b)))
	case Uint32:
		return float64(binary.NativeEndian.Uint32(b))
	case Int32:
		return float64(int32(binary.NativeEndian.Uint32(b)))
	case Uint64:
		return float64(binary.NativeEndian.Uint64(b))
	case Int64:
		return float64(int64(binary.NativeEndian.Uint64(b)))
	case Float32:
		return float64(math.Float32frombits(binary.NativeEndian.Uint32(b)))
	default:
		return math.Float64frombits(binary.NativeEndian.Uint64(b))
	}
}

// PutSample writes value as sample i of a native-order buffer, truncating
// to the element type.
func (d DType) PutSample(buf []byte, i int, value float64) {
	b := buf[i*d.Size():]
	switch d {
	case Uint8:
		b[0] = uint8(value)
	case Int8:
		b[0] = uint8(int8(value))
	case Uint16:
		binary.NativeEndian.PutUint16(b, uint16(value))
	case Int16:
		binary.NativeEndian.PutUint16(b, uint16(int16(value)))
	case Uint32:
		binary.NativeEndian.PutUint32(b, uint32(value))
	case Int32:
		binary.NativeEndian.PutUint32(b, uint32(int32(value)))
	case Uint64:
		binary.NativeEndian.PutUint64(b, uint64(value))
	case Int64:
		binary.NativeEndian.PutUint64(b, uint64(int64(value)))
	case Float32:
		binary.NativeEndian.PutUint32(b, math.Float32bits(float32(value)))
	default:
		binary.NativeEndian.PutUint64(b, math.Float64bits(value))
	}
}
