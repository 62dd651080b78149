// Package codec turns compressed tile bytes into raw pixel bytes. Decoders
// are registered per TIFF compression code in a closed dispatch table;
// codes without a decoder fail fast rather than guess. Decompression is
// CPU-bound and runs on the bounded worker pool in this package, kept
// separate from the fetch path so decode never blocks pending I/O.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Compression is a TIFF compression scheme code.
type Compression uint16

// Compression codes recognized by the reader. JPEG2000 and LERC are named
// here so errors can report them, but no decoder is registered for them.
const (
	CompressionNone       Compression = 1
	CompressionCCITTRLE   Compression = 2
	CompressionCCITTFax3  Compression = 3
	CompressionCCITTFax4  Compression = 4
	CompressionLZW        Compression = 5
	CompressionJPEG       Compression = 7
	CompressionDeflate    Compression = 8
	CompressionPackBits   Compression = 32773
	CompressionOldDeflate Compression = 32946
	CompressionJPEG2000   Compression = 34712
	CompressionLERC       Compression = 34887
	CompressionZstd       Compression = 50000
	CompressionWebP       Compression = 50001
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "uncompressed"
	case CompressionCCITTRLE:
		return "CCITT RLE"
	case CompressionCCITTFax3:
		return "CCITT Fax3"
	case CompressionCCITTFax4:
		return "CCITT Fax4"
	case CompressionLZW:
		return "LZW"
	case CompressionJPEG:
		return "JPEG"
	case CompressionDeflate, CompressionOldDeflate:
		return "Deflate"
	case CompressionPackBits:
		return "PackBits"
	case CompressionJPEG2000:
		return "JPEG2000"
	case CompressionLERC:
		return "LERC"
	case CompressionZstd:
		return "ZSTD"
	case CompressionWebP:
		return "WebP"
	}
	return fmt.Sprintf("compression(%d)", uint16(c))
}

// Decode-stage errors. Both are fatal to the read call that hit them.
var (
	ErrUnsupportedCompression = errors.New("unsupported compression")
	ErrDecode                 = errors.New("decode failed")
)

// Params carries everything a decoder needs besides the compressed bytes.
type Params struct {
	// Predictor is the differencing scheme applied before compression
	// (1 = none, 2 = horizontal, 3 = floating point).
	Predictor uint16

	// Tile geometry of the buffer being decoded. Bands is 1 for a planar
	// plane, SamplesPerPixel for a chunky tile.
	Width  int
	Height int
	Bands  int

	BitsPerSample int
	Photometric   uint16

	// Expected is the decoded byte length implied by the tile geometry.
	Expected int

	// JPEGTables is the shared quantization/huffman table stream from the
	// directory, spliced ahead of each JPEG tile when present.
	JPEGTables []byte

	// Order is the file byte order, needed to undo predictors on samples
	// wider than one byte.
	Order binary.ByteOrder
}

// Decoder decompresses one tile.
type Decoder func(data []byte, p Params) ([]byte, error)

var registry = map[Compression]Decoder{
	CompressionNone:       decodeNone,
	CompressionLZW:        decodeLZW,
	CompressionJPEG:       decodeJPEG,
	CompressionDeflate:    decodeDeflate,
	CompressionOldDeflate: decodeDeflate,
	CompressionPackBits:   decodePackBits,
	CompressionZstd:       decodeZstd,
	CompressionWebP:       decodeWebP,
}

// Supported reports whether a decoder is registered for the code.
func Supported(c Compression) bool {
	_, ok := registry[c]
	return ok
}

// Decode decompresses tile bytes, undoes the predictor, and verifies the
// decoded length against the tile geometry. An unregistered compression
// code fails with ErrUnsupportedCompression; every other failure wraps
// ErrDecode.
func Decode(c Compression, data []byte, p Params) ([]byte, error) {
	dec, ok := registry[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}
	raw, err := dec(data, p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, c, err)
	}

	// Image codecs reverse any transform themselves; predictors only apply
	// to the byte-oriented schemes.
	if c != CompressionJPEG && c != CompressionWebP {
		if raw, err = undoPredictor(raw, p); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDecode, c, err)
		}
	}

	if p.Expected > 0 && len(raw) < p.Expected {
		return nil, fmt.Errorf("%w: %s: got %d bytes, expected %d", ErrDecode, c, len(raw), p.Expected)
	}
	if p.Expected > 0 && len(raw) > p.Expected {
		// Strips at the image bottom may decode with padding rows; the
		// geometry already accounts for that, so excess bytes are dropped.
		raw = raw[:p.Expected]
	}
	return raw, nil
}

func decodeNone(data []byte, p Params) ([]byte, error) {
	if p.Expected > 0 && len(data) < p.Expected {
		return nil, fmt.Errorf("raw tile has %d bytes, expected %d", len(data), p.Expected)
	}
	// Predictor reversal mutates in place, and the input may be a shared
	// subslice of a merged fetch buffer when tiles reference the same span.
	if p.Predictor > predictorNone {
		return append([]byte(nil), data...), nil
	}
	return data, nil
}
