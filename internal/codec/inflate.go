package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff/lzw"
)

func decodeDeflate(data []byte, p Params) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readAllSized(zr, p.Expected)
}

// Shared zstd decoder; DecodeAll is safe for concurrent use.
var zstdDecoder, _ = zstd.NewReader(nil,
	zstd.WithDecoderConcurrency(0),
	zstd.WithDecoderMaxMemory(1<<30),
)

func decodeZstd(data []byte, p Params) ([]byte, error) {
	var dst []byte
	if p.Expected > 0 {
		dst = make([]byte, 0, p.Expected)
	}
	return zstdDecoder.DecodeAll(data, dst)
}

func decodeLZW(data []byte, p Params) ([]byte, error) {
	// The TIFF LZW variant: MSB-first bit order with early code-width
	// change, which x/image's reader implements.
	zr := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
	defer zr.Close()
	return readAllSized(zr, p.Expected)
}

// decodePackBits expands the PackBits byte-run encoding.
func decodePackBits(data []byte, p Params) ([]byte, error) {
	out := make([]byte, 0, p.Expected)
	for i := 0; i < len(data); {
		n := int(int8(data[i]))
		i++
		switch {
		case n >= 0:
			if i+n+1 > len(data) {
				return nil, fmt.Errorf("PackBits literal run of %d past input end", n+1)
			}
			out = append(out, data[i:i+n+1]...)
			i += n + 1
		case n == -128:
			// No-op byte.
		default:
			if i >= len(data) {
				return nil, fmt.Errorf("PackBits replicate run missing value byte")
			}
			for j := 0; j < 1-n; j++ {
				out = append(out, data[i])
			}
			i++
		}
	}
	return out, nil
}

func readAllSized(r io.Reader, expected int) ([]byte, error) {
	if expected <= 0 {
		return io.ReadAll(r)
	}
	out := make([]byte, expected)
	n, err := io.ReadFull(r, out)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return out[:n], nil
	}
	if err != nil {
		return nil, err
	}
	// Drain any padding past the expected length so stream checksums are
	// still verified by the underlying reader.
	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return append(out, rest...), nil
}
