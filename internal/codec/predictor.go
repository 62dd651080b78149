package codec

import "fmt"

// Predictor schemes.
const (
	predictorNone       = 1
	predictorHorizontal = 2
	predictorFloat      = 3
)

// undoPredictor reverses the differencing transform applied before
// compression. Horizontal differencing accumulates each sample onto the
// previous pixel's sample of the same band; the floating-point scheme
// additionally de-interleaves byte planes.
func undoPredictor(raw []byte, p Params) ([]byte, error) {
	switch p.Predictor {
	case 0, predictorNone:
		return raw, nil
	case predictorHorizontal:
		return undoHorizontal(raw, p)
	case predictorFloat:
		return undoFloat(raw, p)
	default:
		return nil, fmt.Errorf("unknown predictor %d", p.Predictor)
	}
}

func undoHorizontal(raw []byte, p Params) ([]byte, error) {
	stride := p.Bands
	rowBytes := p.Width * p.Bands * p.BitsPerSample / 8
	if rowBytes == 0 {
		return raw, nil
	}
	rows := len(raw) / rowBytes

	switch p.BitsPerSample {
	case 8:
		for r := 0; r < rows; r++ {
			row := raw[r*rowBytes : (r+1)*rowBytes]
			for i := stride; i < len(row); i++ {
				row[i] += row[i-stride]
			}
		}
	case 16:
		for r := 0; r < rows; r++ {
			row := raw[r*rowBytes : (r+1)*rowBytes]
			for i := stride * 2; i+1 < len(row); i += 2 {
				v := p.Order.Uint16(row[i:]) + p.Order.Uint16(row[i-stride*2:])
				p.Order.PutUint16(row[i:], v)
			}
		}
	case 32:
		for r := 0; r < rows; r++ {
			row := raw[r*rowBytes : (r+1)*rowBytes]
			for i := stride * 4; i+3 < len(row); i += 4 {
				v := p.Order.Uint32(row[i:]) + p.Order.Uint32(row[i-stride*4:])
				p.Order.PutUint32(row[i:], v)
			}
		}
	case 64:
		for r := 0; r < rows; r++ {
			row := raw[r*rowBytes : (r+1)*rowBytes]
			for i := stride * 8; i+7 < len(row); i += 8 {
				v := p.Order.Uint64(row[i:]) + p.Order.Uint64(row[i-stride*8:])
				p.Order.PutUint64(row[i:], v)
			}
		}
	default:
		return nil, fmt.Errorf("horizontal predictor with %d bits per sample", p.BitsPerSample)
	}
	return raw, nil
}

// undoFloat reverses the floating-point predictor: byte-wise horizontal
// accumulation across the row, then reassembly of the row's big-endian
// byte planes into samples in the file's byte order.
func undoFloat(raw []byte, p Params) ([]byte, error) {
	bytesPerSample := p.BitsPerSample / 8
	if bytesPerSample < 2 {
		return nil, fmt.Errorf("floating-point predictor with %d bits per sample", p.BitsPerSample)
	}
	samplesPerRow := p.Width * p.Bands
	rowBytes := samplesPerRow * bytesPerSample
	if rowBytes == 0 || len(raw)%rowBytes != 0 {
		return nil, fmt.Errorf("floating-point predictor row size %d does not divide %d bytes", rowBytes, len(raw))
	}
	rows := len(raw) / rowBytes
	bigEndian := p.Order.Uint16([]byte{0x01, 0x02}) == 0x0102

	out := make([]byte, len(raw))
	plane := make([]byte, rowBytes)
	for r := 0; r < rows; r++ {
		row := raw[r*rowBytes : (r+1)*rowBytes]
		copy(plane, row)
		for i := 1; i < len(plane); i++ {
			plane[i] += plane[i-1]
		}
		dst := out[r*rowBytes : (r+1)*rowBytes]
		for s := 0; s < samplesPerRow; s++ {
			for b := 0; b < bytesPerSample; b++ {
				// Plane b holds byte b of every sample, most significant
				// first.
				src := plane[b*samplesPerRow+s]
				if bigEndian {
					dst[s*bytesPerSample+b] = src
				} else {
					dst[s*bytesPerSample+bytesPerSample-1-b] = src
				}
			}
		}
	}
	return out, nil
}
