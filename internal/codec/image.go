package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/webp"
)

const (
	photometricYCbCr = 6
)

// decodeJPEG decodes one JPEG tile. COG encoders usually hoist the
// quantization and huffman tables into the directory's JPEGTables tag; the
// abbreviated tile stream is spliced back onto them before decoding.
func decodeJPEG(data []byte, p Params) ([]byte, error) {
	stream := data
	if t := p.JPEGTables; len(t) >= 4 {
		if len(data) < 2 {
			return nil, fmt.Errorf("JPEG tile of %d bytes", len(data))
		}
		// tables = SOI ... EOI, tile = SOI ... EOI. Joined stream drops
		// the tables' EOI and the tile's SOI.
		joined := make([]byte, 0, len(t)+len(data)-4)
		joined = append(joined, t[:len(t)-2]...)
		joined = append(joined, data[2:]...)
		stream = joined
	}
	img, err := jpeg.Decode(bytes.NewReader(stream))
	if err != nil {
		return nil, err
	}
	return imageToSamples(img, p)
}

func decodeWebP(data []byte, p Params) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return imageToSamples(img, p)
}

// imageToSamples flattens a decoded image into pixel-interleaved 8-bit
// samples matching the tile's band count. Image codec tiles are always
// chunky, so the output layout is row-major (row, col, band).
func imageToSamples(img image.Image, p Params) ([]byte, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < p.Width || h < p.Height {
		return nil, fmt.Errorf("decoded image is %dx%d, tile is %dx%d", w, h, p.Width, p.Height)
	}

	out := make([]byte, p.Width*p.Height*p.Bands)
	switch src := img.(type) {
	case *image.Gray:
		if p.Bands != 1 {
			return nil, fmt.Errorf("grayscale tile with %d bands declared", p.Bands)
		}
		for y := 0; y < p.Height; y++ {
			copy(out[y*p.Width:(y+1)*p.Width], src.Pix[y*src.Stride:y*src.Stride+p.Width])
		}
	case *image.YCbCr:
		if p.Bands != 3 {
			return nil, fmt.Errorf("YCbCr tile with %d bands declared", p.Bands)
		}
		for y := 0; y < p.Height; y++ {
			for x := 0; x < p.Width; x++ {
				yy := src.Y[src.YOffset(b.Min.X+x, b.Min.Y+y)]
				ci := src.COffset(b.Min.X+x, b.Min.Y+y)
				i := (y*p.Width + x) * 3
				if p.Photometric == photometricYCbCr {
					r, g, bl := ycbcrToRGB(yy, src.Cb[ci], src.Cr[ci])
					out[i], out[i+1], out[i+2] = r, g, bl
				} else {
					out[i], out[i+1], out[i+2] = yy, src.Cb[ci], src.Cr[ci]
				}
			}
		}
	case *image.NRGBA:
		flattenRGBA(out, src.Pix, src.Stride, p)
	case *image.RGBA:
		flattenRGBA(out, src.Pix, src.Stride, p)
	case *image.CMYK:
		if p.Bands != 4 {
			return nil, fmt.Errorf("CMYK tile with %d bands declared", p.Bands)
		}
		for y := 0; y < p.Height; y++ {
			copy(out[y*p.Width*4:(y+1)*p.Width*4], src.Pix[y*src.Stride:y*src.Stride+p.Width*4])
		}
	default:
		return nil, fmt.Errorf("unsupported decoded image type %T", img)
	}
	return out, nil
}

func flattenRGBA(out, pix []byte, stride int, p Params) {
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			s := y*stride + x*4
			d := (y*p.Width + x) * p.Bands
			for c := 0; c < p.Bands && c < 4; c++ {
				out[d+c] = pix[s+c]
			}
		}
	}
}

// ycbcrToRGB is the JFIF conversion, mirroring image/color but without the
// interface round trip per pixel.
func ycbcrToRGB(y, cb, cr uint8) (uint8, uint8, uint8) {
	yy1 := int32(y) * 0x10101
	cb1 := int32(cb) - 128
	cr1 := int32(cr) - 128

	r := yy1 + 91881*cr1
	g := yy1 - 22554*cb1 - 46802*cr1
	b := yy1 + 116130*cb1

	return clamp8(r), clamp8(g), clamp8(b)
}

func clamp8(v int32) uint8 {
	if uint32(v)&0xff000000 == 0 {
		return uint8(v >> 16)
	}
	return uint8(^(v >> 31))
}
