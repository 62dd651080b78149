package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJPEGGray(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: 128})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := Decode(CompressionJPEG, buf.Bytes(), Params{
		Width: 16, Height: 16, Bands: 1, BitsPerSample: 8, Expected: 256,
	})
	require.NoError(t, err)
	require.Len(t, out, 256)
	for _, v := range out {
		assert.InDelta(t, 128, v, 3)
	}
}

func TestDecodeJPEGColor(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 60, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	out, err := Decode(CompressionJPEG, buf.Bytes(), Params{
		Width: 8, Height: 8, Bands: 3, BitsPerSample: 8, Expected: 192,
		Photometric: photometricYCbCr,
	})
	require.NoError(t, err)
	require.Len(t, out, 192)
	// Pixel-interleaved RGB, lossy but close to the source color.
	assert.InDelta(t, 200, out[0], 8)
	assert.InDelta(t, 60, out[1], 8)
	assert.InDelta(t, 30, out[2], 8)
}

func TestDecodeJPEGGarbage(t *testing.T) {
	_, err := Decode(CompressionJPEG, []byte{0xFF, 0xD8, 0x00}, Params{Width: 8, Height: 8, Bands: 1})
	assert.ErrorIs(t, err, ErrDecode)
}

// webp1x1 is a complete 1x1 lossy WebP file; there is no encoder in the
// dependency set, so the decode path is tested against stored bytes.
const webp1x1 = "UklGRiQAAABXRUJQVlA4IBgAAAAwAQCdASoBAAEAAwA0JaQAA3AA/vuUAAA="

func TestDecodeWebP(t *testing.T) {
	data, err := base64.StdEncoding.DecodeString(webp1x1)
	require.NoError(t, err)

	out, err := Decode(CompressionWebP, data, Params{
		Width: 1, Height: 1, Bands: 3, BitsPerSample: 8, Expected: 3,
		Photometric: photometricYCbCr,
	})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestDecodeWebPGarbage(t *testing.T) {
	_, err := Decode(CompressionWebP, []byte("RIFF not a webp"), Params{Width: 1, Height: 1, Bands: 3})
	assert.ErrorIs(t, err, ErrDecode)
}
