package geotiff

import (
	"fmt"

	"github.com/scigolib/geotiff/internal/codec"
	"github.com/scigolib/geotiff/internal/raster"
	"github.com/scigolib/geotiff/internal/tiff"
)

// Compression identifies a TIFF compression scheme.
type Compression = codec.Compression

// Compression codes exposed for callers inspecting metadata.
const (
	CompressionNone     = codec.CompressionNone
	CompressionLZW      = codec.CompressionLZW
	CompressionJPEG     = codec.CompressionJPEG
	CompressionDeflate  = codec.CompressionDeflate
	CompressionPackBits = codec.CompressionPackBits
	CompressionJPEG2000 = codec.CompressionJPEG2000
	CompressionLERC     = codec.CompressionLERC
	CompressionZstd     = codec.CompressionZstd
	CompressionWebP     = codec.CompressionWebP
)

// Photometric interpretation codes.
const (
	photometricPalette = 3
	photometricMask    = 4
)

// Overview is one resolution level of the pyramid: a resolved IFD
// reinterpreted as an image. Index 0 of the handle's overview list is the
// full-resolution image; levels are ordered finest to coarsest. Immutable
// after Open.
type Overview struct {
	g     *GeoTIFF
	ifd   *tiff.IFD
	level int

	geom        raster.Geometry
	compression codec.Compression
	predictor   uint16
	photometric uint16
	jpegTables  []byte

	maskIFD         *tiff.IFD
	maskGeom        raster.MaskGeometry
	maskCompression codec.Compression
	maskPredictor   uint16

	geoKeys []GeoKey
	nodata  *float64
	reduced bool
}

// newOverview reinterprets an image page as an overview level, resolving
// its storage geometry and inheriting primary-IFD metadata unless the page
// carries its own override.
func newOverview(g *GeoTIFF, d *tiff.IFD) (*Overview, error) {
	geom, _, err := imageGeometry(d)
	if err != nil {
		return nil, err
	}

	o := &Overview{g: g, ifd: d, geom: geom}

	compression, err := d.Uint(tiff.TagCompression, uint64(codec.CompressionNone))
	if err != nil {
		return nil, err
	}
	o.compression = codec.Compression(compression)

	predictor, err := d.Uint(tiff.TagPredictor, 1)
	if err != nil {
		return nil, err
	}
	o.predictor = uint16(predictor)

	photometric, err := d.Uint(tiff.TagPhotometricInterpretation, 0)
	if err != nil {
		return nil, err
	}
	o.photometric = uint16(photometric)

	subfile, err := d.Uint(tiff.TagNewSubfileType, 0)
	if err != nil {
		return nil, err
	}
	o.reduced = subfile&tiff.SubfileReducedImage != 0

	if t, ok := d.Tag(tiff.TagJPEGTables); ok {
		o.jpegTables = t.Bytes()
	}

	// Geo metadata inherits from the primary IFD; a page carrying its own
	// keys or nodata overrides the inherited values.
	o.geoKeys = g.geoKeys
	if d.Index > 0 && d.Has(tiff.TagGeoKeyDirectory) {
		if o.geoKeys, err = d.GeoKeys(); err != nil {
			return nil, err
		}
	}
	o.nodata = g.nodata
	if d.Index > 0 && d.Has(tiff.TagGDALNoData) {
		if o.nodata, err = parseNodata(d); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// imageGeometry resolves the tile or strip storage layout of a page.
// Strips become a one-column tile grid spanning the image width.
func imageGeometry(d *tiff.IFD) (raster.Geometry, int, error) {
	width, err := requireUint(d, tiff.TagImageWidth)
	if err != nil {
		return raster.Geometry{}, 0, err
	}
	height, err := requireUint(d, tiff.TagImageLength)
	if err != nil {
		return raster.Geometry{}, 0, err
	}
	bands, err := d.Uint(tiff.TagSamplesPerPixel, 1)
	if err != nil {
		return raster.Geometry{}, 0, err
	}

	bits := uint64(1)
	if t, ok := d.Tag(tiff.TagBitsPerSample); ok {
		vs, err := t.UintSlice()
		if err != nil {
			return raster.Geometry{}, 0, err
		}
		for _, v := range vs[1:] {
			if v != vs[0] {
				return raster.Geometry{}, 0, fmt.Errorf("%w: mixed bits per sample %v", tiff.ErrUnsupportedVariant, vs)
			}
		}
		if len(vs) > 0 {
			bits = vs[0]
		}
	}
	format, err := d.Uint(tiff.TagSampleFormat, raster.SampleFormatUint)
	if err != nil {
		return raster.Geometry{}, 0, err
	}

	g := raster.Geometry{
		Width:  int(width),
		Height: int(height),
		Bands:  int(bands),
	}
	if g.DType, err = raster.DTypeFor(int(bits), format); err != nil {
		return raster.Geometry{}, 0, fmt.Errorf("%w: %v", tiff.ErrUnsupportedVariant, err)
	}

	planar, err := d.Uint(tiff.TagPlanarConfiguration, 1)
	if err != nil {
		return raster.Geometry{}, 0, err
	}
	g.Planar = planar == 2

	if d.Has(tiff.TagTileWidth) {
		tw, err := requireUint(d, tiff.TagTileWidth)
		if err != nil {
			return raster.Geometry{}, 0, err
		}
		th, err := requireUint(d, tiff.TagTileLength)
		if err != nil {
			return raster.Geometry{}, 0, err
		}
		g.TileWidth, g.TileHeight = int(tw), int(th)
		if g.Offsets, err = requireUintSlice(d, tiff.TagTileOffsets); err != nil {
			return raster.Geometry{}, 0, err
		}
		if g.ByteCounts, err = requireUintSlice(d, tiff.TagTileByteCounts); err != nil {
			return raster.Geometry{}, 0, err
		}
	} else {
		rows, err := d.Uint(tiff.TagRowsPerStrip, height)
		if err != nil {
			return raster.Geometry{}, 0, err
		}
		if rows > height {
			rows = height
		}
		g.TileWidth, g.TileHeight = int(width), int(rows)
		if g.Offsets, err = requireUintSlice(d, tiff.TagStripOffsets); err != nil {
			return raster.Geometry{}, 0, err
		}
		if g.ByteCounts, err = requireUintSlice(d, tiff.TagStripByteCounts); err != nil {
			return raster.Geometry{}, 0, err
		}
	}
	if err := g.Validate(); err != nil {
		return raster.Geometry{}, 0, fmt.Errorf("%w: IFD %d: %v", tiff.ErrMalformedTag, d.Index, err)
	}
	return g, int(bits), nil
}

// attachMask folds a transparency-mask page into its parent overview.
func attachMask(o *Overview, d *tiff.IFD) error {
	geom, bits, err := imageGeometry(d)
	if err != nil {
		// Mask pages are commonly 1-bit, which imageGeometry rejects as a
		// pixel type; rebuild with an 8-bit stand-in and keep the bit
		// depth separately.
		geom, bits, err = maskGeometryFallback(d)
		if err != nil {
			return err
		}
	}
	if geom.Width != o.geom.Width || geom.Height != o.geom.Height {
		return fmt.Errorf("%w: mask IFD %d is %dx%d, parent image is %dx%d",
			tiff.ErrMalformedTag, d.Index, geom.Width, geom.Height, o.geom.Width, o.geom.Height)
	}
	if bits != 1 && bits != 8 {
		return fmt.Errorf("%w: mask IFD %d has %d bits per sample", tiff.ErrMalformedTag, d.Index, bits)
	}

	compression, err := d.Uint(tiff.TagCompression, uint64(codec.CompressionNone))
	if err != nil {
		return err
	}
	predictor, err := d.Uint(tiff.TagPredictor, 1)
	if err != nil {
		return err
	}

	o.maskIFD = d
	o.maskGeom = raster.MaskGeometry{Geometry: geom, Bits: bits}
	o.maskCompression = codec.Compression(compression)
	o.maskPredictor = uint16(predictor)
	return nil
}

// maskGeometryFallback builds the geometry of a bilevel mask page, whose
// 1-bit samples have no dtype of their own.
func maskGeometryFallback(d *tiff.IFD) (raster.Geometry, int, error) {
	width, err := requireUint(d, tiff.TagImageWidth)
	if err != nil {
		return raster.Geometry{}, 0, err
	}
	height, err := requireUint(d, tiff.TagImageLength)
	if err != nil {
		return raster.Geometry{}, 0, err
	}
	bits, err := d.Uint(tiff.TagBitsPerSample, 1)
	if err != nil {
		return raster.Geometry{}, 0, err
	}

	g := raster.Geometry{
		Width:  int(width),
		Height: int(height),
		Bands:  1,
		DType:  raster.Uint8,
	}
	if d.Has(tiff.TagTileWidth) {
		tw, err := requireUint(d, tiff.TagTileWidth)
		if err != nil {
			return raster.Geometry{}, 0, err
		}
		th, err := requireUint(d, tiff.TagTileLength)
		if err != nil {
			return raster.Geometry{}, 0, err
		}
		g.TileWidth, g.TileHeight = int(tw), int(th)
		if g.Offsets, err = requireUintSlice(d, tiff.TagTileOffsets); err != nil {
			return raster.Geometry{}, 0, err
		}
		if g.ByteCounts, err = requireUintSlice(d, tiff.TagTileByteCounts); err != nil {
			return raster.Geometry{}, 0, err
		}
	} else {
		rows, err := d.Uint(tiff.TagRowsPerStrip, height)
		if err != nil {
			return raster.Geometry{}, 0, err
		}
		if rows > height {
			rows = height
		}
		g.TileWidth, g.TileHeight = int(width), int(rows)
		if g.Offsets, err = requireUintSlice(d, tiff.TagStripOffsets); err != nil {
			return raster.Geometry{}, 0, err
		}
		if g.ByteCounts, err = requireUintSlice(d, tiff.TagStripByteCounts); err != nil {
			return raster.Geometry{}, 0, err
		}
	}
	if err := g.Validate(); err != nil {
		return raster.Geometry{}, 0, fmt.Errorf("%w: mask IFD %d: %v", tiff.ErrMalformedTag, d.Index, err)
	}
	return g, int(bits), nil
}

func requireUint(d *tiff.IFD, id uint16) (uint64, error) {
	t, ok := d.Tag(id)
	if !ok {
		return 0, fmt.Errorf("%w: IFD %d is missing required tag %d", tiff.ErrMalformedTag, d.Index, id)
	}
	return t.Uint()
}

func requireUintSlice(d *tiff.IFD, id uint16) ([]uint64, error) {
	t, ok := d.Tag(id)
	if !ok {
		return nil, fmt.Errorf("%w: IFD %d is missing required tag %d", tiff.ErrMalformedTag, d.Index, id)
	}
	return t.UintSlice()
}

// Level returns the overview's position in the finest-to-coarsest order;
// level 0 is the full-resolution image.
func (o *Overview) Level() int { return o.level }

// Width returns the overview width in pixels.
func (o *Overview) Width() int { return o.geom.Width }

// Height returns the overview height in pixels.
func (o *Overview) Height() int { return o.geom.Height }

// Shape returns the overview's (height, width).
func (o *Overview) Shape() (int, int) { return o.geom.Height, o.geom.Width }

// Bands returns the number of bands.
func (o *Overview) Bands() int { return o.geom.Bands }

// DType returns the element type of the overview's samples.
func (o *Overview) DType() DType { return o.geom.DType }

// IsTiled reports whether the overview stores tiles rather than strips.
func (o *Overview) IsTiled() bool { return o.ifd.Has(tiff.TagTileWidth) }

// IsReduced reports whether the page is flagged as a reduced-resolution
// image.
func (o *Overview) IsReduced() bool { return o.reduced }

// TileWidth returns the tile width, or the image width for strips.
func (o *Overview) TileWidth() int { return o.geom.TileWidth }

// TileHeight returns the tile height, or the strip row count.
func (o *Overview) TileHeight() int { return o.geom.TileHeight }

// Compression returns the overview's compression scheme.
func (o *Overview) Compression() Compression { return o.compression }

// HasMask reports whether a transparency-mask page is attached.
func (o *Overview) HasMask() bool { return o.maskIFD != nil }

// GeoKeys returns the overview's raw GeoKey entries: its own when the page
// carries a directory, otherwise the primary image's.
func (o *Overview) GeoKeys() []GeoKey { return o.geoKeys }

// Nodata returns the overview's scalar nodata value, if declared.
func (o *Overview) Nodata() (float64, bool) {
	if o.nodata == nil {
		return 0, false
	}
	return *o.nodata, true
}

// Transform returns the transform mapping this overview's pixel
// coordinates to the dataset's reference system: the full-resolution
// transform scaled by the resolution ratio.
func (o *Overview) Transform() (Affine, error) {
	full, err := o.g.Transform()
	if err != nil {
		return Affine{}, err
	}
	if o.level == 0 {
		return full, nil
	}
	sx := float64(o.g.Width()) / float64(o.geom.Width)
	sy := float64(o.g.Height()) / float64(o.geom.Height)
	return full.Mul(Scaling(sx, sy)), nil
}

// Res returns the overview's (x, y) pixel size in reference-system units.
func (o *Overview) Res() (float64, float64, error) {
	t, err := o.Transform()
	if err != nil {
		return 0, 0, err
	}
	x, y := t.res()
	return x, y, nil
}

// Index returns the (row, col) of the overview pixel containing the
// reference-system coordinate (x, y).
func (o *Overview) Index(x, y float64) (int, int, error) {
	t, err := o.Transform()
	if err != nil {
		return 0, 0, err
	}
	return t.index(x, y)
}

// XY returns the reference-system coordinates of the overview pixel at
// (row, col).
func (o *Overview) XY(row, col int, offset PixelOffset) (float64, float64, error) {
	t, err := o.Transform()
	if err != nil {
		return 0, 0, err
	}
	return t.xy(row, col, offset)
}
