// Package geotiff reads tiled, compressed GeoTIFF and Cloud-Optimized
// GeoTIFF rasters from range-addressable byte stores without downloading
// whole files. A handle parses the directory chain once at open; reads then
// map pixel windows to tiles, fetch the needed byte ranges concurrently,
// decompress them on a bounded worker pool, and assemble the decoded tiles
// into one contiguous array.
//
// The package stops at raw GeoKeys and six-coefficient transforms;
// interpreting coordinate reference systems belongs to an external geodesy
// layer, and retry or caching policy belongs to the byte-range source.
package geotiff

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/scigolib/geotiff/internal/codec"
	"github.com/scigolib/geotiff/internal/fetch"
	"github.com/scigolib/geotiff/internal/tiff"
)

// ErrNotGeoTIFF marks a structurally valid TIFF that carries no GeoKey
// directory on its primary image.
var ErrNotGeoTIFF = errors.New("not a GeoTIFF")

// Source is the byte-range capability a store must provide. Implementations
// must return exactly the requested spans; short reads are errors. The
// reader never retries and never caches across calls; both compose around
// this interface.
type Source = fetch.Source

// ByteRange identifies a byte span within a resource.
type ByteRange = fetch.Range

// FileSource serves ranges from memory-mapped local files.
type FileSource = fetch.FileSource

// MemSource serves ranges from in-memory buffers, keyed by path.
type MemSource = fetch.MemSource

// NewFileSource returns a Source backed by local files.
func NewFileSource() *FileSource { return fetch.NewFileSource() }

// NewMemSource returns an empty in-memory Source.
func NewMemSource() *MemSource { return fetch.NewMemSource() }

// GeoKey is one raw georeferencing key; its value is a uint16, []uint16,
// []float64, or string. Semantic interpretation is delegated outside this
// package.
type GeoKey = tiff.GeoKey

// GeoTIFF is an open raster handle. All directory state is parsed at Open
// and immutable afterwards, so a handle is safe for any number of
// concurrent reads without synchronization.
type GeoTIFF struct {
	src  fetch.Source
	path string

	header    tiff.Header
	extent    uint64
	overviews []*Overview

	geoKeys  []GeoKey
	nodata   *float64
	colormap *Colormap

	transform    Affine
	transformErr error

	sched fetch.Scheduler
	pool  *codec.Pool
}

// Open parses the header and full directory chain of the named resource
// and returns a read handle. Parse-time failures abort the open entirely;
// no partial handle is ever returned.
func Open(ctx context.Context, path string, src Source, opts ...Option) (*GeoTIFF, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	r, err := tiff.NewReader(ctx, src, path, cfg.prefetch)
	if err != nil {
		return nil, err
	}
	pages, err := r.WalkChain(ctx, cfg.maxIFDs)
	if err != nil {
		return nil, err
	}

	g := &GeoTIFF{
		src:    src,
		path:   path,
		header: r.Header(),
		extent: r.Extent(),
		sched: fetch.Scheduler{
			MergeGap:    cfg.mergeGap,
			Concurrency: cfg.fetchConcurrency,
		},
	}

	primary := pages[0]
	if !primary.Has(tiff.TagGeoKeyDirectory) {
		return nil, fmt.Errorf("%w: primary IFD carries no GeoKey directory", ErrNotGeoTIFF)
	}
	if g.geoKeys, err = primary.GeoKeys(); err != nil {
		return nil, err
	}
	g.nodata, err = parseNodata(primary)
	if err != nil {
		return nil, err
	}
	g.transform, g.transformErr = deriveTransform(primary)
	if g.colormap, err = parseColormap(primary, g.nodata); err != nil {
		return nil, err
	}

	// Fold mask pages into the image page they follow; everything else in
	// the chain is an image page of the pyramid.
	for _, page := range pages {
		if isMaskPage(page) {
			if len(g.overviews) == 0 {
				return nil, fmt.Errorf("%w: IFD %d is a mask page with no parent image", tiff.ErrMalformedTag, page.Index)
			}
			last := g.overviews[len(g.overviews)-1]
			if last.maskIFD != nil {
				return nil, fmt.Errorf("%w: IFD %d attaches a second mask to the same image", tiff.ErrMalformedTag, page.Index)
			}
			if err := attachMask(last, page); err != nil {
				return nil, err
			}
			continue
		}
		ov, err := newOverview(g, page)
		if err != nil {
			return nil, err
		}
		g.overviews = append(g.overviews, ov)
	}

	// Finest to coarsest; equal resolutions keep chain order so the
	// ordering is deterministic.
	sort.SliceStable(g.overviews, func(i, j int) bool {
		a, b := g.overviews[i], g.overviews[j]
		return a.Width()*a.Height() > b.Width()*b.Height()
	})
	for i, ov := range g.overviews {
		ov.level = i
	}

	g.pool = codec.NewPool(cfg.decodeWorkers)
	return g, nil
}

// Close releases the decode worker pool. The handle must not be used
// afterwards; it does not close the source, which the caller owns.
func (g *GeoTIFF) Close() error {
	g.pool.Close()
	return nil
}

// Path returns the resource name the handle was opened with.
func (g *GeoTIFF) Path() string { return g.path }

// BigTIFF reports whether the file uses 64-bit offsets.
func (g *GeoTIFF) BigTIFF() bool { return g.header.Variant == tiff.BigTIFF }

// Overviews returns every resolution level ordered finest to coarsest;
// index 0 is the full-resolution image.
func (g *GeoTIFF) Overviews() []*Overview { return g.overviews }

// Full returns the full-resolution overview.
func (g *GeoTIFF) Full() *Overview { return g.overviews[0] }

// Width returns the full-resolution width in pixels.
func (g *GeoTIFF) Width() int { return g.Full().Width() }

// Height returns the full-resolution height in pixels.
func (g *GeoTIFF) Height() int { return g.Full().Height() }

// Shape returns the full image's (height, width).
func (g *GeoTIFF) Shape() (int, int) { return g.Height(), g.Width() }

// Bands returns the number of raster bands.
func (g *GeoTIFF) Bands() int { return g.Full().Bands() }

// DType returns the element type of the raster.
func (g *GeoTIFF) DType() DType { return g.Full().DType() }

// GeoKeys returns the raw GeoKey entries of the primary image.
func (g *GeoTIFF) GeoKeys() []GeoKey { return g.geoKeys }

// Nodata returns the dataset's scalar nodata value, if declared.
func (g *GeoTIFF) Nodata() (float64, bool) {
	if g.nodata == nil {
		return 0, false
	}
	return *g.nodata, true
}

// Colormap returns the palette of the primary image, if it has one.
func (g *GeoTIFF) Colormap() (*Colormap, bool) {
	return g.colormap, g.colormap != nil
}

// Transform returns the transform mapping full-resolution pixel
// coordinates to the dataset's reference system.
func (g *GeoTIFF) Transform() (Affine, error) {
	return g.transform, g.transformErr
}

// Bounds returns the dataset extent as (left, bottom, right, top) in the
// units of its reference system.
func (g *GeoTIFF) Bounds() (left, bottom, right, top float64, err error) {
	t, err := g.Transform()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	left, top = t.Apply(0, 0)
	right, bottom = t.Apply(float64(g.Width()), float64(g.Height()))
	return left, bottom, right, top, nil
}

// Res returns the (x, y) pixel size in reference-system units.
func (g *GeoTIFF) Res() (float64, float64, error) {
	t, err := g.Transform()
	if err != nil {
		return 0, 0, err
	}
	x, y := t.res()
	return x, y, nil
}

// Index returns the (row, col) of the pixel containing the reference-
// system coordinate (x, y).
func (g *GeoTIFF) Index(x, y float64) (int, int, error) {
	t, err := g.Transform()
	if err != nil {
		return 0, 0, err
	}
	return t.index(x, y)
}

// XY returns the reference-system coordinates of the pixel at (row, col),
// anchored at the given offset within the pixel.
func (g *GeoTIFF) XY(row, col int, offset PixelOffset) (float64, float64, error) {
	t, err := g.Transform()
	if err != nil {
		return 0, 0, err
	}
	return t.xy(row, col, offset)
}

// Read reads a window from the full-resolution image. A nil window reads
// the whole image; nil bands read every band.
func (g *GeoTIFF) Read(ctx context.Context, win *Window, bands ...int) (*Array, error) {
	return g.Full().Read(ctx, win, bands...)
}

// isMaskPage reports whether the IFD is a transparency-mask page to fold
// into its parent image rather than expose as an overview.
func isMaskPage(d *tiff.IFD) bool {
	subfile, err := d.Uint(tiff.TagNewSubfileType, 0)
	if err != nil {
		return false
	}
	photometric, err := d.Uint(tiff.TagPhotometricInterpretation, 0)
	if err != nil {
		return false
	}
	return subfile&tiff.SubfileMask != 0 && photometric == photometricMask
}

func parseNodata(d *tiff.IFD) (*float64, error) {
	t, ok := d.Tag(tiff.TagGDALNoData)
	if !ok {
		return nil, nil
	}
	s, err := t.ASCII()
	if err != nil {
		return nil, err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: GDAL nodata %q: %v", tiff.ErrMalformedTag, s, err)
	}
	return &v, nil
}

// deriveTransform builds the affine transform from the georeferencing
// tags: tiepoint plus pixel scale when present, otherwise the 4x4
// ModelTransformation matrix in row-major order.
func deriveTransform(d *tiff.IFD) (Affine, error) {
	tieTag, hasTie := d.Tag(tiff.TagModelTiepoint)
	scaleTag, hasScale := d.Tag(tiff.TagModelPixelScale)
	if hasTie && hasScale {
		tie, err := tieTag.Float64Slice()
		if err != nil {
			return Affine{}, err
		}
		scale, err := scaleTag.Float64Slice()
		if err != nil {
			return Affine{}, err
		}
		if len(tie) < 6 || len(scale) < 2 {
			return Affine{}, fmt.Errorf("%w: tiepoint has %d values, pixel scale %d", tiff.ErrMalformedTag, len(tie), len(scale))
		}
		return Affine{
			A: scale[0], C: tie[3],
			E: -scale[1], F: tie[4],
		}, nil
	}
	if mt, ok := d.Tag(tiff.TagModelTransformation); ok {
		m, err := mt.Float64Slice()
		if err != nil {
			return Affine{}, err
		}
		if len(m) < 16 {
			return Affine{}, fmt.Errorf("%w: model transformation has %d values, need 16", tiff.ErrMalformedTag, len(m))
		}
		return Affine{
			A: m[0], B: m[1], C: m[3],
			D: m[4], E: m[5], F: m[7],
		}, nil
	}
	return Affine{}, errors.New("image carries no affine transformation")
}
