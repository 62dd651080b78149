// Package tifftest builds synthetic TIFF and BigTIFF files in memory for
// tests. Pages are written little-endian with their tile payloads first
// and the directory chain after, the way most encoders lay files out.
package tifftest

import (
	"encoding/binary"
	"math"
	"sort"
)

// Page describes one image page of a synthetic file. Zero values fall back
// to the format defaults the reader must apply.
type Page struct {
	Width  int
	Height int
	Bands  int

	Bits         int // 0 → 8
	SampleFormat uint16

	// TileWidth/TileHeight select a tiled layout; RowsPerStrip selects a
	// striped one. Exactly one layout must be set.
	TileWidth    int
	TileHeight   int
	RowsPerStrip int

	Compression  uint16 // 0 → 1 (uncompressed)
	Predictor    uint16
	Photometric  uint16
	PlanarConfig uint16 // 0 → 1 (chunky)
	SubfileType  uint32

	// Tiles holds the stored (compressed) payload of each tile in grid
	// order, planes appended for planar pages. A nil payload becomes a
	// sparse tile with offset and byte count zero.
	Tiles [][]byte

	NoData     string
	GeoKeys    []uint16  // raw key directory shorts; nil omits the tag
	GeoDoubles []float64 // GeoDoubleParams payload
	GeoASCII   string    // GeoAsciiParams payload
	PixelScale []float64 // 3 values
	Tiepoint   []float64 // 6 values
	ColorMap   []uint16
	JPEGTables []byte
}

// DefaultGeoKeys is a minimal valid GeoKey directory declaring a projected
// model type.
func DefaultGeoKeys() []uint16 {
	return []uint16{1, 1, 0, 1, 1024, 0, 1, 1}
}

type entry struct {
	id    uint16
	typ   uint16
	count uint64
	value []byte
}

const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeUndefined = 7
	typeDouble    = 12
	typeLong8     = 16
)

type builder struct {
	buf   []byte
	big   bool
	order binary.ByteOrder
}

// Build assembles a little-endian file from the given pages, chained in
// order.
func Build(big bool, pages ...Page) []byte {
	b := &builder{big: big, order: binary.LittleEndian}

	if big {
		b.buf = append(b.buf, 'I', 'I', 43, 0, 8, 0, 0, 0)
		b.buf = append(b.buf, make([]byte, 8)...) // first IFD offset, patched
	} else {
		b.buf = append(b.buf, 'I', 'I', 42, 0)
		b.buf = append(b.buf, make([]byte, 4)...)
	}

	nextPatch := uint64(4)
	if big {
		nextPatch = 8
	}
	for _, page := range pages {
		ifdOff := b.writePage(page)
		b.patchOffset(nextPatch, ifdOff)
		// The next pointer sits at the end of the directory just written.
		nextPatch = uint64(len(b.buf)) - b.offsetSize()
	}
	return b.buf
}

func (b *builder) offsetSize() uint64 {
	if b.big {
		return 8
	}
	return 4
}

func (b *builder) patchOffset(at, value uint64) {
	if b.big {
		b.order.PutUint64(b.buf[at:], value)
	} else {
		b.order.PutUint32(b.buf[at:], uint32(value))
	}
}

func (b *builder) append(data []byte) uint64 {
	// Keep values word-aligned like real encoders do.
	for len(b.buf)%2 != 0 {
		b.buf = append(b.buf, 0)
	}
	off := uint64(len(b.buf))
	b.buf = append(b.buf, data...)
	return off
}

func (b *builder) writePage(p Page) uint64 {
	if p.Bands == 0 {
		p.Bands = 1
	}
	if p.Bits == 0 {
		p.Bits = 8
	}
	if p.Compression == 0 {
		p.Compression = 1
	}

	// Tile payloads first, recording their locations.
	offsets := make([]uint64, len(p.Tiles))
	counts := make([]uint64, len(p.Tiles))
	for i, tile := range p.Tiles {
		if tile == nil {
			continue
		}
		offsets[i] = b.append(tile)
		counts[i] = uint64(len(tile))
	}

	var entries []entry
	add := func(e entry) { entries = append(entries, e) }

	if p.SubfileType != 0 {
		add(entry{254, typeLong, 1, b.longs(uint64(p.SubfileType))})
	}
	add(entry{256, typeLong, 1, b.longs(uint64(p.Width))})
	add(entry{257, typeLong, 1, b.longs(uint64(p.Height))})
	add(entry{258, typeShort, uint64(p.Bands), b.shortsN(uint16(p.Bits), p.Bands)})
	add(entry{259, typeShort, 1, b.shorts(p.Compression)})
	add(entry{262, typeShort, 1, b.shorts(p.Photometric)})
	add(entry{277, typeShort, 1, b.shorts(uint16(p.Bands))})
	if p.PlanarConfig != 0 {
		add(entry{284, typeShort, 1, b.shorts(p.PlanarConfig)})
	}
	if p.Predictor != 0 {
		add(entry{317, typeShort, 1, b.shorts(p.Predictor)})
	}
	if p.ColorMap != nil {
		add(entry{320, typeShort, uint64(len(p.ColorMap)), b.shorts(p.ColorMap...)})
	}

	offType := uint16(typeLong)
	if b.big {
		offType = typeLong8
	}
	if p.TileWidth != 0 {
		add(entry{322, typeLong, 1, b.longs(uint64(p.TileWidth))})
		add(entry{323, typeLong, 1, b.longs(uint64(p.TileHeight))})
		add(entry{324, offType, uint64(len(offsets)), b.offs(offsets)})
		add(entry{325, typeLong, uint64(len(counts)), b.longs(counts...)})
	} else {
		add(entry{273, offType, uint64(len(offsets)), b.offs(offsets)})
		add(entry{278, typeLong, 1, b.longs(uint64(p.RowsPerStrip))})
		add(entry{279, typeLong, uint64(len(counts)), b.longs(counts...)})
	}
	if p.SampleFormat != 0 {
		add(entry{339, typeShort, uint64(p.Bands), b.shortsN(p.SampleFormat, p.Bands)})
	}
	if p.JPEGTables != nil {
		add(entry{347, typeUndefined, uint64(len(p.JPEGTables)), p.JPEGTables})
	}
	if p.PixelScale != nil {
		add(entry{33550, typeDouble, uint64(len(p.PixelScale)), b.doubles(p.PixelScale)})
	}
	if p.Tiepoint != nil {
		add(entry{33922, typeDouble, uint64(len(p.Tiepoint)), b.doubles(p.Tiepoint)})
	}
	if p.GeoKeys != nil {
		add(entry{34735, typeShort, uint64(len(p.GeoKeys)), b.shorts(p.GeoKeys...)})
	}
	if p.GeoDoubles != nil {
		add(entry{34736, typeDouble, uint64(len(p.GeoDoubles)), b.doubles(p.GeoDoubles)})
	}
	if p.GeoASCII != "" {
		ascii := append([]byte(p.GeoASCII), 0)
		add(entry{34737, typeASCII, uint64(len(ascii)), ascii})
	}
	if p.NoData != "" {
		ascii := append([]byte(p.NoData), 0)
		add(entry{42113, typeASCII, uint64(len(ascii)), ascii})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	// Out-of-line values precede the directory.
	inline := b.offsetSize()
	valueOffsets := make(map[int]uint64)
	for i, e := range entries {
		if uint64(len(e.value)) > inline {
			valueOffsets[i] = b.append(e.value)
		}
	}

	entrySize := 12
	countSize := 2
	if b.big {
		entrySize = 20
		countSize = 8
	}
	for len(b.buf)%2 != 0 {
		b.buf = append(b.buf, 0)
	}
	ifdOff := uint64(len(b.buf))

	count := make([]byte, countSize)
	if b.big {
		b.order.PutUint64(count, uint64(len(entries)))
	} else {
		b.order.PutUint16(count, uint16(len(entries)))
	}
	b.buf = append(b.buf, count...)

	for i, e := range entries {
		field := make([]byte, entrySize)
		b.order.PutUint16(field[0:], e.id)
		b.order.PutUint16(field[2:], e.typ)
		if b.big {
			b.order.PutUint64(field[4:], e.count)
			if off, ok := valueOffsets[i]; ok {
				b.order.PutUint64(field[12:], off)
			} else {
				copy(field[12:], e.value)
			}
		} else {
			b.order.PutUint32(field[4:], uint32(e.count))
			if off, ok := valueOffsets[i]; ok {
				b.order.PutUint32(field[8:], uint32(off))
			} else {
				copy(field[8:], e.value)
			}
		}
		b.buf = append(b.buf, field...)
	}

	// Next-IFD pointer, zero until the following page patches it.
	b.buf = append(b.buf, make([]byte, b.offsetSize())...)
	return ifdOff
}

func (b *builder) shorts(vs ...uint16) []byte {
	out := make([]byte, 2*len(vs))
	for i, v := range vs {
		b.order.PutUint16(out[i*2:], v)
	}
	return out
}

func (b *builder) shortsN(v uint16, n int) []byte {
	vs := make([]uint16, n)
	for i := range vs {
		vs[i] = v
	}
	return b.shorts(vs...)
}

func (b *builder) longs(vs ...uint64) []byte {
	out := make([]byte, 4*len(vs))
	for i, v := range vs {
		b.order.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func (b *builder) offs(vs []uint64) []byte {
	if !b.big {
		return b.longs(vs...)
	}
	out := make([]byte, 8*len(vs))
	for i, v := range vs {
		b.order.PutUint64(out[i*8:], v)
	}
	return out
}

func (b *builder) doubles(vs []float64) []byte {
	out := make([]byte, 8*len(vs))
	for i, v := range vs {
		b.order.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}
