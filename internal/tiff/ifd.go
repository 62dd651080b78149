package tiff

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/scigolib/geotiff/internal/fetch"
)

// Parsing limits acting as circuit breakers against crafted files. A
// directory that exceeds them is rejected rather than allocated for.
const (
	// MaxTagsPerIFD bounds the entry count of a single directory.
	MaxTagsPerIFD = 4096
	// MaxValueBytes bounds the total out-of-line value bytes of one IFD.
	MaxValueBytes = 64 * 1024 * 1024
	// DefaultMaxIFDs bounds the directory chain length.
	DefaultMaxIFDs = 256
)

// IFD is one parsed image file directory: a tag mapping plus the offset of
// the next directory in the chain (0 = terminal). When a directory declares
// the same tag twice, the last entry wins. Immutable once parsed.
type IFD struct {
	// Index is the position of the directory in the file's chain.
	Index int
	// Offset is the file offset the directory was parsed from.
	Offset uint64
	// NextOffset points at the next directory, or 0 at the end of the chain.
	NextOffset uint64

	tags map[uint16]Tag
}

// Tag returns the entry for the given identifier.
func (d *IFD) Tag(id uint16) (Tag, bool) {
	t, ok := d.tags[id]
	return t, ok
}

// Has reports whether the directory carries the given tag.
func (d *IFD) Has(id uint16) bool {
	_, ok := d.tags[id]
	return ok
}

// TagIDs returns all tag identifiers in ascending order.
func (d *IFD) TagIDs() []uint16 {
	ids := make([]uint16, 0, len(d.tags))
	for id := range d.tags {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Uint returns the first value of an unsigned integer tag, or def when the
// directory does not carry the tag.
func (d *IFD) Uint(id uint16, def uint64) (uint64, error) {
	t, ok := d.tags[id]
	if !ok {
		return def, nil
	}
	return t.Uint()
}

// Reader parses directories from a byte-range source. The head of the file
// is prefetched once so that header and first-directory parsing usually
// costs a single round trip; reads beyond the prefetched head fall through
// to the source. A Reader is safe for concurrent use after NewReader
// returns, since all of its state is immutable by then.
type Reader struct {
	src    fetch.Source
	path   string
	header Header

	// extent is the total resource size when the source can report it,
	// otherwise 0. A non-zero extent rejects out-of-range offsets before
	// they are fetched.
	extent uint64
	head   []byte
}

// NewReader prefetches the head of the resource and parses its header.
func NewReader(ctx context.Context, src fetch.Source, path string, prefetch uint64) (*Reader, error) {
	if prefetch < HeaderSize {
		prefetch = HeaderSize
	}

	var extent uint64
	if sizer, ok := src.(fetch.Sizer); ok {
		size, err := sizer.Size(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("size of %s: %w", path, err)
		}
		extent = size
		if prefetch > extent {
			prefetch = extent
		}
	}

	head, err := src.GetRange(ctx, path, 0, prefetch)
	if err != nil {
		if extent != 0 {
			return nil, fmt.Errorf("prefetch %s: %w", path, err)
		}
		// Sources of unknown extent may refuse a prefetch larger than the
		// resource; fall back to the header alone.
		head, err = src.GetRange(ctx, path, 0, HeaderSize)
		if err != nil {
			return nil, fmt.Errorf("prefetch %s: %w", path, err)
		}
	}

	header, err := ParseHeader(head)
	if err != nil {
		return nil, err
	}
	return &Reader{src: src, path: path, header: header, extent: extent, head: head}, nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header { return r.header }

// Extent returns the resource size, or 0 when the source cannot report it.
func (r *Reader) Extent() uint64 { return r.extent }

func (r *Reader) checkBounds(offset, length uint64) error {
	if offset > math.MaxUint64-length {
		return fmt.Errorf("%w: offset %d overflows", ErrOutOfBoundsOffset, offset)
	}
	if r.extent != 0 && offset+length > r.extent {
		return fmt.Errorf("%w: [%d,+%d) past file extent %d", ErrOutOfBoundsOffset, offset, length, r.extent)
	}
	return nil
}

// read returns length bytes at offset, served from the prefetched head
// when fully contained there.
func (r *Reader) read(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := r.checkBounds(offset, length); err != nil {
		return nil, err
	}
	if offset+length <= uint64(len(r.head)) {
		return r.head[offset : offset+length], nil
	}
	return r.src.GetRange(ctx, r.path, offset, length)
}

// readMulti resolves several spans, batching the ones outside the head
// into a single multi-range request.
func (r *Reader) readMulti(ctx context.Context, ranges []fetch.Range) ([][]byte, error) {
	out := make([][]byte, len(ranges))
	var missing []fetch.Range
	var missingIdx []int
	for i, rg := range ranges {
		if err := r.checkBounds(rg.Offset, rg.Length); err != nil {
			return nil, err
		}
		if rg.End() <= uint64(len(r.head)) {
			out[i] = r.head[rg.Offset:rg.End()]
			continue
		}
		missing = append(missing, rg)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) > 0 {
		bufs, err := r.src.GetRanges(ctx, r.path, missing)
		if err != nil {
			return nil, err
		}
		if len(bufs) != len(missing) {
			return nil, fmt.Errorf("source returned %d buffers for %d ranges", len(bufs), len(missing))
		}
		for j, buf := range bufs {
			if uint64(len(buf)) != missing[j].Length {
				return nil, fmt.Errorf("range [%d,+%d): source returned %d bytes",
					missing[j].Offset, missing[j].Length, len(buf))
			}
			out[missingIdx[j]] = buf
		}
	}
	return out, nil
}

// ParseIFD parses the directory at the given offset: one read for the
// entry block, then one batched multi-range read for every value that does
// not fit inline.
func (r *Reader) ParseIFD(ctx context.Context, index int, offset uint64) (*IFD, error) {
	h := r.header
	countBuf, err := r.read(ctx, offset, h.countSize())
	if err != nil {
		return nil, fmt.Errorf("IFD %d at %d: %w", index, offset, err)
	}
	var count uint64
	if h.Variant == BigTIFF {
		count = h.Order.Uint64(countBuf)
	} else {
		count = uint64(h.Order.Uint16(countBuf))
	}
	if count == 0 || count > MaxTagsPerIFD {
		return nil, fmt.Errorf("%w: IFD %d declares %d entries", ErrMalformedTag, index, count)
	}

	blockLen := count*h.entrySize() + h.offsetSize()
	block, err := r.read(ctx, offset+h.countSize(), blockLen)
	if err != nil {
		return nil, fmt.Errorf("IFD %d entry block: %w", index, err)
	}

	d := &IFD{
		Index:  index,
		Offset: offset,
		tags:   make(map[uint16]Tag, count),
	}

	// Entries whose value lives out of line, resolved in one batch below.
	var pendingIDs []uint16
	var pendingRanges []fetch.Range
	var pendingBytes uint64

	for i := uint64(0); i < count; i++ {
		e := block[i*h.entrySize():]
		tag := Tag{
			ID:    h.Order.Uint16(e[0:2]),
			Type:  FieldType(h.Order.Uint16(e[2:4])),
			order: h.Order,
		}
		size := tag.Type.Size()
		if size == 0 {
			return nil, fmt.Errorf("%w: tag %d declares unknown type %d", ErrMalformedTag, tag.ID, uint16(tag.Type))
		}

		var valueField []byte
		if h.Variant == BigTIFF {
			tag.Count = h.Order.Uint64(e[4:12])
			valueField = e[12:20]
		} else {
			tag.Count = uint64(h.Order.Uint32(e[4:8]))
			valueField = e[8:12]
		}
		if tag.Count > math.MaxUint64/size {
			return nil, fmt.Errorf("%w: tag %d count %d overflows", ErrMalformedTag, tag.ID, tag.Count)
		}

		valueLen := tag.Count * size
		if valueLen <= h.offsetSize() {
			tag.data = valueField[:valueLen]
			d.tags[tag.ID] = tag
			continue
		}

		var valueOff uint64
		if h.Variant == BigTIFF {
			valueOff = h.Order.Uint64(valueField)
		} else {
			valueOff = uint64(h.Order.Uint32(valueField))
		}
		if err := r.checkBounds(valueOff, valueLen); err != nil {
			return nil, fmt.Errorf("tag %d value: %w", tag.ID, err)
		}
		pendingBytes += valueLen
		if pendingBytes > MaxValueBytes {
			return nil, fmt.Errorf("%w: IFD %d out-of-line values exceed %d bytes", ErrMalformedTag, index, MaxValueBytes)
		}

		d.tags[tag.ID] = tag
		pendingIDs = append(pendingIDs, tag.ID)
		pendingRanges = append(pendingRanges, fetch.Range{Offset: valueOff, Length: valueLen})
	}

	if len(pendingRanges) > 0 {
		bufs, err := r.readMulti(ctx, pendingRanges)
		if err != nil {
			return nil, fmt.Errorf("IFD %d tag values: %w", index, err)
		}
		for j, id := range pendingIDs {
			tag := d.tags[id]
			tag.data = bufs[j]
			d.tags[id] = tag
		}
	}

	next := block[count*h.entrySize():]
	if h.Variant == BigTIFF {
		d.NextOffset = h.Order.Uint64(next)
	} else {
		d.NextOffset = uint64(h.Order.Uint32(next))
	}
	return d, nil
}

// WalkChain follows the directory chain from the header's first-IFD offset.
// Each directory is parsed only after the previous one resolves, since the
// chain length is unknown until walked. A revisited offset or a chain
// longer than maxIFDs is malformed input.
func (r *Reader) WalkChain(ctx context.Context, maxIFDs int) ([]*IFD, error) {
	if maxIFDs <= 0 {
		maxIFDs = DefaultMaxIFDs
	}
	var ifds []*IFD
	seen := make(map[uint64]bool)
	for offset := r.header.FirstIFD; offset != 0; {
		if seen[offset] {
			return nil, fmt.Errorf("%w: IFD chain cycles back to offset %d", ErrMalformedTag, offset)
		}
		if len(ifds) >= maxIFDs {
			return nil, fmt.Errorf("%w: IFD chain longer than %d", ErrMalformedTag, maxIFDs)
		}
		seen[offset] = true
		d, err := r.ParseIFD(ctx, len(ifds), offset)
		if err != nil {
			return nil, err
		}
		ifds = append(ifds, d)
		offset = d.NextOffset
	}
	if len(ifds) == 0 {
		return nil, fmt.Errorf("%w: file contains no IFDs", ErrMalformedHeader)
	}
	return ifds, nil
}
