// Package fetch provides the byte-range source contract and the range
// scheduling used to read tile and directory data from remote or local
// stores. The core never retries a failed range; retry and caching policy
// belong to the source implementation or to middleware composed around it.
package fetch

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/exp/mmap"
)

// Range identifies a byte span within a resource.
type Range struct {
	Offset uint64
	Length uint64
}

// End returns the exclusive end offset of the range.
func (r Range) End() uint64 { return r.Offset + r.Length }

// Source is the capability required of any byte store. Both methods must
// return exactly the requested spans; a short read is an error, never a
// truncated result.
type Source interface {
	// GetRange reads length bytes starting at offset from the named resource.
	GetRange(ctx context.Context, path string, offset, length uint64) ([]byte, error)

	// GetRanges reads multiple byte spans from the named resource. The
	// result has one buffer per requested range, in request order.
	GetRanges(ctx context.Context, path string, ranges []Range) ([][]byte, error)
}

// Sizer is an optional extension of Source for stores that know the total
// size of a resource. When available, the parser validates offsets against
// the reported extent before fetching them.
type Sizer interface {
	Size(ctx context.Context, path string) (uint64, error)
}

// FileSource serves ranges from local files via memory mapping. It keeps
// one mapping per path for the lifetime of the source.
type FileSource struct {
	mu    sync.Mutex
	files map[string]*mmap.ReaderAt
}

// NewFileSource returns a Source backed by memory-mapped local files.
func NewFileSource() *FileSource {
	return &FileSource{files: make(map[string]*mmap.ReaderAt)}
}

func (s *FileSource) open(path string) (*mmap.ReaderAt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.files[path]; ok {
		return r, nil
	}
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	s.files[path] = r
	return r, nil
}

// GetRange implements Source.
func (s *FileSource) GetRange(ctx context.Context, path string, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := s.open(path)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := r.ReadAt(buf, int64(offset))
	if err != nil {
		return nil, fmt.Errorf("read %s [%d,+%d): %w", path, offset, length, err)
	}
	if uint64(n) != length {
		return nil, fmt.Errorf("read %s [%d,+%d): short read of %d bytes", path, offset, length, n)
	}
	return buf, nil
}

// GetRanges implements Source.
func (s *FileSource) GetRanges(ctx context.Context, path string, ranges []Range) ([][]byte, error) {
	out := make([][]byte, len(ranges))
	for i, r := range ranges {
		buf, err := s.GetRange(ctx, path, r.Offset, r.Length)
		if err != nil {
			return nil, err
		}
		out[i] = buf
	}
	return out, nil
}

// Size implements Sizer.
func (s *FileSource) Size(ctx context.Context, path string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}

// Close unmaps all open files. The source must not be used afterwards.
func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for path, r := range s.files {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, path)
	}
	return firstErr
}

// MemSource serves ranges from in-memory byte slices, keyed by path. It is
// used by tests and by callers that already hold the full file.
type MemSource struct {
	mu    sync.Mutex
	data  map[string][]byte
	calls int
}

// NewMemSource returns an empty in-memory source.
func NewMemSource() *MemSource {
	return &MemSource{data: make(map[string][]byte)}
}

// Put registers the full contents of a resource.
func (s *MemSource) Put(path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[path] = data
}

// Calls reports how many range requests the source has served. Used by
// tests to verify request coalescing.
func (s *MemSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// GetRange implements Source.
func (s *MemSource) GetRange(ctx context.Context, path string, offset, length uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	data, ok := s.data[path]
	s.calls++
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such resource: %s", path)
	}
	// Checked without offset+length, which wraps for hostile offsets.
	if length > uint64(len(data)) || offset > uint64(len(data))-length {
		return nil, fmt.Errorf("read %s [%d,+%d): past end of %d-byte resource", path, offset, length, len(data))
	}
	buf := make([]byte, length)
	copy(buf, data[offset:offset+length])
	return buf, nil
}

// GetRanges implements Source.
func (s *MemSource) GetRanges(ctx context.Context, path string, ranges []Range) ([][]byte, error) {
	out := make([][]byte, len(ranges))
	for i, r := range ranges {
		buf, err := s.GetRange(ctx, path, r.Offset, r.Length)
		if err != nil {
			return nil, err
		}
		out[i] = buf
	}
	return out, nil
}

// Size implements Sizer.
func (s *MemSource) Size(ctx context.Context, path string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[path]
	if !ok {
		return 0, fmt.Errorf("no such resource: %s", path)
	}
	return uint64(len(data)), nil
}
