package geotiff

import (
	"github.com/scigolib/geotiff/internal/fetch"
	"github.com/scigolib/geotiff/internal/tiff"
)

// Default configuration. The prefetch size covers the header and first
// directory of a well-formed COG in one round trip.
const (
	DefaultPrefetch         = 32 * 1024
	DefaultFetchConcurrency = fetch.DefaultConcurrency
	DefaultMergeGap         = fetch.DefaultMergeGap
)

type config struct {
	prefetch         uint64
	mergeGap         uint64
	fetchConcurrency int
	decodeWorkers    int
	maxIFDs          int
}

func defaultConfig() config {
	return config{
		prefetch:         DefaultPrefetch,
		mergeGap:         DefaultMergeGap,
		fetchConcurrency: DefaultFetchConcurrency,
		maxIFDs:          tiff.DefaultMaxIFDs,
	}
}

// Option configures a handle at Open time. Options are read-only
// configuration afterwards; nothing mutates them at runtime.
type Option func(*config)

// WithPrefetch sets how many initial bytes are read up front for header
// and directory parsing.
func WithPrefetch(bytes uint64) Option {
	return func(c *config) {
		if bytes > 0 {
			c.prefetch = bytes
		}
	}
}

// WithMergeGap sets the byte gap under which adjacent tile ranges are
// merged into one request. Zero merges only touching ranges.
func WithMergeGap(bytes uint64) Option {
	return func(c *config) {
		c.mergeGap = bytes
	}
}

// WithFetchConcurrency bounds how many range requests are in flight at
// once per read call.
func WithFetchConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.fetchConcurrency = n
		}
	}
}

// WithDecodeWorkers sets the size of the decompression worker pool. The
// default is one worker per available CPU.
func WithDecodeWorkers(n int) Option {
	return func(c *config) {
		c.decodeWorkers = n
	}
}

// WithMaxIFDCount bounds the directory chain length accepted at open.
func WithMaxIFDCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxIFDs = n
		}
	}
}
