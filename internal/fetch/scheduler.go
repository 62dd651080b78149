package fetch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Default scheduling parameters. MergeGap follows the request batching
// threshold that pays off for HTTP range stores: a gap smaller than this is
// cheaper to over-read than to fetch separately.
const (
	DefaultMergeGap    = 16 * 1024
	DefaultConcurrency = 16
)

// Scheduler issues the byte-range requests of one read call. It merges
// nearby ranges, bounds the request fan-out, and splits merged responses
// back into per-range buffers. A Scheduler carries only configuration and
// is safe for concurrent use.
type Scheduler struct {
	MergeGap    uint64
	Concurrency int
}

// Fetch retrieves every requested range from the source. The result holds
// one buffer per requested range, in request order; zero-length ranges
// resolve to nil. A failure of any merged request fails the whole call with
// an error naming the byte span that could not be read.
func (s Scheduler) Fetch(ctx context.Context, src Source, path string, ranges []Range) ([][]byte, error) {
	gap := s.MergeGap
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	merged := Plan(ranges, gap)
	out := make([][]byte, len(ranges))
	if len(merged) == 0 {
		return out, nil
	}

	bufs := make([][]byte, len(merged))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, m := range merged {
		i, m := i, m
		g.Go(func() error {
			buf, err := src.GetRange(ctx, path, m.Offset, m.Length)
			if err != nil {
				return fmt.Errorf("fetch [%d,+%d): %w", m.Offset, m.Length, err)
			}
			if uint64(len(buf)) != m.Length {
				return fmt.Errorf("fetch [%d,+%d): source returned %d bytes", m.Offset, m.Length, len(buf))
			}
			bufs[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, m := range merged {
		m.Split(ranges, bufs[i], out)
	}
	return out, nil
}

// FetchEach is like Fetch but delivers each requested range to deliver as
// soon as its merged request completes, instead of waiting for the whole
// set. Delivery order follows request completion, not range order; the
// index identifies the original range. deliver is called from multiple
// goroutines and must be safe for concurrent use.
func (s Scheduler) FetchEach(ctx context.Context, src Source, path string, ranges []Range, deliver func(index int, data []byte) error) error {
	gap := s.MergeGap
	limit := s.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	merged := Plan(ranges, gap)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, m := range merged {
		m := m
		g.Go(func() error {
			buf, err := src.GetRange(ctx, path, m.Offset, m.Length)
			if err != nil {
				return fmt.Errorf("fetch [%d,+%d): %w", m.Offset, m.Length, err)
			}
			if uint64(len(buf)) != m.Length {
				return fmt.Errorf("fetch [%d,+%d): source returned %d bytes", m.Offset, m.Length, len(buf))
			}
			parts := make([][]byte, len(ranges))
			m.Split(ranges, buf, parts)
			for _, i := range m.parts {
				if err := deliver(i, parts[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
