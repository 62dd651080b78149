package fetch

import "sort"

// MergedRange is a single request covering one or more originally requested
// ranges. Requested ranges whose gap is within the planner's tolerance are
// folded into the same request; exact duplicates collapse to one slot.
type MergedRange struct {
	Range

	// parts holds the indices of the original ranges served by this
	// request, used to split the response back into per-range buffers.
	parts []int
}

// Plan groups the requested ranges into merged requests. Ranges separated
// by at most mergeGap bytes are read as one request; this trades a bounded
// amount of over-read for far fewer round trips against networked sources.
// Zero-length ranges are not planned and resolve to empty buffers.
func Plan(ranges []Range, mergeGap uint64) []MergedRange {
	idx := make([]int, 0, len(ranges))
	for i, r := range ranges {
		if r.Length > 0 {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := ranges[idx[a]], ranges[idx[b]]
		if ra.Offset != rb.Offset {
			return ra.Offset < rb.Offset
		}
		return ra.Length < rb.Length
	})

	merged := make([]MergedRange, 0, len(idx))
	cur := MergedRange{Range: ranges[idx[0]], parts: []int{idx[0]}}
	for _, i := range idx[1:] {
		r := ranges[i]
		if r.Offset <= cur.End()+mergeGap {
			if r.End() > cur.End() {
				cur.Length = r.End() - cur.Offset
			}
			cur.parts = append(cur.parts, i)
			continue
		}
		merged = append(merged, cur)
		cur = MergedRange{Range: r, parts: []int{i}}
	}
	return append(merged, cur)
}

// Split distributes the response buffer of a merged request back to the
// original ranges it covers. The returned slices alias buf; callers that
// outlive the merged buffer must copy.
func (m MergedRange) Split(ranges []Range, buf []byte, out [][]byte) {
	for _, i := range m.parts {
		r := ranges[i]
		start := r.Offset - m.Offset
		out[i] = buf[start : start+r.Length]
	}
}
