// Package reachmap resolves external reach identifiers to canonical positions.
package reachmap

// Result maps candidate positions to canonical positions. Candidates whose
// reach id is absent from the canonical set are counted in Dropped.
type Result struct {
	Positions map[int]int
	Dropped   int
}

// Lookup returns the canonical position of candidate i.
func (r Result) Lookup(i int) (int, bool) {
	pos, ok := r.Positions[i]
	return pos, ok
}

// Index is a reusable reach id -> position lookup over a canonical set.
type Index map[int64]int

// NewIndex indexes canonical ids by position. For a repeated id the first
// position wins.
func NewIndex(canonical []int64) Index {
	idx := make(Index, len(canonical))
	for pos, id := range canonical {
		if _, dup := idx[id]; !dup {
			idx[id] = pos
		}
	}
	return idx
}

// Map resolves every candidate against the index using exact equality.
func (idx Index) Map(candidates []int64) Result {
	res := Result{Positions: make(map[int]int, len(candidates))}
	for i, id := range candidates {
		pos, ok := idx[id]
		if !ok {
			res.Dropped++
			continue
		}
		res.Positions[i] = pos
	}
	return res
}

// Map resolves candidate reach ids against canonical reach ids.
func Map(candidates, canonical []int64) Result {
	return NewIndex(canonical).Map(candidates)
}
