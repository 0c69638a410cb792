package core

import "math"

// BasicResult is one (identifier, distance, metadata) entry of a k-NN
// answer. VID is InvalidVID for unfilled slots.
type BasicResult struct {
	VID  int32
	Dist float32
	Meta []byte
}

// QueryResult is a fixed-capacity answer buffer for a single query. The
// capacity is fixed when the result is created and never grows; searches
// over an index with fewer live samples leave trailing slots invalid.
type QueryResult struct {
	Query    []byte
	WithMeta bool

	results []BasicResult
}

// NewQueryResult allocates a result with capacity k for the given raw
// query vector.
func NewQueryResult(query []byte, k int, withMeta bool) *QueryResult {
	r := &QueryResult{
		Query:    query,
		WithMeta: withMeta,
		results:  make([]BasicResult, k),
	}
	r.Reset()
	return r
}

// WrapQueryResult builds a result writing into a caller-supplied slot
// slice. len(slots) is the capacity k. Used by batch search so concurrent
// per-query answers land in disjoint slices of one output buffer.
func WrapQueryResult(query []byte, slots []BasicResult, withMeta bool) *QueryResult {
	r := &QueryResult{Query: query, WithMeta: withMeta, results: slots}
	r.Reset()
	return r
}

// Reset invalidates every slot.
func (r *QueryResult) Reset() {
	for i := range r.results {
		r.results[i].VID = InvalidVID
		r.results[i].Dist = math.MaxFloat32
		r.results[i].Meta = nil
	}
}

// K returns the fixed capacity.
func (r *QueryResult) K() int { return len(r.results) }

// Results returns the slot slice, ordered ascending by distance after a
// search completes.
func (r *QueryResult) Results() []BasicResult { return r.results }

// Insert offers a candidate. It keeps the k smallest distances, breaking
// ties toward the smaller identifier so repeated searches over an
// unchanged index are reproducible.
func (r *QueryResult) Insert(vid int32, dist float32) {
	n := len(r.results)
	last := &r.results[n-1]
	if !better(vid, dist, last.VID, last.Dist) {
		return
	}
	i := n - 1
	for i > 0 && better(vid, dist, r.results[i-1].VID, r.results[i-1].Dist) {
		r.results[i] = r.results[i-1]
		i--
	}
	r.results[i] = BasicResult{VID: vid, Dist: dist}
}

func better(vid int32, dist float32, ovid int32, odist float32) bool {
	if ovid == InvalidVID {
		return true
	}
	if dist != odist {
		return dist < odist
	}
	return vid < ovid
}
