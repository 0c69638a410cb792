package sptree

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/annlab/sptree/core"
)

// searchChunk is how many queries one worker claims at a time. Small
// enough to balance skewed per-query cost across workers.
const searchChunk = 10

// Search answers one query, returning the k nearest live samples ordered
// ascending by distance. When withMeta is set each result carries its
// metadata payload.
func (x *VectorIndex) Search(query []byte, k int, withMeta bool) (*core.QueryResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", core.ErrFail)
	}
	res := core.NewQueryResult(query, k, withMeta)
	if err := x.plugin.Search(query, res); err != nil {
		return nil, err
	}
	if withMeta {
		x.fillMetadata(res)
	}
	return res, nil
}

// SearchIndex answers a batch of queries in parallel. Workers claim
// queries in dynamic chunks and write into disjoint slices of one shared
// result buffer, so no synchronization is needed on the answers. The
// first per-query error aborts the batch.
func (x *VectorIndex) SearchIndex(queries *core.VectorSet, k int, withMeta bool) ([]*core.QueryResult, error) {
	if err := x.checkVectorSet(queries); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", core.ErrFail)
	}

	n := queries.Count()
	slots := make([]core.BasicResult, int(n)*k)
	results := make([]*core.QueryResult, n)
	for i := int32(0); i < n; i++ {
		results[i] = core.WrapQueryResult(queries.Vector(i), slots[int(i)*k:(int(i)+1)*k], withMeta)
	}

	var next atomic.Int32
	var g errgroup.Group
	workers := runtime.GOMAXPROCS(0)
	if int32(workers) > (n+searchChunk-1)/searchChunk {
		workers = int((n + searchChunk - 1) / searchChunk)
	}
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				start := next.Add(searchChunk) - searchChunk
				if start >= n {
					return nil
				}
				end := start + searchChunk
				if end > n {
					end = n
				}
				for i := start; i < end; i++ {
					if err := x.plugin.Search(queries.Vector(i), results[i]); err != nil {
						return err
					}
				}
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if withMeta {
		for _, res := range results {
			x.fillMetadata(res)
		}
	}
	return results, nil
}

func (x *VectorIndex) fillMetadata(res *core.QueryResult) {
	x.metaMu.RLock()
	defer x.metaMu.RUnlock()
	slots := res.Results()
	for i := range slots {
		if slots[i].VID != core.InvalidVID {
			slots[i].Meta = x.meta.Get(slots[i].VID)
		}
	}
}
