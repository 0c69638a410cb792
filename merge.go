package sptree

import (
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/annlab/sptree/core"
	"github.com/annlab/sptree/metadata"
)

// mergeChunk is how many source samples one worker claims at a time.
const mergeChunk = 128

// MergeIndex copies every live sample of src, with its metadata, into the
// receiver. numThreads workers process the source in dynamic chunks; each
// sample is copied independently and a failed copy is logged and skipped,
// never aborting the merge. Identifiers are reassigned by the receiver.
func (x *VectorIndex) MergeIndex(src *VectorIndex, numThreads int) error {
	if src == nil {
		return fmt.Errorf("%w: nil merge source", core.ErrFail)
	}
	if src.ValueType() != x.ValueType() {
		return fmt.Errorf("%w: merge source value type %s, index value type %s",
			core.ErrFail, src.ValueType(), x.ValueType())
	}
	if numThreads <= 0 {
		numThreads = 1
	}

	count := src.NumSamples()
	dim := src.Dimension()
	if count == 0 || dim == 0 {
		return nil
	}

	var next atomic.Int32
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(numThreads)
	for w := 0; w < numThreads; w++ {
		g.Go(func() error {
			for {
				start := next.Add(mergeChunk) - mergeChunk
				if start >= count {
					return nil
				}
				end := start + mergeChunk
				if end > count {
					end = count
				}
				for id := start; id < end; id++ {
					if !src.ContainSample(id) {
						continue
					}
					if err := x.mergeSample(src, id, dim); err != nil {
						failed.Add(1)
						x.logger.Error("merge sample failed", "id", id, "error", err)
					}
				}
			}
		})
	}
	_ = g.Wait() // workers never return errors
	if n := failed.Load(); n > 0 {
		x.logger.Warn("merge completed with failures", "total", count, "failed", n)
	}
	return nil
}

func (x *VectorIndex) mergeSample(src *VectorIndex, id int32, dim int) error {
	row := src.GetSample(id)
	if row == nil {
		return core.ErrVectorNotFound
	}
	vs, err := core.NewVectorSet(row, src.ValueType(), dim, 1)
	if err != nil {
		return err
	}
	var meta *metadata.Set
	if payload := src.GetMetadata(id); len(payload) > 0 {
		meta = metadata.NewFromPayloads(payload)
	}
	_, err = x.AddIndex(vs, meta)
	return err
}
