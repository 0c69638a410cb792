package sptree

import (
	"strconv"

	"github.com/annlab/sptree/core"
)

// treeNodeSize returns the serialized per-node cost of the variant's
// partition trees, 0 for unknown variants.
func treeNodeSize(at core.IndexAlgoType) uint64 {
	switch at {
	case core.IndexAlgoTypeBKT:
		return 12 // representative id + child range
	case core.IndexAlgoTypeKDT:
		return 16 // split dim + split value + two links
	default:
		return 0
	}
}

// perVectorBytes is the capacity-planning cost of one vector: the raw row,
// a 4-byte identifier in tree and graph bookkeeping each, the neighbor
// list, the tombstone bit (rounded to a byte) and roughly one tree node
// per vector per tree.
func (x *VectorIndex) perVectorBytes() uint64 {
	nodeSize := treeNodeSize(x.AlgoType())
	if nodeSize == 0 {
		return 0
	}
	neighborhood, _ := strconv.ParseUint(x.GetParameter("NeighborhoodSize"), 10, 64)
	trees, _ := strconv.ParseUint(x.GetParameter("TreeNumber"), 10, 64)
	valueSize := uint64(x.ValueType().Size())
	dim := uint64(x.Dimension())
	return valueSize*dim + 8 + 4*neighborhood + 1 + nodeSize*trees
}

// EstimatedVectorCount returns how many vectors fit into the given memory
// budget, 0 when the variant is unknown.
func (x *VectorIndex) EstimatedVectorCount(memoryBytes uint64) uint64 {
	unit := x.perVectorBytes()
	if unit == 0 {
		return 0
	}
	return memoryBytes / unit
}

// EstimatedMemoryUsage returns the memory a given vector count needs,
// 0 when the variant is unknown.
func (x *VectorIndex) EstimatedMemoryUsage(count uint64) uint64 {
	return count * x.perVectorBytes()
}
