// Package kdt implements the kd-tree index variant. Each tree splits the
// rows on a high-variance coordinate at the subset mean; terminals encode
// single rows directly in the child links.
package kdt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/annlab/sptree/algo"
	"github.com/annlab/sptree/algo/internal/base"
	"github.com/annlab/sptree/core"
)

func init() {
	for _, vt := range core.VectorValueTypes() {
		vt := vt
		algo.Register(core.IndexAlgoTypeKDT, vt, func() algo.Plugin { return New(vt) })
	}
}

// New returns an empty KDT plugin for the given value type.
func New(vt core.VectorValueType) algo.Plugin {
	return base.New(core.IndexAlgoTypeKDT, vt, &trees{
		treeNumber: base.DefaultTreeNumber,
		topDims:    defaultTopDims,
	})
}

// defaultTopDims is how many of the highest-variance coordinates the
// split dimension is drawn from, rotated per tree.
const defaultTopDims = 5

// Child links: values >= 0 index another node, noChild marks an absent
// side, and anything below noChild is an encoded terminal row.
const noChild = int32(-1)

func encodeRow(id int32) int32 { return -id - 2 }
func decodeRow(c int32) int32  { return -c - 2 }
func isTerminal(c int32) bool  { return c < noChild }

// node is one split: rows with coordinate splitDim below splitValue go
// left, the rest go right.
type node struct {
	splitDim   int32
	splitValue float32
	left       int32
	right      int32
}

type trees struct {
	treeNumber int
	topDims    int

	roots []int32
	nodes []node
}

func (t *trees) Clone() base.TreeOps {
	return &trees{treeNumber: t.treeNumber, topDims: t.topDims}
}

func (t *trees) Rebuild(mat []float32, count int32, dim int) {
	t.roots = t.roots[:0]
	t.nodes = t.nodes[:0]
	if count == 0 {
		return
	}
	b := &builder{mat: mat, dim: dim, t: t}
	for ti := 0; ti < t.treeNumber; ti++ {
		ids := make([]int32, count)
		for i := range ids {
			ids[i] = int32(i)
		}
		b.rank = ti
		t.roots = append(t.roots, b.build(ids))
	}
}

type builder struct {
	mat  []float32
	dim  int
	rank int // which of the top-variance dims this tree splits on
	t    *trees
}

func (b *builder) vec(id int32) []float32 {
	return b.mat[int(id)*b.dim : (int(id)+1)*b.dim]
}

// chooseSplit returns the split dimension and the subset mean on it.
// The dimension is the rank-th highest-variance coordinate, so distinct
// trees partition the same rows differently.
func (b *builder) chooseSplit(ids []int32) (int32, float32) {
	mean := make([]float64, b.dim)
	for _, id := range ids {
		v := b.vec(id)
		for d := range mean {
			mean[d] += float64(v[d])
		}
	}
	for d := range mean {
		mean[d] /= float64(len(ids))
	}
	variance := make([]float64, b.dim)
	for _, id := range ids {
		v := b.vec(id)
		for d := range variance {
			diff := float64(v[d]) - mean[d]
			variance[d] += diff * diff
		}
	}
	order := make([]int, b.dim)
	for d := range order {
		order[d] = d
	}
	sort.Slice(order, func(i, j int) bool {
		if variance[order[i]] != variance[order[j]] {
			return variance[order[i]] > variance[order[j]]
		}
		return order[i] < order[j]
	})
	top := b.t.topDims
	if top > b.dim {
		top = b.dim
	}
	dim := order[b.rank%top]
	return int32(dim), float32(mean[dim])
}

// build recursively splits ids and returns the root link: a node index,
// or an encoded terminal for a single row.
func (b *builder) build(ids []int32) int32 {
	if len(ids) == 0 {
		return noChild
	}
	if len(ids) == 1 {
		return encodeRow(ids[0])
	}
	splitDim, splitValue := b.chooseSplit(ids)
	var left, right []int32
	for _, id := range ids {
		if b.vec(id)[splitDim] < splitValue {
			left = append(left, id)
		} else {
			right = append(right, id)
		}
	}
	// Duplicate rows can put everything on one side; fall back to an
	// order split so the recursion terminates.
	if len(left) == 0 || len(right) == 0 {
		mid := len(ids) / 2
		left, right = ids[:mid], ids[mid:]
	}
	idx := int32(len(b.t.nodes))
	b.t.nodes = append(b.t.nodes, node{splitDim: splitDim, splitValue: splitValue})
	l := b.build(left)
	r := b.build(right)
	b.t.nodes[idx].left = l
	b.t.nodes[idx].right = r
	return idx
}

type seedCand struct {
	link    int32
	penalty float32
}

// Seed descends each tree toward the query, queueing the far side of
// every split with its plane-distance penalty, and keeps resuming from
// the cheapest pending branch until limit rows are collected.
func (t *trees) Seed(q []float32, distTo func(int32) float32, limit int) []int32 {
	if len(t.roots) == 0 {
		return nil
	}
	var pending []seedCand
	for _, r := range t.roots {
		pending = append(pending, seedCand{link: r})
	}
	seen := make(map[int32]struct{}, limit)
	var seeds []int32

	for len(pending) > 0 && len(seeds) < limit {
		sort.Slice(pending, func(i, j int) bool {
			if pending[i].penalty != pending[j].penalty {
				return pending[i].penalty < pending[j].penalty
			}
			return pending[i].link < pending[j].link
		})
		cand := pending[0]
		pending = pending[1:]

		link := cand.link
		for link != noChild && !isTerminal(link) {
			n := t.nodes[link]
			diff := q[n.splitDim] - n.splitValue
			near, far := n.left, n.right
			if diff >= 0 {
				near, far = n.right, n.left
			}
			if far != noChild {
				pending = append(pending, seedCand{link: far, penalty: cand.penalty + diff*diff})
			}
			link = near
		}
		if isTerminal(link) {
			id := decodeRow(link)
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				seeds = append(seeds, id)
			}
		}
	}
	return seeds
}

const treeHeaderSize = 8 // root count, node count

func (t *trees) TreeBytes() uint64 {
	return uint64(treeHeaderSize + len(t.roots)*4 + len(t.nodes)*16)
}

func (t *trees) WriteTrees(w io.Writer) error {
	buf := make([]byte, treeHeaderSize+len(t.roots)*4+len(t.nodes)*16)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(t.roots)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(t.nodes)))
	off := treeHeaderSize
	for _, r := range t.roots {
		binary.LittleEndian.PutUint32(buf[off:], uint32(r))
		off += 4
	}
	for _, n := range t.nodes {
		binary.LittleEndian.PutUint32(buf[off:], uint32(n.splitDim))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(n.splitValue))
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(n.left))
		binary.LittleEndian.PutUint32(buf[off+12:], uint32(n.right))
		off += 16
	}
	_, err := w.Write(buf)
	return err
}

func (t *trees) ReadTrees(r io.Reader) error {
	var hdr [treeHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	rootCount := int(binary.LittleEndian.Uint32(hdr[0:]))
	nodeCount := int(binary.LittleEndian.Uint32(hdr[4:]))
	if rootCount < 0 || nodeCount < 0 {
		return fmt.Errorf("%w: tree blob header", core.ErrFail)
	}
	buf := make([]byte, rootCount*4+nodeCount*16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	t.roots = make([]int32, rootCount)
	off := 0
	for i := range t.roots {
		t.roots[i] = int32(binary.LittleEndian.Uint32(buf[off:]))
		off += 4
	}
	t.nodes = make([]node, nodeCount)
	for i := range t.nodes {
		t.nodes[i] = node{
			splitDim:   int32(binary.LittleEndian.Uint32(buf[off:])),
			splitValue: math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:])),
			left:       int32(binary.LittleEndian.Uint32(buf[off+8:])),
			right:      int32(binary.LittleEndian.Uint32(buf[off+12:])),
		}
		off += 16
	}
	return nil
}

func (t *trees) ApplyParameter(name, value string) bool {
	v, err := strconv.Atoi(value)
	if err != nil || v <= 0 {
		return false
	}
	switch {
	case strings.EqualFold(name, "TreeNumber"):
		t.treeNumber = v
	case strings.EqualFold(name, "TopDims"):
		t.topDims = v
	default:
		return false
	}
	return true
}

func (t *trees) ConfigLines() []string {
	return []string{
		"TreeNumber=" + strconv.Itoa(t.treeNumber),
		"TopDims=" + strconv.Itoa(t.topDims),
	}
}
