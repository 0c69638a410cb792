// Package bkt implements the balanced k-means tree index variant. Each
// tree recursively clusters the rows; tree nodes carry a representative
// row and a contiguous child range, and leaves pin single rows.
package bkt

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/annlab/sptree/algo"
	"github.com/annlab/sptree/algo/internal/base"
	"github.com/annlab/sptree/core"
	"github.com/annlab/sptree/distance"
)

func init() {
	for _, vt := range core.VectorValueTypes() {
		vt := vt
		algo.Register(core.IndexAlgoTypeBKT, vt, func() algo.Plugin { return New(vt) })
	}
}

// New returns an empty BKT plugin for the given value type.
func New(vt core.VectorValueType) algo.Plugin {
	return base.New(core.IndexAlgoTypeBKT, vt, &trees{
		treeNumber: base.DefaultTreeNumber,
		kmeansK:    defaultKmeansK,
		leafSize:   defaultLeafSize,
	})
}

const (
	defaultKmeansK  = 8
	defaultLeafSize = 8
	kmeansIters     = 10
)

// node is one tree entry: a representative row and the half-open child
// range in the shared node array. Leaves have childStart == -1.
type node struct {
	center     int32
	childStart int32
	childEnd   int32
}

type trees struct {
	treeNumber int
	kmeansK    int
	leafSize   int

	roots []int32
	nodes []node
}

func (t *trees) Clone() base.TreeOps {
	return &trees{treeNumber: t.treeNumber, kmeansK: t.kmeansK, leafSize: t.leafSize}
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
		// Rotate the insertion order per tree so the k-means seeding, and
		// with it the partitioning, differs between trees.
		shift := int32(0)
		if t.treeNumber > 1 {
			shift = int32(ti) * count / int32(t.treeNumber)
		}
		for i := int32(0); i < count; i++ {
			ids[i] = (i + shift) % count
		}
		t.roots = append(t.roots, b.build(ids))
	}
}

type builder struct {
	mat []float32
	dim int
	t   *trees
}

func (b *builder) vec(id int32) []float32 {
	return b.mat[int(id)*b.dim : (int(id)+1)*b.dim]
}

// centerOf picks the row of the subset closest to its centroid.
func (b *builder) centerOf(ids []int32) int32 {
	centroid := make([]float32, b.dim)
	for _, id := range ids {
		v := b.vec(id)
		for d := range centroid {
			centroid[d] += v[d]
		}
	}
	for d := range centroid {
		centroid[d] /= float32(len(ids))
	}
	best := ids[0]
	bestDist := distance.L2(centroid, b.vec(best))
	for _, id := range ids[1:] {
		if d := distance.L2(centroid, b.vec(id)); d < bestDist || (d == bestDist && id < best) {
			best, bestDist = id, d
		}
	}
	return best
}

type buildTask struct {
	nodeIdx int32
	ids     []int32
}

// build lays out one tree in the shared node array breadth-first, so each
// internal node's children occupy a contiguous range.
func (b *builder) build(ids []int32) int32 {
	t := b.t
	root := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{center: b.centerOf(ids), childStart: -1, childEnd: -1})
	queue := []buildTask{{nodeIdx: root, ids: ids}}

	for len(queue) > 0 {
		task := queue[0]
		queue = queue[1:]
		if len(task.ids) == 1 {
			continue
		}

		var groups [][]int32
		if len(task.ids) <= t.leafSize {
			for _, id := range task.ids {
				groups = append(groups, []int32{id})
			}
		} else {
			groups = b.cluster(task.ids)
		}

		start := int32(len(t.nodes))
		for _, g := range groups {
			t.nodes = append(t.nodes, node{center: b.centerOf(g), childStart: -1, childEnd: -1})
		}
		end := int32(len(t.nodes))
		t.nodes[task.nodeIdx].childStart = start
		t.nodes[task.nodeIdx].childEnd = end
		for gi, g := range groups {
			if len(g) > 1 {
				queue = append(queue, buildTask{nodeIdx: start + int32(gi), ids: g})
			}
		}
	}
	return root
}

// cluster runs a deterministic Lloyd iteration over the subset. When the
// subset collapses into a single cluster (duplicate rows), it falls back
// to order-based chunks so the recursion always terminates.
func (b *builder) cluster(ids []int32) [][]int32 {
	k := b.t.kmeansK
	if k > len(ids) {
		k = len(ids)
	}
	centroids := make([][]float32, k)
	for c := range centroids {
		seed := b.vec(ids[c*len(ids)/k])
		centroids[c] = append([]float32(nil), seed...)
	}
	assign := make([]int, len(ids))
	for iter := 0; iter < kmeansIters; iter++ {
		changed := false
		for i, id := range ids {
			bestC, bestD := 0, distance.L2(b.vec(id), centroids[0])
			for c := 1; c < k; c++ {
				if d := distance.L2(b.vec(id), centroids[c]); d < bestD {
					bestC, bestD = c, d
				}
			}
			if assign[i] != bestC {
				assign[i] = bestC
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		for c := range centroids {
			for d := range centroids[c] {
				centroids[c][d] = 0
			}
		}
		sizes := make([]int, k)
		for i, id := range ids {
			c := assign[i]
			sizes[c]++
			v := b.vec(id)
			for d := range centroids[c] {
				centroids[c][d] += v[d]
			}
		}
		for c := range centroids {
			if sizes[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] /= float32(sizes[c])
			}
		}
	}

	groups := make([][]int32, k)
	for i, id := range ids {
		groups[assign[i]] = append(groups[assign[i]], id)
	}
	out := groups[:0]
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	if len(out) <= 1 {
		out = out[:0]
		for start := 0; start < len(ids); start += b.t.leafSize {
			end := start + b.t.leafSize
			if end > len(ids) {
				end = len(ids)
			}
			out = append(out, ids[start:end])
		}
	}
	return out
}

type seedCand struct {
	nodeIdx int32
	d       float32
}

// Seed walks the trees best-first by center distance and collects row ids
// until the limit is reached.
func (t *trees) Seed(q []float32, distTo func(int32) float32, limit int) []int32 {
	if len(t.roots) == 0 {
		return nil
	}
	var frontier []seedCand
	push := func(idx int32) {
		frontier = append(frontier, seedCand{nodeIdx: idx, d: distTo(t.nodes[idx].center)})
	}
	for _, r := range t.roots {
		push(r)
	}

	seen := make(map[int32]struct{}, limit)
	var seeds []int32
	for len(frontier) > 0 && len(seeds) < limit {
		sort.Slice(frontier, func(i, j int) bool {
			if frontier[i].d != frontier[j].d {
				return frontier[i].d < frontier[j].d
			}
			return frontier[i].nodeIdx < frontier[j].nodeIdx
		})
		cand := frontier[0]
		frontier = frontier[1:]
		n := t.nodes[cand.nodeIdx]
		if _, ok := seen[n.center]; !ok {
			seen[n.center] = struct{}{}
			seeds = append(seeds, n.center)
		}
		for c := n.childStart; c >= 0 && c < n.childEnd; c++ {
			push(c)
		}
	}
	return seeds
}

const treeHeaderSize = 8 // root count, node count

func (t *trees) TreeBytes() uint64 {
	return uint64(treeHeaderSize + len(t.roots)*4 + len(t.nodes)*12)
}

func (t *trees) WriteTrees(w io.Writer) error {
	buf := make([]byte, treeHeaderSize+len(t.roots)*4+len(t.nodes)*12)
	binary.LittleEndian.PutUint32(buf[0:], uint32(len(t.roots)))
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(t.nodes)))
	off := treeHeaderSize
	for _, r := range t.roots {
		binary.LittleEndian.PutUint32(buf[off:], uint32(r))
		off += 4
	}
	for _, n := range t.nodes {
		binary.LittleEndian.PutUint32(buf[off:], uint32(n.center))
		binary.LittleEndian.PutUint32(buf[off+4:], uint32(n.childStart))
		binary.LittleEndian.PutUint32(buf[off+8:], uint32(n.childEnd))
		off += 12
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
	buf := make([]byte, rootCount*4+nodeCount*12)
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
			center:     int32(binary.LittleEndian.Uint32(buf[off:])),
			childStart: int32(binary.LittleEndian.Uint32(buf[off+4:])),
			childEnd:   int32(binary.LittleEndian.Uint32(buf[off+8:])),
		}
		off += 12
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
	case strings.EqualFold(name, "KmeansK"):
		t.kmeansK = v
	case strings.EqualFold(name, "LeafSize"):
		t.leafSize = v
	default:
		return false
	}
	return true
}

func (t *trees) ConfigLines() []string {
	return []string{
		"TreeNumber=" + strconv.Itoa(t.treeNumber),
		"KmeansK=" + strconv.Itoa(t.kmeansK),
		"LeafSize=" + strconv.Itoa(t.leafSize),
	}
}
