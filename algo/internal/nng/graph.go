// Package nng implements the k-NN neighborhood graph the index plugins
// maintain over built rows, and the best-first expansion used to answer
// queries through it.
package nng

import (
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/annlab/sptree/core"
)

// Graph is a fixed-degree neighborhood graph over rows [0, Built).
// Rows appended after the build are not connected; plugins scan those
// exhaustively until the next build or refine.
type Graph struct {
	k     int32
	built int32
	nbrs  []int32 // built*k, core.InvalidVID padded
}

// Empty returns a graph covering no rows.
func Empty(k int32) *Graph {
	if k <= 0 {
		k = 32
	}
	return &Graph{k: k}
}

// Build computes the k nearest neighbors of every row pair-wise. Ties
// break toward the smaller identifier, so the graph is deterministic for
// a given row set.
func Build(count, k int32, dist func(i, j int32) float32) *Graph {
	g := &Graph{k: k, built: count, nbrs: make([]int32, int(count)*int(k))}
	type cand struct {
		id int32
		d  float32
	}
	best := make([]cand, 0, k+1)
	for i := int32(0); i < count; i++ {
		best = best[:0]
		for j := int32(0); j < count; j++ {
			if j == i {
				continue
			}
			d := dist(i, j)
			if len(best) == int(k) {
				worst := best[len(best)-1]
				if d > worst.d || (d == worst.d && j > worst.id) {
					continue
				}
			}
			pos := len(best)
			if pos < int(k) {
				best = append(best, cand{})
			} else {
				pos--
			}
			for pos > 0 && (d < best[pos-1].d || (d == best[pos-1].d && j < best[pos-1].id)) {
				best[pos] = best[pos-1]
				pos--
			}
			best[pos] = cand{id: j, d: d}
		}
		row := g.nbrs[int(i)*int(k) : (int(i)+1)*int(k)]
		for n := range row {
			if n < len(best) {
				row[n] = best[n].id
			} else {
				row[n] = core.InvalidVID
			}
		}
	}
	return g
}

// K returns the graph degree.
func (g *Graph) K() int32 { return g.k }

// Built returns the number of rows the graph covers.
func (g *Graph) Built() int32 { return g.built }

// Neighbors returns the neighbor slice of id, nil when uncovered.
func (g *Graph) Neighbors(id int32) []int32 {
	if id < 0 || id >= g.built {
		return nil
	}
	return g.nbrs[int(id)*int(g.k) : (int(id)+1)*int(g.k)]
}

// Bytes returns the exact serialized size.
func (g *Graph) Bytes() uint64 {
	return uint64(8 + len(g.nbrs)*4)
}

// WriteTo serializes the graph: built, k, then the flat neighbor table.
func (g *Graph) WriteTo(w io.Writer) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(g.built))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(g.k))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	buf := make([]byte, len(g.nbrs)*4)
	for i, n := range g.nbrs {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(n))
	}
	_, err := w.Write(buf)
	return err
}

// ReadFrom replaces the graph from its serialized form.
func (g *Graph) ReadFrom(r io.Reader) error {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	built := int32(binary.LittleEndian.Uint32(hdr[0:]))
	k := int32(binary.LittleEndian.Uint32(hdr[4:]))
	if built < 0 || k <= 0 {
		return fmt.Errorf("%w: graph blob header", core.ErrFail)
	}
	buf := make([]byte, int(built)*int(k)*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	nbrs := make([]int32, int(built)*int(k))
	for i := range nbrs {
		nbrs[i] = int32(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	g.built = built
	g.k = k
	g.nbrs = nbrs
	return nil
}

type queueItem struct {
	id int32
	d  float32
}

type minQueue []queueItem

func (q minQueue) Len() int { return len(q) }
func (q minQueue) Less(i, j int) bool {
	if q[i].d != q[j].d {
		return q[i].d < q[j].d
	}
	return q[i].id < q[j].id
}
func (q minQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x any)   { *q = append(*q, x.(queueItem)) }

func (q *minQueue) Pop() any {
	old := *q
	it := old[len(old)-1]
	*q = old[:len(old)-1]
	return it
}

// Expand runs a best-first traversal from the seed rows, offering every
// live visited row to res. At most maxCheck rows are evaluated.
func (g *Graph) Expand(seeds []int32, distTo func(int32) float32, live func(int32) bool, maxCheck int, res *core.QueryResult) {
	if g.built == 0 || len(seeds) == 0 {
		return
	}
	visited := make([]bool, g.built)
	q := make(minQueue, 0, len(seeds))
	for _, s := range seeds {
		if s < 0 || s >= g.built || visited[s] {
			continue
		}
		visited[s] = true
		q = append(q, queueItem{id: s, d: distTo(s)})
	}
	heap.Init(&q)

	checked := 0
	for q.Len() > 0 && checked < maxCheck {
		it := heap.Pop(&q).(queueItem)
		checked++
		if live(it.id) {
			res.Insert(it.id, it.d)
		}
		for _, nb := range g.Neighbors(it.id) {
			if nb == core.InvalidVID || nb >= g.built || visited[nb] {
				continue
			}
			visited[nb] = true
			heap.Push(&q, queueItem{id: nb, d: distTo(nb)})
		}
	}
}
