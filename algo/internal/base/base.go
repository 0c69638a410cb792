// Package base carries the machinery shared by the tree-partitioned index
// plugins: row storage, the neighborhood graph, search dispatch, data
// persistence and the string parameter surface. Each variant contributes
// only its partition trees through the TreeOps hook.
package base

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/annlab/sptree/algo/internal/nng"
	"github.com/annlab/sptree/algo/internal/vecdata"
	"github.com/annlab/sptree/core"
	"github.com/annlab/sptree/distance"
	"github.com/annlab/sptree/metadata"
)

// Default parameter values shared by both variants.
const (
	DefaultTreeNumber       = 1
	DefaultNeighborhoodSize = 32
	DefaultMaxCheck         = 2048
	DefaultRefineThreshold  = 1024

	seedLimit = 64
)

// TreeOps is the variant-specific part of a plugin: building partition
// trees over a decoded row matrix and seeding a search from them.
type TreeOps interface {
	// Rebuild replaces the trees with ones over rows [0, count) of mat,
	// a row-major count x dim float32 matrix.
	Rebuild(mat []float32, count int32, dim int)
	// Seed returns up to limit candidate row ids for a query, best-first
	// by center proximity.
	Seed(q []float32, distTo func(int32) float32, limit int) []int32
	// Clone returns a fresh, empty TreeOps with the same parameters.
	Clone() TreeOps

	TreeBytes() uint64
	WriteTrees(w io.Writer) error
	ReadTrees(r io.Reader) error

	// ApplyParameter consumes a variant-specific parameter, reporting
	// whether the name was recognized.
	ApplyParameter(name, value string) bool
	// ConfigLines returns the variant-specific Key=Value config lines.
	ConfigLines() []string
}

// Index implements algo.Plugin for one (variant, value type) pair.
type Index struct {
	algoType  core.IndexAlgoType
	valueType core.VectorValueType
	decode    distance.Decoder

	// mu serializes Build/Refine/LoadData against searches; row-level
	// synchronization lives in the store.
	mu    sync.RWMutex
	dim   int
	store *vecdata.Store
	graph *nng.Graph
	trees TreeOps

	distMethod       core.DistCalcMethod
	distFn           distance.Func
	neighborhoodSize int
	maxCheck         int
	refineThreshold  int
}

// New builds an empty plugin around the given tree operations.
func New(algoType core.IndexAlgoType, valueType core.VectorValueType, trees TreeOps) *Index {
	return &Index{
		algoType:         algoType,
		valueType:        valueType,
		decode:           distance.NewDecoder(valueType),
		store:            vecdata.New(0, 0),
		graph:            nng.Empty(DefaultNeighborhoodSize),
		trees:            trees,
		distMethod:       core.DistCalcMethodL2,
		distFn:           distance.L2,
		neighborhoodSize: DefaultNeighborhoodSize,
		maxCheck:         DefaultMaxCheck,
		refineThreshold:  DefaultRefineThreshold,
	}
}

func (x *Index) AlgoType() core.IndexAlgoType    { return x.algoType }
func (x *Index) ValueType() core.VectorValueType { return x.valueType }

func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

func (x *Index) NumSamples() int32 { return x.store.Count() }
func (x *Index) NumDeleted() int32 { return x.store.DeletedCount() }

func (x *Index) ContainSample(id int32) bool { return x.store.IsLive(id) }
func (x *Index) GetSample(id int32) []byte   { return x.store.Row(id) }

func (x *Index) rowSize() int { return x.dim * x.valueType.Size() }

// Build replaces all state with an index over the given rows.
func (x *Index) Build(data []byte, count int32, dim int) error {
	if count <= 0 || dim <= 0 {
		return fmt.Errorf("%w: empty build input", core.ErrFail)
	}
	rowSize := dim * x.valueType.Size()
	if len(data) != int(count)*rowSize {
		return fmt.Errorf("%w: build buffer is %d bytes, want %d", core.ErrFail, len(data), int(count)*rowSize)
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	x.dim = dim
	rows := make([]byte, len(data))
	copy(rows, data)
	x.store.Reset(rows, count, dim, rowSize)
	x.rebuildLocked()
	return nil
}

// rebuildLocked recomputes trees and graph over all stored rows.
func (x *Index) rebuildLocked() {
	data, count := x.store.Snapshot()
	mat := make([]float32, int(count)*x.dim)
	rowSize := x.rowSize()
	for i := int32(0); i < count; i++ {
		x.decode(data[int(i)*rowSize:(int(i)+1)*rowSize], mat[int(i)*x.dim:(int(i)+1)*x.dim])
	}
	x.trees.Rebuild(mat, count, x.dim)
	k := int32(x.neighborhoodSize)
	x.graph = nng.Build(count, k, func(i, j int32) float32 {
		return x.distFn(mat[int(i)*x.dim:(int(i)+1)*x.dim], mat[int(j)*x.dim:(int(j)+1)*x.dim])
	})
}

// Add appends rows without touching trees or graph; fresh rows are
// scanned exhaustively by Search until the next Build or Refine.
func (x *Index) Add(data []byte, count int32, dim int) (int32, error) {
	if count <= 0 || dim <= 0 {
		return 0, fmt.Errorf("%w: empty add input", core.ErrFail)
	}
	x.mu.RLock()
	known := x.dim
	x.mu.RUnlock()
	if known == 0 {
		// First insertion into an empty index fixes the dimension.
		x.mu.Lock()
		if x.dim == 0 {
			x.dim = dim
		}
		x.mu.Unlock()
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if dim != x.dim {
		return 0, fmt.Errorf("%w: add dimension %d, index dimension %d", core.ErrFail, dim, x.dim)
	}
	return x.store.Append(data, count, dim, x.rowSize())
}

// Delete tombstones one identifier.
func (x *Index) Delete(id int32) error { return x.store.Delete(id) }

// Search answers one query. Results are exact whenever the number of
// assigned rows fits within MaxCheck; beyond that the partition trees
// seed a best-first traversal of the neighborhood graph.
func (x *Index) Search(query []byte, res *core.QueryResult) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	res.Reset()
	data, count := x.store.Snapshot()
	if count == 0 {
		return nil
	}
	if len(query) < x.rowSize() {
		return fmt.Errorf("%w: query is %d bytes, want %d", core.ErrFail, len(query), x.rowSize())
	}

	q := make([]float32, x.dim)
	x.decode(query, q)
	rowSize := x.rowSize()
	scratch := make([]float32, x.dim)
	distTo := func(id int32) float32 {
		x.decode(data[int(id)*rowSize:(int(id)+1)*rowSize], scratch)
		return x.distFn(q, scratch)
	}

	if int(count) <= x.maxCheck {
		for id := int32(0); id < count; id++ {
			if x.store.IsLive(id) {
				res.Insert(id, distTo(id))
			}
		}
		return nil
	}

	seeds := x.trees.Seed(q, distTo, seedLimit)
	x.graph.Expand(seeds, distTo, x.store.IsLive, x.maxCheck, res)

	// Rows appended after the last rebuild are outside the graph.
	for id := x.graph.Built(); id < count; id++ {
		if x.store.IsLive(id) {
			res.Insert(id, distTo(id))
		}
	}
	return nil
}

// NeedRefine reports whether enough tombstones accumulated that a
// compaction pass should run before a durable write.
func (x *Index) NeedRefine() bool {
	return int(x.store.DeletedCount()) > x.refineThreshold
}

// Refine writes a compacted copy of the index - live rows only, ids
// reassigned densely - into the ordered stream list. When meta is present
// and the list has more than five streams, the compacted metadata goes
// into the last two.
func (x *Index) Refine(ws []io.Writer, meta *metadata.Set) error {
	x.mu.RLock()
	ids, rows := x.store.LiveRows()
	dim := x.dim
	x.mu.RUnlock()
	if len(ids) == 0 {
		return core.ErrEmptyIndex
	}

	compact := New(x.algoType, x.valueType, x.trees.Clone())
	compact.distMethod = x.distMethod
	compact.distFn = x.distFn
	compact.neighborhoodSize = x.neighborhoodSize
	compact.maxCheck = x.maxCheck
	compact.refineThreshold = x.refineThreshold
	if err := compact.Build(rows, int32(len(ids)), dim); err != nil {
		return err
	}

	if meta != nil && len(ws) > 5 {
		packed := metadata.New()
		for _, old := range ids {
			packed.Append(meta.Get(old))
		}
		if err := packed.SaveToStreams(ws[len(ws)-2], ws[len(ws)-1]); err != nil {
			return err
		}
	}
	return compact.SaveData(ws[:compact.BlobCount()])
}

// BlobCount is fixed: trees, graph, vectors, tombstones.
func (x *Index) BlobCount() int { return 4 }

// DataFiles names the folder-mode data files, in SaveData order.
func (x *Index) DataFiles() []string {
	return []string{"tree.bin", "graph.bin", "vectors.bin", "deletes.bin"}
}

// BufferSizes returns the exact byte size of each data blob.
func (x *Index) BufferSizes() []uint64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return []uint64{
		x.trees.TreeBytes(),
		x.graph.Bytes(),
		x.store.VectorBytes(),
		x.store.TombstoneBytes(),
	}
}

// SaveData writes the data blobs in DataFiles order.
func (x *Index) SaveData(ws []io.Writer) error {
	if len(ws) < x.BlobCount() {
		return fmt.Errorf("%w: %d data streams, want %d", core.ErrFail, len(ws), x.BlobCount())
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if err := x.trees.WriteTrees(ws[0]); err != nil {
		return err
	}
	if err := x.graph.WriteTo(ws[1]); err != nil {
		return err
	}
	if err := x.store.WriteVectors(ws[2]); err != nil {
		return err
	}
	return x.store.WriteTombstones(ws[3])
}

// LoadData replaces all state from the data blobs.
func (x *Index) LoadData(rs []io.Reader) error {
	if len(rs) < x.BlobCount() {
		return fmt.Errorf("%w: %d data streams, want %d", core.ErrFail, len(rs), x.BlobCount())
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.trees.ReadTrees(rs[0]); err != nil {
		return err
	}
	g := nng.Empty(int32(x.neighborhoodSize))
	if err := g.ReadFrom(rs[1]); err != nil {
		return err
	}
	x.graph = g
	if err := x.store.ReadVectors(rs[2]); err != nil {
		return err
	}
	if err := x.store.ReadTombstones(rs[3]); err != nil {
		return err
	}
	x.dim = x.store.Dim()
	return nil
}

// SetParameter applies one string parameter. Unknown names are ignored so
// configs can carry forward-compatible keys.
func (x *Index) SetParameter(name, value string) error {
	switch {
	case strings.EqualFold(name, "DistCalcMethod"):
		m := core.ParseDistCalcMethod(value)
		if m == core.DistCalcMethodUndefined {
			return fmt.Errorf("%w: DistCalcMethod %q", core.ErrFailedParseValue, value)
		}
		x.distMethod = m
		x.distFn = distance.ForMethod(m)
		return nil
	case strings.EqualFold(name, "NeighborhoodSize"):
		return setInt(&x.neighborhoodSize, name, value)
	case strings.EqualFold(name, "MaxCheck"):
		return setInt(&x.maxCheck, name, value)
	case strings.EqualFold(name, "RefineThreshold"):
		return setInt(&x.refineThreshold, name, value)
	default:
		x.trees.ApplyParameter(name, value)
		return nil
	}
}

func setInt(dst *int, name, value string) error {
	v, err := strconv.Atoi(value)
	if err != nil || v <= 0 {
		return fmt.Errorf("%w: %s %q", core.ErrFailedParseValue, name, value)
	}
	*dst = v
	return nil
}

// GetParameter returns the config spelling of one parameter, "" when
// unknown.
func (x *Index) GetParameter(name string) string {
	switch {
	case strings.EqualFold(name, "DistCalcMethod"):
		return x.distMethod.String()
	case strings.EqualFold(name, "NeighborhoodSize"):
		return strconv.Itoa(x.neighborhoodSize)
	case strings.EqualFold(name, "MaxCheck"):
		return strconv.Itoa(x.maxCheck)
	case strings.EqualFold(name, "RefineThreshold"):
		return strconv.Itoa(x.refineThreshold)
	default:
		for _, line := range x.trees.ConfigLines() {
			if k, v, ok := strings.Cut(line, "="); ok && strings.EqualFold(k, name) {
				return v
			}
		}
		return ""
	}
}

// SaveConfig writes the plugin's Key=Value lines, continuing the [Index]
// section.
func (x *Index) SaveConfig(w io.Writer) error {
	lines := []string{
		"DistCalcMethod=" + x.distMethod.String(),
		"NeighborhoodSize=" + strconv.Itoa(x.neighborhoodSize),
		"MaxCheck=" + strconv.Itoa(x.maxCheck),
		"RefineThreshold=" + strconv.Itoa(x.refineThreshold),
	}
	lines = append(lines, x.trees.ConfigLines()...)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
