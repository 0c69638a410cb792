// Package algo defines the contract every index algorithm plugin must
// satisfy to participate in the index lifecycle, plus the registry the
// factory dispatches through.
package algo

import (
	"io"
	"sync"

	"github.com/annlab/sptree/core"
	"github.com/annlab/sptree/metadata"
)

// Plugin is one concrete (algorithm variant, value type) implementation.
// It owns the raw vector storage, the soft-delete bitmap and all numeric
// build/add/delete/search work.
//
// Concurrency contract: Search and the read accessors must be safe under
// any number of concurrent readers, and readers must never block other
// readers. Add and Delete must be safe under concurrent writers; merge
// parallelism depends on it. Build and LoadData are exclusive.
type Plugin interface {
	AlgoType() core.IndexAlgoType
	ValueType() core.VectorValueType
	Dimension() int
	NumSamples() int32
	NumDeleted() int32

	// ContainSample reports whether id is assigned and not soft-deleted.
	ContainSample(id int32) bool
	// GetSample returns the raw row bytes for id, nil when unassigned.
	GetSample(id int32) []byte

	// Build replaces all state with an index over count rows of raw data.
	Build(data []byte, count int32, dim int) error
	// Add appends count rows and returns the first identifier assigned.
	Add(data []byte, count int32, dim int) (int32, error)
	// Delete marks id soft-deleted. Returns core.ErrVectorNotFound when
	// id is unassigned or already deleted.
	Delete(id int32) error
	// Search answers one query, writing into res ascending by distance.
	Search(query []byte, res *core.QueryResult) error

	// NeedRefine reports whether tombstones have accumulated past the
	// point where a compaction pass should run before a durable write.
	NeedRefine() bool
	// Refine writes a compacted copy of the index into the ordered stream
	// list. In this path the plugin is also responsible for the metadata:
	// when meta is non-nil and the list has more than five streams, the
	// compacted store goes into the second-to-last and last streams.
	Refine(ws []io.Writer, meta *metadata.Set) error

	// BlobCount is the fixed number of data streams SaveData produces and
	// LoadData consumes, excluding metadata.
	BlobCount() int
	// DataFiles names the BlobCount data files used in folder persistence.
	DataFiles() []string
	// BufferSizes returns the exact byte size of each data blob.
	BufferSizes() []uint64
	SaveData(ws []io.Writer) error
	LoadData(rs []io.Reader) error

	// SetParameter applies one algorithm parameter; unknown names are
	// ignored. GetParameter returns "" for unknown names.
	SetParameter(name, value string) error
	GetParameter(name string) string
	// SaveConfig writes the plugin's Key=Value lines, continuing the
	// [Index] section of the loader config.
	SaveConfig(w io.Writer) error
}

// Constructor builds a fresh, empty plugin with default parameters.
type Constructor func() Plugin

var (
	registryMu sync.RWMutex
	registry   = map[core.IndexAlgoType]map[core.VectorValueType]Constructor{}
)

// Register installs a constructor for the (variant, value type) pair.
// Plugins register themselves from init.
func Register(at core.IndexAlgoType, vt core.VectorValueType, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	byType, ok := registry[at]
	if !ok {
		byType = map[core.VectorValueType]Constructor{}
		registry[at] = byType
	}
	byType[vt] = ctor
}

// New instantiates the registered plugin for the pair, or nil when the
// pair is unregistered or either tag is undefined.
func New(at core.IndexAlgoType, vt core.VectorValueType) Plugin {
	if at == core.IndexAlgoTypeUndefined || vt == core.VectorValueTypeUndefined {
		return nil
	}
	registryMu.RLock()
	defer registryMu.RUnlock()
	ctor, ok := registry[at][vt]
	if !ok {
		return nil
	}
	return ctor()
}
