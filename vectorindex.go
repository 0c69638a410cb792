package sptree

import (
	"fmt"
	"sync"

	"github.com/annlab/sptree/algo"
	"github.com/annlab/sptree/core"
	"github.com/annlab/sptree/metadata"
)

// VectorIndex is one index instance: an algorithm plugin that owns the
// vector rows, plus the metadata store and the reverse metadata map kept
// aligned with vector identifiers.
//
// All operations are safe for concurrent use. Reads never block reads;
// metadata-carrying writes are serialized so payloads stay aligned with
// the identifiers the plugin assigns.
type VectorIndex struct {
	plugin algo.Plugin
	logger *Logger

	// addMu serializes metadata-carrying mutations. The plugin assigns
	// identifiers contiguously per Add call, so holding addMu across the
	// Add and the metadata append keeps payload order aligned with ids.
	addMu sync.Mutex

	metaMu    sync.RWMutex
	meta      *metadata.Set
	metaToVec map[string]int32

	metadataFile      string
	metadataIndexFile string
}

// AlgoType returns the algorithm variant tag.
func (x *VectorIndex) AlgoType() core.IndexAlgoType { return x.plugin.AlgoType() }

// ValueType returns the vector element type tag.
func (x *VectorIndex) ValueType() core.VectorValueType { return x.plugin.ValueType() }

// Dimension returns the vector dimension, 0 before the first build or add.
func (x *VectorIndex) Dimension() int { return x.plugin.Dimension() }

// NumSamples returns the number of assigned identifiers, deleted included.
func (x *VectorIndex) NumSamples() int32 { return x.plugin.NumSamples() }

// NumDeleted returns the number of soft-deleted identifiers.
func (x *VectorIndex) NumDeleted() int32 { return x.plugin.NumDeleted() }

// ContainSample reports whether id is assigned and not soft-deleted.
func (x *VectorIndex) ContainSample(id int32) bool { return x.plugin.ContainSample(id) }

// GetSample returns the raw row bytes for id, nil when unassigned.
func (x *VectorIndex) GetSample(id int32) []byte { return x.plugin.GetSample(id) }

// SetParameter forwards one string parameter to the plugin.
func (x *VectorIndex) SetParameter(name, value string) error {
	return x.plugin.SetParameter(name, value)
}

// GetParameter returns the plugin's config spelling of one parameter,
// "" when unknown.
func (x *VectorIndex) GetParameter(name string) string {
	return x.plugin.GetParameter(name)
}

func (x *VectorIndex) checkVectorSet(vs *core.VectorSet) error {
	if vs == nil || vs.Count() == 0 {
		return fmt.Errorf("%w: nil or empty vector set", core.ErrFail)
	}
	if vs.ValueType() != x.plugin.ValueType() {
		return fmt.Errorf("%w: vector set value type %s, index value type %s",
			core.ErrFail, vs.ValueType(), x.plugin.ValueType())
	}
	return nil
}

// BuildIndex replaces all index state with an index over the vector set.
// A nil meta drops any previously owned metadata. When withMetaMapping is
// set the reverse metadata map is built immediately after.
func (x *VectorIndex) BuildIndex(vs *core.VectorSet, meta *metadata.Set, withMetaMapping bool) error {
	if err := x.checkVectorSet(vs); err != nil {
		return err
	}
	x.addMu.Lock()
	defer x.addMu.Unlock()
	if err := x.plugin.Build(vs.Data(), vs.Count(), vs.Dimension()); err != nil {
		return err
	}
	x.metaMu.Lock()
	if meta != nil {
		x.meta = meta
	} else {
		x.meta = metadata.New()
	}
	x.metaToVec = nil
	x.metaMu.Unlock()
	if withMetaMapping {
		x.BuildMetaMapping()
	}
	x.logger.Info("index built", "count", vs.Count(), "dimension", vs.Dimension())
	return nil
}

// AddIndex appends the vector set, assigning the next contiguous block of
// identifiers. When meta is non-nil it must carry one payload per row;
// the payloads are appended at the assigned identifiers, padding the
// metadata store with empty entries for any rows added without metadata
// before. The reverse map, if built, learns the new payloads; it is never
// invalidated for old ones.
func (x *VectorIndex) AddIndex(vs *core.VectorSet, meta *metadata.Set) (int32, error) {
	if err := x.checkVectorSet(vs); err != nil {
		return core.InvalidVID, err
	}
	if meta == nil {
		return x.plugin.Add(vs.Data(), vs.Count(), vs.Dimension())
	}
	if meta.Count() != vs.Count() {
		return core.InvalidVID, fmt.Errorf("%w: %d metadata entries for %d vectors",
			core.ErrFail, meta.Count(), vs.Count())
	}

	x.addMu.Lock()
	defer x.addMu.Unlock()
	first, err := x.plugin.Add(vs.Data(), vs.Count(), vs.Dimension())
	if err != nil {
		return core.InvalidVID, err
	}
	x.metaMu.Lock()
	x.meta.PadTo(first)
	for i := int32(0); i < meta.Count(); i++ {
		payload := meta.Get(i)
		x.meta.Append(payload)
		if x.metaToVec != nil && len(payload) > 0 {
			x.metaToVec[string(payload)] = first + i
		}
	}
	x.metaMu.Unlock()
	return first, nil
}

// DeleteIndex soft-deletes one identifier. Unassigned or already-deleted
// identifiers return core.ErrVectorNotFound.
func (x *VectorIndex) DeleteIndex(id int32) error {
	return x.plugin.Delete(id)
}

// DeleteIndexByMetadata soft-deletes the vector the reverse map associates
// with the payload. The map must have been built with BuildMetaMapping;
// stale entries resolve to their old identifier, so deleting through a
// payload that was already deleted returns core.ErrVectorNotFound.
func (x *VectorIndex) DeleteIndexByMetadata(payload []byte) error {
	x.metaMu.RLock()
	m := x.metaToVec
	x.metaMu.RUnlock()
	if m == nil {
		return fmt.Errorf("%w: metadata mapping not built", core.ErrVectorNotFound)
	}
	id, ok := m[string(payload)]
	if !ok {
		return core.ErrVectorNotFound
	}
	return x.plugin.Delete(id)
}

// BuildMetaMapping rebuilds the reverse metadata map over live samples
// only. When several live samples carry the same payload the highest
// identifier wins. The map is a snapshot: later adds extend it, but
// deletions never remove entries until the next rebuild.
func (x *VectorIndex) BuildMetaMapping() {
	count := x.plugin.NumSamples()
	x.metaMu.Lock()
	defer x.metaMu.Unlock()
	m := make(map[string]int32, count)
	for id := int32(0); id < count; id++ {
		if !x.plugin.ContainSample(id) {
			continue
		}
		if payload := x.meta.Get(id); len(payload) > 0 {
			m[string(payload)] = id
		}
	}
	x.metaToVec = m
}

// GetMetadata returns the payload stored for id, nil when absent.
func (x *VectorIndex) GetMetadata(id int32) []byte {
	x.metaMu.RLock()
	defer x.metaMu.RUnlock()
	return x.meta.Get(id)
}

// SetMetadata replaces the owned metadata store from a payload/offset file
// pair. Any previously built reverse map is discarded.
func (x *VectorIndex) SetMetadata(payloadPath, offsetPath string) error {
	meta, err := metadata.NewFromFiles(payloadPath, offsetPath)
	if err != nil {
		return err
	}
	x.metaMu.Lock()
	defer x.metaMu.Unlock()
	x.meta = meta
	x.metaToVec = nil
	return nil
}

// GetSampleByMetadata resolves a payload through the reverse map and
// returns the raw vector bytes plus whether the sample is soft-deleted.
func (x *VectorIndex) GetSampleByMetadata(payload []byte) (vector []byte, deleted bool, err error) {
	x.metaMu.RLock()
	m := x.metaToVec
	x.metaMu.RUnlock()
	if m == nil {
		return nil, false, fmt.Errorf("%w: metadata mapping not built", core.ErrVectorNotFound)
	}
	id, ok := m[string(payload)]
	if !ok {
		return nil, false, core.ErrVectorNotFound
	}
	row := x.plugin.GetSample(id)
	if row == nil {
		return nil, false, core.ErrVectorNotFound
	}
	return row, !x.plugin.ContainSample(id), nil
}
