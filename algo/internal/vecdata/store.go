// Package vecdata implements the mutable row storage shared by the index
// plugins: contiguous raw vector rows plus a roaring tombstone bitmap.
package vecdata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/annlab/sptree/core"
)

// Store holds raw vector rows back to back. Rows are immutable once
// appended; deletion is a tombstone bit. Appends may reallocate the
// backing buffer, but snapshots taken by readers stay valid because the
// old array is never mutated.
type Store struct {
	mu      sync.RWMutex
	dim     int
	rowSize int
	data    []byte
	count   int32
	deleted *roaring.Bitmap
}

// New returns an empty store for rows of dim elements, rowSize bytes each.
func New(dim, rowSize int) *Store {
	return &Store{dim: dim, rowSize: rowSize, deleted: roaring.New()}
}

// Dim returns the row dimension, 0 before the first append or load.
func (s *Store) Dim() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Reset replaces all rows and clears tombstones.
func (s *Store) Reset(data []byte, count int32, dim, rowSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dim = dim
	s.rowSize = rowSize
	s.data = data
	s.count = count
	s.deleted = roaring.New()
}

// Append adds n rows and returns the identifier of the first.
func (s *Store) Append(raw []byte, n int32, dim, rowSize int) (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 && s.dim == 0 {
		s.dim = dim
		s.rowSize = rowSize
	}
	if dim != s.dim {
		return 0, fmt.Errorf("%w: row dimension %d, store dimension %d", core.ErrFail, dim, s.dim)
	}
	if len(raw) != int(n)*s.rowSize {
		return 0, fmt.Errorf("%w: row buffer is %d bytes, want %d", core.ErrFail, len(raw), int(n)*s.rowSize)
	}
	first := s.count
	s.data = append(s.data, raw...)
	s.count += n
	return first, nil
}

// Snapshot returns the current row buffer and count. The buffer is an
// immutable prefix: later appends never touch the returned array.
func (s *Store) Snapshot() ([]byte, int32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[:int(s.count)*s.rowSize], s.count
}

// Row returns the raw bytes of row id, nil when unassigned.
func (s *Store) Row(id int32) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= s.count {
		return nil
	}
	return s.data[int(id)*s.rowSize : (int(id)+1)*s.rowSize]
}

// Count returns the number of assigned identifiers, deleted included.
func (s *Store) Count() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// DeletedCount returns the number of tombstoned identifiers.
func (s *Store) DeletedCount() int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int32(s.deleted.GetCardinality())
}

// IsLive reports whether id is assigned and not tombstoned.
func (s *Store) IsLive(id int32) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id >= 0 && id < s.count && !s.deleted.Contains(uint32(id))
}

// Delete tombstones id. Unassigned or already-deleted identifiers return
// core.ErrVectorNotFound.
func (s *Store) Delete(id int32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= s.count || s.deleted.Contains(uint32(id)) {
		return core.ErrVectorNotFound
	}
	s.deleted.Add(uint32(id))
	return nil
}

// LiveRows collects the ids and concatenated bytes of all live rows, in
// ascending identifier order. Used by refine compaction and merge.
func (s *Store) LiveRows() ([]int32, []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int32, 0, s.count)
	buf := make([]byte, 0, len(s.data))
	for id := int32(0); id < s.count; id++ {
		if s.deleted.Contains(uint32(id)) {
			continue
		}
		ids = append(ids, id)
		buf = append(buf, s.data[int(id)*s.rowSize:(int(id)+1)*s.rowSize]...)
	}
	return ids, buf
}

const vectorHeaderSize = 12 // count, dim, rowSize

// VectorBytes returns the exact size of the vector blob.
func (s *Store) VectorBytes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(vectorHeaderSize + int(s.count)*s.rowSize)
}

// TombstoneBytes returns the exact size of the tombstone blob.
func (s *Store) TombstoneBytes() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted.GetSerializedSizeInBytes()
}

// WriteVectors writes the vector blob: a 12-byte header followed by the
// row buffer.
func (s *Store) WriteVectors(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var hdr [vectorHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(s.count))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(s.dim))
	binary.LittleEndian.PutUint32(hdr[8:], uint32(s.rowSize))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(s.data[:int(s.count)*s.rowSize])
	return err
}

// ReadVectors replaces the rows from a vector blob.
func (s *Store) ReadVectors(r io.Reader) error {
	var hdr [vectorHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	count := int32(binary.LittleEndian.Uint32(hdr[0:]))
	dim := int(binary.LittleEndian.Uint32(hdr[4:]))
	rowSize := int(binary.LittleEndian.Uint32(hdr[8:]))
	if count < 0 || dim <= 0 || rowSize <= 0 {
		return fmt.Errorf("%w: vector blob header", core.ErrFail)
	}
	data := make([]byte, int(count)*rowSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dim = dim
	s.rowSize = rowSize
	s.data = data
	s.count = count
	return nil
}

// WriteTombstones writes the serialized roaring bitmap.
func (s *Store) WriteTombstones(w io.Writer) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.deleted.WriteTo(w)
	return err
}

// ReadTombstones replaces the bitmap from its serialized form.
func (s *Store) ReadTombstones(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	bm := roaring.New()
	if _, err := bm.ReadFrom(bytes.NewReader(raw)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = bm
	return nil
}
