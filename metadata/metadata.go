// Package metadata implements the metadata store of a vector index: an
// opaque byte payload per vector identifier, held as one concatenated
// buffer plus an offset table.
//
// Entry i covers data[offsets[i]:offsets[i+1]]. The table has count+1
// offsets, starts at 0 and never decreases; empty payloads are legal and
// occupy no data bytes. The store knows nothing about soft deletion -
// liveness is the owning index's concern.
package metadata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/annlab/sptree/core"
)

// Set is an in-memory metadata store. It is not synchronized; the owning
// index serializes access.
type Set struct {
	data    []byte
	offsets []uint64
}

// New returns an empty store.
func New() *Set {
	return &Set{offsets: []uint64{0}}
}

// NewFromPayloads builds a store holding the given payloads in order.
func NewFromPayloads(payloads ...[]byte) *Set {
	s := New()
	for _, p := range payloads {
		s.Append(p)
	}
	return s
}

// NewFromBlobs rebuilds a store from its in-memory persisted form: the
// payload buffer and the offset table blob, whose first four bytes are a
// little-endian int32 entry count followed by count+1 uint64 offsets.
func NewFromBlobs(payload, offsetBlob []byte) (*Set, error) {
	if len(offsetBlob) < 4 {
		return nil, fmt.Errorf("%w: metadata offset blob too short", core.ErrFail)
	}
	count := int32(binary.LittleEndian.Uint32(offsetBlob))
	return newFromParts(payload, offsetBlob[4:], count)
}

// NewFromFiles rebuilds a store from the payload file and the offset-index
// file written by SaveToFiles.
func NewFromFiles(payloadPath, offsetPath string) (*Set, error) {
	payload, err := os.ReadFile(payloadPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrFailedOpenFile, payloadPath)
	}
	idx, err := os.ReadFile(offsetPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrFailedOpenFile, offsetPath)
	}
	return NewFromBlobs(payload, idx)
}

func newFromParts(payload, offsetBytes []byte, count int32) (*Set, error) {
	if count < 0 || len(offsetBytes) < (int(count)+1)*8 {
		return nil, fmt.Errorf("%w: metadata offset table truncated", core.ErrFail)
	}
	offsets := make([]uint64, count+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(offsetBytes[i*8:])
	}
	s := &Set{data: payload, offsets: offsets}
	if !s.Available() {
		return nil, fmt.Errorf("%w: metadata offset table inconsistent", core.ErrFail)
	}
	return s, nil
}

// Available reports whether the offset table is internally consistent
// with the payload buffer.
func (s *Set) Available() bool {
	if s == nil || len(s.offsets) == 0 || s.offsets[0] != 0 {
		return false
	}
	for i := 1; i < len(s.offsets); i++ {
		if s.offsets[i] < s.offsets[i-1] {
			return false
		}
	}
	return s.offsets[len(s.offsets)-1] == uint64(len(s.data))
}

// Count returns the number of entries.
func (s *Set) Count() int32 { return int32(len(s.offsets) - 1) }

// Get returns the payload bytes of entry i, or nil when i is out of range.
// The returned slice aliases the store.
func (s *Set) Get(i int32) []byte {
	if i < 0 || i >= s.Count() {
		return nil
	}
	return s.data[s.offsets[i]:s.offsets[i+1]]
}

// Append adds one payload at the next identifier.
func (s *Set) Append(payload []byte) {
	s.data = append(s.data, payload...)
	s.offsets = append(s.offsets, uint64(len(s.data)))
}

// PadTo appends empty entries until the store holds n of them. Vectors
// inserted without metadata occupy such empty slots so identifiers and
// entries stay aligned.
func (s *Set) PadTo(n int32) {
	for s.Count() < n {
		s.offsets = append(s.offsets, uint64(len(s.data)))
	}
}

// BufferSizes returns the exact byte sizes of the two persisted parts:
// the payload buffer and the offset table including its count prefix.
func (s *Set) BufferSizes() (payload, offsets uint64) {
	return uint64(len(s.data)), uint64(4 + len(s.offsets)*8)
}

// SaveToStreams writes the payload buffer and the prefixed offset table.
func (s *Set) SaveToStreams(payloadW, offsetW io.Writer) error {
	if _, err := payloadW.Write(s.data); err != nil {
		return err
	}
	var buf bytes.Buffer
	var scratch [8]byte
	binary.LittleEndian.PutUint32(scratch[:4], uint32(s.Count()))
	buf.Write(scratch[:4])
	for _, off := range s.offsets {
		binary.LittleEndian.PutUint64(scratch[:], off)
		buf.Write(scratch[:])
	}
	_, err := offsetW.Write(buf.Bytes())
	return err
}

// SaveToFiles writes the two persisted files.
func (s *Set) SaveToFiles(payloadPath, offsetPath string) error {
	pf, err := os.Create(payloadPath)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrFailedCreateFile, payloadPath)
	}
	defer pf.Close()
	of, err := os.Create(offsetPath)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrFailedCreateFile, offsetPath)
	}
	defer of.Close()
	if err := s.SaveToStreams(pf, of); err != nil {
		return err
	}
	if err := pf.Close(); err != nil {
		return err
	}
	return of.Close()
}
