package core

import (
	"encoding/binary"
	"fmt"
	"math"
)

// VectorSet is a dense batch of raw vectors sharing one value type and
// dimension. Rows are stored back to back in little-endian element order.
type VectorSet struct {
	data      []byte
	valueType VectorValueType
	dim       int
	count     int32
}

// NewVectorSet wraps raw row data. The buffer length must equal
// count * dim * valueType.Size().
func NewVectorSet(data []byte, valueType VectorValueType, dim int, count int32) (*VectorSet, error) {
	if valueType == VectorValueTypeUndefined || dim <= 0 || count < 0 {
		return nil, fmt.Errorf("%w: invalid vector set shape", ErrFail)
	}
	if len(data) != int(count)*dim*valueType.Size() {
		return nil, fmt.Errorf("%w: vector set buffer is %d bytes, want %d",
			ErrFail, len(data), int(count)*dim*valueType.Size())
	}
	return &VectorSet{data: data, valueType: valueType, dim: dim, count: count}, nil
}

// NewFloat32VectorSet encodes float32 rows into a VectorSet. All rows must
// share the same dimension.
func NewFloat32VectorSet(rows [][]float32) (*VectorSet, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty vector set", ErrFail)
	}
	dim := len(rows[0])
	buf := make([]byte, 0, len(rows)*dim*4)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has dimension %d, want %d", ErrFail, i, len(row), dim)
		}
		for _, v := range row {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	return NewVectorSet(buf, VectorValueTypeFloat32, dim, int32(len(rows)))
}

// Data returns the backing row buffer.
func (s *VectorSet) Data() []byte { return s.data }

// ValueType returns the element type of the rows.
func (s *VectorSet) ValueType() VectorValueType { return s.valueType }

// Dimension returns the per-row element count.
func (s *VectorSet) Dimension() int { return s.dim }

// Count returns the number of rows.
func (s *VectorSet) Count() int32 { return s.count }

// Vector returns the raw bytes of row i.
func (s *VectorSet) Vector(i int32) []byte {
	rowSize := s.dim * s.valueType.Size()
	return s.data[int(i)*rowSize : (int(i)+1)*rowSize]
}
