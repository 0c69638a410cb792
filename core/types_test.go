package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTags(t *testing.T) {
	assert.Equal(t, IndexAlgoTypeBKT, ParseIndexAlgoType("bkt"))
	assert.Equal(t, IndexAlgoTypeKDT, ParseIndexAlgoType("KDT"))
	assert.Equal(t, IndexAlgoTypeUndefined, ParseIndexAlgoType("ivf"))

	assert.Equal(t, VectorValueTypeFloat32, ParseVectorValueType("float"))
	assert.Equal(t, VectorValueTypeInt16, ParseVectorValueType("Int16"))
	assert.Equal(t, VectorValueTypeUndefined, ParseVectorValueType("float64"))

	assert.Equal(t, DistCalcMethodCosine, ParseDistCalcMethod("cosine"))
	assert.Equal(t, DistCalcMethodUndefined, ParseDistCalcMethod("ip"))
}

func TestValueTypeSize(t *testing.T) {
	assert.Equal(t, 1, VectorValueTypeInt8.Size())
	assert.Equal(t, 1, VectorValueTypeUInt8.Size())
	assert.Equal(t, 2, VectorValueTypeInt16.Size())
	assert.Equal(t, 4, VectorValueTypeFloat32.Size())
	assert.Equal(t, 0, VectorValueTypeUndefined.Size())
}

func TestNewVectorSetValidatesShape(t *testing.T) {
	_, err := NewVectorSet(make([]byte, 15), VectorValueTypeFloat32, 2, 2)
	assert.ErrorIs(t, err, ErrFail)

	vs, err := NewVectorSet(make([]byte, 16), VectorValueTypeFloat32, 2, 2)
	assert.NoError(t, err)
	assert.Equal(t, int32(2), vs.Count())
	assert.Len(t, vs.Vector(1), 8)
}
