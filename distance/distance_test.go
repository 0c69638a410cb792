package distance

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/annlab/sptree/core"
)

func TestL2(t *testing.T) {
	assert.Equal(t, float32(0), L2([]float32{1, 2}, []float32{1, 2}))
	assert.Equal(t, float32(25), L2([]float32{0, 0}, []float32{3, 4}))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 0, Cosine([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 1, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, 2, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	// Zero-norm inputs are maximally distant, not NaN.
	assert.Equal(t, float32(1), Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestForMethod(t *testing.T) {
	assert.NotNil(t, ForMethod(core.DistCalcMethodL2))
	assert.NotNil(t, ForMethod(core.DistCalcMethodCosine))
	assert.Nil(t, ForMethod(core.DistCalcMethodUndefined))
}

func TestDecoders(t *testing.T) {
	out := make([]float32, 2)

	NewDecoder(core.VectorValueTypeInt8)([]byte{0xFF, 0x05}, out)
	assert.Equal(t, []float32{-1, 5}, out)

	NewDecoder(core.VectorValueTypeUInt8)([]byte{0xFF, 0x05}, out)
	assert.Equal(t, []float32{255, 5}, out)

	raw := make([]byte, 4)
	binary.LittleEndian.PutUint16(raw[0:], uint16(0xFFFE)) // -2
	binary.LittleEndian.PutUint16(raw[2:], 300)
	NewDecoder(core.VectorValueTypeInt16)(raw, out)
	assert.Equal(t, []float32{-2, 300}, out)

	raw = make([]byte, 8)
	binary.LittleEndian.PutUint32(raw[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(raw[4:], math.Float32bits(-0.25))
	NewDecoder(core.VectorValueTypeFloat32)(raw, out)
	assert.Equal(t, []float32{1.5, -0.25}, out)

	assert.Nil(t, NewDecoder(core.VectorValueTypeUndefined))
}
