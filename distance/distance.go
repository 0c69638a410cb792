// Package distance provides the distance kernels and the raw-row decoders
// used by the index plugins. Kernels operate on float32; rows of narrower
// value types are decoded through a Decoder first.
package distance

import (
	"encoding/binary"
	"math"

	"github.com/annlab/sptree/core"
)

// Func computes the distance between two equal-length float32 vectors.
// Smaller is closer for every method, including Cosine.
type Func func(a, b []float32) float32

// L2 returns the squared Euclidean distance.
func L2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Cosine returns the cosine distance 1 - cos(a, b). Zero-norm inputs are
// treated as maximally distant.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float32
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/float32(math.Sqrt(float64(na)*float64(nb)))
}

// ForMethod returns the kernel for a distance method, or nil for
// DistCalcMethodUndefined.
func ForMethod(m core.DistCalcMethod) Func {
	switch m {
	case core.DistCalcMethodL2:
		return L2
	case core.DistCalcMethodCosine:
		return Cosine
	default:
		return nil
	}
}

// Decoder expands one raw little-endian row into float32 elements.
// len(out) elements are decoded; raw must hold at least that many values.
type Decoder func(raw []byte, out []float32)

// NewDecoder returns the decoder for a value type, or nil for
// VectorValueTypeUndefined.
func NewDecoder(t core.VectorValueType) Decoder {
	switch t {
	case core.VectorValueTypeInt8:
		return func(raw []byte, out []float32) {
			for i := range out {
				out[i] = float32(int8(raw[i]))
			}
		}
	case core.VectorValueTypeUInt8:
		return func(raw []byte, out []float32) {
			for i := range out {
				out[i] = float32(raw[i])
			}
		}
	case core.VectorValueTypeInt16:
		return func(raw []byte, out []float32) {
			for i := range out {
				out[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:])))
			}
		}
	case core.VectorValueTypeFloat32:
		return func(raw []byte, out []float32) {
			for i := range out {
				out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			}
		}
	default:
		return nil
	}
}
